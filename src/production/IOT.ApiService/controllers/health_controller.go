package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
)

// HealthController handles health requests
type HealthController struct {
	client *mongo.Client
	logger *logger.Logger
}

// NewHealthController creates a new health controller
func NewHealthController(client *mongo.Client, logger *logger.Logger) *HealthController {
	return &HealthController{client: client, logger: logger}
}

// RegisterRoutes registers the health routes with Gin
func (c *HealthController) RegisterRoutes(router *gin.Engine) {
	router.GET("/health/live", c.HealthLive)
	router.GET("/health/ready", c.HealthReady)
}

func (c *HealthController) HealthLive(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (c *HealthController) HealthReady(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	if err := c.client.Ping(pingCtx, readpref.Primary()); err != nil {
		c.logger.ErrorWithError(err, "Readiness check failed: MongoDB unreachable")
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"db":     false,
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"db":     true,
	})
}
