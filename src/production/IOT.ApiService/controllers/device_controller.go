package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/active"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/lock"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/middleware"
	logger "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Logger"
	iotmodels "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Models"
	interfaces "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Interfaces"
)

// DeviceController handles device registry requests
type DeviceController struct {
	userRepo       interfaces.UserRepository
	messageRepo    interfaces.MessageRepository
	activeRepo     interfaces.ActiveRepository
	authMiddleware *middleware.AuthMiddleware
	userLocks      *lock.KeyedMutex
	logger         *logger.Logger
}

// NewDeviceController creates a new device controller
func NewDeviceController(
	userRepo interfaces.UserRepository,
	messageRepo interfaces.MessageRepository,
	activeRepo interfaces.ActiveRepository,
	authMiddleware *middleware.AuthMiddleware,
	userLocks *lock.KeyedMutex,
	logger *logger.Logger,
) *DeviceController {
	return &DeviceController{
		userRepo:       userRepo,
		messageRepo:    messageRepo,
		activeRepo:     activeRepo,
		authMiddleware: authMiddleware,
		userLocks:      userLocks,
		logger:         logger,
	}
}

// RegisterRoutes registers the device routes with Gin
func (c *DeviceController) RegisterRoutes(router *gin.Engine) {
	devices := router.Group("/api/device", c.authMiddleware.Authenticate())
	{
		devices.GET("/statistics", c.Statistics)
		devices.GET("/active", c.ActiveNums)
		devices.GET("/search", c.Search)
		devices.POST("/create", c.Create)
		devices.PUT("/modify", c.Modify)
		devices.DELETE("/delete", c.Delete)
	}
}

type DeviceStatistics struct {
	DeviceCount       int                `json:"deviceCount"`
	ActiveDeviceCount int                `json:"activeDeviceCount"`
	MessageCount      int                `json:"messageCount"`
	DeviceType        []active.TypeCount `json:"deviceType"`
}

// Statistics returns the user's device counts: total, active this hour,
// message total and the type histogram.
func (c *DeviceController) Statistics(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	currentHour := active.HourBucket(time.Now().UnixMilli())
	bucket, err := c.activeRepo.FindByUserAndHour(ctx.Request.Context(), user.ID, currentHour)
	if err != nil {
		c.internalError(ctx, err, "Get device statistics failed")
		return
	}
	activeCount := 0
	if bucket != nil {
		activeCount = len(bucket.ActiveDevice)
	}

	stats := DeviceStatistics{
		DeviceCount:       len(user.Devices),
		ActiveDeviceCount: activeCount,
		MessageCount:      active.MessageCount(user.Devices),
		DeviceType:        active.Histogram(user.Devices),
	}

	c.logger.WithField("user_id", user.ID.Hex()).Debug("Get device statistics success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, stats))
}

// ActiveNums returns the 24-point hourly active-device series.
func (c *DeviceController) ActiveNums(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	buckets, err := c.activeRepo.FindAllByUser(ctx.Request.Context(), user.ID)
	if err != nil {
		c.internalError(ctx, err, "Get active device numbers failed")
		return
	}

	series := active.Series(buckets, time.Now().UnixMilli())
	c.logger.WithField("user_id", user.ID.Hex()).Debug("Get active device numbers success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, series))
}

type DeviceListData struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Type        iotmodels.DeviceType `json:"type"`
	Description string               `json:"description"`
}

// Search filters the user's devices by optional name substring and exact
// type; both filters combine with AND.
func (c *DeviceController) Search(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	name := ctx.Query("name")
	var deviceType *iotmodels.DeviceType
	if raw := ctx.Query("type"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 16)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid device type."))
			return
		}
		t := iotmodels.DeviceType(parsed)
		deviceType = &t
	}

	result := make([]DeviceListData, 0, len(user.Devices))
	for _, device := range user.Devices {
		if name != "" && !strings.Contains(strings.ToLower(device.Name), strings.ToLower(name)) {
			continue
		}
		if deviceType != nil && device.Type != *deviceType {
			continue
		}
		result = append(result, DeviceListData{
			ID:          device.ID.Hex(),
			Name:        device.Name,
			Type:        device.Type,
			Description: device.Description,
		})
	}

	c.logger.WithField("user_id", user.ID.Hex()).Debug("Search devices success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, result))
}

type CreateDeviceRequest struct {
	Name        string               `json:"name"`
	Type        iotmodels.DeviceType `json:"type"`
	Description string               `json:"description"`
}

// Create appends a device to the user aggregate.
func (c *DeviceController) Create(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	var req CreateDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}
	if !req.Type.Valid() {
		c.logger.Warn("Create device failed: invalid device type")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid device type."))
		return
	}

	device := iotmodels.Device{
		ID:          primitive.NewObjectID(),
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Messages:    []primitive.ObjectID{},
	}
	if err := c.userRepo.PushDevice(ctx.Request.Context(), user.ID, device); err != nil {
		c.internalError(ctx, err, "Create device failed")
		return
	}

	c.logger.WithField("device_id", device.ID.Hex()).Debug("Create device success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

type ModifyDeviceRequest struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Type        iotmodels.DeviceType `json:"type"`
	Description string               `json:"description"`
}

// Modify updates a device in place.
func (c *DeviceController) Modify(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	var req ModifyDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid request body."))
		return
	}
	if !req.Type.Valid() {
		c.logger.Warn("Modify device failed: invalid device type")
		ctx.JSON(http.StatusBadRequest, iotmodels.Error(http.StatusBadRequest, "Invalid device type."))
		return
	}

	deviceID, err := primitive.ObjectIDFromHex(req.ID)
	if err != nil {
		c.logger.Warn("Modify device failed: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	matched, err := c.userRepo.UpdateDevice(ctx.Request.Context(), user.ID, iotmodels.Device{
		ID:          deviceID,
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
	})
	if err != nil {
		c.internalError(ctx, err, "Modify device failed")
		return
	}
	if !matched {
		c.logger.WithField("device_id", req.ID).Warn("Modify device failed: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	c.logger.WithField("device_id", req.ID).Debug("Modify device success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

// Delete removes a device and its dependent records: messages first, then
// the activity bucket memberships, then the device itself. The cleanup is
// ordered best-effort, not atomic across collections.
func (c *DeviceController) Delete(ctx *gin.Context) {
	user, _ := middleware.GetCurrentUser(ctx)

	deviceID, err := primitive.ObjectIDFromHex(ctx.Query("id"))
	if err != nil || user.FindDevice(deviceID) == nil {
		c.logger.WithField("device_id", ctx.Query("id")).Warn("Delete device failed: device not found")
		ctx.JSON(http.StatusNotFound, iotmodels.Error(http.StatusNotFound, "Device not found."))
		return
	}

	// Serialize with message create so a concurrent insert cannot land
	// between the message cleanup and the device removal.
	key := user.ID.Hex()
	c.userLocks.Lock(key)
	defer c.userLocks.Unlock(key)

	if _, err := c.messageRepo.DeleteAllByDeviceID(ctx.Request.Context(), deviceID); err != nil {
		c.internalError(ctx, err, "Delete device failed")
		return
	}
	if err := c.activeRepo.PullDeviceFromAll(ctx.Request.Context(), user.ID, deviceID); err != nil {
		c.internalError(ctx, err, "Delete device failed")
		return
	}
	if _, err := c.userRepo.PullDevice(ctx.Request.Context(), user.ID, deviceID); err != nil {
		c.internalError(ctx, err, "Delete device failed")
		return
	}

	c.logger.WithField("device_id", deviceID.Hex()).Debug("Delete device success")
	ctx.JSON(http.StatusOK, iotmodels.OK(http.StatusOK, nil))
}

func (c *DeviceController) internalError(ctx *gin.Context, err error, msg string) {
	c.logger.ErrorWithError(err, msg)
	ctx.JSON(http.StatusInternalServerError,
		iotmodels.Error(http.StatusInternalServerError, "Internal server error."))
}
