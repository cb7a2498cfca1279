package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/controllers"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/lock"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/password"
	"gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/implementation/rememberme"
	authMiddleware "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.ApiService/middleware"
	container "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Container"
	implementation "gitlab.com/sensorgrid1/iot.dm_server/src/production/IOT.Repository/Implementation"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting API Service")

	// Initialize database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ctr.InitializeDatabase(ctx); err != nil {
		logger.FatalWithError(err, "Failed to initialize database")
	}

	db, err := ctr.GetDatabase()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database connection")
	}
	client, err := ctr.GetClient()
	if err != nil {
		logger.FatalWithError(err, "Failed to get database client")
	}

	// Create repositories
	userRepo := implementation.NewMongoUserRepository(db)
	messageRepo := implementation.NewMongoMessageRepository(db)
	activeRepo := implementation.NewMongoActiveRepository(db)

	config := ctr.GetConfig()

	// Initialize auth services
	rememberMeService := rememberme.NewService(config.Auth)
	encoder := password.NewEncoder()
	middlewareInstance := authMiddleware.NewAuthMiddleware(rememberMeService, userRepo, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config
	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// One lock table shared by every controller that mutates a user's
	// documents across collections.
	userLocks := lock.NewKeyedMutex()

	// Create controllers and register routes
	userController := controllers.NewUserController(userRepo, messageRepo, activeRepo, rememberMeService, encoder, middlewareInstance, userLocks, logger)
	deviceController := controllers.NewDeviceController(userRepo, messageRepo, activeRepo, middlewareInstance, userLocks, logger)
	messageController := controllers.NewMessageController(userRepo, messageRepo, activeRepo, middlewareInstance, userLocks, logger)
	healthController := controllers.NewHealthController(client, logger)

	userController.RegisterRoutes(router)
	deviceController.RegisterRoutes(router)
	messageController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)

	port := config.Server.Port

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
		IdleTimeout:  config.Server.IdleTimeout,
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("HTTP server starting on port " + port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start HTTP server")
		}
	}()

	logger.Info("API service running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Server forced to shutdown")
	}
}
