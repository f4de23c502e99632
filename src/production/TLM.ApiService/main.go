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
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/controllers"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/realtime"
	container "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Container"

	// Pipeline imports
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/alerting"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/ingest"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/notify"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/presence"
	"gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/retention"

	// Auth imports
	authService "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/auth"
	jwt "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/jwt"
	rbac "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/implementation/rbac"
	authMiddleware "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.ApiService/middleware"
	api_models "gitlab.com/maplesense1/tlm.telemetry_server/src/production/TLM.Models/api"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewApiContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	config := ctr.GetConfig()
	logger.Info("Starting API Service with " + config.StorageDriver + " storage")

	// Connect stores and create repositories
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repos, err := ctr.GetRepositories(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize repositories")
	}

	// Initialize JWT service for token validation
	jwtConfig := api_models.Config{
		SecretKey:            config.Auth.JWTSecretKey,
		AccessTokenDuration:  config.Auth.AccessTokenDuration,
		RefreshTokenDuration: config.Auth.RefreshTokenDuration,
		Issuer:               config.Auth.JWTIssuer,
	}
	jwtService := jwt.NewService(jwtConfig)

	// Initialize RBAC service and device authorizer
	rbacService := rbac.NewService()
	authorizer := rbac.NewAuthorizer(rbacService, repos.Devices)

	// Create auth middleware
	middlewareConfig := authMiddleware.DefaultConfig()
	authMiddlewareInstance := authMiddleware.NewAuthMiddleware(jwtService, rbacService, repos.Users, middlewareConfig)

	// Initialize auth service and bootstrap admin
	authServiceInstance := authService.NewAuthService(repos.Users, jwtService, config.Auth.PasswordMinLength)
	created, err := authServiceInstance.EnsureAdmin(ctx, config.Auth.AdminUsername, config.Auth.AdminEmail, config.Auth.AdminPassword)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize admin user")
	}
	if created {
		logger.Info("Created admin user " + config.Auth.AdminUsername)
	}

	// Real-time hub
	hub := realtime.NewHub(authorizer, logger)

	// Email sink, optional
	var mailer notify.AlertMailer
	var mailerInstance *notify.Mailer
	if config.Email.Enabled() {
		mailerInstance = notify.NewMailer(repos.Users, notify.NewSMTPSender(config.Email), config.Email.QueueSize, config.Email.Workers, logger)
		mailerInstance.Start()
		mailer = mailerInstance
		logger.Info("Email notifications enabled via " + config.Email.Host)
	} else {
		logger.Warn("EMAIL_HOST not set; alert emails disabled")
	}

	// Pipeline
	dispatcher := notify.NewDispatcher(hub, mailer, logger)
	evaluator := alerting.NewEvaluator(repos.AlertRules, dispatcher, logger)
	ingestService := ingest.NewService(repos.Pins, repos.Readings, dispatcher, evaluator, logger)
	tracker := presence.NewTracker(repos.Devices, config.Telemetry.PresenceWindow)

	sweeper := retention.NewSweeper(repos.Readings, config.Telemetry.ReadingRetention, config.Telemetry.RetentionSweep, logger)
	sweeper.Start(context.Background())

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Configure CORS from config
	corsConfig := cors.Config{
		AllowOrigins:     config.CORS.AllowedOrigins,
		AllowMethods:     config.CORS.AllowedMethods,
		AllowHeaders:     config.CORS.AllowedHeaders,
		ExposeHeaders:    config.CORS.ExposedHeaders,
		AllowCredentials: config.CORS.AllowCredentials,
		MaxAge:           time.Duration(config.CORS.MaxAge) * time.Second,
	}
	router.Use(cors.New(corsConfig))

	// Create controllers and register routes
	deviceAuth := authMiddleware.DeviceAuth(repos.Devices, tracker, logger)

	authController := controllers.NewAuthController(authServiceInstance, logger)
	dataController := controllers.NewDataController(ingestService, repos.Pins, repos.Readings, authorizer, tracker, config.Telemetry, logger, authMiddlewareInstance, deviceAuth)
	deviceController := controllers.NewDeviceController(repos.Devices, authorizer, tracker, dispatcher, logger, authMiddlewareInstance)
	alertController := controllers.NewAlertController(repos.AlertRules, authorizer, logger, authMiddlewareInstance)
	healthController := controllers.NewHealthController(ctr.GetHealthChecker(), hub)
	realtimeController := controllers.NewRealtimeController(hub, config.Realtime, authMiddlewareInstance)

	// Register all routes
	authController.RegisterRoutes(router, authMiddlewareInstance)
	dataController.RegisterRoutes(router)
	deviceController.RegisterRoutes(router)
	alertController.RegisterRoutes(router)
	healthController.RegisterRoutes(router)
	realtimeController.RegisterRoutes(router)

	// Get port from configuration
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

	sweeper.Stop()
	hub.Close()
	if mailerInstance != nil {
		mailerInstance.Stop()
	}
}
