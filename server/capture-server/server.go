package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/capture-server/handlers"
	"github.com/webcampics/webcampics/server/capture-server/live"
	"github.com/webcampics/webcampics/server/capture-server/middleware"
	"github.com/webcampics/webcampics/server/core/audit"
	"github.com/webcampics/webcampics/server/core/ccc/auth"
	"github.com/webcampics/webcampics/server/core/ccc/db"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/config"
	"github.com/webcampics/webcampics/server/core/devices"
	"github.com/webcampics/webcampics/server/core/images"
	"github.com/webcampics/webcampics/server/core/ingest"
	"github.com/webcampics/webcampics/server/core/notifications"
)

// services holds everything the routes need
type services struct {
	registry   devices.Registry
	store      images.ImageStore
	thumbnails images.ThumbnailGenerator
	purger     *images.Purger
	pipeline   *ingest.Pipeline
	hub        *live.Hub
	closers    []io.Closer
}

func (s *services) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openConfigStore picks the camera configuration backend
func openConfigStore(cfg *config.Config) (devices.ConfigStore, *sql.DB, error) {
	if cfg.RegistryBackend != config.RegistryBackendSQLite {
		return devices.NewFileStore(cfg.CamerasFile), nil, nil
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := devices.NewSQLiteStore(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to create camera repository: %w", err)
	}
	return store, database, nil
}

// newAlerts sets up e-mail alerts when configured. Purge passes always go to the audit trail.
func newAlerts(cfg *config.Config, logger logging.Logger, trail *audit.Trail) (auth.FailureNotifier, images.PurgeRecorder) {
	n := cfg.Notifications
	if !n.Enabled() {
		return nil, trail
	}

	sender := notifications.NewSmtpSender(n.SMTPHost, n.SMTPPort, n.SMTPUsername, n.SMTPPassword, n.From)
	authNotifier := notifications.NewEmailAuthNotifier(notifications.AuthNotificationSettings{
		Recipient:   n.Recipient,
		MinInterval: n.MinInterval(),
	}, sender, logger)
	purgeNotifier := notifications.NewPurgeNotifier(notifications.PurgeNotificationSettings{
		Recipient:   n.Recipient,
		MinInterval: n.MinInterval(),
	}, sender, logger)

	logger.Info("E-mail alerts enabled", "recipient", n.Recipient)
	return authNotifier, images.MultiPurgeRecorder(trail, purgeNotifier)
}

// newServices builds the capture services from cfg
func newServices(cfg *config.Config, logger logging.Logger) (*services, error) {
	svc := &services{}

	configStore, database, err := openConfigStore(cfg)
	if err != nil {
		return nil, err
	}
	if database != nil {
		svc.closers = append(svc.closers, database)
	}
	svc.registry = devices.NewRegistry(logger, configStore)
	svc.store = images.NewFileStore(logger, cfg.ImagesDir)

	transformer, err := images.NewTransformer(logger)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.thumbnails, err = images.NewThumbnailGenerator(logger, cfg.ThumbnailMaxWidth, cfg.ThumbnailMaxHeight, cfg.ThumbnailCacheSize)
	if err != nil {
		svc.Close()
		return nil, err
	}

	trail, err := audit.OpenTrail(cfg.AuditDir, audit.Format(cfg.AuditFormat))
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, trail)

	authNotifier, purgeRecorder := newAlerts(cfg, logger, trail)

	tracker := auth.NewMemoryFailureTracker(auth.WarnSettings{
		Threshold:  cfg.AuthFailureThreshold,
		TimeWindow: cfg.AuthFailureWindow(),
	})
	gateway := auth.NewGateway(logger, cfg.AuthTokens, tracker, authNotifier)

	svc.hub = live.NewHub(logger)
	svc.purger = images.NewPurger(logger, svc.store, cfg.ImageRetentionDays, purgeRecorder)
	svc.pipeline = ingest.NewPipeline(logger, gateway, svc.registry, svc.store, transformer, trail, svc.hub,
		ingest.Options{
			MaxUploadBytes:   cfg.UploadMaxBytes(),
			UseExifTimestamp: cfg.UseExifTimestamp,
		})
	return svc, nil
}

// start runs the background workers until ctx is cancelled
func (s *services) start(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	interval, err := images.ParseInterval(cfg.PurgeInterval)
	if err != nil {
		return err
	}

	go s.hub.Run(ctx)
	if interval > 0 {
		go s.purger.Run(ctx, interval)
	} else {
		logger.Info("Scheduled purge disabled")
	}
	return nil
}

// setupRoutes configures the HTTP routes
func setupRoutes(router *gin.Engine, cfg *config.Config, logger logging.Logger, svc *services) {
	router.HandleMethodNotAllowed = true
	router.NoMethod(handlers.MethodNotAllowed)
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	uploadHandler := handlers.NewUploadHandler(logger, svc.pipeline, cfg.UploadMaxBytes())
	cameraHandler := handlers.NewCameraHandler(logger, svc.registry, svc.store, svc.thumbnails, cfg.Locations, cfg.ImageRetentionDays)

	// Ingestion; upload.php is the path older camera firmware posts to
	router.POST("/upload", uploadHandler.Upload)
	router.POST("/upload.php", uploadHandler.Upload)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "capture-server",
		})
	})

	api := router.Group("/api")
	api.GET("/locations", cameraHandler.GetLocations)
	api.GET("/cameras", cameraHandler.GetCameras)
	api.GET("/cameras/:id", cameraHandler.GetCamera)
	api.GET("/cameras/:id/images", cameraHandler.GetCameraImages)
	api.GET("/events", svc.hub.ServeWS)

	router.GET(handlers.PublicImagePrefix+"/:dir/:file", cameraHandler.ServeImage)
	router.GET(handlers.PublicImagePrefix+"/:dir/:file/thumb", cameraHandler.ServeThumbnail)

	if len(cfg.AdminTokens) == 0 {
		logger.Info("No admin tokens configured, admin API disabled")
		return
	}

	adminAuth := middleware.NewAdminAuthMiddleware(logger, cfg.AdminTokens)
	adminHandler := handlers.NewAdminHandler(logger, svc.registry, svc.store, svc.purger)

	admin := api.Group("/admin")
	admin.Use(adminAuth.RequireAdmin())
	admin.GET("/cameras", adminHandler.ListCameras)
	admin.PUT("/cameras/:id", adminHandler.UpsertCamera)
	admin.DELETE("/cameras/:id", adminHandler.RemoveCamera)
	admin.POST("/purge", adminHandler.Purge)
	admin.GET("/images/:dir/:file", cameraHandler.ServeAnyImage)
	admin.GET("/images/:dir/:file/thumb", cameraHandler.ServeAnyThumbnail)
}

// newRouter builds the engine with the shared middleware stack
func newRouter(cfg *config.Config, logger logging.Logger, svc *services) *gin.Engine {
	router := initializeGin(cfg)
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())

	setupRoutes(router, cfg, logger, svc)
	return router
}
