package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	logger, logCloser := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "capture-server")
	defer logCloser.Close()
	logger.Info("Starting capture server", "port", cfg.WebPort, "registry_backend", cfg.RegistryBackend)

	if len(cfg.AuthTokens) == 0 {
		logger.Warn("No upload tokens configured, every upload will be rejected")
	}

	svc, err := newServices(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.start(ctx, cfg, logger); err != nil {
		logger.Error("Failed to start background workers", "error", err)
		os.Exit(1)
	}

	router := newRouter(cfg, logger, svc)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebAddr, cfg.WebPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down capture server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}
