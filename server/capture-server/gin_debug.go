//go:build !release
// +build !release

package main

import (
	"github.com/gin-gonic/gin"

	"github.com/webcampics/webcampics/server/core/config"
)

// initializeGin sets up Gin for development builds. Debug mode only when the log level asks for it.
func initializeGin(cfg *config.Config) *gin.Engine {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// development builds keep Gin's default of trusting all proxies unless some are listed
	if len(cfg.TrustedProxies) > 0 {
		router.SetTrustedProxies(cfg.TrustedProxies)
	}

	return router
}
