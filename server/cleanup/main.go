// Command cleanup runs one retention pass over the image archive. Schedule it
// from cron when the capture server's own purge schedule is disabled.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/webcampics/webcampics/server/core/audit"
	"github.com/webcampics/webcampics/server/core/ccc/logging"
	"github.com/webcampics/webcampics/server/core/config"
	"github.com/webcampics/webcampics/server/core/images"
	"github.com/webcampics/webcampics/server/core/notifications"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML configuration file")
	retention := flag.Int("days", 0, "override image_retention_days for this run")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *retention > 0 {
		cfg.ImageRetentionDays = *retention
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	removed, err := run(cfg)
	if err != nil {
		log.Fatalf("Cleanup failed after %d deletions: %v", removed, err)
	}
	log.Printf("Cleanup: %d files deleted (retention: %d days)", removed, cfg.ImageRetentionDays)
}

func run(cfg *config.Config) (int, error) {
	logger, logCloser := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "cleanup")
	defer logCloser.Close()

	trail, err := audit.OpenTrail(cfg.AuditDir, audit.Format(cfg.AuditFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer trail.Close()

	var recorder images.PurgeRecorder = trail
	if n := cfg.Notifications; n.Enabled() {
		sender := notifications.NewSmtpSender(n.SMTPHost, n.SMTPPort, n.SMTPUsername, n.SMTPPassword, n.From)
		recorder = images.MultiPurgeRecorder(trail, notifications.NewPurgeNotifier(notifications.PurgeNotificationSettings{
			Recipient:   n.Recipient,
			MinInterval: n.MinInterval(),
		}, sender, logger))
	}

	store := images.NewFileStore(logger, cfg.ImagesDir)
	return images.NewPurger(logger, store, cfg.ImageRetentionDays, recorder).RunOnce()
}
