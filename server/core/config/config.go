package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/webcampics/webcampics/server/core/images"
)

// Environment variables that override file values.
const (
	EnvFile        = "WEBCAM_ENV_FILE"
	EnvPort        = "WEBCAM_PORT"
	EnvAuthTokens  = "WEBCAM_AUTH_TOKENS"
	EnvAdminTokens = "WEBCAM_ADMIN_TOKENS"
	EnvImagesDir   = "WEBCAM_IMAGES_DIR"
	EnvLogLevel    = "WEBCAM_LOG_LEVEL"
)

const (
	RegistryBackendFile   = "file"
	RegistryBackendSQLite = "sqlite"
)

// Location groups cameras in the viewer.
type Location struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// NotificationSettings configures e-mail alerts. Alerts are off unless both SMTPHost and Recipient are set.
type NotificationSettings struct {
	SMTPHost           string `json:"smtp_host,omitempty" yaml:"smtp_host,omitempty"`
	SMTPPort           int    `json:"smtp_port,omitempty" yaml:"smtp_port,omitempty"`
	SMTPUsername       string `json:"smtp_username,omitempty" yaml:"smtp_username,omitempty"`
	SMTPPassword       string `json:"smtp_password,omitempty" yaml:"smtp_password,omitempty"`
	From               string `json:"from,omitempty" yaml:"from,omitempty"`
	Recipient          string `json:"recipient,omitempty" yaml:"recipient,omitempty"`
	MinIntervalMinutes int    `json:"min_interval_minutes" yaml:"min_interval_minutes"`
}

// Enabled reports whether alerts can be sent.
func (n NotificationSettings) Enabled() bool {
	return n.SMTPHost != "" && n.Recipient != ""
}

func (n NotificationSettings) MinInterval() time.Duration {
	return time.Duration(n.MinIntervalMinutes) * time.Minute
}

// Config holds the configuration for the capture server and the cleanup job
type Config struct {
	WebAddr         string   `json:"web_addr" yaml:"web_addr"`
	WebPort         int      `json:"web_port" yaml:"web_port"`
	TrustedProxies  []string `json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
	ImagesDir       string   `json:"images_dir" yaml:"images_dir"`
	CamerasFile     string   `json:"cameras_file" yaml:"cameras_file"`
	RegistryBackend string   `json:"registry_backend" yaml:"registry_backend"`
	DatabasePath    string   `json:"database_path" yaml:"database_path"`
	LogPath         string   `json:"log_path" yaml:"log_path"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	AuditDir        string   `json:"audit_dir" yaml:"audit_dir"`
	AuditFormat     string   `json:"audit_format" yaml:"audit_format"`

	AuthTokens  []string `json:"auth_tokens" yaml:"auth_tokens"`
	AdminTokens []string `json:"admin_tokens,omitempty" yaml:"admin_tokens,omitempty"`

	Locations map[string]Location `json:"locations,omitempty" yaml:"locations,omitempty"`

	ImageRetentionDays int    `json:"image_retention_days" yaml:"image_retention_days"`
	UploadMaxSizeMB    int    `json:"upload_max_size_mb" yaml:"upload_max_size_mb"`
	PurgeInterval      string `json:"purge_interval" yaml:"purge_interval"`
	UseExifTimestamp   bool   `json:"use_exif_timestamp" yaml:"use_exif_timestamp"`

	ThumbnailMaxWidth  int `json:"thumbnail_max_width" yaml:"thumbnail_max_width"`
	ThumbnailMaxHeight int `json:"thumbnail_max_height" yaml:"thumbnail_max_height"`
	ThumbnailCacheSize int `json:"thumbnail_cache_size" yaml:"thumbnail_cache_size"`

	AuthFailureThreshold     int `json:"auth_failure_threshold" yaml:"auth_failure_threshold"`
	AuthFailureWindowMinutes int `json:"auth_failure_window_minutes" yaml:"auth_failure_window_minutes"`

	Notifications NotificationSettings `json:"notifications" yaml:"notifications"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		WebAddr:                  "0.0.0.0",
		WebPort:                  8080,
		ImagesDir:                "images",
		CamerasFile:              "cameras.json",
		RegistryBackend:          RegistryBackendFile,
		DatabasePath:             "webcampics.db",
		LogPath:                  "logs",
		LogLevel:                 "info",
		AuditDir:                 "logs",
		AuditFormat:              "text",
		ImageRetentionDays:       14,
		UploadMaxSizeMB:          5,
		PurgeInterval:            "P1D",
		ThumbnailMaxWidth:        400,
		ThumbnailMaxHeight:       300,
		ThumbnailCacheSize:       256,
		AuthFailureThreshold:     5,
		AuthFailureWindowMinutes: 15,
		Notifications: NotificationSettings{
			MinIntervalMinutes: 60,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads the configuration from a JSON or YAML file, then applies
// the .env file and WEBCAM_* environment overrides. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if isYAML(path) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	envFile := os.Getenv(EnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overwrites variables that are already set
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", EnvPort, v)
		}
		c.WebPort = port
	}
	if v := os.Getenv(EnvAuthTokens); v != "" {
		c.AuthTokens = splitList(v)
	}
	if v := os.Getenv(EnvAdminTokens); v != "" {
		c.AdminTokens = splitList(v)
	}
	if v := os.Getenv(EnvImagesDir); v != "" {
		c.ImagesDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return fmt.Errorf("invalid web port: %d", c.WebPort)
	}
	if strings.TrimSpace(c.ImagesDir) == "" {
		return fmt.Errorf("images_dir must not be empty")
	}
	switch c.RegistryBackend {
	case RegistryBackendFile:
		if strings.TrimSpace(c.CamerasFile) == "" {
			return fmt.Errorf("cameras_file must not be empty")
		}
	case RegistryBackendSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database_path must not be empty")
		}
	default:
		return fmt.Errorf("invalid registry backend: %q", c.RegistryBackend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	if c.AuditFormat != "text" && c.AuditFormat != "json" {
		return fmt.Errorf("invalid audit format: %q", c.AuditFormat)
	}
	if c.ImageRetentionDays < 1 {
		return fmt.Errorf("image_retention_days must be at least 1, got %d", c.ImageRetentionDays)
	}
	if c.UploadMaxSizeMB < 1 {
		return fmt.Errorf("upload_max_size_mb must be at least 1, got %d", c.UploadMaxSizeMB)
	}
	if _, err := images.ParseInterval(c.PurgeInterval); err != nil {
		return fmt.Errorf("invalid purge interval: %w", err)
	}
	if c.ThumbnailMaxWidth < 1 || c.ThumbnailMaxHeight < 1 {
		return fmt.Errorf("invalid thumbnail bounds: %dx%d", c.ThumbnailMaxWidth, c.ThumbnailMaxHeight)
	}
	if c.AuthFailureThreshold < 0 || c.AuthFailureWindowMinutes < 0 {
		return fmt.Errorf("auth failure settings must not be negative")
	}
	if c.Notifications.SMTPPort < 0 || c.Notifications.SMTPPort > 65535 {
		return fmt.Errorf("invalid smtp port: %d", c.Notifications.SMTPPort)
	}
	if c.Notifications.Enabled() && c.Notifications.From == "" {
		return fmt.Errorf("notifications.from must be set when notifications are enabled")
	}
	for id := range c.Locations {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("location id must not be empty")
		}
	}
	return nil
}

// UploadMaxBytes is the largest accepted upload body.
func (c *Config) UploadMaxBytes() int64 {
	return int64(c.UploadMaxSizeMB) << 20
}

func (c *Config) AuthFailureWindow() time.Duration {
	return time.Duration(c.AuthFailureWindowMinutes) * time.Minute
}

// SaveConfig saves the configuration to a JSON or YAML file, picked by extension
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config file: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
