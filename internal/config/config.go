package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Port               int           `yaml:"port"`
	BackendURL         string        `yaml:"backend_url"`
	LiveURL            string        `yaml:"live_url"`           // Push socket of the backend; empty disables live updates
	LiveReconnectDelay time.Duration `yaml:"live_reconnect_delay"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ProximityMargin    int           `yaml:"proximity_margin"` // Pixels ahead of the viewport edge that trigger a thumbnail load
	SkeletonCount      int           `yaml:"skeleton_count"`
	ShowAllEntry       bool          `yaml:"show_all_entry"` // Adds an "All images" row below the day list
	LogDirectory       string        `yaml:"log_dir"`
	LogLevel           string        `yaml:"log_level"`
	LogJSON            bool          `yaml:"log_json"`
	AdminToken         string        `yaml:"admin_token"` // Guards the log endpoints; empty leaves them unmounted

	Backend Backend `yaml:"backend"`
}

// Backend holds settings of the bundled reference backend.
type Backend struct {
	Port            int    `yaml:"port"`
	UploadDirectory string `yaml:"upload_dir"`
	DatabasePath    string `yaml:"db_path"`
	MaxUploadMB     int64  `yaml:"max_upload_mb"`
	PublicPrefix    string `yaml:"public_prefix"` // URL prefix under which uploads are served
}

func defaults() *Config {
	return &Config{
		Port:               8081,
		BackendURL:         "http://localhost:5000",
		LiveReconnectDelay: 5 * time.Second,
		RequestTimeout:     10 * time.Second,
		ProximityMargin:    150,
		SkeletonCount:      8,
		ShowAllEntry:       true,
		LogDirectory:       filepath.Join(".", "logs"),
		LogLevel:           "info",
		Backend: Backend{
			Port:            5000,
			UploadDirectory: filepath.Join(".", "static", "uploads"),
			DatabasePath:    filepath.Join(".", "data", "images.db"),
			MaxUploadMB:     50,
			PublicPrefix:    "/static/uploads",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and the environment (a .env file is read first if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.BackendURL = strings.TrimRight(getEnv("BACKEND_URL", cfg.BackendURL), "/")
	cfg.LiveURL = getEnv("LIVE_URL", cfg.LiveURL)
	cfg.LiveReconnectDelay = getEnvAsDuration("LIVE_RECONNECT_DELAY", cfg.LiveReconnectDelay)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ProximityMargin = getEnvAsInt("PROXIMITY_MARGIN", cfg.ProximityMargin)
	cfg.SkeletonCount = getEnvAsInt("SKELETON_COUNT", cfg.SkeletonCount)
	cfg.ShowAllEntry = getEnvAsBool("SHOW_ALL_ENTRY", cfg.ShowAllEntry)
	cfg.LogDirectory = getEnv("LOG_DIR", cfg.LogDirectory)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogJSON = getEnvAsBool("LOG_JSON", cfg.LogJSON)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)

	cfg.Backend.Port = getEnvAsInt("BACKEND_PORT", cfg.Backend.Port)
	cfg.Backend.UploadDirectory = getEnv("UPLOAD_DIR", cfg.Backend.UploadDirectory)
	cfg.Backend.DatabasePath = getEnv("DB_PATH", cfg.Backend.DatabasePath)
	cfg.Backend.MaxUploadMB = getEnvAsInt64("MAX_UPLOAD_MB", cfg.Backend.MaxUploadMB)
	cfg.Backend.PublicPrefix = strings.TrimRight(getEnv("PUBLIC_PREFIX", cfg.Backend.PublicPrefix), "/")
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Backend.Port <= 0 {
		return fmt.Errorf("invalid port configuration")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	if c.SkeletonCount < 0 {
		c.SkeletonCount = 0
	}
	if c.ProximityMargin < 0 {
		c.ProximityMargin = 0
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or plain seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
