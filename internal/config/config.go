// Package config provides configuration loading and management for the
// Monastery360 service. It handles environment variable parsing and provides
// default values for all settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// In development, it loads .env and .env.local files if they exist.
// In production, it relies solely on system environment variables.
// godotenv.Load() does not override already-set variables, preserving
// OS env > .env precedence.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the Monastery360 service.
type Config struct {
	Env         string // Deployment environment (dev, staging, prod)
	Port        string // HTTP server port
	DatabaseDSN string // PostgreSQL connection string; empty selects the memory store
	NATSURL     string // NATS server URL for event publishing
	RedisAddr   string // Redis address for the suggestion cache
	RedisPass   string // Redis password, optional

	// S3-compatible storage for identify-image archival
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Upload limits for the identify endpoint
	MaxImageSize     int64    // Maximum image size in bytes (default 10MB)
	AllowedMimeTypes []string // Allowed MIME types for image uploads

	// CORS configuration
	CORSAllowedOrigins []string // Allowed origins for CORS (empty means deny all)
}

// Default configuration values used when environment variables are not set
const (
	defaultPort     = "8080"
	defaultS3Region = "ap-south-1"
	defaultEnv      = "dev"
)

// Load reads environment variables and produces a Config suitable for wiring
// the service. Every setting has a default; nothing is strictly required, so
// a bare `monasteryd` starts with the memory store and no collaborators.
func Load() (Config, error) {
	cfg := Config{}

	if env, exists := os.LookupEnv("M360_ENV"); exists {
		cfg.Env = env
	} else {
		cfg.Env = defaultEnv
	}

	if port, exists := os.LookupEnv("M360_PORT"); exists {
		cfg.Port = port
	} else {
		cfg.Port = defaultPort
	}

	if dsn, exists := os.LookupEnv("M360_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}

	if natsURL, exists := os.LookupEnv("M360_NATS_URL"); exists {
		cfg.NATSURL = natsURL
	}

	if redisAddr, exists := os.LookupEnv("M360_REDIS_ADDR"); exists {
		cfg.RedisAddr = redisAddr
	}

	if redisPass, exists := os.LookupEnv("M360_REDIS_PASSWORD"); exists {
		cfg.RedisPass = redisPass
	}

	if s3Endpoint, exists := os.LookupEnv("M360_S3_ENDPOINT"); exists {
		cfg.S3Endpoint = s3Endpoint
	}

	if s3Region, exists := os.LookupEnv("M360_S3_REGION"); exists {
		cfg.S3Region = s3Region
	} else {
		cfg.S3Region = defaultS3Region
	}

	if s3Bucket, exists := os.LookupEnv("M360_S3_BUCKET"); exists {
		cfg.S3Bucket = s3Bucket
	}

	if s3AccessKey, exists := os.LookupEnv("M360_S3_ACCESS_KEY"); exists {
		cfg.S3AccessKey = s3AccessKey
	}

	if s3SecretKey, exists := os.LookupEnv("M360_S3_SECRET_KEY"); exists {
		cfg.S3SecretKey = s3SecretKey
	}

	if maxImageSize, exists := os.LookupEnv("M360_MAX_IMAGE_SIZE"); exists {
		if size, err := strconv.ParseInt(maxImageSize, 10, 64); err == nil {
			cfg.MaxImageSize = size
		}
	}
	if cfg.MaxImageSize <= 0 {
		cfg.MaxImageSize = 10 * 1024 * 1024
	}

	if allowedMimeTypes, exists := os.LookupEnv("M360_ALLOWED_MIME_TYPES"); exists {
		cfg.AllowedMimeTypes = strings.Split(allowedMimeTypes, ",")
		for i, mimeType := range cfg.AllowedMimeTypes {
			cfg.AllowedMimeTypes[i] = strings.TrimSpace(mimeType)
		}
	} else {
		cfg.AllowedMimeTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}

	if corsOrigins, exists := os.LookupEnv("M360_CORS_ALLOWED_ORIGINS"); exists {
		cfg.CORSAllowedOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range cfg.CORSAllowedOrigins {
			cfg.CORSAllowedOrigins[i] = strings.TrimSpace(origin)
		}
	}

	return cfg, nil
}
