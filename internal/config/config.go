// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	JWT      JWTConfig
	Upload   UploadConfig
	APIKey   string
	BaseURL  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// JWTConfig holds JWT token configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// UploadConfig holds asset storage settings and per-purpose size caps
type UploadConfig struct {
	StorageBasePath string
	MaxCoverSize    int64
	MaxIntroSize    int64
	MaxVideoSize    int64
	MaxMaterialSize int64
}

// MaxRequestSize returns the largest size cap across all purposes, used
// to bound the whole request body at the HTTP layer.
func (u UploadConfig) MaxRequestSize() int64 {
	max := u.MaxCoverSize
	for _, v := range []int64{u.MaxIntroSize, u.MaxVideoSize, u.MaxMaterialSize} {
		if v > max {
			max = v
		}
	}
	// Multipart framing overhead on top of the file itself
	return max + 1<<20
}

// Default size caps. These are deliberate configuration constants, not
// inferred limits; see DESIGN.md before changing them.
const (
	defaultMaxCoverSize    = 5 << 20   // 5MB
	defaultMaxIntroSize    = 200 << 20 // 200MB
	defaultMaxVideoSize    = 500 << 20 // 500MB
	defaultMaxMaterialSize = 20 << 20  // 20MB
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080" // default port
	}
	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.Port = serverPort

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsOrigins == "" {
		// Default to allow all origins if not specified (for development)
		cfg.CORS.AllowedOrigins = []string{"*"}
	} else {
		// Parse comma-separated origins
		origins := strings.Split(corsOrigins, ",")
		cfg.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, origin)
			}
		}
		// If no valid origins found, default to allow all
		if len(cfg.CORS.AllowedOrigins) == 0 {
			cfg.CORS.AllowedOrigins = []string{"*"}
		}
	}

	// JWT configuration
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.JWT.Secret = jwtSecret

	// Access token expiry (default: 1 hour)
	accessExpiryStr := os.Getenv("JWT_ACCESS_TOKEN_EXPIRY")
	if accessExpiryStr == "" {
		accessExpiryStr = "1h"
	}
	accessExpiry, err := time.ParseDuration(accessExpiryStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_TOKEN_EXPIRY: %w", err)
	}
	cfg.JWT.AccessTokenExpiry = accessExpiry

	// Refresh token expiry (default: 7 days)
	refreshExpiryStr := os.Getenv("JWT_REFRESH_TOKEN_EXPIRY")
	if refreshExpiryStr == "" {
		refreshExpiryStr = "168h" // 7 days
	}
	refreshExpiry, err := time.ParseDuration(refreshExpiryStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_REFRESH_TOKEN_EXPIRY: %w", err)
	}
	cfg.JWT.RefreshTokenExpiry = refreshExpiry

	// API Key configuration (for service-to-service cascade deletion)
	cfg.APIKey = os.Getenv("API_KEY")

	// Asset storage configuration
	storagePath := os.Getenv("STORAGE_BASE_PATH")
	if storagePath == "" {
		return nil, fmt.Errorf("STORAGE_BASE_PATH is required")
	}
	cfg.Upload.StorageBasePath = storagePath

	cfg.Upload.MaxCoverSize, err = sizeFromEnv("MAX_COVER_SIZE", defaultMaxCoverSize)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxIntroSize, err = sizeFromEnv("MAX_INTRO_SIZE", defaultMaxIntroSize)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxVideoSize, err = sizeFromEnv("MAX_VIDEO_SIZE", defaultMaxVideoSize)
	if err != nil {
		return nil, err
	}
	cfg.Upload.MaxMaterialSize, err = sizeFromEnv("MAX_MATERIAL_SIZE", defaultMaxMaterialSize)
	if err != nil {
		return nil, err
	}

	// Base URL for generated download URLs
	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	return cfg, nil
}

// sizeFromEnv reads a byte-count setting with a default
func sizeFromEnv(name string, def int64) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return size, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}
