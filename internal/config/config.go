package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	App      AppConfig
	Session  SessionConfig
	Token    TokenConfig
	URL      URLConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL string
}

// AppConfig holds application configuration
type AppConfig struct {
	Environment    string
	LogLevel       string
	InternalSecret string // shared secret for /internal routes
}

// SessionConfig holds JWT session configuration
type SessionConfig struct {
	AccessSecret      string
	RefreshSecret     string
	AccessExpiryHours int
	RefreshExpiryDays int
}

// TokenConfig holds post-sale token limits
type TokenConfig struct {
	ExpiryDays      int
	AdminDailyLimit int // tokens one admin may create per day
	OwnerDailyLimit int // tokens one owner may create per day
	EmailDailyLimit int // tokens per target email per day
	BurstLimit      int // tokens per actor inside the burst window
	BurstWindowMins int
}

// URLConfig holds URL generation configuration for account subdomains
type URLConfig struct {
	// BaseDomain is the base domain for all account subdomains
	// (e.g., "example.app" resolves mystore.example.app to "mystore")
	BaseDomain string
}

// New creates a new configuration instance
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnvWithDefault("SERVER_HOST", "0.0.0.0"),
			Port: getEnvWithDefault("SERVER_PORT", "8090"),
		},
		Database: DatabaseConfig{
			Host:     getEnvWithDefault("DB_HOST", "localhost"),
			Port:     getEnvWithDefault("DB_PORT", "5432"),
			User:     getEnvWithDefault("DB_USER", "postgres"),
			Password: getEnvWithDefault("DB_PASSWORD", ""),
			Name:     getEnvWithDefault("DB_NAME", "account_access_db"),
			SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnvWithDefault("REDIS_HOST", "localhost"),
			Port:     getEnvWithDefault("REDIS_PORT", "6379"),
			Password: getEnvWithDefault("REDIS_PASSWORD", ""),
			DB:       getEnvAsIntWithDefault("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL: getEnvWithDefault("NATS_URL", "nats://localhost:4222"),
		},
		App: AppConfig{
			Environment:    getEnvWithDefault("APP_ENV", "development"),
			LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
			InternalSecret: getEnvWithDefault("INTERNAL_SERVICE_SECRET", ""),
		},
		Session: SessionConfig{
			AccessSecret:      getEnvWithDefault("JWT_ACCESS_SECRET", ""),
			RefreshSecret:     getEnvWithDefault("JWT_REFRESH_SECRET", ""),
			AccessExpiryHours: getEnvAsIntWithDefault("JWT_ACCESS_EXPIRY_HOURS", 1),
			RefreshExpiryDays: getEnvAsIntWithDefault("JWT_REFRESH_EXPIRY_DAYS", 30),
		},
		Token: TokenConfig{
			ExpiryDays:      getEnvAsIntWithDefault("TOKEN_EXPIRY_DAYS", 7),
			AdminDailyLimit: getEnvAsIntWithDefault("TOKEN_ADMIN_DAILY_LIMIT", 20),
			OwnerDailyLimit: getEnvAsIntWithDefault("TOKEN_OWNER_DAILY_LIMIT", 100),
			EmailDailyLimit: getEnvAsIntWithDefault("TOKEN_EMAIL_DAILY_LIMIT", 5),
			BurstLimit:      getEnvAsIntWithDefault("TOKEN_BURST_LIMIT", 3),
			BurstWindowMins: getEnvAsIntWithDefault("TOKEN_BURST_WINDOW_MINS", 5),
		},
		URL: URLConfig{
			BaseDomain: getEnvWithDefault("BASE_DOMAIN", "example.app"),
		},
	}
}

// getEnvWithDefault gets environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntWithDefault gets environment variable as integer with default fallback
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
