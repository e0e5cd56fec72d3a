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
	Env      string
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	Security SecurityConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	Admin    AdminSeedConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
	// EnableUserListing exposes the full user listing route. Off in production.
	EnableUserListing bool
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig holds access-control settings
type SecurityConfig struct {
	// AllowedEmails is the login allow-list. Valid credentials alone are not
	// enough to use the application; the email must also appear here.
	AllowedEmails []string
	// LockoutThreshold is the number of failed logins that locks an account.
	LockoutThreshold int
	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration time.Duration
	// IdentityCacheTTL bounds how long a cached user record may be served.
	IdentityCacheTTL time.Duration
}

// SessionConfig holds session settings
type SessionConfig struct {
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// AdminSeedConfig holds the default admin account created on an empty database
type AdminSeedConfig struct {
	Email    string
	Password string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Environment is explicit, never guessed from the process state
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if env != "development" && env != "test" && env != "production" {
		return nil, fmt.Errorf("invalid APP_ENV: %s", env)
	}
	cfg.Env = env

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

	// User listing route is only meant for development
	cfg.Server.EnableUserListing = os.Getenv("ENABLE_USER_LISTING") == "true" && env != "production"

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
		cfg.CORS.AllowedOrigins = splitAndTrim(corsOrigins)
		if len(cfg.CORS.AllowedOrigins) == 0 {
			cfg.CORS.AllowedOrigins = []string{"*"}
		}
	}

	// Access-control configuration
	allowedEmails := os.Getenv("ALLOWED_EMAILS")
	if allowedEmails == "" {
		return nil, fmt.Errorf("ALLOWED_EMAILS is required")
	}
	cfg.Security.AllowedEmails = splitAndTrim(allowedEmails)
	if len(cfg.Security.AllowedEmails) == 0 {
		return nil, fmt.Errorf("ALLOWED_EMAILS must contain at least one address")
	}

	lockoutThresholdStr := os.Getenv("LOCKOUT_THRESHOLD")
	if lockoutThresholdStr == "" {
		lockoutThresholdStr = "5"
	}
	lockoutThreshold, err := strconv.Atoi(lockoutThresholdStr)
	if err != nil || lockoutThreshold < 1 {
		return nil, fmt.Errorf("invalid LOCKOUT_THRESHOLD: %s", lockoutThresholdStr)
	}
	cfg.Security.LockoutThreshold = lockoutThreshold

	lockoutDurationStr := os.Getenv("LOCKOUT_DURATION")
	if lockoutDurationStr == "" {
		lockoutDurationStr = "24h"
	}
	lockoutDuration, err := time.ParseDuration(lockoutDurationStr)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCKOUT_DURATION: %w", err)
	}
	cfg.Security.LockoutDuration = lockoutDuration

	cacheTTLStr := os.Getenv("IDENTITY_CACHE_TTL")
	if cacheTTLStr == "" {
		cacheTTLStr = "1h"
	}
	cacheTTL, err := time.ParseDuration(cacheTTLStr)
	if err != nil {
		return nil, fmt.Errorf("invalid IDENTITY_CACHE_TTL: %w", err)
	}
	cfg.Security.IdentityCacheTTL = cacheTTL

	// Session configuration
	sessionTTLStr := os.Getenv("SESSION_TTL")
	if sessionTTLStr == "" {
		sessionTTLStr = "5m"
	}
	sessionTTL, err := time.ParseDuration(sessionTTLStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	cfg.Session.TTL = sessionTTL

	cfg.Session.CookieName = os.Getenv("SESSION_COOKIE_NAME")
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "session_id"
	}
	cfg.Session.Secure = env == "production"

	// Redis configuration
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost" // default
	}
	cfg.Redis.Host = redisHost

	redisPortStr := os.Getenv("REDIS_PORT")
	if redisPortStr == "" {
		redisPortStr = "6379" // default
	}
	redisPort, err := strconv.Atoi(redisPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Port = redisPort

	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional

	redisDBStr := os.Getenv("REDIS_DB")
	if redisDBStr == "" {
		redisDBStr = "0" // default
	}
	redisDB, err := strconv.Atoi(redisDBStr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	// SMTP configuration (optional, for bill report emails)
	smtpHost := os.Getenv("SMTP_HOST")
	if smtpHost == "" {
		smtpHost = "localhost" // default
	}
	cfg.SMTP.Host = smtpHost

	smtpPortStr := os.Getenv("SMTP_PORT")
	if smtpPortStr == "" {
		smtpPortStr = "587" // default
	}
	smtpPort, err := strconv.Atoi(smtpPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTP.Port = smtpPort

	cfg.SMTP.Username = os.Getenv("SMTP_USERNAME") // optional
	cfg.SMTP.Password = os.Getenv("SMTP_PASSWORD") // optional

	smtpFrom := os.Getenv("SMTP_FROM")
	if smtpFrom == "" {
		smtpFrom = "noreply@homegrid.local" // default
	}
	cfg.SMTP.From = smtpFrom

	// Default admin account, created only when the user table is empty
	cfg.Admin.Email = os.Getenv("ADMIN_EMAIL")
	cfg.Admin.Password = os.Getenv("ADMIN_PASSWORD")

	return cfg, nil
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

// RedisAddr returns the Redis connection address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// splitAndTrim parses a comma-separated list, dropping empty entries
func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
