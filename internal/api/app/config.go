package app

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	CognitoRegion       string // Required: AWS region of the user pool
	CognitoUserPoolID   string // Required: user pool ID
	CognitoClientID     string // Required: app client ID
	CognitoClientSecret string // Optional: set for confidential app clients
	IssuerURL           string // Optional: issuer override (tests point this at a local IdP)

	ClaimsCacheMaxTTL    time.Duration // Optional: cap on cached-claims lifetime (default: 5m)
	RecheckInterval      time.Duration // Optional: subscription token re-validation interval (default: 60s)
	ProviderTimeout      time.Duration // Optional: per-call provider timeout (default: 5s)
	DatabaseFile         string        // Optional: path to SQLite database file (default: ./inkwell.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 5m)
}

func LoadConfig() Config {
	return Config{
		CognitoRegion:       os.Getenv("COGNITO_REGION"),
		CognitoUserPoolID:   os.Getenv("COGNITO_USER_POOL_ID"),
		CognitoClientID:     os.Getenv("COGNITO_CLIENT_ID"),
		CognitoClientSecret: os.Getenv("COGNITO_CLIENT_SECRET"),
		IssuerURL:           os.Getenv("ISSUER_URL"),

		ClaimsCacheMaxTTL:    getEnvDurationOrDefault("CLAIMS_CACHE_MAX_TTL", 5*time.Minute),
		RecheckInterval:      getEnvDurationOrDefault("SUBSCRIPTION_RECHECK_INTERVAL", 60*time.Second),
		ProviderTimeout:      getEnvDurationOrDefault("PROVIDER_TIMEOUT", 5*time.Second),
		DatabaseFile:         getEnvOrDefault("DATABASE_FILE", "inkwell.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}
}

// Validate reports missing required settings before any dependency spins up.
func (c Config) Validate() error {
	switch {
	case c.CognitoRegion == "":
		return fmt.Errorf("COGNITO_REGION is required")
	case c.CognitoUserPoolID == "":
		return fmt.Errorf("COGNITO_USER_POOL_ID is required")
	case c.CognitoClientID == "":
		return fmt.Errorf("COGNITO_CLIENT_ID is required")
	}
	return nil
}

// Issuer returns the token issuer URL, deriving the Cognito issuer from the
// region and pool when no override is set.
func (c Config) Issuer() string {
	if c.IssuerURL != "" {
		return c.IssuerURL
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.CognitoRegion, c.CognitoUserPoolID)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers read as seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
