package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string
	LogLevel            string
	LogFormat           string

	// Mail provider
	ProviderAPIURL     string
	OAuthClientID      string
	OAuthClientSecret  string
	OAuthRedirectURL   string
	OAuthAuthURL       string
	OAuthTokenURL      string
	SyncDaysWithin     int
	SyncPollInterval   time.Duration
	SyncPollMaxAttempt int
	SyncInterval       time.Duration

	// Ingestion
	IngestBatchLimit  int
	IngestConcurrency int

	// Optional: sync events are published to NATS when set.
	NATSURL string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("OUTREACH_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	providerURL := getEnvOrDefault("OUTREACH_PROVIDER_API_URL", "https://api.aurinko.io")

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("OUTREACH_ENCRYPTION_KEY_BASE64"),
		DBHost:              getEnvOrDefault("OUTREACH_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("OUTREACH_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("OUTREACH_DB_USER", "outreach"),
		DBPassword:          os.Getenv("OUTREACH_DB_PASSWORD"),
		DBName:              getEnvOrDefault("OUTREACH_DB_NAME", "outreach"),
		DBSSLMode:           getEnvOrDefault("OUTREACH_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "11764"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
		LogLevel:            getEnvOrDefault("OUTREACH_LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("OUTREACH_LOG_FORMAT", "text"),

		ProviderAPIURL:     providerURL,
		OAuthClientID:      os.Getenv("OUTREACH_OAUTH_CLIENT_ID"),
		OAuthClientSecret:  os.Getenv("OUTREACH_OAUTH_CLIENT_SECRET"),
		OAuthRedirectURL:   getEnvOrDefault("OUTREACH_OAUTH_REDIRECT_URL", "http://localhost:11764/api/v1/accounts/callback"),
		OAuthAuthURL:       getEnvOrDefault("OUTREACH_OAUTH_AUTH_URL", providerURL+"/v1/auth/authorize"),
		OAuthTokenURL:      getEnvOrDefault("OUTREACH_OAUTH_TOKEN_URL", providerURL+"/v1/auth/token"),
		SyncDaysWithin:     getEnvIntOrDefault("OUTREACH_SYNC_DAYS_WITHIN", 2),
		SyncPollInterval:   getEnvDurationOrDefault("OUTREACH_SYNC_POLL_INTERVAL", time.Second),
		SyncPollMaxAttempt: getEnvIntOrDefault("OUTREACH_SYNC_POLL_MAX_ATTEMPTS", 10),
		SyncInterval:       getEnvDurationOrDefault("OUTREACH_SYNC_INTERVAL", 5*time.Minute),

		IngestBatchLimit:  getEnvIntOrDefault("OUTREACH_INGEST_BATCH_LIMIT", 10),
		IngestConcurrency: getEnvIntOrDefault("OUTREACH_INGEST_CONCURRENCY", 5),

		NATSURL: os.Getenv("OUTREACH_NATS_URL"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("OUTREACH_ENCRYPTION_KEY_BASE64 is required")
	}

	key, err := base64.StdEncoding.DecodeString(c.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("OUTREACH_ENCRYPTION_KEY_BASE64 is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("OUTREACH_ENCRYPTION_KEY_BASE64 must decode to 32 bytes, got %d", len(key))
	}

	if c.DBPassword == "" {
		return fmt.Errorf("OUTREACH_DB_PASSWORD is required")
	}

	if !isValidPort(c.DBPort) {
		return fmt.Errorf("OUTREACH_DB_PORT is not a valid port number: %q", c.DBPort)
	}

	if !isValidPort(c.Port) {
		return fmt.Errorf("PORT is not a valid port number: %q", c.Port)
	}

	if !strings.HasPrefix(c.ProviderAPIURL, "http://") && !strings.HasPrefix(c.ProviderAPIURL, "https://") {
		return fmt.Errorf("OUTREACH_PROVIDER_API_URL must use http:// or https:// scheme")
	}

	if c.OAuthClientID == "" || c.OAuthClientSecret == "" {
		return fmt.Errorf("OUTREACH_OAUTH_CLIENT_ID and OUTREACH_OAUTH_CLIENT_SECRET are required")
	}

	if c.IngestBatchLimit <= 0 {
		return fmt.Errorf("OUTREACH_INGEST_BATCH_LIMIT must be positive, got %d", c.IngestBatchLimit)
	}

	if c.IngestConcurrency <= 0 {
		return fmt.Errorf("OUTREACH_INGEST_CONCURRENCY must be positive, got %d", c.IngestConcurrency)
	}

	if c.SyncPollMaxAttempt <= 0 {
		return fmt.Errorf("OUTREACH_SYNC_POLL_MAX_ATTEMPTS must be positive, got %d", c.SyncPollMaxAttempt)
	}

	return nil
}

// GetDatabaseURL builds the connection URL, escaping credentials.
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUsername, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

func isValidPort(value string) bool {
	port, err := strconv.Atoi(value)
	return err == nil && port >= 1 && port <= 65535
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault falls back to the default when the value is missing or not a number.
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not a number, using %d\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		fmt.Printf("Warning: %s=%q is not a duration, using %s\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
