package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
	DriverGCS      = "gcs"
	DriverMongo    = "mongo"
)

var drivers = []string{DriverMemory, DriverSQLite, DriverPostgres, DriverS3, DriverGCS, DriverMongo}

type Config struct {
	// HTTP Server
	Port           string
	TrustedProxies []string

	// Logging
	LogLevel  string
	LogFormat string

	// Store
	StoreDriver     string
	SQLiteDBPath    string
	PostgresDSN     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	GCSBucket       string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Listing
	ListPageSize         int
	ListFetchConcurrency int
	WeeksCacheTTL        time.Duration
	WeeksCacheSize       int

	// Export
	TemplatePath                string
	GoogleTemplateSpreadsheetID string
	GoogleServiceAccountJSON    string
	GoogleServiceAccountFile    string
	GoogleExportFolderID        string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Auth, optional
	AuthUser           string
	AuthPass           string
	TokenSecret        string
	TokenTTL           time.Duration
	WriteRatePerMinute int
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8788"),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		StoreDriver:     getEnv("STORE_DRIVER", DriverSQLite),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/expenses.db"),
		PostgresDSN:     getEnv("POSTGRES_DSN", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PathStyle:     getEnvBool("S3_PATH_STYLE", false),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "expenses"),
		MongoCollection: getEnv("MONGO_COLLECTION", "kv"),

		ListPageSize:         getEnvInt("LIST_PAGE_SIZE", 1000),
		ListFetchConcurrency: getEnvInt("LIST_FETCH_CONCURRENCY", 1),
		WeeksCacheTTL:        getEnvDuration("WEEKS_CACHE_TTL", 0),
		WeeksCacheSize:       getEnvInt("WEEKS_CACHE_SIZE", 256),

		TemplatePath:                getEnv("TEMPLATE_PATH", ""),
		GoogleTemplateSpreadsheetID: getEnv("GOOGLE_TEMPLATE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON:    getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile:    getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleExportFolderID:        getEnv("GOOGLE_EXPORT_FOLDER_ID", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "expenses"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "week_exports"),

		AuthUser:           getEnv("AUTH_USER", ""),
		AuthPass:           getEnv("AUTH_PASS", ""),
		TokenSecret:        getEnv("TOKEN_SECRET", ""),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 14*24*time.Hour),
		WriteRatePerMinute: getEnvInt("WRITE_RATE_PER_MINUTE", 120),
	}
}

// AuthEnabled reports whether login is configured.
func (c *Config) AuthEnabled() bool {
	return c.AuthUser != "" && c.AuthPass != ""
}

// Validate returns every problem found, not just the first.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !slices.Contains(drivers, c.StoreDriver) {
		errors = append(errors, fmt.Sprintf("invalid store driver '%s': must be one of %v", c.StoreDriver, drivers))
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLITE_DB_PATH cannot be empty when using sqlite store")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres store")
		}
	case DriverS3:
		if c.S3Bucket == "" {
			errors = append(errors, "S3_BUCKET is required when using s3 store")
		}
		if c.S3Endpoint != "" {
			if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid S3 endpoint '%s'", c.S3Endpoint))
			}
		}
	case DriverGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs store")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			errors = append(errors, "MONGO_URI is required when using mongo store")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			errors = append(errors, "MONGO_DATABASE and MONGO_COLLECTION cannot be empty when using mongo store")
		}
	}

	if c.ListPageSize < 1 || c.ListPageSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid list page size %d: must be between 1 and 10000", c.ListPageSize))
	}
	if c.ListFetchConcurrency < 1 || c.ListFetchConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid list fetch concurrency %d: must be between 1 and 64", c.ListFetchConcurrency))
	}
	if c.WeeksCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid weeks cache ttl %v: must not be negative", c.WeeksCacheTTL))
	}
	if c.WeeksCacheTTL > 0 && c.WeeksCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid weeks cache size %d: must be at least 1", c.WeeksCacheSize))
	}

	if c.TemplatePath != "" {
		if _, err := os.Stat(c.TemplatePath); err != nil {
			errors = append(errors, fmt.Sprintf("template file not readable: %s", c.TemplatePath))
		}
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if (c.AuthUser == "") != (c.AuthPass == "") {
		errors = append(errors, "AUTH_USER and AUTH_PASS must be set together")
	}
	if c.AuthEnabled() {
		if c.TokenSecret == "" {
			errors = append(errors, "TOKEN_SECRET is required when auth is enabled")
		}
		if c.TokenTTL <= 0 {
			errors = append(errors, fmt.Sprintf("invalid token ttl %v: must be positive", c.TokenTTL))
		}
	}
	if c.WriteRatePerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid write rate %d: must not be negative", c.WriteRatePerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings the export worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.GoogleTemplateSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_TEMPLATE_SPREADSHEET_ID is required for the worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ParseLevel maps debug|info|warn|error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
