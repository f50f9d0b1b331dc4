package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Storage backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port string

	// Storage configuration
	StorageBackend   string
	DatabaseURL      string // required for the postgres backend
	PostgresMaxConns int32
	SQLitePath       string

	// ClickHouse journal configuration; the journal is kept in memory when ClickHouseHost is empty
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Borrow notifications are sent only when both are set
	TelegramToken        string
	TelegramNotifyChatID int64

	LogLevel  string
	LogFormat string

	DefaultListLimit int
}

// JournalEnabled reports whether the ClickHouse journal is configured
func (c *Config) JournalEnabled() bool {
	return c.ClickHouseHost != ""
}

// NotificationsEnabled reports whether Telegram borrow notifications are configured
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramNotifyChatID != 0
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Port:       getEnv("PORT", "8080"),
		SQLitePath: getEnv("SQLITE_PATH", "library.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
	}

	// Storage backend (default: postgres). USE_MOCK_DB overrides it.
	config.StorageBackend = strings.ToLower(getEnv("STORAGE_BACKEND", BackendPostgres))
	if os.Getenv("USE_MOCK_DB") == "true" {
		config.StorageBackend = BackendMemory
	}
	switch config.StorageBackend {
	case BackendPostgres:
		config.DatabaseURL = os.Getenv("DATABASE_URL")
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is postgres")
		}
	case BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORAGE_BACKEND %q: must be postgres, sqlite or memory", config.StorageBackend)
	}

	maxConns, err := getEnvInt("POSTGRES_MAX_CONNS", 8)
	if err != nil {
		return nil, err
	}
	if maxConns < 1 {
		return nil, fmt.Errorf("invalid POSTGRES_MAX_CONNS: must be at least 1")
	}
	config.PostgresMaxConns = int32(maxConns)

	// ClickHouse configuration (optional)
	config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
	if config.ClickHouseHost != "" {
		config.ClickHousePort, err = getEnvInt("CLICKHOUSE_PORT", 9000) // Default ClickHouse native port
		if err != nil {
			return nil, err
		}
		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD")
		// Password is optional, can be empty
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
	}

	// Telegram notifications (optional)
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatID := os.Getenv("TELEGRAM_NOTIFY_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_NOTIFY_CHAT_ID: %s", chatID)
		}
		config.TelegramNotifyChatID = id
	}
	if config.TelegramNotifyChatID != 0 && config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_NOTIFY_CHAT_ID is set")
	}

	switch config.LogFormat {
	case "json", "console":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: must be json or console", config.LogFormat)
	}

	config.DefaultListLimit, err = getEnvInt("DEFAULT_LIST_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	if config.DefaultListLimit < 1 {
		return nil, fmt.Errorf("invalid DEFAULT_LIST_LIMIT: must be at least 1")
	}

	return config, nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
