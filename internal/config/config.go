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
	TelegramToken  string
	DatabaseURL    string
	LogLevel       string
	Port           string
	MigrationsPath string
	DirectoryFile  string
	AdminHandles   []string
	CacheTTL       time.Duration
	RoleResetAfter time.Duration
	AuditInterval  time.Duration
	MatchThreshold int
	// ReportChatID receives the periodic role audit reports. Zero disables them.
	ReportChatID int64
	Pool         PoolConfig
}

// PoolConfig sizes the database connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load loads configuration from an optional .env file and environment variables.
// The Telegram token is only required when requireBot is set.
func Load(requireBot bool) (*Config, error) {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		Port:           getEnvOrDefault("PORT", "8080"),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
		DirectoryFile:  os.Getenv("DIRECTORY_FILE"),
		AdminHandles:   splitList(os.Getenv("ADMIN_HANDLES")),
	}

	var err error
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RoleResetAfter, err = durationEnv("ROLE_RESET_AFTER", 180*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.AuditInterval, err = durationEnv("ROLE_AUDIT_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.MatchThreshold, err = intEnv("MATCH_THRESHOLD", 50); err != nil {
		return nil, err
	}
	if cfg.Pool.MaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.Pool.MaxIdleConns, err = intEnv("DB_MAX_IDLE_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.Pool.ConnMaxLifetime, err = durationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if raw := os.Getenv("REPORT_CHAT_ID"); raw != "" {
		if cfg.ReportChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid REPORT_CHAT_ID %q: %w", raw, err)
		}
	}
	if cfg.MatchThreshold < 0 || cfg.MatchThreshold > 100 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be between 0 and 100, got %d", cfg.MatchThreshold)
	}

	// Required environment variables
	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if requireBot && cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN environment variable is required")
	}

	return cfg, nil
}

// IsAdmin reports whether handle may run write commands
func (c *Config) IsAdmin(handle string) bool {
	handle = strings.TrimPrefix(handle, "@")
	for _, h := range c.AdminHandles {
		if strings.EqualFold(h, handle) {
			return true
		}
	}
	return false
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func intEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimPrefix(strings.TrimSpace(part), "@"); part != "" {
			out = append(out, part)
		}
	}
	return out
}
