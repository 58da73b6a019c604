// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Session store backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port   string `validate:"required,numeric"`
	DBPath string `validate:"required"`

	BotToken        string  `validate:"required"`
	ModeratorChatID int64   `validate:"required"`
	ModeratorIDs    []int64 `validate:"min=1"`
	DispatchShards  int     `validate:"min=1,max=1024"`
	FilesDir        string  `validate:"required"`

	// CatalogFile, when set, is seeded into the catalog at startup.
	CatalogFile string

	// AdminToken guards the admin API. Empty disables the API routes.
	AdminToken   string
	AdminOrigins []string      `validate:"dive,required"`
	EditCooldown time.Duration `validate:"min=0"`

	SessionStore   string        `validate:"oneof=memory redis"`
	RedisURL       string        `validate:"required_if=SessionStore redis"`
	SessionIdleTTL time.Duration `validate:"min=0"`

	MaintenanceSchedule string `validate:"required"`
	LogLevel            slog.Level
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	moderators, err := getEnvIDs("MODERATOR_IDS")
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/market.db"),
		BotToken:            getEnv("BOT_TOKEN", ""),
		ModeratorChatID:     getEnvInt64("MODERATOR_CHAT_ID", 0),
		ModeratorIDs:        moderators,
		DispatchShards:      getEnvInt("DISPATCH_SHARDS", 16),
		FilesDir:            getEnv("FILES_DIR", "./data/files"),
		CatalogFile:         getEnv("CATALOG_FILE", ""),
		AdminToken:          getEnv("ADMIN_TOKEN", ""),
		AdminOrigins:        getEnvList("ADMIN_ORIGINS"),
		EditCooldown:        time.Duration(getEnvInt("EDIT_COOLDOWN_DAYS", 7)) * 24 * time.Hour,
		SessionStore:        strings.ToLower(getEnv("SESSION_STORE", SessionMemory)),
		RedisURL:            getEnv("REDIS_URL", ""),
		SessionIdleTTL:      getEnvDuration("SESSION_IDLE_TTL", 0),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@every 5m"),
		LogLevel:            level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
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

// getEnvIDs parses a comma separated list of user ids.
func getEnvIDs(key string) ([]int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid id %q", key, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
