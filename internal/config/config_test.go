package config

import (
	"log/slog"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("MODERATOR_CHAT_ID", "-1001")
	t.Setenv("MODERATOR_IDS", "7, 8")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.EditCooldown != 7*24*time.Hour {
		t.Errorf("EditCooldown = %v, want 168h", cfg.EditCooldown)
	}
	if cfg.SessionStore != SessionMemory {
		t.Errorf("SessionStore = %q, want memory", cfg.SessionStore)
	}
	if cfg.SessionIdleTTL != 0 {
		t.Errorf("SessionIdleTTL = %v, want disabled", cfg.SessionIdleTTL)
	}
	if len(cfg.ModeratorIDs) != 2 || cfg.ModeratorIDs[1] != 8 {
		t.Errorf("ModeratorIDs = %v, want [7 8]", cfg.ModeratorIDs)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadRequiresBotToken(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for empty BOT_TOKEN")
	}
}

func TestLoadRequiresModerators(t *testing.T) {
	setRequired(t)
	t.Setenv("MODERATOR_IDS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without moderators")
	}
}

func TestLoadRejectsBadModeratorID(t *testing.T) {
	setRequired(t)
	t.Setenv("MODERATOR_IDS", "7,abc")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric moderator id")
	}
}

func TestLoadRedisRequiresURL(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_STORE", "redis")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for redis store without REDIS_URL")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionStore != SessionRedis {
		t.Errorf("SessionStore = %q, want redis", cfg.SessionStore)
	}
}

func TestLoadRejectsUnknownSessionStore(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_STORE", "etcd")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown session store")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EDIT_COOLDOWN_DAYS", "0")
	t.Setenv("SESSION_IDLE_TTL", "2h")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EditCooldown != 0 {
		t.Errorf("EditCooldown = %v, want 0", cfg.EditCooldown)
	}
	if cfg.SessionIdleTTL != 2*time.Hour {
		t.Errorf("SessionIdleTTL = %v, want 2h", cfg.SessionIdleTTL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}
