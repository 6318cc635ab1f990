package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("APP_HTTP_ADDR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.TokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d token ttl, got %v", cfg.Session.TokenTTL)
	}
	if cfg.Message.MaxPageSize != 100 {
		t.Fatalf("expected default page size 100, got %d", cfg.Message.MaxPageSize)
	}
	if len(cfg.CORS.AllowOrigins) != 1 || cfg.CORS.AllowOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORS.AllowOrigins)
	}
}

func TestLoad_FileDurationsAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  "app": {"env": "prod", "http_addr": ":9000"},
  "session": {"token_ttl": "48h"},
  "message": {"send_dedup_window": "30s", "max_page_size": 20}
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.App.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.App.HTTPAddr != ":9000" {
		t.Fatalf("unexpected addr %q", cfg.App.HTTPAddr)
	}
	if cfg.Session.TokenTTL != 48*time.Hour {
		t.Fatalf("expected 48h, got %v", cfg.Session.TokenTTL)
	}
	if cfg.Session.ClockSkew != 5*time.Minute {
		t.Fatalf("expected default clock skew, got %v", cfg.Session.ClockSkew)
	}
	if cfg.Message.SendDedupWindow != 30*time.Second || cfg.Message.MaxPageSize != 20 {
		t.Fatalf("unexpected message config %+v", cfg.Message)
	}
	if cfg.App.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.App.LogLevel)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"session": {"token_ttl": "a week"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SESSION_TOKEN_TTL", "1h")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_HOST", "mysql")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "sayhi_test")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Env != "prod" {
		t.Fatalf("expected env override, got %q", cfg.App.Env)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Session.TokenTTL != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", cfg.Session.TokenTTL)
	}
	if len(cfg.CORS.AllowOrigins) != 2 || cfg.CORS.AllowOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORS.AllowOrigins)
	}
	if !strings.Contains(cfg.MySQL.DSN, "tcp(mysql:3307)/sayhi_test") {
		t.Fatalf("unexpected dsn %q", cfg.MySQL.DSN)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Session.TokenTTL = 3 * time.Hour
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"token_ttl": "3h0m0s"`) {
		t.Fatalf("expected duration string in saved config:\n%s", data)
	}
}
