package config

import (
	"strings"
	"testing"
)

func clearOptional(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"DB_DSN", "JWT_ISSUER", "JWT_TTL", "REDIS_ADDR", "REDIS_PASSWORD",
		"REDIS_DB", "BASE_CURRENCY", "ALLOW_POSITION_FLIP", "LOG_LEVEL",
		"LOG_FILE", "LOG_CONSOLE", "SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(name, "")
	}
}

func TestLoad_MissingRequiredEnvListsAll(t *testing.T) {
	clearOptional(t)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("INTERNAL_API_TOKEN", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, name := range []string{"HTTP_ADDR", "JWT_SECRET", "INTERNAL_API_TOKEN"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearOptional(t)
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INTERNAL_API_TOKEN", "tok")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseCurrency != "USD" || cfg.LogLevel != "info" || !cfg.LogConsole {
		t.Errorf("defaults wrong: %+v", cfg)
	}
	if cfg.JWTIssuer != "tradecore" || cfg.AllowFlip {
		t.Errorf("defaults wrong: %+v", cfg)
	}
}
