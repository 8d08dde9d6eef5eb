package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STORE", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule != "@every 5m" || cfg.CandleLimit != 250 || cfg.InitialCash != 10000 {
		t.Fatalf("unexpected defaults: schedule=%q limit=%d cash=%.0f", cfg.Schedule, cfg.CandleLimit, cfg.InitialCash)
	}
	if cfg.MinConfidence != 0.6 {
		t.Fatalf("unexpected min confidence %.2f", cfg.MinConfidence)
	}
	if cfg.DefaultSettings.MinSignalScore != 75 || cfg.DefaultSettings.StopLossPercent != -5 {
		t.Fatalf("unexpected settings defaults: %+v", cfg.DefaultSettings)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_YAMLOverlayAndEnvOverride(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeYAML(t, `
watchlist: [ADAUSDT, DOTUSDT]
schedule: "@every 1m"
candles:
  interval: 4h
  limit: 300
signals:
  stop_atr_multiplier: 2
  min_confidence: 0
defaults:
  stop_loss_percent: 0
  max_positions: 3
`))
	t.Setenv("SCHEDULE_CRON", "*/10 * * * *")
	t.Setenv("WATCHLIST", " btcusdt, ethusdt ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule != "*/10 * * * *" {
		t.Fatalf("env should win over yaml, got %q", cfg.Schedule)
	}
	if strings.Join(cfg.Watchlist, ",") != "BTCUSDT,ETHUSDT" {
		t.Fatalf("unexpected watchlist %v", cfg.Watchlist)
	}
	if cfg.CandleInterval != "4h" || cfg.CandleLimit != 300 {
		t.Fatalf("yaml candles not applied: %s x %d", cfg.CandleInterval, cfg.CandleLimit)
	}
	if cfg.StopATRMultiplier != 2 || cfg.TargetATRMultiplier != 3 {
		t.Fatalf("unexpected ATR multipliers %.1f / %.1f", cfg.StopATRMultiplier, cfg.TargetATRMultiplier)
	}
	if cfg.MinConfidence != 0 {
		t.Fatalf("yaml should be able to disable the confidence floor, got %.2f", cfg.MinConfidence)
	}
	if cfg.DefaultSettings.StopLossPercent != 0 || cfg.DefaultSettings.MaxPositions != 3 {
		t.Fatalf("yaml defaults not applied: %+v", cfg.DefaultSettings)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeYAML(t, "watchlist: [unterminated"))
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STORE", "redis")
	t.Setenv("CANDLE_LIMIT", "50")
	t.Setenv("DEFAULT_TRADE_PERCENTAGE", "1.5")
	t.Setenv("MIN_CONFIDENCE", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"STORE", "CANDLE_LIMIT", "tradePercentage", "MIN_CONFIDENCE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestDSN(t *testing.T) {
	c := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5433, DBName: "d"}
	if got := c.DSN(); got != "postgres://u:p@h:5433/d?sslmode=disable" {
		t.Fatalf("unexpected DSN %q", got)
	}
	c.DatabaseURL = "postgres://elsewhere/db"
	if c.DSN() != "postgres://elsewhere/db" {
		t.Fatal("DATABASE_URL should take precedence")
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("X_TIMEOUT", "90s")
	if envDuration("X_TIMEOUT", time.Second) != 90*time.Second {
		t.Fatal("expected 90s")
	}
	t.Setenv("X_TIMEOUT", "soon")
	if envDuration("X_TIMEOUT", time.Second) != time.Second {
		t.Fatal("expected fallback for unparsable duration")
	}
}
