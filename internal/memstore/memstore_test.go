package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

func TestSettingsStore_DefaultsAndEnabled(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsStore(models.DefaultTradingSettings)

	a, b := uuid.New(), uuid.New()
	st, err := s.Get(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if st.Enabled || st.MinSignalScore != 75 || st.UserID != a {
		t.Fatalf("unexpected defaults: %+v", st)
	}

	enabled, _ := s.ListEnabled(ctx)
	if len(enabled) != 0 {
		t.Fatal("defaults must not be enabled")
	}

	on := models.DefaultTradingSettings.WithUser(b)
	on.Enabled = true
	if _, err := s.Save(ctx, &on); err != nil {
		t.Fatal(err)
	}
	enabled, _ = s.ListEnabled(ctx)
	if len(enabled) != 1 || enabled[0].UserID != b {
		t.Fatalf("expected only %s enabled, got %+v", b, enabled)
	}
}

func TestSettingsStore_SaveRejectsInvalid(t *testing.T) {
	s := NewSettingsStore(models.DefaultTradingSettings)
	bad := models.DefaultTradingSettings.WithUser(uuid.New())
	bad.TradePercentage = 2
	if _, err := s.Save(context.Background(), &bad); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSignalStore_LatestAndHistory(t *testing.T) {
	ctx := context.Background()
	s := NewSignalStore(2)
	now := time.Now()

	for i, score := range []int{40, 60, 80} {
		sig := &models.TradingSignal{Symbol: "BTCUSDT", Score: score, Timestamp: now.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(ctx, sig); err != nil {
			t.Fatal(err)
		}
	}
	s.Record(ctx, &models.TradingSignal{Symbol: "ADAUSDT", Score: 50, Timestamp: now})

	latest, _ := s.Latest(ctx)
	if len(latest) != 2 || latest[0].Symbol != "ADAUSDT" || latest[1].Score != 80 {
		t.Fatalf("unexpected latest: %+v", latest)
	}

	hist, _ := s.History(ctx, "BTCUSDT", 10)
	if len(hist) != 2 || hist[0].Score != 80 || hist[1].Score != 60 {
		t.Fatalf("history should be trimmed to 2, newest first: %+v", hist)
	}

	if sig, _ := s.LatestFor(ctx, "ETHUSDT"); sig != nil {
		t.Fatal("expected nil for unknown symbol")
	}
}
