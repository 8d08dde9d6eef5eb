package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

func run(at time.Time, processed int) *models.RunSummary {
	return &models.RunSummary{
		ID:             uuid.New(),
		ExecutedAt:     at,
		FinishedAt:     at.Add(2 * time.Second),
		UsersProcessed: processed,
		Signals: []models.SignalSummary{
			{Symbol: "BTCUSDT", SignalClass: models.StrongBuy, Score: 78, Confidence: 0.8, Price: 65000},
		},
		PerUserTrades: []string{"user opened BTCUSDT"},
	}
}

func TestSQLiteRecorder_RecordAndRecent(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := r.RecordRun(ctx, run(base.Add(time.Duration(i)*time.Minute), i)); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := r.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].UsersProcessed != 2 || runs[1].UsersProcessed != 1 {
		t.Fatalf("expected newest first, got %d then %d", runs[0].UsersProcessed, runs[1].UsersProcessed)
	}
	if len(runs[0].Signals) != 1 || runs[0].Signals[0].SignalClass != models.StrongBuy {
		t.Fatalf("signals not restored: %+v", runs[0].Signals)
	}
	t.Logf("Recent run: %s at %s", runs[0].ID, runs[0].ExecutedAt)
}

func TestMemoryRecorder_KeepsLastN(t *testing.T) {
	r := NewMemoryRecorder(2)
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		r.RecordRun(ctx, run(now, i))
	}

	runs, _ := r.Recent(ctx, 10)
	if len(runs) != 2 || runs[0].UsersProcessed != 2 || runs[1].UsersProcessed != 1 {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}
