package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// SQLiteRecorder persists run summaries to a SQLite database. The summary
// itself is stored as JSON next to a few indexed columns.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			executed_at     INTEGER NOT NULL,
			finished_at     INTEGER NOT NULL,
			users_processed INTEGER NOT NULL,
			users_failed    INTEGER NOT NULL,
			signal_count    INTEGER NOT NULL,
			trade_count     INTEGER NOT NULL,
			payload         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_executed ON runs(executed_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, run *models.RunSummary) error {
	payload, err := sonic.MarshalString(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO runs (id, executed_at, finished_at, users_processed, users_failed, signal_count, trade_count, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.ExecutedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.UsersProcessed, run.UsersFailed, len(run.Signals), len(run.PerUserTrades), payload,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT payload FROM runs ORDER BY executed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := []models.RunSummary{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var run models.RunSummary
		if err := sonic.UnmarshalString(payload, &run); err != nil {
			return nil, fmt.Errorf("decode run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("sqlite recorder closing")
	return r.db.Close()
}
