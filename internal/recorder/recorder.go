// Package recorder keeps an audit trail of auto-trade runs.
package recorder

import (
	"context"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// Recorder persists run summaries for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, run *models.RunSummary) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
	Close() error
}
