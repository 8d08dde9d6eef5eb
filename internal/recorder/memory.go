package recorder

import (
	"context"
	"sync"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// MemoryRecorder keeps the last N runs in process memory. It is used when
// SQLite is not configured.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs []models.RunSummary
	max  int
}

func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 100
	}
	return &MemoryRecorder{max: max}
}

func (m *MemoryRecorder) RecordRun(_ context.Context, run *models.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	if len(m.runs) > m.max {
		m.runs = m.runs[len(m.runs)-m.max:]
	}
	return nil
}

func (m *MemoryRecorder) Recent(_ context.Context, limit int) ([]models.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.RunSummary{}
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRecorder) Close() error { return nil }
