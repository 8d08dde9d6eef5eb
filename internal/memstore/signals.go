package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

type SignalStore struct {
	mu         sync.RWMutex
	history    map[string][]models.TradingSignal
	maxHistory int
}

func NewSignalStore(maxHistory int) *SignalStore {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &SignalStore{history: make(map[string][]models.TradingSignal), maxHistory: maxHistory}
}

func (s *SignalStore) Record(_ context.Context, sig *models.TradingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := append(s.history[sig.Symbol], *sig)
	if len(h) > s.maxHistory {
		h = h[len(h)-s.maxHistory:]
	}
	s.history[sig.Symbol] = h
	return nil
}

// Latest returns the newest signal per symbol, ordered by symbol.
func (s *SignalStore) Latest(_ context.Context) ([]models.TradingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TradingSignal, 0, len(s.history))
	for _, h := range s.history {
		if len(h) > 0 {
			out = append(out, h[len(h)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *SignalStore) LatestFor(_ context.Context, symbol string) (*models.TradingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[symbol]
	if len(h) == 0 {
		return nil, nil
	}
	sig := h[len(h)-1]
	return &sig, nil
}

// History returns up to limit signals for symbol, newest first.
func (s *SignalStore) History(_ context.Context, symbol string, limit int) ([]models.TradingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history[symbol]
	var out []models.TradingSignal
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
