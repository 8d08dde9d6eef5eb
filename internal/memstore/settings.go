package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

type SettingsStore struct {
	mu       sync.RWMutex
	defaults models.TradingSettings
	byUser   map[uuid.UUID]models.TradingSettings
}

func NewSettingsStore(defaults models.TradingSettings) *SettingsStore {
	return &SettingsStore{defaults: defaults, byUser: make(map[uuid.UUID]models.TradingSettings)}
}

// Get returns the user's settings, storing the defaults on first access.
func (s *SettingsStore) Get(_ context.Context, userID uuid.UUID) (*models.TradingSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byUser[userID]
	if !ok {
		st = s.defaults.WithUser(userID)
		st.UpdatedAt = time.Now()
		s.byUser[userID] = st
	}
	return &st, nil
}

func (s *SettingsStore) Save(_ context.Context, st *models.TradingSettings) (*models.TradingSettings, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	cp.UpdatedAt = time.Now()
	s.byUser[cp.UserID] = cp
	return &cp, nil
}

func (s *SettingsStore) ListEnabled(_ context.Context) ([]models.TradingSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TradingSettings
	for _, st := range s.byUser {
		if st.Enabled {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}
