// Package memstore keeps ledger, settings and signal state in process memory.
// It backs STORE=memory and the tests. Nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

// LedgerStore implements ledger.Store. Atomic serializes per user and stages
// writes on copies, publishing them only when the callback succeeds.
type LedgerStore struct {
	mu        sync.RWMutex
	balances  map[uuid.UUID]models.Balance
	positions map[uuid.UUID]map[string]models.Position
	trades    []models.Trade

	userLocks sync.Map // uuid.UUID -> *sync.Mutex
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances:  make(map[uuid.UUID]models.Balance),
		positions: make(map[uuid.UUID]map[string]models.Position),
	}
}

func (s *LedgerStore) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	lock, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	m := lock.(*sync.Mutex)
	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s, userID: userID, staged: make(map[string]*models.Position)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *LedgerStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.balance != nil {
		s.balances[tx.userID] = *tx.balance
	}
	if tx.deleteAll {
		delete(s.positions, tx.userID)
	}
	for symbol, p := range tx.staged {
		if p == nil {
			delete(s.positions[tx.userID], symbol)
			continue
		}
		if s.positions[tx.userID] == nil {
			s.positions[tx.userID] = make(map[string]models.Position)
		}
		s.positions[tx.userID][symbol] = *p
	}
	s.trades = append(s.trades, tx.trades...)
}

func (s *LedgerStore) GetBalance(_ context.Context, userID uuid.UUID) (*models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[userID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *LedgerStore) ListPositions(_ context.Context, userID uuid.UUID) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Position, 0, len(s.positions[userID]))
	for _, p := range s.positions[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// ListTrades returns the newest trades first.
func (s *LedgerStore) ListTrades(_ context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].UserID != userID {
			continue
		}
		out = append(out, s.trades[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *LedgerStore) CountTradesOnDay(_ context.Context, userID uuid.UUID, tradingDay string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.trades {
		if t.UserID == userID && t.TradingDay == tradingDay {
			n++
		}
	}
	return n, nil
}

func (s *LedgerStore) TradeStats(_ context.Context, userID uuid.UUID) (*models.TradeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.TradeStats
	for _, t := range s.trades {
		if t.UserID != userID {
			continue
		}
		st.TotalTrades++
		if t.Status == models.TradeOpen {
			st.OpenTrades++
			continue
		}
		st.ClosedTrades++
		if t.PnL == nil {
			continue
		}
		st.RealizedPnL += *t.PnL
		switch {
		case *t.PnL > 0:
			st.WinningTrades++
		case *t.PnL < 0:
			st.LosingTrades++
		}
	}
	return &st, nil
}

// memTx stages writes for one user. A nil entry in staged marks a deletion.
type memTx struct {
	store     *LedgerStore
	userID    uuid.UUID
	balance   *models.Balance
	staged    map[string]*models.Position
	deleteAll bool
	trades    []models.Trade
}

func (tx *memTx) check(userID uuid.UUID) error {
	if userID != tx.userID {
		return fmt.Errorf("transaction for user %s cannot touch user %s", tx.userID, userID)
	}
	return nil
}

func (tx *memTx) LockBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	if err := tx.check(userID); err != nil {
		return nil, err
	}
	if tx.balance != nil {
		b := *tx.balance
		return &b, nil
	}
	return tx.store.GetBalance(ctx, userID)
}

func (tx *memTx) InsertBalance(ctx context.Context, b *models.Balance) error {
	if err := tx.check(b.UserID); err != nil {
		return err
	}
	existing, _ := tx.LockBalance(ctx, b.UserID)
	if existing != nil {
		return nil
	}
	cp := *b
	tx.balance = &cp
	return nil
}

func (tx *memTx) UpdateBalance(_ context.Context, b *models.Balance) error {
	if err := tx.check(b.UserID); err != nil {
		return err
	}
	cp := *b
	tx.balance = &cp
	return nil
}

func (tx *memTx) GetPosition(_ context.Context, userID uuid.UUID, symbol string) (*models.Position, error) {
	if err := tx.check(userID); err != nil {
		return nil, err
	}
	if p, ok := tx.staged[symbol]; ok {
		if p == nil {
			return nil, nil
		}
		cp := *p
		return &cp, nil
	}
	if tx.deleteAll {
		return nil, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.positions[userID][symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (tx *memTx) CountPositions(_ context.Context, userID uuid.UUID) (int, error) {
	if err := tx.check(userID); err != nil {
		return 0, err
	}
	held := map[string]bool{}
	if !tx.deleteAll {
		tx.store.mu.RLock()
		for symbol := range tx.store.positions[userID] {
			held[symbol] = true
		}
		tx.store.mu.RUnlock()
	}
	for symbol, p := range tx.staged {
		held[symbol] = p != nil
	}
	n := 0
	for _, ok := range held {
		if ok {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) UpsertPosition(_ context.Context, p *models.Position) error {
	if err := tx.check(p.UserID); err != nil {
		return err
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("position %s must have positive quantity", p.Symbol)
	}
	cp := *p
	tx.staged[p.Symbol] = &cp
	return nil
}

func (tx *memTx) DeletePosition(_ context.Context, userID uuid.UUID, symbol string) error {
	if err := tx.check(userID); err != nil {
		return err
	}
	tx.staged[symbol] = nil
	return nil
}

func (tx *memTx) DeleteAllPositions(_ context.Context, userID uuid.UUID) error {
	if err := tx.check(userID); err != nil {
		return err
	}
	tx.deleteAll = true
	clear(tx.staged)
	return nil
}

func (tx *memTx) InsertTrade(_ context.Context, t *models.Trade) error {
	if err := tx.check(t.UserID); err != nil {
		return err
	}
	tx.trades = append(tx.trades, *t)
	return nil
}
