package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// Store persists balances, positions and trades.
//
// Atomic runs fn as one isolated unit of work for userID: either every write
// made through tx becomes visible or none does. Concurrent Atomic calls for the
// same user must serialize, each observing the state committed by the previous
// one. Errors returned by fn are passed through unchanged after rollback.
type Store interface {
	Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	GetBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	ListPositions(ctx context.Context, userID uuid.UUID) ([]models.Position, error)
	ListTrades(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error)
	CountTradesOnDay(ctx context.Context, userID uuid.UUID, tradingDay string) (int, error)
	TradeStats(ctx context.Context, userID uuid.UUID) (*models.TradeStats, error)
}

// Tx is the write view handed to Store.Atomic callbacks. Getters return
// nil, nil when the row does not exist.
type Tx interface {
	LockBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	InsertBalance(ctx context.Context, b *models.Balance) error
	UpdateBalance(ctx context.Context, b *models.Balance) error

	GetPosition(ctx context.Context, userID uuid.UUID, symbol string) (*models.Position, error)
	CountPositions(ctx context.Context, userID uuid.UUID) (int, error)
	UpsertPosition(ctx context.Context, p *models.Position) error
	DeletePosition(ctx context.Context, userID uuid.UUID, symbol string) error
	DeleteAllPositions(ctx context.Context, userID uuid.UUID) error

	InsertTrade(ctx context.Context, t *models.Trade) error
}
