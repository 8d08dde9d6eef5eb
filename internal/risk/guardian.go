package risk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

var (
	ErrBelowMinimum = errors.New("trade below minimum size")
	ErrMaxPositions = errors.New("max open positions reached")
	ErrDailyLimit   = errors.New("daily trade limit reached")
)

// TradeCounter abstracts the trade-counting dependency so Guardian
// can be tested without a real database.
type TradeCounter interface {
	CountTradesToday(ctx context.Context, userID uuid.UUID) (int, error)
}

// Limits holds the account-wide thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MinTradeUSD    float64
	MaxDailyTrades int
}

type Guardian struct {
	limits  Limits
	counter TradeCounter
}

func NewGuardian(limits Limits, counter TradeCounter) *Guardian {
	return &Guardian{limits: limits, counter: counter}
}

// PreTradeCheck validates an opening trade of notional USD for a user who
// already holds openCount positions. Returns nil if the trade is allowed.
func (g *Guardian) PreTradeCheck(ctx context.Context, userID uuid.UUID, notional float64, openCount int, s *models.TradingSettings) error {
	if s.MaxPositions > 0 && openCount >= s.MaxPositions {
		return fmt.Errorf("%w: %d of %d", ErrMaxPositions, openCount, s.MaxPositions)
	}

	if g.limits.MinTradeUSD > 0 && notional < g.limits.MinTradeUSD {
		return fmt.Errorf("%w: $%.2f is under $%.2f", ErrBelowMinimum, notional, g.limits.MinTradeUSD)
	}

	if g.limits.MaxDailyTrades > 0 && g.counter != nil {
		count, err := g.counter.CountTradesToday(ctx, userID)
		if err != nil {
			return fmt.Errorf("trade blocked: unable to verify daily trade count: %w", err)
		}
		if count >= g.limits.MaxDailyTrades {
			return fmt.Errorf("%w: %d trades executed today (max %d)",
				ErrDailyLimit, count, g.limits.MaxDailyTrades)
		}
	}

	return nil
}

// ExitReason reports whether pos should be closed at price. A position exits
// when price crosses its own stop or target level, or when its P&L crosses
// the user's stop-loss/take-profit percentages. stopLossPercent is negative
// (e.g. -5 means close once down 5%); a zero threshold disables that check.
func (g *Guardian) ExitReason(pos *models.Position, price float64, s *models.TradingSettings) (models.TradeReason, float64, bool) {
	pnlPct := pos.UnrealizedPnLPercent(price)

	if crossed(pos.StopLoss, price, pos.Side != models.Short) ||
		(s.StopLossPercent < 0 && pnlPct <= s.StopLossPercent) {
		return models.ReasonStopLoss, pnlPct, true
	}
	if crossed(pos.TakeProfit, price, pos.Side == models.Short) ||
		(s.TakeProfitPercent > 0 && pnlPct >= s.TakeProfitPercent) {
		return models.ReasonTakeProfit, pnlPct, true
	}
	return 0, pnlPct, false
}

// crossed reports whether price has reached level, from above when falling
// is true and from below otherwise. Unset levels never trigger.
func crossed(level *float64, price float64, falling bool) bool {
	if level == nil || *level <= 0 {
		return false
	}
	if falling {
		return price <= *level
	}
	return price >= *level
}
