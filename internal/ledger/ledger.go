package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// Ledger applies opens and closes against a user's cash balance. Every
// operation runs inside one Store.Atomic call, so a rejected or failed
// operation leaves balance, position and trade history untouched.
type Ledger struct {
	store       Store
	initialCash decimal.Decimal
	log         *zap.Logger
	now         func() time.Time
}

func New(store Store, initialCash float64, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:       store,
		initialCash: decimal.NewFromFloat(initialCash),
		log:         log.Named("ledger"),
		now:         time.Now,
	}
}

type OpenOrder struct {
	UserID      uuid.UUID
	Symbol      string
	Side        models.PositionSide
	Quantity    float64
	Price       float64
	StopLoss    *float64
	TakeProfit  *float64
	Reason      models.TradeReason
	SignalScore *int
	// MaxPositions, when set, caps the user's distinct open positions. It
	// only applies when the order would create a new position.
	MaxPositions *int
}

type CloseOrder struct {
	UserID uuid.UUID
	Symbol string
	// Side, when set, must match the open position.
	Side models.PositionSide
	// Quantity zero closes the whole position.
	Quantity    float64
	Price       float64
	Reason      models.TradeReason
	SignalScore *int
}

// Open debits quantity*price from cash and adds to (or creates) the position.
// The average entry is the invested-value-weighted average of all fills.
func (l *Ledger) Open(ctx context.Context, o OpenOrder) (*models.Trade, error) {
	if o.Side == 0 {
		o.Side = models.Long
	}
	if o.Reason == 0 {
		o.Reason = models.ReasonManual
	}
	if err := validateOrder(o.Symbol, o.Quantity, o.Price, false); err != nil {
		return nil, err
	}

	qty := decimal.NewFromFloat(o.Quantity)
	price := decimal.NewFromFloat(o.Price)
	cost := qty.Mul(price)

	var trade *models.Trade
	err := l.store.Atomic(ctx, o.UserID, func(ctx context.Context, tx Tx) error {
		bal, err := l.lockOrCreateBalance(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		cash := decimal.NewFromFloat(bal.Cash)
		if cash.LessThan(cost) {
			return fmt.Errorf("%w: %s needs $%s, cash is $%s",
				ErrInsufficientBalance, o.Symbol, cost.StringFixed(2), cash.StringFixed(2))
		}

		pos, err := tx.GetPosition(ctx, o.UserID, o.Symbol)
		if err != nil {
			return fmt.Errorf("load position: %w", err)
		}
		now := l.now()
		if pos == nil {
			if o.MaxPositions != nil {
				open, err := tx.CountPositions(ctx, o.UserID)
				if err != nil {
					return fmt.Errorf("count positions: %w", err)
				}
				if open >= *o.MaxPositions {
					return fmt.Errorf("%w: %d of %d held, cannot open %s",
						ErrPositionLimit, open, *o.MaxPositions, o.Symbol)
				}
			}
			pos = &models.Position{UserID: o.UserID, Symbol: o.Symbol, Side: o.Side, OpenedAt: now}
		} else if pos.Side != o.Side {
			return fmt.Errorf("%w: %s is held %s, cannot add %s", ErrSideMismatch, o.Symbol, pos.Side, o.Side)
		}

		newQty := decimal.NewFromFloat(pos.Quantity).Add(qty)
		newInvested := decimal.NewFromFloat(pos.TotalInvested).Add(cost)
		pos.Quantity = newQty.InexactFloat64()
		pos.TotalInvested = newInvested.InexactFloat64()
		pos.AvgEntryPrice = newInvested.Div(newQty).InexactFloat64()
		if o.StopLoss != nil {
			pos.StopLoss = o.StopLoss
		}
		if o.TakeProfit != nil {
			pos.TakeProfit = o.TakeProfit
		}
		pos.UpdatedAt = now

		bal.Cash = cash.Sub(cost).InexactFloat64()
		bal.TotalTrades++
		bal.UpdatedAt = now

		cashAfter := bal.Cash
		trade = &models.Trade{
			ID:           uuid.New(),
			UserID:       o.UserID,
			Symbol:       o.Symbol,
			Side:         o.Side.OpenAction(),
			Quantity:     o.Quantity,
			EntryPrice:   o.Price,
			Status:       models.TradeOpen,
			Reason:       o.Reason,
			SignalScore:  o.SignalScore,
			BalanceAfter: &cashAfter,
			Timestamp:    now,
			TradingDay:   models.TradingDay(now),
		}

		if err := tx.UpsertPosition(ctx, pos); err != nil {
			return fmt.Errorf("write position: %w", err)
		}
		if err := tx.UpdateBalance(ctx, bal); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("write trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	l.log.Info("position opened",
		zap.Stringer("user", o.UserID),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", trade.Side),
		zap.Float64("qty", o.Quantity),
		zap.Float64("price", o.Price),
		zap.Stringer("reason", o.Reason))
	return trade, nil
}

// Close realizes P&L on part or all of a position. Cash is credited with the
// proportional cost basis plus the P&L. A SHORT cannot lose more than its
// margin, so its loss is capped at the cost basis being closed.
func (l *Ledger) Close(ctx context.Context, o CloseOrder) (*models.Trade, error) {
	if o.Reason == 0 {
		o.Reason = models.ReasonManual
	}
	if err := validateOrder(o.Symbol, o.Quantity, o.Price, true); err != nil {
		return nil, err
	}

	exit := decimal.NewFromFloat(o.Price)
	hundred := decimal.NewFromInt(100)

	var trade *models.Trade
	err := l.store.Atomic(ctx, o.UserID, func(ctx context.Context, tx Tx) error {
		bal, err := l.lockOrCreateBalance(ctx, tx, o.UserID)
		if err != nil {
			return err
		}
		pos, err := tx.GetPosition(ctx, o.UserID, o.Symbol)
		if err != nil {
			return fmt.Errorf("load position: %w", err)
		}
		if pos == nil {
			return fmt.Errorf("%w: no open position in %s", ErrInsufficientHoldings, o.Symbol)
		}
		if o.Side != 0 && o.Side != pos.Side {
			return fmt.Errorf("%w: %s is held %s, not %s", ErrSideMismatch, o.Symbol, pos.Side, o.Side)
		}

		held := decimal.NewFromFloat(pos.Quantity)
		qty := held
		if o.Quantity > 0 {
			qty = decimal.NewFromFloat(o.Quantity)
		}
		if qty.GreaterThan(held) {
			return fmt.Errorf("%w: %s holds %s, asked to close %s",
				ErrInsufficientHoldings, o.Symbol, held.String(), qty.String())
		}

		avg := decimal.NewFromFloat(pos.AvgEntryPrice)
		invested := decimal.NewFromFloat(pos.TotalInvested)
		full := qty.Equal(held)

		basis := invested
		if !full {
			basis = invested.Mul(qty).Div(held)
		}

		var pnl decimal.Decimal
		if pos.Side == models.Short {
			pnl = avg.Sub(exit).Mul(qty)
			if pnl.LessThan(basis.Neg()) {
				pnl = basis.Neg()
			}
		} else {
			pnl = exit.Sub(avg).Mul(qty)
		}
		pnlPct := decimal.Zero
		if basis.IsPositive() {
			pnlPct = pnl.Div(basis).Mul(hundred)
		}

		now := l.now()
		if full {
			if err := tx.DeletePosition(ctx, o.UserID, o.Symbol); err != nil {
				return fmt.Errorf("delete position: %w", err)
			}
		} else {
			pos.Quantity = held.Sub(qty).InexactFloat64()
			pos.TotalInvested = invested.Sub(basis).InexactFloat64()
			pos.UpdatedAt = now
			if err := tx.UpsertPosition(ctx, pos); err != nil {
				return fmt.Errorf("write position: %w", err)
			}
		}

		applyClose(bal, basis.Add(pnl), pnl, now)
		if err := tx.UpdateBalance(ctx, bal); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}

		exitPrice := o.Price
		pnlF := pnl.InexactFloat64()
		pnlPctF := pnlPct.InexactFloat64()
		cashAfter := bal.Cash
		trade = &models.Trade{
			ID:           uuid.New(),
			UserID:       o.UserID,
			Symbol:       o.Symbol,
			Side:         pos.Side.CloseAction(),
			Quantity:     qty.InexactFloat64(),
			EntryPrice:   pos.AvgEntryPrice,
			ExitPrice:    &exitPrice,
			PnL:          &pnlF,
			PnLPercent:   &pnlPctF,
			Status:       models.TradeClosed,
			Reason:       o.Reason,
			SignalScore:  o.SignalScore,
			BalanceAfter: &cashAfter,
			Timestamp:    now,
			TradingDay:   models.TradingDay(now),
		}
		if err := tx.InsertTrade(ctx, trade); err != nil {
			return fmt.Errorf("write trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	l.log.Info("position closed",
		zap.Stringer("user", o.UserID),
		zap.String("symbol", o.Symbol),
		zap.Stringer("side", trade.Side),
		zap.Float64("qty", trade.Quantity),
		zap.Float64("price", o.Price),
		zap.Float64("pnl", *trade.PnL),
		zap.Stringer("reason", o.Reason))
	return trade, nil
}

func applyClose(bal *models.Balance, credit, pnl decimal.Decimal, now time.Time) {
	bal.Cash = decimal.NewFromFloat(bal.Cash).Add(credit).InexactFloat64()
	bal.TotalPnL = decimal.NewFromFloat(bal.TotalPnL).Add(pnl).InexactFloat64()

	p := pnl.InexactFloat64()
	switch {
	case pnl.IsPositive():
		bal.WinningTrades++
		if p > bal.LargestWin {
			bal.LargestWin = p
		}
	case pnl.IsNegative():
		bal.LosingTrades++
		if p < bal.LargestLoss {
			bal.LargestLoss = p
		}
	}
	bal.UpdatedAt = now
}

// EnsureBalance returns the user's balance, creating it with the initial cash
// on first access.
func (l *Ledger) EnsureBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	var out models.Balance
	err := l.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		b, err := l.lockOrCreateBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return &out, nil
}

// Balance reads the balance without locking, creating it if missing.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	b, err := l.store.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if b != nil {
		return b, nil
	}
	return l.EnsureBalance(ctx, userID)
}

func (l *Ledger) Positions(ctx context.Context, userID uuid.UUID) ([]models.Position, error) {
	return l.store.ListPositions(ctx, userID)
}

func (l *Ledger) Trades(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	return l.store.ListTrades(ctx, userID, limit)
}

func (l *Ledger) Stats(ctx context.Context, userID uuid.UUID) (*models.TradeStats, error) {
	return l.store.TradeStats(ctx, userID)
}

// CountTradesToday counts the user's trades in the current trading day.
func (l *Ledger) CountTradesToday(ctx context.Context, userID uuid.UUID) (int, error) {
	return l.store.CountTradesOnDay(ctx, userID, models.TradingDay(l.now()))
}

// Reset restores the initial cash, clears aggregates and drops every open
// position. Trade history is kept.
func (l *Ledger) Reset(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	var out models.Balance
	err := l.store.Atomic(ctx, userID, func(ctx context.Context, tx Tx) error {
		b, err := l.lockOrCreateBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := tx.DeleteAllPositions(ctx, userID); err != nil {
			return fmt.Errorf("delete positions: %w", err)
		}
		*b = models.Balance{
			UserID:      userID,
			Cash:        b.InitialCash,
			InitialCash: b.InitialCash,
			UpdatedAt:   l.now(),
		}
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	l.log.Info("account reset", zap.Stringer("user", userID), zap.Float64("cash", out.Cash))
	return &out, nil
}

func (l *Ledger) lockOrCreateBalance(ctx context.Context, tx Tx, userID uuid.UUID) (*models.Balance, error) {
	b, err := tx.LockBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if b != nil {
		return b, nil
	}

	cash := l.initialCash.InexactFloat64()
	if err := tx.InsertBalance(ctx, &models.Balance{
		UserID:      userID,
		Cash:        cash,
		InitialCash: cash,
		UpdatedAt:   l.now(),
	}); err != nil {
		return nil, fmt.Errorf("create balance: %w", err)
	}

	b, err = tx.LockBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	if b == nil {
		return nil, errors.New("balance missing after insert")
	}
	return b, nil
}

func validateOrder(symbol string, qty, price float64, allowZeroQty bool) error {
	switch {
	case strings.TrimSpace(symbol) == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	case !(price > 0) || math.IsInf(price, 1):
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	case !(qty >= 0) || math.IsInf(qty, 1), qty == 0 && !allowZeroQty:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	return nil
}

func classify(err error) error {
	if IsRejection(err) || errors.Is(err, ErrTransactionFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}
