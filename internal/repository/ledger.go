package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-autotrader/internal/db"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

// LedgerRepo implements ledger.Store on Postgres. Each Atomic call is one
// transaction; the balance row is locked with SELECT ... FOR UPDATE so
// operations for the same user serialize.
type LedgerRepo struct {
	pool *pgxpool.Pool
	txm  *db.TxManager
}

var _ ledger.Store = (*LedgerRepo)(nil)

func NewLedgerRepo(txm *db.TxManager) *LedgerRepo {
	return &LedgerRepo{pool: txm.Pool(), txm: txm}
}

func (r *LedgerRepo) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return r.txm.Run(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgLedgerTx{tx: tx})
	})
}

const balanceColumns = `user_id, cash, initial_cash, total_pnl, total_trades, winning_trades,
	losing_trades, largest_win, largest_loss, updated_at`

func (r *LedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+balanceColumns+` FROM balances WHERE user_id = $1`, userID)
	return scanBalance(row)
}

const positionColumns = `user_id, symbol, side, quantity, avg_entry_price, total_invested,
	stop_loss, take_profit, opened_at, updated_at`

func (r *LedgerRepo) ListPositions(ctx context.Context, userID uuid.UUID) ([]models.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 ORDER BY symbol ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPositions(rows)
}

const tradeColumns = `id, user_id, symbol, side, quantity, entry_price, exit_price, pnl, pnl_percent,
	status, reason, signal_score, balance_after, timestamp, trading_day`

func (r *LedgerRepo) ListTrades(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE user_id = $1 ORDER BY timestamp DESC`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (r *LedgerRepo) CountTradesOnDay(ctx context.Context, userID uuid.UUID, tradingDay string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE user_id = $1 AND trading_day = $2`,
		userID, tradingDay,
	).Scan(&count)
	return count, err
}

func (r *LedgerRepo) TradeStats(ctx context.Context, userID uuid.UUID) (*models.TradeStats, error) {
	var s models.TradeStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'OPEN' THEN 1 END),
			COUNT(CASE WHEN status = 'CLOSED' THEN 1 END),
			COALESCE(SUM(pnl), 0),
			COUNT(CASE WHEN pnl > 0 THEN 1 END),
			COUNT(CASE WHEN pnl < 0 THEN 1 END)
		 FROM trades WHERE user_id = $1`,
		userID,
	).Scan(&s.TotalTrades, &s.OpenTrades, &s.ClosedTrades, &s.RealizedPnL, &s.WinningTrades, &s.LosingTrades)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type pgLedgerTx struct {
	tx pgx.Tx
}

func (t *pgLedgerTx) LockBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE user_id = $1 FOR UPDATE`, userID)
	return scanBalance(row)
}

func (t *pgLedgerTx) InsertBalance(ctx context.Context, b *models.Balance) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (user_id, cash, initial_cash, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		b.UserID, b.Cash, b.InitialCash, b.UpdatedAt,
	)
	return err
}

func (t *pgLedgerTx) UpdateBalance(ctx context.Context, b *models.Balance) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE balances SET
			cash = $2, initial_cash = $3, total_pnl = $4, total_trades = $5,
			winning_trades = $6, losing_trades = $7, largest_win = $8,
			largest_loss = $9, updated_at = $10
		 WHERE user_id = $1`,
		b.UserID, b.Cash, b.InitialCash, b.TotalPnL, b.TotalTrades,
		b.WinningTrades, b.LosingTrades, b.LargestWin, b.LargestLoss, b.UpdatedAt,
	)
	return err
}

func (t *pgLedgerTx) GetPosition(ctx context.Context, userID uuid.UUID, symbol string) (*models.Position, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return scanPosition(row)
}

// CountPositions relies on the caller holding the balance row lock, which
// every ledger write takes first, so no other transaction can add or remove
// a position for this user until commit.
func (t *pgLedgerTx) CountPositions(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM positions WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (t *pgLedgerTx) UpsertPosition(ctx context.Context, p *models.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO positions (`+positionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (user_id, symbol) DO UPDATE SET
			side = EXCLUDED.side,
			quantity = EXCLUDED.quantity,
			avg_entry_price = EXCLUDED.avg_entry_price,
			total_invested = EXCLUDED.total_invested,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Symbol, p.Side.String(), p.Quantity, p.AvgEntryPrice, p.TotalInvested,
		p.StopLoss, p.TakeProfit, p.OpenedAt, p.UpdatedAt,
	)
	return err
}

func (t *pgLedgerTx) DeletePosition(ctx context.Context, userID uuid.UUID, symbol string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1 AND symbol = $2`, userID, symbol)
	return err
}

func (t *pgLedgerTx) DeleteAllPositions(ctx context.Context, userID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, userID)
	return err
}

func (t *pgLedgerTx) InsertTrade(ctx context.Context, tr *models.Trade) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO trades (`+tradeColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		tr.ID, tr.UserID, tr.Symbol, tr.Side.String(), tr.Quantity, tr.EntryPrice,
		tr.ExitPrice, tr.PnL, tr.PnLPercent, tr.Status.String(), tr.Reason.String(),
		tr.SignalScore, tr.BalanceAfter, tr.Timestamp, tr.TradingDay,
	)
	return err
}

// --- scan helpers ---

func scanBalance(row scannable) (*models.Balance, error) {
	var b models.Balance
	err := row.Scan(
		&b.UserID, &b.Cash, &b.InitialCash, &b.TotalPnL, &b.TotalTrades, &b.WinningTrades,
		&b.LosingTrades, &b.LargestWin, &b.LargestLoss, &b.UpdatedAt,
	)
	if missing, err := noRows(err); missing || err != nil {
		return nil, err
	}
	return &b, nil
}

func scanPosition(row scannable) (*models.Position, error) {
	var p models.Position
	var side string
	err := row.Scan(
		&p.UserID, &p.Symbol, &side, &p.Quantity, &p.AvgEntryPrice, &p.TotalInvested,
		&p.StopLoss, &p.TakeProfit, &p.OpenedAt, &p.UpdatedAt,
	)
	if missing, err := noRows(err); missing || err != nil {
		return nil, err
	}
	if p.Side, err = models.ParsePositionSide(side); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPositions(rows rowsIter) ([]models.Position, error) {
	out := []models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanTrade(row scannable) (*models.Trade, error) {
	var t models.Trade
	var side, status, reason string
	var td time.Time
	err := row.Scan(
		&t.ID, &t.UserID, &t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.PnL, &t.PnLPercent,
		&status, &reason, &t.SignalScore, &t.BalanceAfter, &t.Timestamp, &td,
	)
	if err != nil {
		return nil, err
	}
	if t.Side, err = models.ParseTradeSide(side); err != nil {
		return nil, err
	}
	if t.Status, err = models.ParseTradeStatus(status); err != nil {
		return nil, err
	}
	if t.Reason, err = models.ParseTradeReason(reason); err != nil {
		return nil, err
	}
	t.TradingDay = dayString(td)
	return &t, nil
}

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	out := []models.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
