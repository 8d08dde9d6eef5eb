package repository

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// SignalRepo keeps the history of generated signals. Reasons and the
// indicator snapshot are stored as JSONB.
type SignalRepo struct {
	pool *pgxpool.Pool
}

func NewSignalRepo(pool *pgxpool.Pool) *SignalRepo {
	return &SignalRepo{pool: pool}
}

const signalColumns = `symbol, timestamp, class, score, confidence, risk_level, entry_price,
	stop_loss, take_profit, sentiment, reasons, indicators`

func (r *SignalRepo) Record(ctx context.Context, s *models.TradingSignal) error {
	reasons, err := sonic.Marshal(s.Reasons)
	if err != nil {
		return fmt.Errorf("encode reasons: %w", err)
	}
	snap, err := sonic.Marshal(s.Indicators)
	if err != nil {
		return fmt.Errorf("encode indicators: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO signals (`+signalColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		s.Symbol, s.Timestamp, s.SignalClass.String(), s.Score, s.Confidence, s.RiskLevel.String(),
		s.EntryPrice, s.StopLoss, s.TakeProfit, s.Sentiment, string(reasons), string(snap),
	)
	return err
}

// Latest returns the newest signal per symbol, ordered by symbol.
func (r *SignalRepo) Latest(ctx context.Context) ([]models.TradingSignal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (symbol) `+signalColumns+`
		 FROM signals ORDER BY symbol ASC, timestamp DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSignals(rows)
}

func (r *SignalRepo) LatestFor(ctx context.Context, symbol string) (*models.TradingSignal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE symbol = $1 ORDER BY timestamp DESC LIMIT 1`, symbol)
	s, err := scanSignal(row)
	if missing, err := noRows(err); missing || err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SignalRepo) History(ctx context.Context, symbol string, limit int) ([]models.TradingSignal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2`,
		symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSignals(rows)
}

func scanSignal(row scannable) (*models.TradingSignal, error) {
	var s models.TradingSignal
	var class, risk string
	var reasons, snap []byte
	err := row.Scan(
		&s.Symbol, &s.Timestamp, &class, &s.Score, &s.Confidence, &risk, &s.EntryPrice,
		&s.StopLoss, &s.TakeProfit, &s.Sentiment, &reasons, &snap,
	)
	if err != nil {
		return nil, err
	}
	if s.SignalClass, err = models.ParseSignalClass(class); err != nil {
		return nil, err
	}
	if s.RiskLevel, err = models.ParseRiskLevel(risk); err != nil {
		return nil, err
	}
	if err := sonic.Unmarshal(reasons, &s.Reasons); err != nil {
		return nil, fmt.Errorf("decode reasons: %w", err)
	}
	if err := sonic.Unmarshal(snap, &s.Indicators); err != nil {
		return nil, fmt.Errorf("decode indicators: %w", err)
	}
	return &s, nil
}

func collectSignals(rows rowsIter) ([]models.TradingSignal, error) {
	out := []models.TradingSignal{}
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
