package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

type SettingsRepo struct {
	pool     *pgxpool.Pool
	defaults models.TradingSettings
}

func NewSettingsRepo(pool *pgxpool.Pool, defaults models.TradingSettings) *SettingsRepo {
	return &SettingsRepo{pool: pool, defaults: defaults}
}

const settingsColumns = `user_id, enabled, min_signal_score, trade_percentage, max_positions,
	stop_loss_percent, take_profit_percent, updated_at`

// Get returns the user's settings, inserting the defaults on first access.
func (r *SettingsRepo) Get(ctx context.Context, userID uuid.UUID) (*models.TradingSettings, error) {
	st := r.defaults.WithUser(userID)
	st.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trading_settings (`+settingsColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (user_id) DO NOTHING`,
		st.UserID, st.Enabled, st.MinSignalScore, st.TradePercentage, st.MaxPositions,
		st.StopLossPercent, st.TakeProfitPercent, st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM trading_settings WHERE user_id = $1`, userID)
	return scanSettings(row)
}

func (r *SettingsRepo) Save(ctx context.Context, st *models.TradingSettings) (*models.TradingSettings, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO trading_settings (`+settingsColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			min_signal_score = EXCLUDED.min_signal_score,
			trade_percentage = EXCLUDED.trade_percentage,
			max_positions = EXCLUDED.max_positions,
			stop_loss_percent = EXCLUDED.stop_loss_percent,
			take_profit_percent = EXCLUDED.take_profit_percent,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+settingsColumns,
		st.UserID, st.Enabled, st.MinSignalScore, st.TradePercentage, st.MaxPositions,
		st.StopLossPercent, st.TakeProfitPercent,
	)
	return scanSettings(row)
}

func (r *SettingsRepo) ListEnabled(ctx context.Context) ([]models.TradingSettings, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+settingsColumns+` FROM trading_settings WHERE enabled ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TradingSettings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanSettings(row scannable) (*models.TradingSettings, error) {
	var st models.TradingSettings
	err := row.Scan(
		&st.UserID, &st.Enabled, &st.MinSignalScore, &st.TradePercentage, &st.MaxPositions,
		&st.StopLossPercent, &st.TakeProfitPercent, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
