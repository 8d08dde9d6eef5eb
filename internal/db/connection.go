package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolOptions bound the connection pool. Zero fields take the defaults.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	MaxConnLifetime time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns <= 0 {
		o.MaxConns = 20
	}
	if o.MinConns <= 0 {
		o.MinConns = 2
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	if o.MaxConnIdleTime <= 0 {
		o.MaxConnIdleTime = 30 * time.Second
	}
	if o.MaxConnLifetime <= 0 {
		o.MaxConnLifetime = 5 * time.Minute
	}
	return o
}

// Connect opens a pool whose sessions all run in UTC, so timestamps read back
// match the trading-day arithmetic done in Go.
func Connect(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	opts = opts.withDefaults()
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	cfg.ConnConfig.RuntimeParams["application_name"] = "trahn-autotrader"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return p, nil
}

// TestConnection runs one round trip and logs the server clock and version.
func TestConnection(ctx context.Context, p *pgxpool.Pool, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		now     time.Time
		version string
	)
	err := p.QueryRow(ctx, "SELECT NOW(), current_setting('server_version')").Scan(&now, &version)
	if err != nil {
		return fmt.Errorf("test query: %w", err)
	}
	if skew := time.Since(now); skew > time.Minute || skew < -time.Minute {
		log.Warn("database clock skew", zap.Duration("skew", skew))
	}
	log.Info("database connection ok",
		zap.Time("server_time", now),
		zap.String("server_version", version),
		zap.Int32("max_conns", p.Config().MaxConns))
	return nil
}
