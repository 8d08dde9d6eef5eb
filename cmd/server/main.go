package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/api"
	"github.com/kjannette/trahn-autotrader/internal/config"
	"github.com/kjannette/trahn-autotrader/internal/db"
	"github.com/kjannette/trahn-autotrader/internal/external"
	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/logger"
	"github.com/kjannette/trahn-autotrader/internal/market"
	"github.com/kjannette/trahn-autotrader/internal/memstore"
	"github.com/kjannette/trahn-autotrader/internal/notifications"
	"github.com/kjannette/trahn-autotrader/internal/recorder"
	"github.com/kjannette/trahn-autotrader/internal/repository"
	"github.com/kjannette/trahn-autotrader/internal/risk"
	"github.com/kjannette/trahn-autotrader/internal/scheduler"
	tsignal "github.com/kjannette/trahn-autotrader/internal/signal"
)

const banner = `
╔══════════════════════════════════════╗
║     TRAHN Signal Auto-Trader v0.3    ║
║                                      ║
╚══════════════════════════════════════╝
`

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "trahn-autotrader",
		Short: "Signal-driven paper auto-trader",
		Long: `trahn-autotrader scores a crypto watchlist with technical indicators,
paper-trades the strongest signals for every enabled user and serves
accounts, signals and run history over a REST API.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (defaults to CONFIG_FILE or config.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runOnceCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, live ticker stream and auto-trade scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(banner)
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			// Graceful shutdown context
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			// 1. Live prices
			tickerDone := make(chan struct{})
			go func() {
				defer close(tickerDone)
				a.ticker.Run(ctx)
			}()

			// 2. API server
			srv := api.NewServer(a.apiDeps(), cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin, log)
			srvErr := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					srvErr <- err
				}
			}()

			// 3. Scheduler
			if err := a.trader.Start(); err != nil {
				return err
			}

			log.Info("all services started")

			select {
			case <-ctx.Done():
			case err := <-srvErr:
				log.Error("API server failed", zap.Error(err))
			}
			log.Info("shutting down gracefully")

			a.trader.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("API shutdown", zap.Error(err))
			}
			stop()
			<-tickerDone
			log.Info("shutdown complete")
			return nil
		},
	}
}

func runOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Execute a single auto-trade pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.trader.RunNow(ctx)
			if err != nil {
				return err
			}
			for _, line := range summary.PerUserTrades {
				fmt.Println(line)
			}
			fmt.Printf("run %s: %d users (%d failed), %d signals, %d trades, failed symbols %v\n",
				summary.ID, summary.UsersProcessed, summary.UsersFailed,
				len(summary.Signals), len(summary.PerUserTrades), summary.FailedSymbols)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			pool, err := connect(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer pool.Close()
			log.Info("schema applied", zap.String("db", cfg.DBName))
			return nil
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	if configFile != "" {
		os.Setenv("CONFIG_FILE", configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	cfg.Print(log)
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return cfg, log, nil
}

func connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	log.Info("connecting to database", zap.String("host", cfg.DBHost), zap.Int("port", cfg.DBPort), zap.String("db", cfg.DBName))
	pool, err := db.Connect(ctx, cfg.DSN(), db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := db.TestConnection(ctx, pool, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db test query: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return pool, nil
}

type settingsStore interface {
	api.SettingsStore
	scheduler.SettingsSource
}

type signalStore interface {
	api.SignalHistory
	scheduler.SignalSink
}

// app holds the wired services shared by serve and run-once.
type app struct {
	log      *zap.Logger
	pool     *pgxpool.Pool
	ledger   *ledger.Ledger
	settings settingsStore
	signals  signalStore
	runs     recorder.Recorder
	prices   *market.PriceCache
	ticker   *market.TickerStream
	trader   *scheduler.AutoTrader
	notify   *notifications.Dispatcher
}

func build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{log: log}

	// Storage
	var ledgerStore ledger.Store
	switch cfg.Store {
	case config.StoreMemory:
		ledgerStore = memstore.NewLedgerStore()
		a.settings = memstore.NewSettingsStore(cfg.DefaultSettings)
		a.signals = memstore.NewSignalStore(cfg.SignalHistory)
	default:
		pool, err := connect(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		ledgerStore = repository.NewLedgerRepo(db.NewTxManager(pool, log))
		a.settings = repository.NewSettingsRepo(pool, cfg.DefaultSettings)
		a.signals = repository.NewSignalRepo(pool)
	}
	a.ledger = ledger.New(ledgerStore, cfg.InitialCash, log)

	// Run audit log
	if cfg.SQLitePath != "" {
		rec, err := recorder.NewSQLiteRecorder(cfg.SQLitePath, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.runs = rec
	} else {
		a.runs = recorder.NewMemoryRecorder(cfg.RunHistory)
	}

	// Notifications
	senders := []notifications.Sender{notifications.NewWebhookSender(cfg.WebhookURL, cfg.BotName, log)}
	if cfg.TelegramBotToken != "" {
		tg, err := notifications.NewTelegramSender(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.BotName, "")
		if err != nil {
			log.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			senders = append(senders, tg)
		}
	}
	a.notify = notifications.NewDispatcher(log, senders...)

	// Market data
	var writer *market.Writer
	a.prices, writer = market.NewPriceCache(cfg.PriceCacheTTL)
	a.ticker = market.NewTickerStream(cfg.BinanceWSURL, cfg.Watchlist, writer, log)

	scorerCfg := tsignal.DefaultConfig()
	scorerCfg.StopATR = cfg.StopATRMultiplier
	scorerCfg.TargetATR = cfg.TargetATRMultiplier
	scorerCfg.HoldATR = cfg.HoldATRMultiplier
	generator := tsignal.NewGenerator(
		external.NewBinanceClient(cfg.BinanceBaseURL, cfg.FetchTimeout, log),
		external.NewFearGreedClient(cfg.FearGreedURL, cfg.SentimentCacheTTL, log),
		tsignal.NewScorer(scorerCfg),
		tsignal.GeneratorConfig{
			Interval:     cfg.CandleInterval,
			Limit:        cfg.CandleLimit,
			Concurrency:  cfg.SignalConcurrency,
			FetchTimeout: cfg.FetchTimeout,
		},
		log,
	)

	// Scheduler
	a.trader = scheduler.NewAutoTrader(scheduler.Deps{
		Signals:  generator,
		Settings: a.settings,
		Ledger:   a.ledger,
		Guardian: risk.NewGuardian(risk.Limits{MinTradeUSD: cfg.MinTradeUSD, MaxDailyTrades: cfg.MaxDailyTrades}, a.ledger),
		History:  a.signals,
		Recorder: a.runs,
		Notifier: a.notify,
		Prices:   a.prices,
	}, scheduler.Config{
		Schedule:      cfg.Schedule,
		Watchlist:     cfg.Watchlist,
		RunTimeout:    cfg.RunTimeout,
		MinConfidence: cfg.MinConfidence,
	}, log)

	return a, nil
}

func (a *app) apiDeps() api.Deps {
	deps := api.Deps{
		Accounts: a.ledger,
		Settings: a.settings,
		Signals:  a.signals,
		Prices:   a.prices,
		Runs:     a.runs,
		Trigger:  a.trader,
	}
	if a.pool != nil {
		deps.DB = a.pool
	}
	return deps
}

func (a *app) close() {
	if a.notify != nil {
		a.notify.Wait()
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			a.log.Warn("close recorder", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
		a.log.Info("database pool closed")
	}
}
