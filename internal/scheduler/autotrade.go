package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/recorder"
	"github.com/kjannette/trahn-autotrader/internal/risk"
	"github.com/kjannette/trahn-autotrader/internal/signal"
)

// ErrRunInProgress is returned by RunNow while another pass is executing.
var ErrRunInProgress = errors.New("auto-trade run already in progress")

type SignalSource interface {
	Generate(ctx context.Context, symbols []string) *signal.Result
}

type SettingsSource interface {
	ListEnabled(ctx context.Context) ([]models.TradingSettings, error)
}

type Trader interface {
	EnsureBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	Positions(ctx context.Context, userID uuid.UUID) ([]models.Position, error)
	Open(ctx context.Context, o ledger.OpenOrder) (*models.Trade, error)
	Close(ctx context.Context, o ledger.CloseOrder) (*models.Trade, error)
}

type SignalSink interface {
	Record(ctx context.Context, s *models.TradingSignal) error
}

type Notifier interface {
	Notify(msg string)
}

// PriceLookup supplies a live price for held symbols that produced no
// signal in the current run.
type PriceLookup interface {
	Get(symbol string) (float64, bool)
}

// Deps are the collaborators of one AutoTrader. History, Recorder, Notifier
// and Prices are optional.
type Deps struct {
	Signals  SignalSource
	Settings SettingsSource
	Ledger   Trader
	Guardian *risk.Guardian
	History  SignalSink
	Recorder recorder.Recorder
	Notifier Notifier
	Prices   PriceLookup
}

type Config struct {
	Schedule      string        // robfig/cron spec, e.g. "@every 5m"
	Watchlist     []string      // exchange symbols, e.g. BTCUSDT
	RunTimeout    time.Duration // upper bound for signal generation in one pass
	MinConfidence float64       // entries need at least this confidence; 0 disables
}

// AutoTrader runs the signal → exit → entry pass for every enabled user on a
// cron schedule. Passes never overlap: scheduled ticks that fire while a pass
// is running are skipped, and manual triggers get ErrRunInProgress.
type AutoTrader struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
	now  func() time.Time

	runMu sync.Mutex

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
}

func NewAutoTrader(deps Deps, cfg Config, log *zap.Logger) *AutoTrader {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 5m"
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 4 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AutoTrader{deps: deps, cfg: cfg, log: log.Named("scheduler"), now: time.Now}
}

func (a *AutoTrader) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		a.log.Info("already running")
		return nil
	}

	cl := cronLogger{a.log.Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(a.cfg.Schedule, a.scheduledRun); err != nil {
		return fmt.Errorf("register auto-trade schedule %q: %w", a.cfg.Schedule, err)
	}
	c.Start()

	a.cron = c
	a.running = true
	a.log.Info("started",
		zap.String("schedule", a.cfg.Schedule),
		zap.Strings("watchlist", a.cfg.Watchlist))
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (a *AutoTrader) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	c := a.cron
	a.cron = nil
	a.running = false
	a.mu.Unlock()

	<-c.Stop().Done()
	a.log.Info("stopped")
}

func (a *AutoTrader) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// scheduledRun is the cron job. Only signal generation is bounded by
// RunTimeout; once trading starts every user is processed to completion.
func (a *AutoTrader) scheduledRun() {
	if _, err := a.RunNow(context.Background()); err != nil {
		a.log.Error("scheduled run failed", zap.Error(err))
	}
}

// RunNow executes one pass immediately.
func (a *AutoTrader) RunNow(ctx context.Context) (*models.RunSummary, error) {
	if !a.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer a.runMu.Unlock()
	return a.run(ctx)
}

func (a *AutoTrader) run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{ID: uuid.New(), ExecutedAt: a.now()}
	log := a.log.With(zap.Stringer("run", summary.ID))
	log.Info("auto-trade run started", zap.Int("symbols", len(a.cfg.Watchlist)))

	users, err := a.deps.Settings.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled users: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	res := a.deps.Signals.Generate(genCtx, a.cfg.Watchlist)
	cancel()
	signals := res.Ordered(a.cfg.Watchlist)
	for _, sig := range signals {
		summary.Signals = append(summary.Signals, sig.Summary())
		a.recordSignal(ctx, log, sig)
	}
	for _, sym := range a.cfg.Watchlist {
		if _, failed := res.Failed[sym]; failed {
			summary.FailedSymbols = append(summary.FailedSymbols, sym)
		}
	}

	for i := range users {
		st := &users[i]
		trades, err := a.processUser(ctx, st, res.Signals)
		summary.PerUserTrades = append(summary.PerUserTrades, trades...)
		summary.UsersProcessed++
		if err != nil {
			summary.UsersFailed++
			log.Error("user processing failed", zap.Stringer("user", st.UserID), zap.Error(err))
		}
	}

	summary.FinishedAt = a.now()
	if a.deps.Recorder != nil {
		if err := a.deps.Recorder.RecordRun(ctx, summary); err != nil {
			log.Error("record run summary", zap.Error(err))
		}
	}

	log.Info("auto-trade run finished",
		zap.Int("users", summary.UsersProcessed),
		zap.Int("users_failed", summary.UsersFailed),
		zap.Int("signals", len(summary.Signals)),
		zap.Int("trades", len(summary.PerUserTrades)),
		zap.Strings("failed_symbols", summary.FailedSymbols),
		zap.Duration("took", summary.FinishedAt.Sub(summary.ExecutedAt)))
	return summary, nil
}

func (a *AutoTrader) recordSignal(ctx context.Context, log *zap.Logger, sig *models.TradingSignal) {
	if a.deps.History != nil {
		if err := a.deps.History.Record(ctx, sig); err != nil {
			log.Warn("store signal", zap.String("symbol", sig.Symbol), zap.Error(err))
		}
	}
	if sig.SignalClass == models.StrongBuy || sig.SignalClass == models.StrongSell {
		a.notify(fmt.Sprintf("%s %s score %d (confidence %.2f) @ %s",
			sig.SignalClass, sig.Symbol, sig.Score, sig.Confidence, formatPrice(sig.EntryPrice)))
	}
}

// userPass carries the evolving view of one user's account through a pass.
type userPass struct {
	settings *models.TradingSettings
	cash     float64
	held     map[string]models.Position
	exited   map[string]bool // closed earlier in this pass
	log      []string
}

// processUser applies exits, signal closes and entries for one user. A panic
// is converted into an error so other users still run.
func (a *AutoTrader) processUser(ctx context.Context, st *models.TradingSettings, signals map[string]*models.TradingSignal) (trades []string, err error) {
	p := &userPass{settings: st, held: make(map[string]models.Position), exited: make(map[string]bool)}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		trades = p.log
	}()

	bal, err := a.deps.Ledger.EnsureBalance(ctx, st.UserID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	p.cash = bal.Cash

	positions, err := a.deps.Ledger.Positions(ctx, st.UserID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	for _, pos := range positions {
		p.held[pos.Symbol] = pos
	}

	var errs []error
	errs = append(errs, a.applyExits(ctx, p, signals)...)
	errs = append(errs, a.applySignalCloses(ctx, p, signals)...)
	errs = append(errs, a.applyEntries(ctx, p, signals)...)
	return p.log, errors.Join(errs...)
}

func (a *AutoTrader) applyExits(ctx context.Context, p *userPass, signals map[string]*models.TradingSignal) []error {
	var errs []error
	for _, sym := range sortedKeys(p.held) {
		pos := p.held[sym]
		price, ok := a.currentPrice(sym, signals)
		if !ok {
			continue
		}
		reason, pct, exit := a.deps.Guardian.ExitReason(&pos, price, p.settings)
		if !exit {
			continue
		}
		a.log.Info("exit triggered",
			zap.Stringer("user", p.settings.UserID),
			zap.String("symbol", sym),
			zap.Stringer("reason", reason),
			zap.Float64("pnl_pct", pct))
		if err := a.close(ctx, p, pos, price, reason, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (a *AutoTrader) applySignalCloses(ctx context.Context, p *userPass, signals map[string]*models.TradingSignal) []error {
	var errs []error
	for _, sym := range sortedKeys(p.held) {
		sig, ok := signals[sym]
		// Sell conviction mirrors the buy threshold: score <= 100-minSignalScore.
		if !ok || sig.SignalClass != models.StrongSell || sig.Score > 100-p.settings.MinSignalScore {
			continue
		}
		score := sig.Score
		if err := a.close(ctx, p, p.held[sym], sig.EntryPrice, models.ReasonSignal, &score); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (a *AutoTrader) applyEntries(ctx context.Context, p *userPass, signals map[string]*models.TradingSignal) []error {
	var candidates []*models.TradingSignal
	for _, sig := range signals {
		if sig.SignalClass != models.StrongBuy || sig.Score < p.settings.MinSignalScore {
			continue
		}
		if sig.Confidence < a.cfg.MinConfidence {
			continue
		}
		if _, held := p.held[sig.Symbol]; held || p.exited[sig.Symbol] {
			continue
		}
		candidates = append(candidates, sig)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	var errs []error
	for _, sig := range candidates {
		if p.settings.MaxPositions <= 0 || len(p.held) >= p.settings.MaxPositions {
			break
		}
		notional := decimal.NewFromFloat(p.cash).Mul(decimal.NewFromFloat(p.settings.TradePercentage))
		err := a.deps.Guardian.PreTradeCheck(ctx, p.settings.UserID, notional.InexactFloat64(), len(p.held), p.settings)
		if err != nil {
			a.log.Info("entry skipped",
				zap.Stringer("user", p.settings.UserID),
				zap.String("symbol", sig.Symbol),
				zap.Error(err))
			if !isRiskBlock(err) {
				errs = append(errs, err)
			}
			break
		}

		qty := notional.Div(decimal.NewFromFloat(sig.EntryPrice)).Truncate(8)
		if !qty.IsPositive() {
			continue
		}
		stop, target := sig.StopLoss, sig.TakeProfit
		score := sig.Score
		tr, err := a.deps.Ledger.Open(ctx, ledger.OpenOrder{
			UserID:       p.settings.UserID,
			Symbol:       sig.Symbol,
			Side:         models.Long,
			Quantity:     qty.InexactFloat64(),
			Price:        sig.EntryPrice,
			StopLoss:     &stop,
			TakeProfit:   &target,
			Reason:       models.ReasonSignal,
			SignalScore:  &score,
			MaxPositions: &p.settings.MaxPositions,
		})
		if errors.Is(err, ledger.ErrPositionLimit) {
			// A manual order filled a slot since the pass loaded positions.
			a.log.Info("entry skipped",
				zap.Stringer("user", p.settings.UserID),
				zap.String("symbol", sig.Symbol),
				zap.Error(err))
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", sig.Symbol, err))
			continue
		}
		p.held[sig.Symbol] = models.Position{UserID: p.settings.UserID, Symbol: sig.Symbol, Side: models.Long, Quantity: tr.Quantity}
		a.afterTrade(p, tr)
	}
	return errs
}

func (a *AutoTrader) close(ctx context.Context, p *userPass, pos models.Position, price float64, reason models.TradeReason, score *int) error {
	tr, err := a.deps.Ledger.Close(ctx, ledger.CloseOrder{
		UserID:      p.settings.UserID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Price:       price,
		Reason:      reason,
		SignalScore: score,
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", pos.Symbol, err)
	}
	delete(p.held, pos.Symbol)
	p.exited[pos.Symbol] = true
	a.afterTrade(p, tr)
	return nil
}

func (a *AutoTrader) afterTrade(p *userPass, tr *models.Trade) {
	if tr.BalanceAfter != nil {
		p.cash = *tr.BalanceAfter
	}
	line := fmt.Sprintf("user=%s %s %s qty=%s @ %s reason=%s",
		tr.UserID, tr.Side, tr.Symbol, decimal.NewFromFloat(tr.Quantity).String(), formatPrice(tradePrice(tr)), tr.Reason)
	if tr.PnL != nil {
		line += fmt.Sprintf(" pnl=%.2f (%.2f%%)", *tr.PnL, *tr.PnLPercent)
	}
	p.log = append(p.log, line)
	a.notify(line)
}

func (a *AutoTrader) currentPrice(symbol string, signals map[string]*models.TradingSignal) (float64, bool) {
	if sig, ok := signals[symbol]; ok && sig.EntryPrice > 0 {
		return sig.EntryPrice, true
	}
	if a.deps.Prices != nil {
		return a.deps.Prices.Get(symbol)
	}
	return 0, false
}

func (a *AutoTrader) notify(msg string) {
	if a.deps.Notifier != nil {
		a.deps.Notifier.Notify(msg)
	}
}

func isRiskBlock(err error) bool {
	return errors.Is(err, risk.ErrBelowMinimum) || errors.Is(err, risk.ErrMaxPositions) || errors.Is(err, risk.ErrDailyLimit)
}

func tradePrice(tr *models.Trade) float64 {
	if tr.ExitPrice != nil {
		return *tr.ExitPrice
	}
	return tr.EntryPrice
}

func formatPrice(p float64) string {
	return "$" + decimal.NewFromFloat(p).StringFixed(2)
}

func sortedKeys(m map[string]models.Position) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
