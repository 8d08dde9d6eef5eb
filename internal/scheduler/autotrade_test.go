package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/memstore"
	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/recorder"
	"github.com/kjannette/trahn-autotrader/internal/risk"
	"github.com/kjannette/trahn-autotrader/internal/scheduler"
	"github.com/kjannette/trahn-autotrader/internal/signal"
)

type fakeSignals struct {
	res     *signal.Result
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeSignals) Generate(_ context.Context, _ []string) *signal.Result {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.res
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Notify(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func sig(symbol string, class models.SignalClass, score int, price float64) *models.TradingSignal {
	return &models.TradingSignal{
		Symbol:      symbol,
		Timestamp:   time.Now(),
		SignalClass: class,
		Score:       score,
		Confidence:  0.8,
		RiskLevel:   models.RiskMedium,
		EntryPrice:  price,
		StopLoss:    price * 0.97,
		TakeProfit:  price * 1.06,
	}
}

func result(sigs ...*models.TradingSignal) *signal.Result {
	r := &signal.Result{Signals: map[string]*models.TradingSignal{}, Failed: map[string]error{}}
	for _, s := range sigs {
		r.Signals[s.Symbol] = s
	}
	return r
}

type harness struct {
	ledger   *ledger.Ledger
	settings *memstore.SettingsStore
	signals  *fakeSignals
	history  *memstore.SignalStore
	recorder *recorder.MemoryRecorder
	notifier *recordingNotifier
	cfg      scheduler.Config
}

func newHarness(t *testing.T, initialCash float64, res *signal.Result) *harness {
	t.Helper()
	return &harness{
		ledger:   ledger.New(memstore.NewLedgerStore(), initialCash, nil),
		settings: memstore.NewSettingsStore(models.DefaultTradingSettings),
		signals:  &fakeSignals{res: res},
		history:  memstore.NewSignalStore(10),
		recorder: recorder.NewMemoryRecorder(10),
		notifier: &recordingNotifier{},
		cfg:      scheduler.Config{Watchlist: []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT"}},
	}
}

func (h *harness) trader(trader scheduler.Trader) *scheduler.AutoTrader {
	if trader == nil {
		trader = h.ledger
	}
	return scheduler.NewAutoTrader(scheduler.Deps{
		Signals:  h.signals,
		Settings: h.settings,
		Ledger:   trader,
		Guardian: risk.NewGuardian(risk.Limits{MinTradeUSD: 10}, h.ledger),
		History:  h.history,
		Recorder: h.recorder,
		Notifier: h.notifier,
	}, h.cfg, nil)
}

func (h *harness) enable(t *testing.T, mutate func(*models.TradingSettings)) uuid.UUID {
	t.Helper()
	st := models.DefaultTradingSettings.WithUser(uuid.New())
	st.Enabled = true
	if mutate != nil {
		mutate(&st)
	}
	if _, err := h.settings.Save(context.Background(), &st); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	return st.UserID
}

func (h *harness) hold(t *testing.T, user uuid.UUID, symbol string, qty, price float64) {
	t.Helper()
	_, err := h.ledger.Open(context.Background(), ledger.OpenOrder{UserID: user, Symbol: symbol, Quantity: qty, Price: price})
	if err != nil {
		t.Fatalf("seed position %s: %v", symbol, err)
	}
}

func symbols(t *testing.T, l *ledger.Ledger, user uuid.UUID) map[string]models.Position {
	t.Helper()
	positions, err := l.Positions(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]models.Position{}
	for _, p := range positions {
		out[p.Symbol] = p
	}
	return out
}

func TestRun_OpensStrongestBuysUpToMaxPositions(t *testing.T) {
	h := newHarness(t, 10000, result(
		sig("AAAUSDT", models.StrongBuy, 80, 100),
		sig("BBBUSDT", models.StrongBuy, 85, 100),
		sig("CCCUSDT", models.StrongBuy, 90, 50),
		sig("DDDUSDT", models.StrongBuy, 76, 100),
		sig("EEEUSDT", models.Hold, 50, 100),
	))
	user := h.enable(t, func(s *models.TradingSettings) { s.MaxPositions = 2 })

	summary, err := h.trader(nil).RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	held := symbols(t, h.ledger, user)
	if len(held) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(held))
	}
	if held["CCCUSDT"].Quantity != 20 || held["BBBUSDT"].Quantity != 9 {
		t.Fatalf("expected the two highest scores sized from cash, got %+v", held)
	}
	if held["CCCUSDT"].StopLoss == nil || *held["CCCUSDT"].StopLoss != 50*0.97 {
		t.Fatal("entry should carry the signal's stop level")
	}

	b, _ := h.ledger.Balance(context.Background(), user)
	if b.Cash != 8100 {
		t.Fatalf("expected cash 8100, got %.2f", b.Cash)
	}

	if summary.UsersProcessed != 1 || summary.UsersFailed != 0 {
		t.Fatalf("unexpected summary counts: %+v", summary)
	}
	if len(summary.Signals) != 5 || len(summary.PerUserTrades) != 2 {
		t.Fatalf("expected 5 signals and 2 trades, got %d / %d", len(summary.Signals), len(summary.PerUserTrades))
	}
	t.Logf("Trades: %v", summary.PerUserTrades)

	runs, _ := h.recorder.Recent(context.Background(), 1)
	if len(runs) != 1 || runs[0].ID != summary.ID {
		t.Fatal("run summary should be recorded")
	}
	latest, _ := h.history.Latest(context.Background())
	if len(latest) != 5 {
		t.Fatalf("expected 5 stored signals, got %d", len(latest))
	}
}

func TestRun_NeverExceedsMaxPositions(t *testing.T) {
	h := newHarness(t, 10000, result(
		sig("AAAUSDT", models.StrongBuy, 95, 100),
		sig("BBBUSDT", models.StrongBuy, 95, 100),
	))
	user := h.enable(t, func(s *models.TradingSettings) { s.MaxPositions = 2 })
	h.hold(t, user, "CCCUSDT", 1, 100)
	h.hold(t, user, "DDDUSDT", 1, 100)

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if held := symbols(t, h.ledger, user); len(held) != 2 {
		t.Fatalf("expected to stay at 2 positions, got %d", len(held))
	}
}

func TestRun_StopLossAndTakeProfit(t *testing.T) {
	h := newHarness(t, 10000, result(
		sig("AAAUSDT", models.Hold, 50, 94),
		sig("BBBUSDT", models.Hold, 50, 111),
		sig("CCCUSDT", models.Hold, 50, 101),
	))
	user := h.enable(t, nil)
	h.hold(t, user, "AAAUSDT", 1, 100)
	h.hold(t, user, "BBBUSDT", 1, 100)
	h.hold(t, user, "CCCUSDT", 1, 100)

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}

	held := symbols(t, h.ledger, user)
	if len(held) != 1 || held["CCCUSDT"].Quantity != 1 {
		t.Fatalf("only CCCUSDT should remain, got %+v", held)
	}

	trades, _ := h.ledger.Trades(context.Background(), user, 0)
	reasons := map[string]models.TradeReason{}
	for _, tr := range trades {
		if tr.Status == models.TradeClosed {
			reasons[tr.Symbol] = tr.Reason
		}
	}
	if reasons["AAAUSDT"] != models.ReasonStopLoss {
		t.Fatalf("AAAUSDT should close on stop-loss, got %v", reasons["AAAUSDT"])
	}
	if reasons["BBBUSDT"] != models.ReasonTakeProfit {
		t.Fatalf("BBBUSDT should close on take-profit, got %v", reasons["BBBUSDT"])
	}
}

func TestRun_StrongSellClosesPosition(t *testing.T) {
	h := newHarness(t, 10000, result(sig("AAAUSDT", models.StrongSell, 20, 102)))
	eager := h.enable(t, nil)
	strict := h.enable(t, func(s *models.TradingSettings) { s.MinSignalScore = 85 })
	h.hold(t, eager, "AAAUSDT", 1, 100)
	h.hold(t, strict, "AAAUSDT", 1, 100)

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(symbols(t, h.ledger, eager)) != 0 {
		t.Fatal("score 20 is strong enough for minSignalScore 75")
	}
	if len(symbols(t, h.ledger, strict)) != 1 {
		t.Fatal("score 20 is not strong enough for minSignalScore 85")
	}

	trades, _ := h.ledger.Trades(context.Background(), eager, 1)
	if trades[0].Reason != models.ReasonSignal || *trades[0].PnL != 2 {
		t.Fatalf("unexpected close trade: %+v", trades[0])
	}
}

func TestRun_FetchFailureDoesNotBlockOtherSymbols(t *testing.T) {
	res := result(sig("BBBUSDT", models.StrongBuy, 80, 100))
	res.Failed["AAAUSDT"] = errors.New("upstream timeout")
	h := newHarness(t, 10000, res)
	user := h.enable(t, nil)

	summary, err := h.trader(nil).RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.FailedSymbols) != 1 || summary.FailedSymbols[0] != "AAAUSDT" {
		t.Fatalf("expected AAAUSDT in failed symbols, got %v", summary.FailedSymbols)
	}
	if _, ok := symbols(t, h.ledger, user)["BBBUSDT"]; !ok {
		t.Fatal("BBBUSDT should still be traded")
	}
}

func TestRun_SkipsTradesBelowMinimumSize(t *testing.T) {
	h := newHarness(t, 50, result(sig("AAAUSDT", models.StrongBuy, 90, 1)))
	user := h.enable(t, nil)

	summary, err := h.trader(nil).RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols(t, h.ledger, user)) != 0 || summary.UsersFailed != 0 {
		t.Fatal("a $5 notional must be skipped without failing the user")
	}
}

type panickingTrader struct {
	*ledger.Ledger
	bad uuid.UUID
}

func (p panickingTrader) EnsureBalance(ctx context.Context, userID uuid.UUID) (*models.Balance, error) {
	if userID == p.bad {
		panic("corrupt balance row")
	}
	return p.Ledger.EnsureBalance(ctx, userID)
}

func TestRun_UserFailureIsIsolated(t *testing.T) {
	h := newHarness(t, 10000, result(sig("AAAUSDT", models.StrongBuy, 90, 100)))
	bad := h.enable(t, nil)
	good := h.enable(t, nil)

	summary, err := h.trader(panickingTrader{Ledger: h.ledger, bad: bad}).RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.UsersProcessed != 2 || summary.UsersFailed != 1 {
		t.Fatalf("expected 2 processed and 1 failed, got %+v", summary)
	}
	if _, ok := symbols(t, h.ledger, good)["AAAUSDT"]; !ok {
		t.Fatal("the healthy user should still trade")
	}
}

func TestRun_NoOverlap(t *testing.T) {
	h := newHarness(t, 10000, result())
	h.signals.release = make(chan struct{})
	at := h.trader(nil)

	done := make(chan error, 1)
	go func() {
		_, err := at.RunNow(context.Background())
		done <- err
	}()

	for h.signals.calls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := at.RunNow(context.Background()); !errors.Is(err, scheduler.ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(h.signals.release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if h.signals.calls.Load() != 1 {
		t.Fatalf("expected a single generation, got %d", h.signals.calls.Load())
	}
}

func TestRun_NotifiesTradesAndStrongSignals(t *testing.T) {
	h := newHarness(t, 10000, result(
		sig("AAAUSDT", models.StrongBuy, 90, 100),
		sig("BBBUSDT", models.Buy, 65, 100),
	))
	h.enable(t, nil)

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	if len(h.notifier.msgs) != 2 {
		t.Fatalf("expected one signal alert and one trade alert, got %v", h.notifier.msgs)
	}
}

func TestRun_PositionLevelsTriggerExits(t *testing.T) {
	h := newHarness(t, 10000, result(sig("AAAUSDT", models.Hold, 50, 96.5)))
	user := h.enable(t, nil)
	stop, target := 97.0, 106.0
	_, err := h.ledger.Open(context.Background(), ledger.OpenOrder{
		UserID: user, Symbol: "AAAUSDT", Quantity: 1, Price: 100, StopLoss: &stop, TakeProfit: &target,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(symbols(t, h.ledger, user)) != 0 {
		t.Fatal("price under the position's stop should close it before the -5% rule")
	}
	trades, _ := h.ledger.Trades(context.Background(), user, 1)
	if trades[0].Reason != models.ReasonStopLoss {
		t.Fatalf("expected STOP_LOSS, got %v", trades[0].Reason)
	}
}

func TestRun_NoReentryAfterExitInSamePass(t *testing.T) {
	h := newHarness(t, 10000, result(sig("AAAUSDT", models.StrongBuy, 90, 111)))
	user := h.enable(t, nil)
	h.hold(t, user, "AAAUSDT", 1, 100)

	summary, err := h.trader(nil).RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols(t, h.ledger, user)) != 0 {
		t.Fatal("a symbol taken profit on must not be re-bought in the same pass")
	}
	if len(summary.PerUserTrades) != 1 {
		t.Fatalf("expected only the take-profit close, got %v", summary.PerUserTrades)
	}
}

func TestRun_ConfidenceFloor(t *testing.T) {
	weak := sig("AAAUSDT", models.StrongBuy, 90, 100)
	weak.Confidence = 0.5
	strong := sig("BBBUSDT", models.StrongBuy, 80, 100)
	h := newHarness(t, 10000, result(weak, strong))
	h.cfg.MinConfidence = 0.6
	user := h.enable(t, nil)

	if _, err := h.trader(nil).RunNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	held := symbols(t, h.ledger, user)
	if _, ok := held["AAAUSDT"]; ok {
		t.Fatal("confidence 0.5 is under the 0.6 floor")
	}
	if _, ok := held["BBBUSDT"]; !ok {
		t.Fatal("BBBUSDT clears the floor and should be opened")
	}
}

// staleTrader reports no positions, as if a manual order landed after the
// pass loaded the account.
type staleTrader struct {
	*ledger.Ledger
}

func (staleTrader) Positions(context.Context, uuid.UUID) ([]models.Position, error) {
	return nil, nil
}

func TestRun_LedgerCapsPositionsOnStaleView(t *testing.T) {
	h := newHarness(t, 10000, result(sig("AAAUSDT", models.StrongBuy, 95, 100)))
	user := h.enable(t, func(s *models.TradingSettings) { s.MaxPositions = 2 })
	h.hold(t, user, "CCCUSDT", 1, 100)
	h.hold(t, user, "DDDUSDT", 1, 100)

	summary, err := h.trader(staleTrader{h.ledger}).RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if held := symbols(t, h.ledger, user); len(held) != 2 {
		t.Fatalf("expected to stay at 2 positions, got %d", len(held))
	}
	if summary.UsersFailed != 0 {
		t.Fatal("a full book is a skip, not a failure")
	}
}

type slowSignals struct {
	res         *signal.Result
	hadDeadline bool
}

func (s *slowSignals) Generate(ctx context.Context, _ []string) *signal.Result {
	_, s.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return s.res
}

func TestRun_TimeoutBoundsGenerationOnly(t *testing.T) {
	h := newHarness(t, 10000, nil)
	h.cfg.RunTimeout = 20 * time.Millisecond
	slow := &slowSignals{res: result(sig("AAAUSDT", models.StrongBuy, 90, 100))}
	user := h.enable(t, nil)

	at := scheduler.NewAutoTrader(scheduler.Deps{
		Signals:  slow,
		Settings: h.settings,
		Ledger:   h.ledger,
		Guardian: risk.NewGuardian(risk.Limits{MinTradeUSD: 10}, h.ledger),
	}, h.cfg, nil)

	summary, err := at.RunNow(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slow.hadDeadline {
		t.Fatal("signal generation should run under the run timeout")
	}
	if summary.UsersFailed != 0 {
		t.Fatal("trading after the generation deadline must not be cancelled")
	}
	if _, ok := symbols(t, h.ledger, user)["AAAUSDT"]; !ok {
		t.Fatal("AAAUSDT should be opened after generation timed out")
	}
}

func TestStartStop(t *testing.T) {
	h := newHarness(t, 10000, result())
	at := h.trader(nil)

	if err := at.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !at.Running() {
		t.Fatal("expected running")
	}
	at.Stop()
	if at.Running() {
		t.Fatal("expected stopped")
	}

	bad := scheduler.NewAutoTrader(scheduler.Deps{}, scheduler.Config{Schedule: "not a schedule"}, nil)
	if err := bad.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
