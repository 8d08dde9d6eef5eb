package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/memstore"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

func newLedger(t *testing.T, cash float64) (*ledger.Ledger, *memstore.LedgerStore, uuid.UUID) {
	t.Helper()
	store := memstore.NewLedgerStore()
	return ledger.New(store, cash, nil), store, uuid.New()
}

func open(t *testing.T, l *ledger.Ledger, user uuid.UUID, symbol string, side models.PositionSide, qty, price float64) *models.Trade {
	t.Helper()
	tr, err := l.Open(context.Background(), ledger.OpenOrder{
		UserID: user, Symbol: symbol, Side: side, Quantity: qty, Price: price, Reason: models.ReasonManual,
	})
	if err != nil {
		t.Fatalf("open %s %v %.4f@%.2f: %v", symbol, side, qty, price, err)
	}
	return tr
}

func balance(t *testing.T, l *ledger.Ledger, user uuid.UUID) *models.Balance {
	t.Helper()
	b, err := l.Balance(context.Background(), user)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return b
}

func TestOpen_WeightedAverageEntry(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	first := open(t, l, user, "BTCUSDT", models.Long, 1, 100)
	open(t, l, user, "BTCUSDT", models.Long, 1, 200)

	if first.Side != models.SideBuy || first.Status != models.TradeOpen {
		t.Fatalf("unexpected open trade: %+v", first)
	}

	positions, err := l.Positions(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected one position, got %d", len(positions))
	}
	p := positions[0]
	if p.Quantity != 2 || p.AvgEntryPrice != 150 || p.TotalInvested != 300 {
		t.Fatalf("expected qty 2 avg 150 invested 300, got %+v", p)
	}

	b := balance(t, l, user)
	if b.Cash != 9700 || b.TotalTrades != 2 {
		t.Fatalf("expected cash 9700 and 2 trades, got %+v", b)
	}
}

func TestClose_ShortProfit(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	open(t, l, user, "ETHUSDT", models.Short, 2, 100)
	tr, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "ETHUSDT", Price: 80, Reason: models.ReasonSignal})
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if tr.Side != models.SideCover || tr.Status != models.TradeClosed {
		t.Fatalf("unexpected close trade: %+v", tr)
	}
	if tr.ExitPrice == nil || tr.PnL == nil || tr.PnLPercent == nil {
		t.Fatal("closed trade must carry exit price, pnl and pnl percent")
	}
	if *tr.PnL != 40 || *tr.PnLPercent != 20 {
		t.Fatalf("expected pnl 40 (20%%), got %.2f (%.2f%%)", *tr.PnL, *tr.PnLPercent)
	}

	b := balance(t, l, user)
	if b.Cash != 10040 || b.TotalPnL != 40 || b.WinningTrades != 1 || b.LargestWin != 40 {
		t.Fatalf("unexpected balance after short win: %+v", b)
	}

	positions, _ := l.Positions(ctx, user)
	if len(positions) != 0 {
		t.Fatal("full close must delete the position")
	}
}

func TestClose_LongLossCreditsBasisPlusPnL(t *testing.T) {
	l, _, user := newLedger(t, 10000)

	open(t, l, user, "SOLUSDT", models.Long, 5, 100)
	if b := balance(t, l, user); b.Cash != 9500 {
		t.Fatalf("expected 9500 after open, got %.2f", b.Cash)
	}

	tr, err := l.Close(context.Background(), ledger.CloseOrder{UserID: user, Symbol: "SOLUSDT", Price: 90})
	if err != nil {
		t.Fatal(err)
	}
	if *tr.PnL != -50 || *tr.PnLPercent != -10 {
		t.Fatalf("expected -50 (-10%%), got %.2f (%.2f%%)", *tr.PnL, *tr.PnLPercent)
	}

	b := balance(t, l, user)
	if b.Cash != 9950 {
		t.Fatalf("expected 450 credited (cash 9950), got %.2f", b.Cash)
	}
	if b.LosingTrades != 1 || b.LargestLoss != -50 || b.TotalPnL != -50 {
		t.Fatalf("unexpected aggregates: %+v", b)
	}
	if tr.BalanceAfter == nil || *tr.BalanceAfter != 9950 {
		t.Fatal("balanceAfter should match the new cash")
	}
}

func TestClose_PartialKeepsAverage(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	open(t, l, user, "BTCUSDT", models.Long, 4, 100)
	tr, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Quantity: 1, Price: 120})
	if err != nil {
		t.Fatal(err)
	}
	if *tr.PnL != 20 {
		t.Fatalf("expected pnl 20, got %.2f", *tr.PnL)
	}

	positions, _ := l.Positions(ctx, user)
	if len(positions) != 1 {
		t.Fatal("partial close must keep the position")
	}
	p := positions[0]
	if p.Quantity != 3 || p.TotalInvested != 300 || p.AvgEntryPrice != 100 {
		t.Fatalf("expected qty 3 invested 300 avg 100, got %+v", p)
	}
	if b := balance(t, l, user); b.Cash != 9720 {
		t.Fatalf("expected cash 9720, got %.2f", b.Cash)
	}
}

func TestOpen_InsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	l, store, user := newLedger(t, 500)
	ctx := context.Background()

	_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: "BTCUSDT", Quantity: 6, Price: 100})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if errors.Is(err, ledger.ErrTransactionFailure) {
		t.Fatal("a rejection is not a transaction failure")
	}

	b := balance(t, l, user)
	if b.Cash != 500 || b.TotalTrades != 0 {
		t.Fatalf("balance changed: %+v", b)
	}
	positions, _ := store.ListPositions(ctx, user)
	trades, _ := store.ListTrades(ctx, user, 0)
	if len(positions) != 0 || len(trades) != 0 {
		t.Fatal("rejected open must not write a position or trade")
	}
}

func TestClose_InsufficientHoldings(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	_, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Price: 100})
	if !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings without a position, got %v", err)
	}

	open(t, l, user, "BTCUSDT", models.Long, 2, 100)
	_, err = l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Quantity: 3, Price: 100})
	if !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}

	positions, _ := l.Positions(ctx, user)
	if len(positions) != 1 || positions[0].Quantity != 2 {
		t.Fatalf("position changed after rejected close: %+v", positions)
	}
}

func TestSideMismatch(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	open(t, l, user, "BTCUSDT", models.Long, 1, 100)

	_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: "BTCUSDT", Side: models.Short, Quantity: 1, Price: 100})
	if !errors.Is(err, ledger.ErrSideMismatch) {
		t.Fatalf("expected ErrSideMismatch on open, got %v", err)
	}
	_, err = l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Side: models.Short, Price: 100})
	if !errors.Is(err, ledger.ErrSideMismatch) {
		t.Fatalf("expected ErrSideMismatch on cover, got %v", err)
	}
}

func TestClose_ShortLossCappedAtMargin(t *testing.T) {
	l, _, user := newLedger(t, 1000)

	open(t, l, user, "DOGEUSDT", models.Short, 1, 100)
	tr, err := l.Close(context.Background(), ledger.CloseOrder{UserID: user, Symbol: "DOGEUSDT", Price: 250})
	if err != nil {
		t.Fatal(err)
	}
	if *tr.PnL != -100 {
		t.Fatalf("expected loss capped at -100, got %.2f", *tr.PnL)
	}
	b := balance(t, l, user)
	if b.Cash != 900 {
		t.Fatalf("expected cash 900, got %.2f", b.Cash)
	}
}

func TestLargestWinIsMonotonic(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	open(t, l, user, "BTCUSDT", models.Long, 1, 100)
	if _, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Price: 110}); err != nil {
		t.Fatal(err)
	}
	open(t, l, user, "BTCUSDT", models.Long, 1, 100)
	if _, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BTCUSDT", Price: 105}); err != nil {
		t.Fatal(err)
	}

	b := balance(t, l, user)
	if b.LargestWin != 10 || b.WinningTrades != 2 || b.TotalPnL != 15 {
		t.Fatalf("unexpected aggregates: %+v", b)
	}
	if b.WinRate() != 100 {
		t.Fatalf("expected win rate 100, got %.1f", b.WinRate())
	}

	st, err := l.Stats(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalTrades != 4 || st.OpenTrades != 2 || st.ClosedTrades != 2 || st.RealizedPnL != 15 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestInvalidOrders(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()

	cases := []ledger.OpenOrder{
		{UserID: user, Symbol: "BTCUSDT", Quantity: 0, Price: 100},
		{UserID: user, Symbol: "BTCUSDT", Quantity: -1, Price: 100},
		{UserID: user, Symbol: "BTCUSDT", Quantity: 1, Price: 0},
		{UserID: user, Symbol: "", Quantity: 1, Price: 100},
	}
	for _, o := range cases {
		if _, err := l.Open(ctx, o); !errors.Is(err, ledger.ErrInvalidOrder) {
			t.Fatalf("expected ErrInvalidOrder for %+v, got %v", o, err)
		}
	}
}

type failingStore struct {
	*memstore.LedgerStore
}

func (f failingStore) Atomic(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return f.LedgerStore.Atomic(ctx, userID, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	ledger.Tx
}

func (failingTx) InsertTrade(context.Context, *models.Trade) error {
	return errors.New("connection reset by peer")
}

func TestOpen_WriteFailureRollsBack(t *testing.T) {
	inner := memstore.NewLedgerStore()
	l := ledger.New(failingStore{inner}, 10000, nil)
	user := uuid.New()
	ctx := context.Background()

	_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: "BTCUSDT", Quantity: 1, Price: 100})
	if !errors.Is(err, ledger.ErrTransactionFailure) {
		t.Fatalf("expected ErrTransactionFailure, got %v", err)
	}

	b, _ := inner.GetBalance(ctx, user)
	if b != nil {
		t.Fatalf("balance write should have been rolled back, got %+v", b)
	}
	positions, _ := inner.ListPositions(ctx, user)
	if len(positions) != 0 {
		t.Fatal("position write should have been rolled back")
	}
}

func TestConcurrentOpensSerialize(t *testing.T) {
	l, _, user := newLedger(t, 2000)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: "BTCUSDT", Quantity: 1, Price: 100})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 20 || rejected != 30 {
		t.Fatalf("expected 20 fills and 30 rejections, got %d / %d", ok, rejected)
	}
	b := balance(t, l, user)
	if b.Cash != 0 {
		t.Fatalf("expected cash 0, got %.2f", b.Cash)
	}
	positions, _ := l.Positions(ctx, user)
	if positions[0].Quantity != 20 {
		t.Fatalf("expected quantity 20, got %.2f", positions[0].Quantity)
	}
}

func TestReset(t *testing.T) {
	l, _, user := newLedger(t, 1000)
	ctx := context.Background()

	open(t, l, user, "BTCUSDT", models.Long, 1, 100)
	b, err := l.Reset(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if b.Cash != 1000 || b.TotalTrades != 0 {
		t.Fatalf("unexpected balance after reset: %+v", b)
	}
	positions, _ := l.Positions(ctx, user)
	if len(positions) != 0 {
		t.Fatal("reset must drop positions")
	}
	trades, _ := l.Trades(ctx, user, 10)
	if len(trades) != 1 {
		t.Fatal("reset must keep trade history")
	}
}

func TestOpen_PositionLimit(t *testing.T) {
	l, _, user := newLedger(t, 10000)
	ctx := context.Background()
	limit := 2
	capped := func(symbol string) error {
		_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: symbol, Quantity: 1, Price: 100, MaxPositions: &limit})
		return err
	}

	for _, sym := range []string{"AAAUSDT", "BBBUSDT"} {
		if err := capped(sym); err != nil {
			t.Fatalf("open %s under the limit: %v", sym, err)
		}
	}
	err := capped("CCCUSDT")
	if !errors.Is(err, ledger.ErrPositionLimit) || !ledger.IsRejection(err) {
		t.Fatalf("expected ErrPositionLimit rejection, got %v", err)
	}
	if b := balance(t, l, user); b.Cash != 9800 {
		t.Fatalf("rejected open must not touch cash, got %.2f", b.Cash)
	}

	if err := capped("AAAUSDT"); err != nil {
		t.Fatalf("adding to a held symbol is not a new position: %v", err)
	}

	if _, err := l.Close(ctx, ledger.CloseOrder{UserID: user, Symbol: "BBBUSDT", Price: 100}); err != nil {
		t.Fatal(err)
	}
	if err := capped("CCCUSDT"); err != nil {
		t.Fatalf("a freed slot should accept a new symbol: %v", err)
	}

	zero := 0
	_, err = l.Open(ctx, ledger.OpenOrder{UserID: uuid.New(), Symbol: "AAAUSDT", Quantity: 1, Price: 100, MaxPositions: &zero})
	if !errors.Is(err, ledger.ErrPositionLimit) {
		t.Fatalf("maxPositions 0 allows no positions, got %v", err)
	}
}

func TestConcurrentOpensRespectPositionLimit(t *testing.T) {
	l, _, user := newLedger(t, 100000)
	ctx := context.Background()
	limit := 3

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := string(rune('A'+i)) + "XUSDT"
			_, err := l.Open(ctx, ledger.OpenOrder{UserID: user, Symbol: symbol, Quantity: 1, Price: 100, MaxPositions: &limit})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrPositionLimit):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 3 || rejected != 7 {
		t.Fatalf("expected 3 fills and 7 rejections, got %d / %d", ok, rejected)
	}
	positions, _ := l.Positions(ctx, user)
	if len(positions) != 3 {
		t.Fatalf("expected 3 open positions, got %d", len(positions))
	}
}
