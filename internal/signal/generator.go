package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

// CandleFeed returns candles for a symbol, oldest first.
type CandleFeed interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]models.PriceCandle, error)
}

// SentimentFeed returns a 0-100 market mood index.
type SentimentFeed interface {
	FetchSentimentIndex(ctx context.Context) (int, error)
}

type GeneratorConfig struct {
	Interval     string        // candle interval, e.g. "1h"
	Limit        int           // candles per request
	Concurrency  int           // symbols scored in parallel
	FetchTimeout time.Duration // per-symbol candle fetch bound
}

// Result holds the outcome of one generation pass. Every requested symbol
// lands in exactly one of the two maps.
type Result struct {
	Signals map[string]*models.TradingSignal
	Failed  map[string]error
}

// Ordered returns the generated signals in the order symbols were requested.
func (r *Result) Ordered(symbols []string) []*models.TradingSignal {
	out := make([]*models.TradingSignal, 0, len(r.Signals))
	for _, s := range symbols {
		if sig, ok := r.Signals[s]; ok {
			out = append(out, sig)
		}
	}
	return out
}

type Generator struct {
	candles   CandleFeed
	sentiment SentimentFeed
	scorer    *Scorer
	cfg       GeneratorConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewGenerator(candles CandleFeed, sentiment SentimentFeed, scorer *Scorer, cfg GeneratorConfig, log *zap.Logger) *Generator {
	if cfg.Interval == "" {
		cfg.Interval = "1h"
	}
	if cfg.Limit < scorer.Config().MinCandles {
		cfg.Limit = scorer.Config().MinCandles + 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		candles:   candles,
		sentiment: sentiment,
		scorer:    scorer,
		cfg:       cfg,
		log:       log.Named("signals"),
		now:       time.Now,
	}
}

// Generate scores every symbol once. A failing symbol is logged and reported in
// Result.Failed; it never stops the others.
func (g *Generator) Generate(ctx context.Context, symbols []string) *Result {
	res := &Result{
		Signals: make(map[string]*models.TradingSignal, len(symbols)),
		Failed:  make(map[string]error),
	}
	sentiment := g.fetchSentiment(ctx)

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)

	for _, symbol := range symbols {
		eg.Go(func() error {
			sig, err := g.scoreSymbol(egCtx, symbol, sentiment)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.log.Warn("symbol skipped", zap.String("symbol", symbol), zap.Error(err))
				res.Failed[symbol] = err
				return nil
			}
			res.Signals[symbol] = sig
			return nil
		})
	}
	_ = eg.Wait()

	g.log.Info("signals generated",
		zap.Int("ok", len(res.Signals)),
		zap.Int("failed", len(res.Failed)),
		zap.Bool("sentiment", sentiment != nil))
	return res
}

func (g *Generator) scoreSymbol(ctx context.Context, symbol string, sentiment *int) (sig *models.TradingSignal, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic scoring %s: %v", symbol, p)
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	candles, err := g.candles.FetchCandles(fetchCtx, symbol, g.cfg.Interval, g.cfg.Limit)
	if err != nil {
		return nil, err
	}
	return g.scorer.Score(symbol, candles, sentiment, g.now())
}

func (g *Generator) fetchSentiment(ctx context.Context) *int {
	if g.sentiment == nil {
		return nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, g.cfg.FetchTimeout)
	defer cancel()

	v, err := g.sentiment.FetchSentimentIndex(fetchCtx)
	if err != nil {
		g.log.Warn("sentiment unavailable, scoring as neutral", zap.Error(err))
		return nil
	}
	return &v
}
