package signal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kjannette/trahn-autotrader/internal/indicators"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

var ErrInsufficientHistory = errors.New("insufficient candle history")

// Weights of each sub-score in the overall score. They sum to 1.
type Weights struct {
	RSI       float64
	MACD      float64
	EMA       float64
	Bollinger float64
	Sentiment float64
	Volume    float64
}

var DefaultWeights = Weights{
	RSI:       0.20,
	MACD:      0.20,
	EMA:       0.15,
	Bollinger: 0.15,
	Sentiment: 0.20,
	Volume:    0.10,
}

type Config struct {
	Weights    Weights
	MinCandles int

	// ATR multiples for suggested levels. BUY and SELL classes (strong or not)
	// use StopATR/TargetATR; HOLD uses HoldATR on both sides.
	StopATR   float64
	TargetATR float64
	HoldATR   float64
}

func DefaultConfig() Config {
	return Config{
		Weights:    DefaultWeights,
		MinCandles: indicators.MinHistory,
		StopATR:    1.5,
		TargetATR:  3,
		HoldATR:    1,
	}
}

type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if cfg.MinCandles < def.MinCandles {
		cfg.MinCandles = def.MinCandles
	}
	if cfg.StopATR <= 0 {
		cfg.StopATR = def.StopATR
	}
	if cfg.TargetATR <= 0 {
		cfg.TargetATR = def.TargetATR
	}
	if cfg.HoldATR <= 0 {
		cfg.HoldATR = def.HoldATR
	}
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Config() Config { return s.cfg }

// Score turns a candle window and an optional sentiment index into a signal.
// sentiment == nil is treated as neutral.
func (s *Scorer) Score(symbol string, candles []models.PriceCandle, sentiment *int, at time.Time) (*models.TradingSignal, error) {
	if len(candles) < s.cfg.MinCandles {
		return nil, fmt.Errorf("%w: %s has %d candles, need %d",
			ErrInsufficientHistory, symbol, len(candles), s.cfg.MinCandles)
	}

	series := models.SeriesOf(candles)
	snap := Snapshot(series)
	price := series.Closes[len(series.Closes)-1]

	subs := ComputeSubScores(price, snap, sentiment)
	score := s.Overall(subs)
	class := Classify(score)

	stop, target := s.TradeLevels(class, price, snap.ATR)

	return &models.TradingSignal{
		Symbol:      symbol,
		Timestamp:   at,
		SignalClass: class,
		Score:       score,
		Confidence:  Confidence(subs.Values()),
		RiskLevel:   RiskFromATR(snap.ATR, price),
		EntryPrice:  price,
		StopLoss:    stop,
		TakeProfit:  target,
		Sentiment:   sentiment,
		Reasons:     Reasons(price, snap, sentiment),
		Indicators:  snap,
	}, nil
}

// Snapshot computes every indicator the scorer reads.
func Snapshot(s models.Series) models.IndicatorSnapshot {
	macd := indicators.MACD(s.Closes, indicators.MACDFast, indicators.MACDSlow, indicators.MACDSignal)
	bands := indicators.Bollinger(s.Closes, indicators.BollingerPeriod, indicators.BollingerK)
	return models.IndicatorSnapshot{
		RSI:           indicators.RSI(s.Closes, indicators.RSIPeriod),
		MACDLine:      macd.Line,
		MACDSignal:    macd.Signal,
		MACDHistogram: macd.Histogram,
		EMAFast:       indicators.EMA(s.Closes, indicators.EMAFastPeriod),
		EMASlow:       indicators.EMA(s.Closes, indicators.EMASlowPeriod),
		BBUpper:       bands.Upper,
		BBMiddle:      bands.Middle,
		BBLower:       bands.Lower,
		ATR:           indicators.ATR(s.Highs, s.Lows, s.Closes, indicators.ATRPeriod),
		VolumeRatio:   indicators.VolumeRatio(s.Volumes, indicators.VolumePeriod),
	}
}

// Overall is the weighted sum of the sub-scores, truncated and clamped to [0,100].
func (s *Scorer) Overall(subs SubScores) int {
	w := s.cfg.Weights
	total := subs.RSI*w.RSI +
		subs.MACD*w.MACD +
		subs.EMA*w.EMA +
		subs.Bollinger*w.Bollinger +
		subs.Sentiment*w.Sentiment +
		subs.Volume*w.Volume

	// 1e-9 absorbs binary rounding of the fractional weights (0.15*50 etc.)
	score := int(math.Floor(total + 1e-9))
	return max(0, min(100, score))
}

func Classify(score int) models.SignalClass {
	switch {
	case score >= 75:
		return models.StrongBuy
	case score >= 60:
		return models.Buy
	case score <= 25:
		return models.StrongSell
	case score <= 40:
		return models.Sell
	default:
		return models.Hold
	}
}

// Confidence blends how many sub-scores agree on a direction with how tightly
// they cluster: 0.6*agreement + 0.4*(1 - stddev/50), clamped to [0.3, 0.95].
func Confidence(subs []float64) float64 {
	if len(subs) == 0 {
		return 0.3
	}
	var bullish, bearish int
	for _, v := range subs {
		switch {
		case v > 55:
			bullish++
		case v < 45:
			bearish++
		}
	}
	agreement := float64(max(bullish, bearish)) / float64(len(subs))
	dispersion := indicators.PopulationStdDev(subs) / 50

	c := 0.6*agreement + 0.4*(1-dispersion)
	return math.Max(0.3, math.Min(0.95, c))
}

func RiskFromATR(atr, price float64) models.RiskLevel {
	if price <= 0 {
		return models.RiskVeryHigh
	}
	pct := atr / price * 100
	switch {
	case pct > 5:
		return models.RiskVeryHigh
	case pct > 3:
		return models.RiskHigh
	case pct > 1.5:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// TradeLevels returns the suggested stop and target for a signal class.
// BUY classes stop below and target above, SELL classes mirror that, and HOLD
// gets a symmetric reference band.
func (s *Scorer) TradeLevels(class models.SignalClass, price, atr float64) (stop, target float64) {
	switch {
	case class.Bullish():
		return price - s.cfg.StopATR*atr, price + s.cfg.TargetATR*atr
	case class.Bearish():
		return price + s.cfg.StopATR*atr, price - s.cfg.TargetATR*atr
	default:
		return price - s.cfg.HoldATR*atr, price + s.cfg.HoldATR*atr
	}
}
