package signal

import (
	"math"

	"github.com/kjannette/trahn-autotrader/internal/indicators"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

const neutral = 50.0

// SubScores are per-indicator votes on a 0-100 scale, 50 being neutral.
type SubScores struct {
	RSI       float64
	MACD      float64
	EMA       float64
	Bollinger float64
	Sentiment float64
	Volume    float64
}

// Values lists the sub-scores in reporting order.
func (s SubScores) Values() []float64 {
	return []float64{s.RSI, s.MACD, s.EMA, s.Bollinger, s.Sentiment, s.Volume}
}

func ComputeSubScores(price float64, snap models.IndicatorSnapshot, sentiment *int) SubScores {
	return SubScores{
		RSI:       rsiScore(snap.RSI),
		MACD:      macdScore(snap.MACDLine, snap.MACDHistogram),
		EMA:       emaScore(classifyTrend(price, snap.EMAFast, snap.EMASlow)),
		Bollinger: bollingerScore(percentB(price, snap)),
		Sentiment: sentimentScore(sentiment),
		Volume:    neutral,
	}
}

func rsiScore(rsi float64) float64 {
	switch {
	case rsi > 80:
		return 10
	case rsi > 70:
		return 25
	case rsi > 60:
		return 40
	case rsi < 20:
		return 90
	case rsi < 30:
		return 75
	case rsi < 40:
		return 60
	default:
		return neutral
	}
}

// macdScore goes up to 90 (down to 10) when line and histogram agree, scaled
// by how large the histogram is relative to the line.
func macdScore(line, hist float64) float64 {
	strength := 0.0
	if line != 0 {
		strength = math.Min(1, math.Abs(hist)/math.Abs(line))
	}
	switch {
	case hist > 0 && line > 0:
		return 70 + 20*strength
	case hist < 0 && line < 0:
		return 30 - 20*strength
	case hist > 0:
		return 60
	case hist < 0:
		return 40
	default:
		return neutral
	}
}

type trend uint8

const (
	trendStrongBearish trend = iota
	trendBearish
	trendBullish
	trendStrongBullish
)

func classifyTrend(price, fast, slow float64) trend {
	if fast > slow {
		if price > fast {
			return trendStrongBullish
		}
		return trendBullish
	}
	if price < fast {
		return trendStrongBearish
	}
	return trendBearish
}

func emaScore(t trend) float64 {
	switch t {
	case trendStrongBullish:
		return 85
	case trendBullish:
		return 65
	case trendBearish:
		return 35
	default:
		return 15
	}
}

func percentB(price float64, snap models.IndicatorSnapshot) float64 {
	return indicators.Bands{Upper: snap.BBUpper, Middle: snap.BBMiddle, Lower: snap.BBLower}.PercentB(price)
}

func bollingerScore(pb float64) float64 {
	switch {
	case pb > 1:
		return 15
	case pb > 0.8:
		return 35
	case pb < 0:
		return 85
	case pb < 0.2:
		return 65
	default:
		return neutral
	}
}

func sentimentScore(sentiment *int) float64 {
	if sentiment == nil {
		return neutral
	}
	v := *sentiment
	switch {
	case v >= 80:
		return 15
	case v >= 65:
		return 35
	case v <= 20:
		return 85
	case v <= 35:
		return 65
	default:
		return neutral
	}
}
