package indicators

import "math"

// ATR is the Wilder-smoothed average true range. True ranges start at the
// second candle since each needs the previous close, so full seeding needs
// period+1 candles. With fewer it averages whatever ranges exist.
func ATR(highs, lows, closes []float64, period int) float64 {
	n := min(len(highs), len(lows), len(closes))
	if n < 2 {
		return 0
	}

	ranges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		ranges = append(ranges, TrueRange(highs[i], lows[i], closes[i-1]))
	}
	if period <= 0 || len(ranges) < period {
		return mean(ranges)
	}

	atr := mean(ranges[:period])
	p := float64(period)
	for _, tr := range ranges[period:] {
		atr = (atr*(p-1) + tr) / p
	}
	return atr
}

func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
