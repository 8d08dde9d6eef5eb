package indicators

type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes line = EMA(fast) - EMA(slow) at every index of the series,
// treating each prefix as its own history, then takes the EMA(signal) of that
// line history. The per-prefix EMAs are produced by EMASeries, which matches
// recomputing EMA over each growing prefix.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	if len(closes) == 0 {
		return MACDResult{}
	}

	fastSeries := EMASeries(closes, fast)
	slowSeries := EMASeries(closes, slow)
	history := make([]float64, len(closes))
	for i := range closes {
		history[i] = fastSeries[i] - slowSeries[i]
	}

	line := history[len(history)-1]
	sig := EMA(history, signal)
	return MACDResult{Line: line, Signal: sig, Histogram: line - sig}
}
