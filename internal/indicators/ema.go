package indicators

// EMA seeds with the simple average of the first period values, then applies
// the 2/(period+1) multiplier over the rest. With fewer than period values it
// returns their simple average.
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 || len(values) < period {
		return mean(values)
	}

	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	k := 2 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*k + ema
	}
	return ema
}

// EMASeries returns out[i] == EMA(values[:i+1], period) for every i in one pass.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period <= 0 {
		period = len(values) + 1
	}

	k := 2 / float64(period+1)
	var sum, ema float64
	for i, v := range values {
		if i < period {
			sum += v
			out[i] = sum / float64(i+1)
			if i == period-1 {
				ema = sum / float64(period)
				out[i] = ema
			}
			continue
		}
		ema = (v-ema)*k + ema
		out[i] = ema
	}
	return out
}
