package indicators

import "math"

// SMA is the simple average of the last period values, or of all values when
// fewer exist. Returns 0 for an empty series.
func SMA(values []float64, period int) float64 {
	w := window(values, period)
	if len(w) == 0 {
		return 0
	}
	return mean(w)
}

// StdDev is the population standard deviation of the last period values.
func StdDev(values []float64, period int) float64 {
	return PopulationStdDev(window(values, period))
}

// PopulationStdDev divides by n, not n-1.
func PopulationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var sq float64
	for _, v := range values {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}

// VolumeRatio compares the latest volume with the average of the period
// volumes before it. Returns 1 when there is nothing to compare against.
func VolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < 2 {
		return 1
	}
	last := volumes[len(volumes)-1]
	avg := SMA(volumes[:len(volumes)-1], period)
	if avg <= 0 {
		return 1
	}
	return last / avg
}

func window(values []float64, period int) []float64 {
	if period <= 0 || period >= len(values) {
		return values
	}
	return values[len(values)-period:]
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
