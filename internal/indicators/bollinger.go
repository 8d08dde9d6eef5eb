package indicators

type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger returns SMA(period) +/- k population standard deviations.
func Bollinger(closes []float64, period int, k float64) Bands {
	mid := SMA(closes, period)
	sd := StdDev(closes, period)
	return Bands{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd}
}

// PercentB locates price inside the bands: 0 at the lower band, 1 at the upper.
// Collapsed bands report 0.5.
func (b Bands) PercentB(price float64) float64 {
	width := b.Upper - b.Lower
	if width <= 0 {
		return 0.5
	}
	return (price - b.Lower) / width
}
