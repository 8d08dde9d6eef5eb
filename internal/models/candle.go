package models

import "time"

type PriceCandle struct {
	OpenTime  time.Time `json:"openTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"closeTime"`
}

// Series splits candles (oldest first) into parallel value slices.
type Series struct {
	Highs   []float64
	Lows    []float64
	Closes  []float64
	Volumes []float64
}

func SeriesOf(candles []PriceCandle) Series {
	s := Series{
		Highs:   make([]float64, len(candles)),
		Lows:    make([]float64, len(candles)),
		Closes:  make([]float64, len(candles)),
		Volumes: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Closes[i] = c.Close
		s.Volumes[i] = c.Volume
	}
	return s
}
