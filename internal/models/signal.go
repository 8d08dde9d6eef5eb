package models

import "time"

type IndicatorSnapshot struct {
	RSI           float64 `json:"rsi"`
	MACDLine      float64 `json:"macdLine"`
	MACDSignal    float64 `json:"macdSignal"`
	MACDHistogram float64 `json:"macdHistogram"`
	EMAFast       float64 `json:"emaFast"`
	EMASlow       float64 `json:"emaSlow"`
	BBUpper       float64 `json:"bbUpper"`
	BBMiddle      float64 `json:"bbMiddle"`
	BBLower       float64 `json:"bbLower"`
	ATR           float64 `json:"atr"`
	VolumeRatio   float64 `json:"volumeRatio"`
}

type TradingSignal struct {
	Symbol      string            `json:"symbol"`
	Timestamp   time.Time         `json:"timestamp"`
	SignalClass SignalClass       `json:"signalClass"`
	Score       int               `json:"score"`
	Confidence  float64           `json:"confidence"`
	RiskLevel   RiskLevel         `json:"riskLevel"`
	EntryPrice  float64           `json:"entryPrice"`
	StopLoss    float64           `json:"stopLoss"`
	TakeProfit  float64           `json:"takeProfit"`
	Sentiment   *int              `json:"sentiment,omitempty"`
	Reasons     []string          `json:"reasons"`
	Indicators  IndicatorSnapshot `json:"indicators"`
}

// SignalSummary is the compact form of a signal kept in run summaries.
type SignalSummary struct {
	Symbol      string      `json:"symbol"`
	SignalClass SignalClass `json:"signalClass"`
	Score       int         `json:"score"`
	Confidence  float64     `json:"confidence"`
	Price       float64     `json:"price"`
}

func (s *TradingSignal) Summary() SignalSummary {
	return SignalSummary{
		Symbol:      s.Symbol,
		SignalClass: s.SignalClass,
		Score:       s.Score,
		Confidence:  s.Confidence,
		Price:       s.EntryPrice,
	}
}
