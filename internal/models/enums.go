package models

import "fmt"

// SignalClass is the discretized label attached to a signal score.
type SignalClass uint8

const (
	StrongSell SignalClass = iota + 1
	Sell
	Hold
	Buy
	StrongBuy
)

var signalClassNames = map[SignalClass]string{
	StrongSell: "STRONG_SELL",
	Sell:       "SELL",
	Hold:       "HOLD",
	Buy:        "BUY",
	StrongBuy:  "STRONG_BUY",
}

func (c SignalClass) String() string {
	if s, ok := signalClassNames[c]; ok {
		return s
	}
	return fmt.Sprintf("SignalClass(%d)", uint8(c))
}

// Bullish reports whether the class asks for long exposure.
func (c SignalClass) Bullish() bool { return c == Buy || c == StrongBuy }

// Bearish reports whether the class asks to reduce or short exposure.
func (c SignalClass) Bearish() bool { return c == Sell || c == StrongSell }

func (c SignalClass) MarshalText() ([]byte, error) { return marshalEnum(c, signalClassNames) }

func (c *SignalClass) UnmarshalText(b []byte) error {
	return unmarshalEnum(c, signalClassNames, "signal class", b)
}

func ParseSignalClass(s string) (SignalClass, error) {
	var c SignalClass
	err := c.UnmarshalText([]byte(s))
	return c, err
}

type RiskLevel uint8

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskVeryHigh
)

var riskLevelNames = map[RiskLevel]string{
	RiskLow:      "LOW",
	RiskMedium:   "MEDIUM",
	RiskHigh:     "HIGH",
	RiskVeryHigh: "VERY_HIGH",
}

func (r RiskLevel) String() string {
	if s, ok := riskLevelNames[r]; ok {
		return s
	}
	return fmt.Sprintf("RiskLevel(%d)", uint8(r))
}

func (r RiskLevel) MarshalText() ([]byte, error) { return marshalEnum(r, riskLevelNames) }

func (r *RiskLevel) UnmarshalText(b []byte) error {
	return unmarshalEnum(r, riskLevelNames, "risk level", b)
}

func ParseRiskLevel(s string) (RiskLevel, error) {
	var r RiskLevel
	err := r.UnmarshalText([]byte(s))
	return r, err
}

// PositionSide is the direction of an open position.
type PositionSide uint8

const (
	Long PositionSide = iota + 1
	Short
)

var positionSideNames = map[PositionSide]string{
	Long:  "LONG",
	Short: "SHORT",
}

func (p PositionSide) String() string {
	if s, ok := positionSideNames[p]; ok {
		return s
	}
	return fmt.Sprintf("PositionSide(%d)", uint8(p))
}

// OpenAction is the trade side recorded when a position of this side is opened or added to.
func (p PositionSide) OpenAction() TradeSide {
	if p == Short {
		return SideShort
	}
	return SideBuy
}

// CloseAction is the trade side recorded when a position of this side is reduced.
func (p PositionSide) CloseAction() TradeSide {
	if p == Short {
		return SideCover
	}
	return SideSell
}

func (p PositionSide) MarshalText() ([]byte, error) { return marshalEnum(p, positionSideNames) }

func (p *PositionSide) UnmarshalText(b []byte) error {
	return unmarshalEnum(p, positionSideNames, "position side", b)
}

func ParsePositionSide(s string) (PositionSide, error) {
	var p PositionSide
	err := p.UnmarshalText([]byte(s))
	return p, err
}

// TradeSide is the action recorded on a Trade.
type TradeSide uint8

const (
	SideBuy TradeSide = iota + 1
	SideSell
	SideShort
	SideCover
)

var tradeSideNames = map[TradeSide]string{
	SideBuy:   "BUY",
	SideSell:  "SELL",
	SideShort: "SHORT",
	SideCover: "COVER",
}

func (t TradeSide) String() string {
	if s, ok := tradeSideNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TradeSide(%d)", uint8(t))
}

// Opens reports whether the action opens (or adds to) a position.
func (t TradeSide) Opens() bool { return t == SideBuy || t == SideShort }

// PositionSide returns the side of the position the action operates on.
func (t TradeSide) PositionSide() PositionSide {
	switch t {
	case SideShort, SideCover:
		return Short
	default:
		return Long
	}
}

func (t TradeSide) MarshalText() ([]byte, error) { return marshalEnum(t, tradeSideNames) }

func (t *TradeSide) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, tradeSideNames, "trade side", b)
}

func ParseTradeSide(s string) (TradeSide, error) {
	var t TradeSide
	err := t.UnmarshalText([]byte(s))
	return t, err
}

type TradeStatus uint8

const (
	TradeOpen TradeStatus = iota + 1
	TradeClosed
)

var tradeStatusNames = map[TradeStatus]string{
	TradeOpen:   "OPEN",
	TradeClosed: "CLOSED",
}

func (t TradeStatus) String() string {
	if s, ok := tradeStatusNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TradeStatus(%d)", uint8(t))
}

func (t TradeStatus) MarshalText() ([]byte, error) { return marshalEnum(t, tradeStatusNames) }

func (t *TradeStatus) UnmarshalText(b []byte) error {
	return unmarshalEnum(t, tradeStatusNames, "trade status", b)
}

func ParseTradeStatus(s string) (TradeStatus, error) {
	var t TradeStatus
	err := t.UnmarshalText([]byte(s))
	return t, err
}

// TradeReason records what caused a trade.
type TradeReason uint8

const (
	ReasonSignal TradeReason = iota + 1
	ReasonStopLoss
	ReasonTakeProfit
	ReasonManual
)

var tradeReasonNames = map[TradeReason]string{
	ReasonSignal:     "SIGNAL",
	ReasonStopLoss:   "STOP_LOSS",
	ReasonTakeProfit: "TAKE_PROFIT",
	ReasonManual:     "MANUAL",
}

func (r TradeReason) String() string {
	if s, ok := tradeReasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("TradeReason(%d)", uint8(r))
}

func (r TradeReason) MarshalText() ([]byte, error) { return marshalEnum(r, tradeReasonNames) }

func (r *TradeReason) UnmarshalText(b []byte) error {
	return unmarshalEnum(r, tradeReasonNames, "trade reason", b)
}

func ParseTradeReason(s string) (TradeReason, error) {
	var r TradeReason
	err := r.UnmarshalText([]byte(s))
	return r, err
}

// --- helpers ---

func marshalEnum[T comparable](v T, names map[T]string) ([]byte, error) {
	s, ok := names[v]
	if !ok {
		return nil, fmt.Errorf("invalid enum value %v", v)
	}
	return []byte(s), nil
}

func unmarshalEnum[T comparable](dst *T, names map[T]string, kind string, b []byte) error {
	for v, s := range names {
		if s == string(b) {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", kind, string(b))
}
