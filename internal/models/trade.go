package models

import (
	"time"

	"github.com/google/uuid"
)

type Trade struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"userId"`
	Symbol       string      `json:"symbol"`
	Side         TradeSide   `json:"side"`
	Quantity     float64     `json:"quantity"`
	EntryPrice   float64     `json:"entryPrice"`
	ExitPrice    *float64    `json:"exitPrice,omitempty"`
	PnL          *float64    `json:"pnl,omitempty"`
	PnLPercent   *float64    `json:"pnlPercent,omitempty"`
	Status       TradeStatus `json:"status"`
	Reason       TradeReason `json:"reason"`
	SignalScore  *int        `json:"signalScore,omitempty"`
	BalanceAfter *float64    `json:"balanceAfter,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	TradingDay   string      `json:"tradingDay"`
}

// TradeStats aggregates trade history. OpenTrades counts opening fills, not
// currently open positions.
type TradeStats struct {
	TotalTrades   int64   `json:"totalTrades"`
	OpenTrades    int64   `json:"openTrades"`
	ClosedTrades  int64   `json:"closedTrades"`
	RealizedPnL   float64 `json:"realizedPnl"`
	WinningTrades int64   `json:"winningTrades"`
	LosingTrades  int64   `json:"losingTrades"`
}
