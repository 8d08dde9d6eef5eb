package models

import (
	"time"

	"github.com/google/uuid"
)

type Position struct {
	UserID        uuid.UUID    `json:"userId"`
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Quantity      float64      `json:"quantity"`
	AvgEntryPrice float64      `json:"avgEntryPrice"`
	TotalInvested float64      `json:"totalInvested"`
	StopLoss      *float64     `json:"stopLoss,omitempty"`
	TakeProfit    *float64     `json:"takeProfit,omitempty"`
	OpenedAt      time.Time    `json:"openedAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// UnrealizedPnLPercent returns the open P&L at price as a percentage of the average entry.
func (p *Position) UnrealizedPnLPercent(price float64) float64 {
	if p.AvgEntryPrice <= 0 {
		return 0
	}
	if p.Side == Short {
		return (p.AvgEntryPrice - price) / p.AvgEntryPrice * 100
	}
	return (price - p.AvgEntryPrice) / p.AvgEntryPrice * 100
}

// UnrealizedPnL returns the open P&L in quote currency at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == Short {
		return (p.AvgEntryPrice - price) * p.Quantity
	}
	return (price - p.AvgEntryPrice) * p.Quantity
}
