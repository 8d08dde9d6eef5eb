package models

import (
	"time"

	"github.com/google/uuid"
)

type Balance struct {
	UserID        uuid.UUID `json:"userId"`
	Cash          float64   `json:"cash"`
	InitialCash   float64   `json:"initialCash"`
	TotalPnL      float64   `json:"totalPnl"`
	TotalTrades   int       `json:"totalTrades"`
	WinningTrades int       `json:"winningTrades"`
	LosingTrades  int       `json:"losingTrades"`
	LargestWin    float64   `json:"largestWin"`
	LargestLoss   float64   `json:"largestLoss"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// WinRate is the share of closed trades that realized a profit, in percent.
func (b *Balance) WinRate() float64 {
	closed := b.WinningTrades + b.LosingTrades
	if closed == 0 {
		return 0
	}
	return float64(b.WinningTrades) / float64(closed) * 100
}
