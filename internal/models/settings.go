package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TradingSettings struct {
	UserID            uuid.UUID `json:"userId"`
	Enabled           bool      `json:"enabled"`
	MinSignalScore    int       `json:"minSignalScore"`
	TradePercentage   float64   `json:"tradePercentage"`
	MaxPositions      int       `json:"maxPositions"`
	StopLossPercent   float64   `json:"stopLossPercent"`
	TakeProfitPercent float64   `json:"takeProfitPercent"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// DefaultTradingSettings are applied when a user has no stored settings.
var DefaultTradingSettings = TradingSettings{
	Enabled:           false,
	MinSignalScore:    75,
	TradePercentage:   0.10,
	MaxPositions:      5,
	StopLossPercent:   -5,
	TakeProfitPercent: 10,
}

// WithUser returns a copy of s bound to userID.
func (s TradingSettings) WithUser(userID uuid.UUID) TradingSettings {
	s.UserID = userID
	return s
}

func (s *TradingSettings) Validate() error {
	var errs []string
	if s.MinSignalScore < 0 || s.MinSignalScore > 100 {
		errs = append(errs, "minSignalScore must be within [0,100]")
	}
	if s.TradePercentage <= 0 || s.TradePercentage > 1 {
		errs = append(errs, "tradePercentage must be within (0,1]")
	}
	if s.MaxPositions < 0 {
		errs = append(errs, "maxPositions must not be negative")
	}
	if s.StopLossPercent > 0 {
		errs = append(errs, "stopLossPercent must be zero or negative")
	}
	if s.TakeProfitPercent < 0 {
		errs = append(errs, "takeProfitPercent must be zero or positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid trading settings: %s", strings.Join(errs, "; "))
	}
	return nil
}
