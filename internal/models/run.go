package models

import (
	"time"

	"github.com/google/uuid"
)

// RunSummary is the audit record of one auto-trade pass.
type RunSummary struct {
	ID             uuid.UUID       `json:"id"`
	ExecutedAt     time.Time       `json:"executedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	UsersProcessed int             `json:"usersProcessed"`
	UsersFailed    int             `json:"usersFailed"`
	Signals        []SignalSummary `json:"signals"`
	PerUserTrades  []string        `json:"perUserTrades"`
	FailedSymbols  []string        `json:"failedSymbols,omitempty"`
}
