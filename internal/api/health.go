package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database  string `json:"database"`
	Scheduler string `json:"scheduler"`
	Prices    int    `json:"livePrices"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "memory"
	if s.deps.DB != nil {
		dbStatus = "connected"
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	}

	schedStatus := "disabled"
	if s.deps.Trigger != nil {
		schedStatus = "stopped"
		if s.deps.Trigger.Running() {
			schedStatus = "running"
		}
	}

	live := 0
	if s.deps.Prices != nil {
		live = len(s.deps.Prices.Snapshot())
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus, Scheduler: schedStatus, Prices: live},
	})
}
