package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/trahn-autotrader/internal/models"
	"github.com/kjannette/trahn-autotrader/internal/scheduler"
)

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	out := []models.RunSummary{}
	if s.deps.Runs != nil {
		runs, err := s.deps.Runs.Recent(r.Context(), parseLimit(r, 20))
		if err != nil {
			s.internalError(w, "failed to fetch runs", err)
			return
		}
		if runs != nil {
			out = runs
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTriggerRun executes one scheduler pass synchronously and returns its
// summary.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}

	summary, err := s.deps.Trigger.RunNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.internalError(w, "run failed", err)
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}
