package api

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/market"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

func (s *Server) handleLatestSignals(w http.ResponseWriter, r *http.Request) {
	sigs, err := s.deps.Signals.Latest(r.Context())
	if err != nil {
		s.internalError(w, "failed to fetch signals", err)
		return
	}
	if sigs == nil {
		sigs = []models.TradingSignal{}
	}
	writeJSON(w, http.StatusOK, sigs)
}

func (s *Server) handleSignalForSymbol(w http.ResponseWriter, r *http.Request) {
	sym, ok := parseSymbol(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	sig, err := s.deps.Signals.LatestFor(r.Context(), sym)
	if err != nil {
		s.internalError(w, "failed to fetch signal", err, zap.String("symbol", sym))
		return
	}
	if sig == nil {
		writeError(w, http.StatusNotFound, "no signal for "+sym)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleSignalHistory(w http.ResponseWriter, r *http.Request) {
	sym, ok := parseSymbol(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	sigs, err := s.deps.Signals.History(r.Context(), sym, parseLimit(r, 100))
	if err != nil {
		s.internalError(w, "failed to fetch signal history", err, zap.String("symbol", sym))
		return
	}
	if sigs == nil {
		sigs = []models.TradingSignal{}
	}
	writeJSON(w, http.StatusOK, sigs)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	out := []market.Quote{}
	if s.deps.Prices != nil {
		for _, q := range s.deps.Prices.Snapshot() {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, out)
}
