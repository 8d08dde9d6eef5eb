package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/models"
)

type balanceResponse struct {
	models.Balance
	WinRate float64 `json:"winRate"`
	// Equity is cash plus open positions marked at live prices, or at cost
	// when no live price is known.
	Equity float64 `json:"equity"`
}

type positionView struct {
	models.Position
	CurrentPrice         *float64 `json:"currentPrice,omitempty"`
	MarketValue          float64  `json:"marketValue"`
	UnrealizedPnL        *float64 `json:"unrealizedPnl,omitempty"`
	UnrealizedPnLPercent *float64 `json:"unrealizedPnlPercent,omitempty"`
}

type statsResponse struct {
	models.TradeStats
	WinRate float64 `json:"winRate"`
}

// settingsRequest is a partial update; omitted fields keep their value.
type settingsRequest struct {
	Enabled           *bool    `json:"enabled"`
	MinSignalScore    *int     `json:"minSignalScore"`
	TradePercentage   *float64 `json:"tradePercentage"`
	MaxPositions      *int     `json:"maxPositions"`
	StopLossPercent   *float64 `json:"stopLossPercent"`
	TakeProfitPercent *float64 `json:"takeProfitPercent"`
}

func (s *Server) markPositions(positions []models.Position) []positionView {
	out := make([]positionView, len(positions))
	for i, p := range positions {
		v := positionView{Position: p, MarketValue: p.TotalInvested}
		if s.deps.Prices != nil {
			if price, ok := s.deps.Prices.Get(p.Symbol); ok {
				pnl := p.UnrealizedPnL(price)
				pct := p.UnrealizedPnLPercent(price)
				v.CurrentPrice = &price
				v.UnrealizedPnL = &pnl
				v.UnrealizedPnLPercent = &pct
				v.MarketValue = p.TotalInvested + pnl
			}
		}
		out[i] = v
	}
	return out
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	bal, err := s.deps.Accounts.Balance(ctx, userID)
	if err != nil {
		s.internalError(w, "failed to fetch balance", err, zap.Stringer("user", userID))
		return
	}
	positions, err := s.deps.Accounts.Positions(ctx, userID)
	if err != nil {
		s.internalError(w, "failed to fetch positions", err, zap.Stringer("user", userID))
		return
	}

	equity := bal.Cash
	for _, p := range s.markPositions(positions) {
		equity += p.MarketValue
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: *bal, WinRate: bal.WinRate(), Equity: equity})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	positions, err := s.deps.Accounts.Positions(r.Context(), userID)
	if err != nil {
		s.internalError(w, "failed to fetch positions", err, zap.Stringer("user", userID))
		return
	}
	writeJSON(w, http.StatusOK, s.markPositions(positions))
}

// handleTrades lists trades newest first. ?day=YYYY-MM-DD narrows the result
// to one trading day.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	day := r.URL.Query().Get("day")
	if day != "" && !validateDate(day) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	limit := parseLimit(r, 100)
	fetch := limit
	if day != "" {
		fetch = maxQueryLimit
	}
	trades, err := s.deps.Accounts.Trades(r.Context(), userID, fetch)
	if err != nil {
		s.internalError(w, "failed to fetch trades", err, zap.Stringer("user", userID))
		return
	}

	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if day != "" && t.TradingDay != day {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	stats, err := s.deps.Accounts.Stats(r.Context(), userID)
	if err != nil {
		s.internalError(w, "failed to fetch trade stats", err, zap.Stringer("user", userID))
		return
	}

	var winRate float64
	if closed := stats.WinningTrades + stats.LosingTrades; closed > 0 {
		winRate = float64(stats.WinningTrades) / float64(closed) * 100
	}
	writeJSON(w, http.StatusOK, statsResponse{TradeStats: *stats, WinRate: winRate})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	st, err := s.deps.Settings.Get(r.Context(), userID)
	if err != nil {
		s.internalError(w, "failed to fetch settings", err, zap.Stringer("user", userID))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req settingsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	st, err := s.deps.Settings.Get(ctx, userID)
	if err != nil {
		s.internalError(w, "failed to fetch settings", err, zap.Stringer("user", userID))
		return
	}
	req.apply(st)
	if err := st.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.deps.Settings.Save(ctx, st)
	if err != nil {
		s.internalError(w, "failed to save settings", err, zap.Stringer("user", userID))
		return
	}
	s.log.Info("settings updated", zap.Stringer("user", userID), zap.Bool("enabled", saved.Enabled))
	writeJSON(w, http.StatusOK, saved)
}

func (req *settingsRequest) apply(st *models.TradingSettings) {
	if req.Enabled != nil {
		st.Enabled = *req.Enabled
	}
	if req.MinSignalScore != nil {
		st.MinSignalScore = *req.MinSignalScore
	}
	if req.TradePercentage != nil {
		st.TradePercentage = *req.TradePercentage
	}
	if req.MaxPositions != nil {
		st.MaxPositions = *req.MaxPositions
	}
	if req.StopLossPercent != nil {
		st.StopLossPercent = *req.StopLossPercent
	}
	if req.TakeProfitPercent != nil {
		st.TakeProfitPercent = *req.TakeProfitPercent
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	bal, err := s.deps.Accounts.Reset(r.Context(), userID)
	if err != nil {
		s.internalError(w, "failed to reset account", err, zap.Stringer("user", userID))
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: *bal, Equity: bal.Cash})
}
