package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

// orderRequest is a manual trade. Quantity zero on SELL or COVER closes the
// whole position; a missing price uses the live ticker price.
type orderRequest struct {
	Symbol     string   `json:"symbol"`
	Action     string   `json:"action"`
	Quantity   float64  `json:"quantity"`
	Price      *float64 `json:"price"`
	StopLoss   *float64 `json:"stopLoss"`
	TakeProfit *float64 `json:"takeProfit"`
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	action, err := models.ParseTradeSide(strings.ToUpper(req.Action))
	if err != nil {
		writeError(w, http.StatusBadRequest, "action must be BUY, SELL, SHORT or COVER")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if !symbolRegexp.MatchString(symbol) {
		writeError(w, http.StatusBadRequest, "invalid symbol")
		return
	}

	var price float64
	if req.Price != nil {
		price = *req.Price
	} else {
		live, ok := s.livePrice(symbol)
		if !ok {
			writeError(w, http.StatusConflict, "no live price for "+symbol+", pass price explicitly")
			return
		}
		price = live
	}

	ctx := r.Context()
	var trade *models.Trade
	if action.Opens() {
		var settings *models.TradingSettings
		settings, err = s.deps.Settings.Get(ctx, userID)
		if err != nil {
			s.internalError(w, "load settings", err, zap.Stringer("user", userID))
			return
		}
		trade, err = s.deps.Accounts.Open(ctx, ledger.OpenOrder{
			UserID:       userID,
			Symbol:       symbol,
			Side:         action.PositionSide(),
			Quantity:     req.Quantity,
			Price:        price,
			StopLoss:     req.StopLoss,
			TakeProfit:   req.TakeProfit,
			Reason:       models.ReasonManual,
			MaxPositions: &settings.MaxPositions,
		})
	} else {
		trade, err = s.deps.Accounts.Close(ctx, ledger.CloseOrder{
			UserID:   userID,
			Symbol:   symbol,
			Side:     action.PositionSide(),
			Quantity: req.Quantity,
			Price:    price,
			Reason:   models.ReasonManual,
		})
	}
	if err != nil {
		s.writeLedgerError(w, err, userID, symbol)
		return
	}

	s.log.Info("manual order filled",
		zap.Stringer("user", userID),
		zap.String("symbol", symbol),
		zap.Stringer("action", action),
		zap.Float64("qty", trade.Quantity),
		zap.Float64("price", price))
	writeJSON(w, http.StatusCreated, trade)
}

func (s *Server) livePrice(symbol string) (float64, bool) {
	if s.deps.Prices == nil {
		return 0, false
	}
	return s.deps.Prices.Get(symbol)
}

func (s *Server) writeLedgerError(w http.ResponseWriter, err error, userID uuid.UUID, symbol string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case ledger.IsRejection(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.internalError(w, "order failed", err, zap.Stringer("user", userID), zap.String("symbol", symbol))
	}
}
