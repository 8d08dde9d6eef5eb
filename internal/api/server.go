package api

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjannette/trahn-autotrader/internal/ledger"
	"github.com/kjannette/trahn-autotrader/internal/market"
	"github.com/kjannette/trahn-autotrader/internal/models"
)

const maxQueryLimit = 1000

var (
	dateRegexp   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	symbolRegexp = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)
)

type Accounts interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
	Positions(ctx context.Context, userID uuid.UUID) ([]models.Position, error)
	Trades(ctx context.Context, userID uuid.UUID, limit int) ([]models.Trade, error)
	Stats(ctx context.Context, userID uuid.UUID) (*models.TradeStats, error)
	Open(ctx context.Context, o ledger.OpenOrder) (*models.Trade, error)
	Close(ctx context.Context, o ledger.CloseOrder) (*models.Trade, error)
	Reset(ctx context.Context, userID uuid.UUID) (*models.Balance, error)
}

type SettingsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.TradingSettings, error)
	Save(ctx context.Context, st *models.TradingSettings) (*models.TradingSettings, error)
}

type SignalHistory interface {
	Latest(ctx context.Context) ([]models.TradingSignal, error)
	LatestFor(ctx context.Context, symbol string) (*models.TradingSignal, error)
	History(ctx context.Context, symbol string, limit int) ([]models.TradingSignal, error)
}

type Prices interface {
	Get(symbol string) (float64, bool)
	Snapshot() map[string]market.Quote
}

type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]models.RunSummary, error)
}

// RunTrigger starts a scheduler pass on demand.
type RunTrigger interface {
	RunNow(ctx context.Context) (*models.RunSummary, error)
	Running() bool
}

// Pinger reports database reachability for /health. Nil means no database.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Accounts Accounts
	Settings SettingsStore
	Signals  SignalHistory
	Prices   Prices
	Runs     RunHistory
	Trigger  RunTrigger
	DB       Pinger
}

type Server struct {
	deps       Deps
	httpServer *http.Server
	apiKey     string
	log        *zap.Logger
}

func NewServer(deps Deps, port int, apiKey, corsOrigin string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		apiKey: apiKey,
		log:    log.Named("api"),
	}

	mux := http.NewServeMux()

	// Signal and market routes
	mux.HandleFunc("GET /v1/signals", s.handleLatestSignals)
	mux.HandleFunc("GET /v1/signals/{symbol}", s.handleSignalForSymbol)
	mux.HandleFunc("GET /v1/signals/{symbol}/history", s.handleSignalHistory)
	mux.HandleFunc("GET /v1/prices", s.handlePrices)

	// Account routes
	mux.HandleFunc("GET /v1/users/{userID}/balance", s.handleBalance)
	mux.HandleFunc("GET /v1/users/{userID}/positions", s.handlePositions)
	mux.HandleFunc("GET /v1/users/{userID}/trades", s.handleTrades)
	mux.HandleFunc("GET /v1/users/{userID}/stats", s.handleStats)
	mux.HandleFunc("GET /v1/users/{userID}/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /v1/users/{userID}/settings", s.handlePutSettings)
	mux.HandleFunc("POST /v1/users/{userID}/orders", s.handleOrder)
	mux.HandleFunc("POST /v1/users/{userID}/reset", s.handleReset)

	// Scheduler runs
	mux.HandleFunc("GET /v1/runs", s.handleRuns)
	mux.HandleFunc("POST /v1/runs", s.handleTriggerRun)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	// CORS sits outside auth: browser preflights carry no Authorization header.
	handler := corsMiddleware(s.authMiddleware(mux), corsOrigin)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

// Handler exposes the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.log.Info("REST API server started",
		zap.String("addr", "http://localhost"+s.httpServer.Addr),
		zap.String("health", "http://localhost"+s.httpServer.Addr+"/health"),
		zap.Bool("auth", s.apiKey != ""))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// parseSymbol upper-cases the {symbol} path value and checks its shape.
func parseSymbol(r *http.Request) (string, bool) {
	sym := strings.ToUpper(r.PathValue("symbol"))
	return sym, symbolRegexp.MatchString(sym)
}

func parseUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id, expected UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	dec := sonic.ConfigStd.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	sonic.ConfigStd.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	s.log.Error(msg, append(fields, zap.Error(err))...)
	writeError(w, http.StatusInternalServerError, msg)
}
