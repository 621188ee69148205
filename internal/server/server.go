// Package server exposes the broker over HTTP: Twilio webhooks, the trade and
// user API, and the dashboard websocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"voice-broker-go/internal/accounts"
	"voice-broker-go/internal/broker"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"
	"voice-broker-go/internal/telephony"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Accounts manages broker clients.
type Accounts interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindOrCreateByPhone(ctx context.Context, phone string) (*models.User, bool, error)
	Register(ctx context.Context, name, email, phone string) (*models.User, error)
	Update(ctx context.Context, id string, u accounts.UserUpdate) (*models.User, []string, error)
	Watchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error)
	Watch(ctx context.Context, userID, ticker string) (bool, error)
	Unwatch(ctx context.Context, userID, ticker string) (bool, error)
}

// Schedules books calls for later.
type Schedules interface {
	Create(ctx context.Context, userID, phone string, callTime time.Time, callType models.CallType) (*models.CallSchedule, error)
}

// Calls records telephony sessions.
type Calls interface {
	RecordCall(ctx context.Context, call *models.Call) error
	UpdateCallStatus(ctx context.Context, callSID, status string) error
	FindCall(ctx context.Context, callSID string) (*models.Call, error)
}

// Broker answers call turns.
type Broker interface {
	HandleTurn(ctx context.Context, turn broker.Turn) broker.Reply
	Greet(ctx context.Context, callSID, userID string) broker.Reply
	Retry(ctx context.Context, callSID, userID string) broker.Reply
}

// Ledger settles trades and reports portfolios.
type Ledger interface {
	ExecuteTrade(ctx context.Context, req ledger.TradeRequest) *ledger.TradeResult
	Summary(ctx context.Context, userID string) (*ledger.PortfolioSummary, error)
	History(ctx context.Context, userID string, limit int) ([]models.Trade, error)
}

// Quoter prices tickers.
type Quoter interface {
	GetQuote(ctx context.Context, ticker string, bypassCache bool) (*market.Quote, error)
}

// MarketSummarizer reports index levels and headlines.
type MarketSummarizer interface {
	Summary(ctx context.Context) *market.Summary
}

// Dialer places outbound calls.
type Dialer interface {
	Call(phone, userID string) (string, error)
}

// ClipSource serves synthesized audio.
type ClipSource interface {
	Clip(id string) (telephony.Clip, error)
}

// Dependencies are the components the server routes to. Dialer, Clips and Realtime may be nil.
type Dependencies struct {
	Accounts  Accounts
	Calls     Calls
	Schedules Schedules
	Broker    Broker
	Ledger    Ledger
	Quotes    Quoter
	Market    MarketSummarizer
	Voice     *telephony.Voice
	Dialer    Dialer
	Clips     ClipSource
	Realtime  http.Handler
}

// Server is the broker's HTTP surface.
type Server struct {
	Dependencies
	server *http.Server
	router *mux.Router
	logger *zap.Logger

	// pitches remembers the last recommendation made on each live call.
	pitchMu sync.Mutex
	pitches map[string]*models.Recommendation
}

func NewServer(port int, deps Dependencies, logger *zap.Logger) *Server {
	s := &Server{
		Dependencies: deps,
		logger:       logger.Named("api-server"),
		pitches:      make(map[string]*models.Recommendation),
	}

	r := mux.NewRouter()
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	calls := r.PathPrefix("/api/calls").Subrouter()
	calls.HandleFunc("/inbound", s.inboundHandler).Methods(http.MethodPost)
	calls.HandleFunc("/connect/{user_id}", s.connectHandler).Methods(http.MethodPost)
	calls.HandleFunc("/process_speech", s.processSpeechHandler).Methods(http.MethodPost)
	calls.HandleFunc("/retry", s.retryHandler).Methods(http.MethodPost)
	calls.HandleFunc("/status/{user_id}", s.statusHandler).Methods(http.MethodPost)
	calls.HandleFunc("/initiate/{user_id}", s.initiateHandler).Methods(http.MethodPost)
	calls.HandleFunc("/schedule", s.scheduleHandler).Methods(http.MethodPost)
	calls.HandleFunc("/audio/{id}", s.audioHandler).Methods(http.MethodGet)

	trades := r.PathPrefix("/api/trades").Subrouter()
	trades.HandleFunc("/execute", s.executeTradeHandler).Methods(http.MethodPost)
	trades.HandleFunc("/history/{user_id}", s.tradeHistoryHandler).Methods(http.MethodGet)
	trades.HandleFunc("/portfolio/{user_id}", s.portfolioHandler).Methods(http.MethodGet)
	trades.HandleFunc("/market/summary", s.marketSummaryHandler).Methods(http.MethodGet)
	trades.HandleFunc("/quote/{ticker}", s.quoteHandler).Methods(http.MethodGet)

	r.HandleFunc("/api/users", s.registerHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id}", s.userHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}", s.updateUserHandler).Methods(http.MethodPut)
	r.HandleFunc("/api/users/{id}/watchlist", s.watchlistHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/users/{id}/watchlist", s.watchHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/users/{id}/watchlist/{ticker}", s.unwatchHandler).Methods(http.MethodDelete)

	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime).Methods(http.MethodGet)
	}

	s.router = r
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
