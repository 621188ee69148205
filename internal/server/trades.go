package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/models"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

const defaultHistoryLimit = 20

var errBadRequest = faults.New(faults.Validation, "bad_request", "malformed request body")

type tradeRequest struct {
	UserID   string `json:"user_id"`
	Action   string `json:"action"`
	Ticker   string `json:"ticker"`
	Quantity int    `json:"quantity"`
}

type tradeResponse struct {
	Status      string           `json:"status"`
	Message     string           `json:"message"`
	Trade       *models.Trade    `json:"trade,omitempty"`
	Position    *models.Position `json:"position,omitempty"`
	Price       decimal.Decimal  `json:"price"`
	Total       decimal.Decimal  `json:"total"`
	CashBalance decimal.Decimal  `json:"cash_balance"`
}

func (s *Server) executeTradeHandler(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	result := s.Ledger.ExecuteTrade(r.Context(), ledger.TradeRequest{
		UserID:   req.UserID,
		Action:   models.Action(req.Action),
		Ticker:   req.Ticker,
		Quantity: req.Quantity,
	})

	status := http.StatusOK
	if !result.OK() {
		status = statusFor(result.Kind())
	}
	s.writeJSON(w, status, tradeResponse{
		Status:      result.Status(),
		Message:     result.Message(),
		Trade:       result.Trade,
		Position:    result.Position,
		Price:       result.Price,
		Total:       result.Total,
		CashBalance: result.CashBalance,
	})
}

func (s *Server) tradeHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, faults.New(faults.Validation, "bad_request", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	trades, err := s.Ledger.History(r.Context(), mux.Vars(r)["user_id"], limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Ledger.Summary(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) marketSummaryHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Market.Summary(r.Context()))
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	bypass := r.URL.Query().Get("fresh") == "true"
	q, err := s.Quotes.GetQuote(r.Context(), mux.Vars(r)["ticker"], bypass)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}
