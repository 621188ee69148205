package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 500
)

// APIHandler serves read-only views over the ledger tables.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	now func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db, now: time.Now}
}

// StatusResponse is the structure for the /api/status endpoint.
type StatusResponse struct {
	Users         int64 `json:"users"`
	OpenPositions int64 `json:"open_positions"`
	Trades        int64 `json:"trades"`
	CallsToday    int64 `json:"calls_today"`
}

// StatusHandler reports row counts across the ledger.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	db := h.db.WithContext(r.Context())
	midnight := h.now().Truncate(24 * time.Hour)

	var status StatusResponse
	for _, q := range []struct {
		query *gorm.DB
		dest  *int64
	}{
		{db.Model(&models.User{}), &status.Users},
		{db.Model(&models.Position{}).Where("quantity > 0"), &status.OpenPositions},
		{db.Model(&models.Trade{}), &status.Trades},
		{db.Model(&models.Call{}).Where("created_at >= ?", midnight), &status.CallsToday},
	} {
		if err := q.query.Count(q.dest).Error; err != nil {
			h.log.Error("Failed to count rows for status", zap.Error(err))
			http.Error(w, "Failed to get status", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, status)
}

// TradesHandler returns the latest trades, optionally for one user.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	query := h.db.WithContext(r.Context()).Order("timestamp desc").Limit(limit)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	trades := []models.Trade{}
	if err := query.Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	writeJSON(w, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades int64           `json:"total_trades"`
	Buys        int64           `json:"buys"`
	Sells       int64           `json:"sells"`
	BuyVolume   decimal.Decimal `json:"buy_volume"`
	SellVolume  decimal.Decimal `json:"sell_volume"`
	ActiveUsers int             `json:"active_users"`
	TopTickers  []string        `json:"top_tickers"`
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates and returns trading statistics. Money columns are
// stored as text, so sums happen here rather than in SQL.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var trades []models.Trade
	if err := h.db.WithContext(r.Context()).Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.now().Add(-24 * time.Hour)
	writeJSON(w, StatisticsResponse{
		Since24h: computeStats(trades, since24h),
		AllTime:  computeStats(trades, time.Time{}),
	})
}

// computeStats summarizes trades executed at or after since.
func computeStats(trades []models.Trade, since time.Time) StatsDetail {
	stats := StatsDetail{BuyVolume: decimal.Zero, SellVolume: decimal.Zero, TopTickers: []string{}}
	users := make(map[string]bool)
	tickers := make(map[string]int)

	for _, trade := range trades {
		if trade.Timestamp.Before(since) {
			continue
		}
		stats.TotalTrades++
		if trade.Action == models.ActionSell {
			stats.Sells++
			stats.SellVolume = stats.SellVolume.Add(trade.TotalValue)
		} else {
			stats.Buys++
			stats.BuyVolume = stats.BuyVolume.Add(trade.TotalValue)
		}
		users[trade.UserID] = true
		tickers[trade.Ticker]++
	}
	stats.ActiveUsers = len(users)

	for ticker := range tickers {
		stats.TopTickers = append(stats.TopTickers, ticker)
	}
	sort.Slice(stats.TopTickers, func(i, j int) bool {
		a, b := stats.TopTickers[i], stats.TopTickers[j]
		if tickers[a] != tickers[b] {
			return tickers[a] > tickers[b]
		}
		return a < b
	})
	if len(stats.TopTickers) > 3 {
		stats.TopTickers = stats.TopTickers[:3]
	}
	return stats
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
