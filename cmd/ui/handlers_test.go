package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-broker-go/internal/database"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var now = time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

func setupHandler(t *testing.T) (*APIHandler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	h := NewAPIHandler(zap.NewNop(), db)
	h.now = func() time.Time { return now }
	return h, db
}

func trade(userID, ticker string, action models.Action, total int64, at time.Time) *models.Trade {
	return &models.Trade{
		UserID:     userID,
		Ticker:     ticker,
		Action:     action,
		Quantity:   1,
		Price:      decimal.NewFromInt(total),
		TotalValue: decimal.NewFromInt(total),
		Timestamp:  at,
	}
}

func seedTrades(t *testing.T, db *gorm.DB) {
	for _, tr := range []*models.Trade{
		trade("u1", "AAPL", models.ActionBuy, 150, now.Add(-48*time.Hour)),
		trade("u1", "AAPL", models.ActionSell, 160, now.Add(-2*time.Hour)),
		trade("u2", "MSFT", models.ActionBuy, 400, now.Add(-time.Hour)),
		trade("u2", "AAPL", models.ActionBuy, 155, now.Add(-30*time.Minute)),
	} {
		require.NoError(t, db.Create(tr).Error)
	}
}

func get(t *testing.T, h *APIHandler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTradesHandler(t *testing.T) {
	h, db := setupHandler(t)
	seedTrades(t, db)

	t.Run("NewestFirst", func(t *testing.T) {
		rec := get(t, h, "/api/trades")

		require.Equal(t, http.StatusOK, rec.Code)
		var trades []models.Trade
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
		require.Len(t, trades, 4)
		assert.Equal(t, "AAPL", trades[0].Ticker)
		assert.Equal(t, "u2", trades[0].UserID)
		assert.True(t, trades[3].Timestamp.Equal(now.Add(-48*time.Hour)))
	})

	t.Run("FilteredAndLimited", func(t *testing.T) {
		rec := get(t, h, "/api/trades?user_id=u1&limit=1")

		var trades []models.Trade
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
		require.Len(t, trades, 1)
		assert.Equal(t, models.ActionSell, trades[0].Action)
	})

	t.Run("BadLimit", func(t *testing.T) {
		rec := get(t, h, "/api/trades?limit=-3")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ReadOnly", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/trades", nil))

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestStatisticsHandler(t *testing.T) {
	h, db := setupHandler(t)
	seedTrades(t, db)

	rec := get(t, h, "/api/statistics")

	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatisticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))

	assert.Equal(t, int64(4), stats.AllTime.TotalTrades)
	assert.Equal(t, int64(3), stats.AllTime.Buys)
	assert.True(t, decimal.NewFromInt(705).Equal(stats.AllTime.BuyVolume))
	assert.Equal(t, 2, stats.AllTime.ActiveUsers)
	assert.Equal(t, []string{"AAPL", "MSFT"}, stats.AllTime.TopTickers)

	assert.Equal(t, int64(3), stats.Since24h.TotalTrades)
	assert.Equal(t, int64(1), stats.Since24h.Sells)
	assert.True(t, decimal.NewFromInt(160).Equal(stats.Since24h.SellVolume))
	assert.True(t, decimal.NewFromInt(555).Equal(stats.Since24h.BuyVolume))
}

func TestStatusHandler(t *testing.T) {
	h, db := setupHandler(t)
	seedTrades(t, db)
	require.NoError(t, db.Create(&models.User{ID: "u1", Name: "Jordan", PhoneNumber: "+14155550100", CashBalance: decimal.NewFromInt(100)}).Error)
	require.NoError(t, db.Create(&models.Position{UserID: "u1", Ticker: "AAPL", Quantity: 3, AvgPrice: decimal.NewFromInt(150)}).Error)

	rec := get(t, h, "/api/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusResponse{Users: 1, OpenPositions: 1, Trades: 4}, status)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := computeStats(nil, time.Time{})

	assert.Zero(t, stats.TotalTrades)
	assert.True(t, stats.BuyVolume.IsZero())
	assert.Empty(t, stats.TopTickers)
}
