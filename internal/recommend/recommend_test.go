package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Classify(ctx context.Context, text, schemaHint string) (string, error) {
	args := m.Called(ctx, text, schemaHint)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockPricer struct {
	mock.Mock
}

func (m *MockPricer) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	args := m.Called(ctx, ticker)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func portfolio(cash int64, positions ...ledger.PositionView) *ledger.PortfolioSummary {
	return &ledger.PortfolioSummary{UserID: "u1", Name: "Jordan", CashBalance: decimal.NewFromInt(cash), Positions: positions}
}

func TestRecommendFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("NoModel", func(t *testing.T) {
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(nil, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(10000), nil)

		assert.Equal(t, "AAPL", rec.Ticker)
		assert.Equal(t, models.ActionBuy, rec.Action)
		assert.Equal(t, 10, rec.Quantity)
		assert.NotEmpty(t, rec.Rationale)
	})

	t.Run("BoundedByCash", func(t *testing.T) {
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(nil, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(600), nil)

		assert.Equal(t, 3, rec.Quantity)
	})

	t.Run("NoCashTrimsLargestHolding", func(t *testing.T) {
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(nil, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(100,
			ledger.PositionView{Ticker: "F", Quantity: 40, Value: decimal.NewFromInt(480)},
			ledger.PositionView{Ticker: "MSFT", Quantity: 8, Value: decimal.NewFromInt(3200)},
		), nil)

		assert.Equal(t, "MSFT", rec.Ticker)
		assert.Equal(t, models.ActionSell, rec.Action)
		assert.Equal(t, 2, rec.Quantity)
	})

	t.Run("NoCashNoHoldings", func(t *testing.T) {
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(nil, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(0), nil)

		assert.True(t, rec.Empty())
	})

	t.Run("GarbageModel", func(t *testing.T) {
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.Anything).Return("buy the dip, champ", nil)
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.Zero, market.ErrUnavailable)
		e := NewEngine(m, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(10000), nil)

		assert.Equal(t, models.Recommendation{Ticker: "AAPL", Action: models.ActionBuy, Quantity: 10, Rationale: fallbackRationale}, rec)
	})

	t.Run("UnknownClient", func(t *testing.T) {
		e := NewEngine(nil, new(MockPricer), "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, nil, nil)

		assert.Equal(t, 10, rec.Quantity)
	})

	t.Run("ModelError", func(t *testing.T) {
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("deadline exceeded"))
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(m, pricer, "Wolf", zap.NewNop())

		assert.Equal(t, "AAPL", e.Recommend(ctx, portfolio(10000), nil).Ticker)
	})
}

func TestRecommendFromModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Accepted", func(t *testing.T) {
		// Arrange
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.MatchedBy(func(prompt string) bool {
			return strings.Contains(prompt, "Cash balance: $10000.00") && strings.Contains(prompt, "You are Wolf")
		})).Return(`{"ticker":"nvda","action":"buy","quantity":5,"rationale":"Chips are the new oil."}`, nil)
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "NVDA").Return(decimal.NewFromInt(120), nil)
		e := NewEngine(m, pricer, "Wolf", zap.NewNop())

		// Act
		rec := e.Recommend(ctx, portfolio(10000), nil)

		// Assert
		assert.Equal(t, models.Recommendation{Ticker: "NVDA", Action: models.ActionBuy, Quantity: 5, Rationale: "Chips are the new oil."}, rec)
		m.AssertExpectations(t)
	})

	t.Run("BuyClampedToCash", func(t *testing.T) {
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.Anything).Return(`{"ticker":"NVDA","action":"buy","quantity":50,"rationale":"Go big."}`, nil)
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "NVDA").Return(decimal.NewFromInt(120), nil)
		e := NewEngine(m, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(1000), nil)

		assert.Equal(t, "NVDA", rec.Ticker)
		assert.Equal(t, 8, rec.Quantity)
	})

	t.Run("SellClampedToHolding", func(t *testing.T) {
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.Anything).Return(`{"ticker":"TSLA","action":"sell","quantity":"20","rationale":"Lock in the win."}`, nil)
		e := NewEngine(m, new(MockPricer), "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(0, ledger.PositionView{Ticker: "TSLA", Quantity: 4}), nil)

		assert.Equal(t, models.ActionSell, rec.Action)
		assert.Equal(t, 4, rec.Quantity)
	})

	t.Run("SellOfUnheldFallsBack", func(t *testing.T) {
		m := new(MockLLM)
		m.On("Generate", mock.Anything, mock.Anything).Return(`{"ticker":"TSLA","action":"sell","quantity":2,"rationale":"x"}`, nil)
		pricer := new(MockPricer)
		pricer.On("GetPrice", mock.Anything, "AAPL").Return(decimal.NewFromInt(175), nil)
		e := NewEngine(m, pricer, "Wolf", zap.NewNop())

		rec := e.Recommend(ctx, portfolio(10000), nil)

		assert.Equal(t, "AAPL", rec.Ticker)
	})
}
