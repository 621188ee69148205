package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-broker-go/internal/faults"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Name() string {
	return m.Called().String(0)
}

func (m *MockSource) Quote(ctx context.Context, ticker string) (*Quote, error) {
	args := m.Called(ctx, ticker)
	q, _ := args.Get(0).(*Quote)
	return q, args.Error(1)
}

// slowSource blocks until its context is done.
type slowSource struct{}

func (slowSource) Name() string { return "slow" }

func (slowSource) Quote(ctx context.Context, ticker string) (*Quote, error) {
	<-ctx.Done()
	return nil, newNetworkError("slow", ticker, "timed out", ctx.Err())
}

func newMockSource(name string) *MockSource {
	src := new(MockSource)
	src.On("Name").Return(name).Maybe()
	return src
}

func quoteOf(ticker string, price int64) *Quote {
	return &Quote{Ticker: ticker, Price: decimal.NewFromInt(price), PreviousClose: decimal.NewFromInt(price), Source: "mock"}
}

func TestProviderGetQuote(t *testing.T) {
	ctx := context.Background()

	t.Run("PrimarySourceWins", func(t *testing.T) {
		// Arrange
		primary, secondary := newMockSource("primary"), newMockSource("secondary")
		primary.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 150), nil).Once()
		p := NewProvider([]Source{primary, secondary}, nil, nil, time.Second, zap.NewNop())

		// Act
		q, err := p.GetQuote(ctx, "aapl", false)

		// Assert
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(150).Equal(q.Price))
		primary.AssertExpectations(t)
		secondary.AssertNotCalled(t, "Quote", mock.Anything, mock.Anything)
	})

	t.Run("FallsBackToSecondary", func(t *testing.T) {
		primary, secondary := newMockSource("primary"), newMockSource("secondary")
		primary.On("Quote", mock.Anything, "AAPL").Return(nil, newNetworkError("primary", "AAPL", "refused", errors.New("dial"))).Once()
		secondary.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 151), nil).Once()
		p := NewProvider([]Source{primary, secondary}, nil, nil, time.Second, zap.NewNop())

		q, err := p.GetQuote(ctx, "AAPL", false)

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(151).Equal(q.Price))
		primary.AssertExpectations(t)
		secondary.AssertExpectations(t)
	})

	t.Run("ZeroPriceIsAFailure", func(t *testing.T) {
		primary, secondary := newMockSource("primary"), newMockSource("secondary")
		primary.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 0), nil).Once()
		secondary.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 152), nil).Once()
		p := NewProvider([]Source{primary, secondary}, nil, nil, time.Second, zap.NewNop())

		q, err := p.GetQuote(ctx, "AAPL", false)

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(152).Equal(q.Price))
	})

	t.Run("TimeoutAdvancesToNextSource", func(t *testing.T) {
		secondary := newMockSource("secondary")
		secondary.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 153), nil).Once()
		p := NewProvider([]Source{slowSource{}, secondary}, nil, nil, 20*time.Millisecond, zap.NewNop())

		q, err := p.GetQuote(ctx, "AAPL", false)

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(153).Equal(q.Price))
	})

	t.Run("EmergencyTable", func(t *testing.T) {
		primary := newMockSource("primary")
		primary.On("Quote", mock.Anything, "MSFT").Return(nil, newProviderError("primary", "MSFT", "bad payload", nil)).Once()
		p := NewProvider([]Source{primary}, nil, map[string]float64{"msft": 420}, time.Second, zap.NewNop())

		q, err := p.GetQuote(ctx, "MSFT", false)

		require.NoError(t, err)
		assert.Equal(t, emergencySource, q.Source)
		assert.True(t, decimal.NewFromInt(420).Equal(q.Price))
	})

	t.Run("Unavailable", func(t *testing.T) {
		primary := newMockSource("primary")
		primary.On("Quote", mock.Anything, "ZZZZ").Return(nil, newBadSymbolError("primary", "ZZZZ", "unknown")).Once()
		p := NewProvider([]Source{primary}, nil, map[string]float64{"AAPL": 175}, time.Second, zap.NewNop())

		q, err := p.GetQuote(ctx, "ZZZZ", false)

		assert.Nil(t, q)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, faults.Upstream, faults.KindOf(err))
	})
}

func TestProviderCache(t *testing.T) {
	ctx := context.Background()

	t.Run("HitSkipsSources", func(t *testing.T) {
		src := newMockSource("primary")
		src.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 150), nil).Once()
		p := NewProvider([]Source{src}, NewMemoryCache(time.Minute), nil, time.Second, zap.NewNop())

		_, err := p.GetQuote(ctx, "AAPL", false)
		require.NoError(t, err)
		price, err := p.GetPrice(ctx, "AAPL")

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(150).Equal(price))
		src.AssertNumberOfCalls(t, "Quote", 1)
	})

	t.Run("BypassRefetches", func(t *testing.T) {
		src := newMockSource("primary")
		src.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 150), nil).Once()
		src.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 155), nil).Once()
		p := NewProvider([]Source{src}, NewMemoryCache(time.Minute), nil, time.Second, zap.NewNop())

		_, err := p.GetQuote(ctx, "AAPL", false)
		require.NoError(t, err)
		q, err := p.GetQuote(ctx, "AAPL", true)

		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(155).Equal(q.Price))
		src.AssertNumberOfCalls(t, "Quote", 2)
	})

	t.Run("Expiry", func(t *testing.T) {
		now := time.Now()
		cache := NewMemoryCache(time.Minute)
		cache.now = func() time.Time { return now }
		cache.Set("AAPL", quoteOf("AAPL", 150))

		_, hit := cache.Get("AAPL")
		assert.True(t, hit)

		now = now.Add(2 * time.Minute)
		_, hit = cache.Get("AAPL")
		assert.False(t, hit)
	})
}

func TestProviderGetQuotes(t *testing.T) {
	// Arrange
	src := newMockSource("primary")
	src.On("Quote", mock.Anything, "AAPL").Return(quoteOf("AAPL", 150), nil)
	src.On("Quote", mock.Anything, "TSLA").Return(quoteOf("TSLA", 250), nil)
	src.On("Quote", mock.Anything, "ZZZZ").Return(nil, newBadSymbolError("primary", "ZZZZ", "unknown"))
	p := NewProvider([]Source{src}, nil, nil, time.Second, zap.NewNop())

	// Act
	quotes := p.GetQuotes(context.Background(), []string{"AAPL", "tsla", "ZZZZ", "AAPL"})

	// Assert
	assert.Len(t, quotes, 2)
	assert.True(t, decimal.NewFromInt(250).Equal(quotes["TSLA"].Price))
	_, ok := quotes["ZZZZ"]
	assert.False(t, ok)
}
