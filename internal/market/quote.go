package market

import (
	"context"
	"fmt"
	"time"

	"voice-broker-go/internal/faults"

	"github.com/shopspring/decimal"
)

// ErrUnavailable means no source could price the ticker. Callers must treat it as
// "cannot price right now", never as a zero price.
var ErrUnavailable = faults.New(faults.Upstream, "quote_unavailable", "quote unavailable")

// Quote is a normalized price snapshot from one source.
type Quote struct {
	Ticker        string          `json:"ticker"`
	Price         decimal.Decimal `json:"price"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Source        string          `json:"source"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// ChangePercent is the move against the previous close, or zero when unknown.
func (q *Quote) ChangePercent() decimal.Decimal {
	if q.PreviousClose.IsZero() {
		return decimal.Zero
	}
	return q.Price.Sub(q.PreviousClose).Div(q.PreviousClose).Mul(decimal.NewFromInt(100))
}

// Source is a single market-data backend.
type Source interface {
	Name() string
	Quote(ctx context.Context, ticker string) (*Quote, error)
}

// SourceError describes why a source could not produce a quote.
type SourceError struct {
	Type    string // "network", "rate_limit", "provider_error", "bad_symbol"
	Source  string
	Ticker  string
	Message string
	Cause   error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s error for %s: %s (%v)", e.Source, e.Type, e.Ticker, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s error for %s: %s", e.Source, e.Type, e.Ticker, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

func newNetworkError(source, ticker, message string, cause error) *SourceError {
	return &SourceError{Type: "network", Source: source, Ticker: ticker, Message: message, Cause: cause}
}

func newRateLimitError(source, ticker, message string) *SourceError {
	return &SourceError{Type: "rate_limit", Source: source, Ticker: ticker, Message: message}
}

func newProviderError(source, ticker, message string, cause error) *SourceError {
	return &SourceError{Type: "provider_error", Source: source, Ticker: ticker, Message: message, Cause: cause}
}

func newBadSymbolError(source, ticker, message string) *SourceError {
	return &SourceError{Type: "bad_symbol", Source: source, Ticker: ticker, Message: message}
}
