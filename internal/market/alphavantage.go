package market

import (
	"context"
	"net/http"
	"time"

	"voice-broker-go/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlphaVantageSource prices tickers from Alpha Vantage's GLOBAL_QUOTE function.
type AlphaVantageSource struct {
	rest   *restClient
	apiKey string
}

var _ Source = (*AlphaVantageSource)(nil)

// NewAlphaVantageSource creates the secondary market-data source.
func NewAlphaVantageSource(cfg config.Source, logger *zap.Logger) *AlphaVantageSource {
	return &AlphaVantageSource{
		rest:   newRestClient("alphavantage", cfg.BaseURL, cfg.RateLimit, cfg.RateLimitBurst, logger),
		apiKey: cfg.ApiKey,
	}
}

func (s *AlphaVantageSource) Name() string {
	return "alphavantage"
}

type globalQuoteResponse struct {
	GlobalQuote  map[string]string `json:"Global Quote"`
	ErrorMessage string            `json:"Error Message"`
	Information  string            `json:"Information"`
	Note         string            `json:"Note"`
}

// Quote fetches the latest price and previous close for a ticker.
func (s *AlphaVantageSource) Quote(ctx context.Context, ticker string) (*Quote, error) {
	if s.apiKey == "" {
		return nil, newProviderError(s.Name(), ticker, "api key not configured", nil)
	}

	req := s.rest.client.R().
		SetQueryParams(map[string]string{
			"function": "GLOBAL_QUOTE",
			"symbol":   ticker,
			"apikey":   s.apiKey,
		}).
		SetResult(&globalQuoteResponse{})

	resp, err := s.rest.doRequest(ctx, ticker, http.MethodGet, "/query", req)
	if err != nil {
		return nil, err
	}

	payload, ok := resp.Result().(*globalQuoteResponse)
	if !ok || payload == nil {
		return nil, newProviderError(s.Name(), ticker, "failed to parse response", nil)
	}
	if payload.ErrorMessage != "" {
		return nil, newProviderError(s.Name(), ticker, payload.ErrorMessage, nil)
	}
	// Information and Note carry the free tier's call-frequency warnings.
	if payload.Information != "" {
		return nil, newRateLimitError(s.Name(), ticker, payload.Information)
	}
	if payload.Note != "" {
		return nil, newRateLimitError(s.Name(), ticker, payload.Note)
	}
	if len(payload.GlobalQuote) == 0 {
		return nil, newBadSymbolError(s.Name(), ticker, "no quote data returned")
	}

	price, err := decimal.NewFromString(payload.GlobalQuote["05. price"])
	if err != nil || !price.IsPositive() {
		return nil, newProviderError(s.Name(), ticker, "invalid price in response", err)
	}
	previous, err := decimal.NewFromString(payload.GlobalQuote["08. previous close"])
	if err != nil {
		previous = decimal.Zero
	}

	return &Quote{
		Ticker:        ticker,
		Price:         price,
		PreviousClose: previous,
		Source:        s.Name(),
		FetchedAt:     time.Now(),
	}, nil
}
