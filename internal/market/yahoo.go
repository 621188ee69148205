package market

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"voice-broker-go/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const yahooUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

// YahooSource prices tickers from Yahoo Finance's chart endpoint. It also serves index
// symbols such as ^GSPC.
type YahooSource struct {
	rest *restClient
}

var _ Source = (*YahooSource)(nil)

// NewYahooSource creates the primary market-data source.
func NewYahooSource(cfg config.Source, logger *zap.Logger) *YahooSource {
	return &YahooSource{rest: newRestClient("yahoo", cfg.BaseURL, cfg.RateLimit, cfg.RateLimitBurst, logger)}
}

func (s *YahooSource) Name() string {
	return "yahoo"
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote fetches the latest price and previous close for a ticker.
func (s *YahooSource) Quote(ctx context.Context, ticker string) (*Quote, error) {
	req := s.rest.client.R().
		SetQueryParams(map[string]string{"interval": "1d", "range": "2d"}).
		SetHeader("User-Agent", yahooUserAgent).
		SetHeader("Accept", "application/json").
		SetResult(&yahooChartResponse{})

	resp, err := s.rest.doRequest(ctx, ticker, http.MethodGet, "/v8/finance/chart/"+url.PathEscape(ticker), req)
	if err != nil {
		return nil, err
	}

	payload, ok := resp.Result().(*yahooChartResponse)
	if !ok || payload == nil {
		return nil, newProviderError(s.Name(), ticker, "failed to parse response", nil)
	}
	if payload.Chart.Error != nil {
		return nil, newBadSymbolError(s.Name(), ticker, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return nil, newBadSymbolError(s.Name(), ticker, "no chart data returned")
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, newProviderError(s.Name(), ticker, "non-positive price in response", nil)
	}
	previous := meta.PreviousClose
	if previous <= 0 {
		previous = meta.ChartPreviousClose
	}

	return &Quote{
		Ticker:        ticker,
		Price:         decimal.NewFromFloat(meta.RegularMarketPrice),
		PreviousClose: decimal.NewFromFloat(previous),
		Source:        s.Name(),
		FetchedAt:     time.Now(),
	}, nil
}
