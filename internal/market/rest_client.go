package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// restClient is the HTTP plumbing shared by the market-data sources.
type restClient struct {
	name    string
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
}

func newRestClient(name, baseURL string, limit float64, burst int, logger *zap.Logger) *restClient {
	if limit <= 0 {
		limit = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &restClient{
		name:    name,
		client:  resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
		logger:  logger.Named(name),
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
	}
}

// doRequest waits for the rate limiter and executes the request once. There is no
// retry loop here: a failed source is skipped by the provider's fallback chain.
func (c *restClient) doRequest(ctx context.Context, ticker, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newRateLimitError(c.name, ticker, fmt.Sprintf("rate limiter wait failed: %v", err))
	}

	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, newNetworkError(c.name, ticker, "request failed", err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusTooManyRequests:
		return nil, newRateLimitError(c.name, ticker, "rate limited by provider")
	case status == http.StatusNotFound:
		return nil, newBadSymbolError(c.name, ticker, "unknown symbol")
	case resp.IsError():
		return nil, newProviderError(c.name, ticker, fmt.Sprintf("request failed with status %s: %s", resp.Status(), resp.String()), nil)
	}

	return resp, nil
}
