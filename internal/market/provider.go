package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const emergencySource = "emergency"

// Provider prices tickers from a priority-ordered chain of sources, falling back to a
// static emergency table. It never reports a zero price.
type Provider struct {
	sources   []Source
	cache     Cache
	emergency map[string]decimal.Decimal
	timeout   time.Duration
	logger    *zap.Logger
}

// NewProvider creates a provider. Sources are tried in the order given.
func NewProvider(sources []Source, cache Cache, emergency map[string]float64, timeout time.Duration, logger *zap.Logger) *Provider {
	table := make(map[string]decimal.Decimal, len(emergency))
	for ticker, price := range emergency {
		if price > 0 {
			table[models.NormalizeTicker(ticker)] = decimal.NewFromFloat(price)
		}
	}
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Provider{
		sources:   sources,
		cache:     cache,
		emergency: table,
		timeout:   timeout,
		logger:    logger.Named("market"),
	}
}

// NewProviderFromConfig wires the enabled sources and an in-memory cache.
func NewProviderFromConfig(cfg config.Market, logger *zap.Logger) *Provider {
	var sources []Source
	if cfg.Yahoo.Enabled {
		sources = append(sources, NewYahooSource(cfg.Yahoo, logger))
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.ApiKey != "" {
		sources = append(sources, NewAlphaVantageSource(cfg.AlphaVantage, logger))
	}
	return NewProvider(sources, NewMemoryCache(cfg.CacheTTL), cfg.EmergencyPrices, cfg.SourceTimeout, logger)
}

// GetQuote prices a ticker. bypassCache forces a fresh lookup, which trades always use.
// It returns an error wrapping ErrUnavailable when nothing can price the ticker.
func (p *Provider) GetQuote(ctx context.Context, ticker string, bypassCache bool) (*Quote, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("empty ticker: %w", ErrUnavailable)
	}

	if !bypassCache {
		if q, ok := p.cache.Get(ticker); ok {
			return q, nil
		}
	}

	for _, src := range p.sources {
		q, err := p.fromSource(ctx, src, ticker)
		if err != nil {
			var srcErr *SourceError
			if errors.As(err, &srcErr) {
				p.logger.Warn("Quote source failed", zap.String("source", srcErr.Source), zap.String("ticker", ticker),
					zap.String("type", srcErr.Type), zap.String("message", srcErr.Message))
			} else {
				p.logger.Warn("Quote source failed", zap.String("source", src.Name()), zap.String("ticker", ticker), zap.Error(err))
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		p.cache.Set(ticker, q)
		return q, nil
	}

	if price, ok := p.emergency[ticker]; ok {
		p.logger.Info("Using emergency price", zap.String("ticker", ticker), zap.String("price", price.StringFixed(2)))
		return &Quote{Ticker: ticker, Price: price, PreviousClose: price, Source: emergencySource, FetchedAt: time.Now()}, nil
	}

	return nil, fmt.Errorf("no source could price %s: %w", ticker, ErrUnavailable)
}

// GetPrice is GetQuote reduced to the price, using the cache.
func (p *Provider) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	q, err := p.GetQuote(ctx, ticker, false)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

// fromSource makes one bounded attempt against a source.
func (p *Provider) fromSource(ctx context.Context, src Source, ticker string) (*Quote, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q, err := src.Quote(attemptCtx, ticker)
	if err != nil {
		return nil, err
	}
	if q == nil || !q.Price.IsPositive() {
		return nil, newProviderError(src.Name(), ticker, "non-positive price", nil)
	}
	q.Ticker = ticker
	return q, nil
}

// GetQuotes prices several tickers concurrently. Tickers that cannot be priced are
// absent from the result; a slow ticker only costs its own source timeouts.
func (p *Provider) GetQuotes(ctx context.Context, tickers []string) map[string]*Quote {
	type result struct {
		ticker string
		quote  *Quote
	}

	var wg sync.WaitGroup
	results := make(chan result, len(tickers))

	seen := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		t = models.NormalizeTicker(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			q, err := p.GetQuote(ctx, ticker, false)
			if err != nil {
				return
			}
			results <- result{ticker: ticker, quote: q}
		}(t)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	quotes := make(map[string]*Quote, len(seen))
	for r := range results {
		quotes[r.ticker] = r.quote
	}
	return quotes
}

// EmergencyPrice reports the static fallback price for a ticker, if any.
func (p *Provider) EmergencyPrice(ticker string) (decimal.Decimal, bool) {
	price, ok := p.emergency[strings.ToUpper(ticker)]
	return price, ok
}
