// Package recommend produces the stock pick the broker pitches to a caller.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/llm"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	fallbackTicker    = "AAPL"
	fallbackQuantity  = 10
	fallbackRationale = "Apple's sitting on a mountain of cash and the services business keeps printing money."
)

const promptTemplate = `You are %s, a sharp, confident stock broker. Recommend exactly one trade for your client.

CLIENT PORTFOLIO:
%s

MARKET:
%s

Rules:
- Suggest a buy the client can afford with their cash balance, or a sell of shares they already hold.
- Prefer tickers on the client's watchlist when one fits.
- Keep the rationale to one punchy sentence.
Output only a JSON object: {"ticker": "SYMBOL", "action": "buy"|"sell", "quantity": integer, "rationale": "..."}`

// Pricer prices a single ticker.
type Pricer interface {
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// Engine builds recommendations.
type Engine struct {
	llm    llm.Client
	prices Pricer
	name   string
	logger *zap.Logger
}

// NewEngine creates an engine. client may be nil.
func NewEngine(client llm.Client, prices Pricer, brokerName string, logger *zap.Logger) *Engine {
	return &Engine{llm: client, prices: prices, name: brokerName, logger: logger.Named("recommend")}
}

type suggestion struct {
	Ticker    string          `json:"ticker"`
	Action    string          `json:"action"`
	Quantity  json.RawMessage `json:"quantity"`
	Rationale string          `json:"rationale"`
}

// Recommend asks the model for a pick and falls back to a canned one. Either way the
// quantity is bounded by what the portfolio can support: buys by cash at the current
// price, sells by shares held.
func (e *Engine) Recommend(ctx context.Context, portfolio *ledger.PortfolioSummary, summary *market.Summary) models.Recommendation {
	if portfolio == nil {
		portfolio = &ledger.PortfolioSummary{}
	}
	if rec, ok := e.fromModel(ctx, portfolio, summary); ok {
		return rec
	}
	return e.fallback(ctx, portfolio)
}

func (e *Engine) fromModel(ctx context.Context, portfolio *ledger.PortfolioSummary, summary *market.Summary) (models.Recommendation, bool) {
	if e.llm == nil {
		return models.Recommendation{}, false
	}

	marketText := "Unknown"
	if summary != nil {
		marketText = summary.Describe()
	}
	out, err := e.llm.Generate(ctx, fmt.Sprintf(promptTemplate, e.name, portfolio.Describe(), marketText))
	if err != nil {
		e.logger.Warn("Recommendation generation failed, using fallback", zap.Error(err))
		return models.Recommendation{}, false
	}

	var s suggestion
	if err := json.Unmarshal([]byte(llm.CleanJSON(out)), &s); err != nil {
		e.logger.Warn("Unparseable recommendation from model, using fallback", zap.String("output", out))
		return models.Recommendation{}, false
	}

	ticker := models.NormalizeTicker(s.Ticker)
	action, ok := models.ParseAction(s.Action)
	quantity := intent.ExtractQuantity(strings.Trim(string(s.Quantity), `"`))
	if !ok || !intent.ValidSymbol(ticker) || quantity <= 0 {
		e.logger.Warn("Invalid recommendation from model, using fallback", zap.String("output", out))
		return models.Recommendation{}, false
	}

	rec := models.Recommendation{Ticker: ticker, Action: action, Quantity: quantity, Rationale: strings.TrimSpace(s.Rationale)}
	switch action {
	case models.ActionSell:
		held, ok := portfolio.Position(ticker)
		if !ok {
			e.logger.Warn("Model recommended selling a position the client does not hold", zap.String("ticker", ticker))
			return models.Recommendation{}, false
		}
		rec.Quantity = min(rec.Quantity, held.Quantity)
	case models.ActionBuy:
		if portfolio.UserID == "" {
			break
		}
		if price, err := e.prices.GetPrice(ctx, ticker); err == nil {
			affordable := affordableShares(portfolio.CashBalance, price)
			if affordable < 1 {
				return models.Recommendation{}, false
			}
			rec.Quantity = min(rec.Quantity, affordable)
		}
	}
	return rec, true
}

// fallback pitches the canned buy, sized to the client's cash. A client who cannot
// afford a single share is pitched a trim of their largest holding instead, and one
// with nothing to trim gets no pitch at all.
func (e *Engine) fallback(ctx context.Context, portfolio *ledger.PortfolioSummary) models.Recommendation {
	rec := models.Recommendation{Ticker: fallbackTicker, Action: models.ActionBuy, Quantity: fallbackQuantity, Rationale: fallbackRationale}
	if portfolio.UserID == "" {
		// Unknown client, nothing to bound against.
		return rec
	}
	price, err := e.prices.GetPrice(ctx, fallbackTicker)
	if err != nil {
		return rec
	}
	if affordable := affordableShares(portfolio.CashBalance, price); affordable > 0 {
		rec.Quantity = min(rec.Quantity, affordable)
		return rec
	}

	largest, ok := largestHolding(portfolio)
	if !ok {
		e.logger.Info("Client has no cash and no holdings, skipping pitch", zap.String("user_id", portfolio.UserID))
		return models.Recommendation{}
	}
	return models.Recommendation{
		Ticker:    largest.Ticker,
		Action:    models.ActionSell,
		Quantity:  max(1, largest.Quantity/4),
		Rationale: fmt.Sprintf("You're out of dry powder; trimming %s gets you cash for the next move.", largest.Ticker),
	}
}

func largestHolding(portfolio *ledger.PortfolioSummary) (ledger.PositionView, bool) {
	var largest ledger.PositionView
	found := false
	for _, p := range portfolio.Positions {
		if p.Quantity <= 0 {
			continue
		}
		if !found || p.Value.GreaterThan(largest.Value) {
			largest, found = p, true
		}
	}
	return largest, found
}

func affordableShares(cash, price decimal.Decimal) int {
	if !price.IsPositive() || !cash.IsPositive() {
		return 0
	}
	return int(cash.Div(price).Floor().IntPart())
}
