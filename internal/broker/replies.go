package broker

import (
	"fmt"
	"strings"

	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.NewFromInt(100)

const (
	ApologyText        = "Sorry, there was a problem processing your request. Please try again."
	unknownAccountText = "Sorry, I couldn't find an account for this number. Register on our website and give me a call back."
	goodbyeText        = "You got it. Pleasure doing business."
	retryText          = "I didn't catch that. Let me know if you want to buy or sell any stocks today."
	conversationCanned = "The markets have been quite volatile lately. I'd suggest diversifying your portfolio. Anything specific you'd like to know?"
	conversationFailed = "Look, the markets are always changing, but your strategy shouldn't. Let's focus on building a solid portfolio with good fundamentals. What are you thinking about investing in?"
)

const persona = `You are %s, an AI stock broker with the personality of a 1980s Wall Street broker: confident, sharp, a bit aggressive but professional.
You speak in short, punchy sentences, use period slang like "bull market" and "making a killing", and always address the client by name.
Your words are read aloud on a phone call, so never use lists, markdown or emoji.`

const introPrompt = persona + `

CURRENT MARKET DATA:
%s

CLIENT INFO:
%s

Greet the client by name, give a quick punchy take on the market using one key index, mention one news item if there is one,
and comment briefly on their portfolio or recent trades. Do not recommend a specific stock; that comes next. Keep it to 3-4 sentences.`

const conversationPrompt = persona + `

CLIENT INFO:
%s

CURRENT MARKET DATA:
%s

%s

Your client just said: %q

Respond in character with market insight, advice or commentary. Keep it to 2-3 sentences.`

const tradePrompt = persona + `

Your client asked to %s %d shares of %s.
Outcome: %s.

If it worked, mention the price and congratulate them. If it failed, explain why in a sympathetic but upbeat way.
Reply in 1-2 short sentences.`

func introFallback(broker, client string, portfolio *ledger.PortfolioSummary, summary *market.Summary) string {
	return fmt.Sprintf("Hey %s! %s here. %s %s", client, broker, summary.Spoken(), portfolioComment(portfolio))
}

func portfolioComment(p *ledger.PortfolioSummary) string {
	if p == nil || len(p.Positions) == 0 {
		return "You're sitting on cash, and cash doesn't make anybody rich."
	}
	best := p.Positions[0]
	for _, pos := range p.Positions[1:] {
		if pos.ProfitLoss.GreaterThan(best.ProfitLoss) {
			best = pos
		}
	}
	if best.ProfitLoss.IsPositive() {
		return fmt.Sprintf("Your %s position is up %s%%. Beautiful.", best.Ticker, best.ProfitLoss.StringFixed(1))
	}
	return "Your portfolio is holding steady."
}

// tradeTemplate phrases a ledger result without the model.
func tradeTemplate(r *ledger.TradeResult) string {
	req := r.Request
	if r.OK() {
		return fmt.Sprintf("Boom! Just %s %d shares of %s at $%s. You've got the Midas touch, baby!",
			req.Action.PastTense(), req.Quantity, req.Ticker, r.Price.StringFixed(2))
	}
	return fmt.Sprintf("No dice on that %s %s due to %s. Let's pivot and find you another killer opportunity!",
		req.Ticker, req.Action, lowerFirst(r.Message()))
}

func clarification(t intent.Trade) string {
	var asks []string
	for _, field := range t.Missing() {
		switch field {
		case "action":
			asks = append(asks, "whether you're buying or selling")
		case "ticker":
			asks = append(asks, "which stock")
		case "quantity":
			asks = append(asks, "how many shares")
		}
	}
	lead := "I'm on it, but I need a little more."
	if t.Action != "" {
		lead = fmt.Sprintf("Ready to %s.", t.Action)
	}
	return fmt.Sprintf("%s Tell me %s.", lead, strings.Join(asks, " and "))
}

func priceText(q *market.Quote, held *models.Position) string {
	change := q.ChangePercent()
	direction := "up"
	if change.IsNegative() {
		direction = "down"
	}
	text := fmt.Sprintf("%s is trading at $%s, %s %s%% on the day.", q.Ticker, q.Price.StringFixed(2), direction, change.Abs().StringFixed(1))
	if held == nil || !held.AvgPrice.IsPositive() {
		return text
	}

	pl := q.Price.Sub(held.AvgPrice).Div(held.AvgPrice).Mul(decimalHundred)
	status := "up"
	if pl.IsNegative() {
		status = "down"
	}
	return fmt.Sprintf("%s You're holding %d shares at an average of $%s, so you're %s %s%% on that position.",
		text, held.Quantity, held.AvgPrice.StringFixed(2), status, pl.Abs().StringFixed(1))
}

func formatHistory(history []models.CallLog, limit int) string {
	if len(history) == 0 {
		return "This is the start of the call."
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	var b strings.Builder
	b.WriteString("CALL SO FAR:\n")
	for _, entry := range history {
		speaker := "Client"
		if entry.Direction == models.Outbound {
			speaker = "You"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, entry.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
