package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"voice-broker-go/internal/llm"
	"voice-broker-go/internal/models"

	"go.uber.org/zap"
)

const (
	ModeCombined = "combined"
	ModeTwoStage = "two_stage"
)

const historyTurns = 6

const tickerHint = `The caller is asking about a stock price. Which stock ticker symbol do they mean?
Reply with only the ticker symbol in capital letters, or NONE if no stock is named.`

const labelHint = `Classify the caller's statement to their stock broker as either:
1. TRADE (an order to buy or sell stocks)
2. CONVERSATION (questions or talk about markets, their portfolio, advice, anything else)
Output only "TRADE" or "CONVERSATION".`

const fieldsHint = `Parse the caller's statement into a trading order with these fields:
- action: "buy" or "sell"
- ticker: the stock ticker symbol (not the company name)
- quantity: the number of shares as an integer
Output only a JSON object with the fields action, ticker, quantity. Use null for anything missing or unclear.`

const combinedHint = `You are parsing what a caller said to their stock broker on the phone.
%s
Decide whether the caller is placing a trade order or just talking (questions, opinions, advice, small talk).
Output only a JSON object:
{"is_conversation": true|false, "action": "buy"|"sell"|null, "ticker": "SYMBOL"|null, "quantity": integer|null}
Use the stock ticker symbol, not the company name. Use null for anything missing or unclear.`

// Resolver classifies utterances.
type Resolver struct {
	llm    llm.Client
	mode   string
	logger *zap.Logger
}

// NewResolver creates a resolver. client may be nil; mode is ModeCombined or
// ModeTwoStage.
func NewResolver(client llm.Client, mode string, logger *zap.Logger) *Resolver {
	if mode != ModeTwoStage {
		mode = ModeCombined
	}
	return &Resolver{llm: client, mode: mode, logger: logger.Named("intent")}
}

// Resolve classifies one utterance. history is the call so far, oldest first. recent is
// the recommendation last pitched on this call, if the caller knows it.
//
// Price checks are detected first and win over any trade wording. An affirmative reply
// that names no ticker of its own is an Agreement. Everything else is split into Trade
// or Conversation.
func (r *Resolver) Resolve(ctx context.Context, utterance string, history []models.CallLog, recent *models.Recommendation) Intent {
	utterance = strings.TrimSpace(utterance)
	result := r.resolve(ctx, utterance, history, recent)
	r.logger.Debug("Resolved intent", zap.String("utterance", utterance), zap.String("kind", result.Kind()), zap.Any("intent", result))
	return result
}

func (r *Resolver) resolve(ctx context.Context, utterance string, history []models.CallLog, recent *models.Recommendation) Intent {
	if HasPriceCue(utterance) {
		if ticker := r.priceTicker(ctx, utterance); ticker != "" {
			return PriceCheck{Ticker: ticker}
		}
	}

	if IsAffirmative(utterance) && !IsAdvisory(utterance) && ExtractTicker(utterance) == "" {
		return agreement(utterance, history, recent)
	}

	var (
		result Intent
		ok     bool
	)
	if r.llm != nil {
		if r.mode == ModeTwoStage {
			result, ok = r.twoStage(ctx, utterance)
		} else {
			result, ok = r.combined(ctx, utterance, history)
		}
	}
	if !ok {
		result = Fallback(utterance)
	}
	return result
}

// priceTicker asks the model for the symbol and falls back to the extractors.
func (r *Resolver) priceTicker(ctx context.Context, utterance string) string {
	if r.llm != nil {
		out, err := r.llm.Classify(ctx, utterance, tickerHint)
		if err != nil {
			r.logger.Warn("Ticker extraction failed, using fallback", zap.Error(err))
		} else if sym := strings.ToUpper(strings.Trim(out, " \t\n.\"'`")); sym != "NONE" && ValidSymbol(sym) {
			return sym
		}
	}
	return ExtractTicker(utterance)
}

// Fallback classifies without a model.
func Fallback(utterance string) Intent {
	action, hasAction := DetectAction(utterance)
	ticker := ExtractTicker(utterance)
	quantity := ExtractQuantity(utterance)

	switch {
	case IsAdvisory(utterance):
		return Conversation{Query: utterance}
	case hasAction && (ticker != "" || quantity > 0):
		return Trade{Action: action, Ticker: ticker, Quantity: quantity}
	case isConversational(utterance):
		return Conversation{Query: utterance}
	case hasAction:
		return Trade{Action: action}
	}
	return Conversation{Query: utterance}
}

// agreement recovers the recommendation the caller said yes to.
func agreement(utterance string, history []models.CallLog, recent *models.Recommendation) Agreement {
	var trade *Trade
	source := ""
	if recent != nil && recent.Ticker != "" {
		trade = &Trade{Action: recent.Action, Ticker: models.NormalizeTicker(recent.Ticker), Quantity: recent.Quantity}
		if _, ok := models.ParseAction(string(trade.Action)); !ok {
			trade.Action = models.ActionBuy
		}
		if trade.Quantity <= 0 {
			trade.Quantity = 10
		}
		source = SourceRecommendation
	} else {
		// Only the broker's last words count; an older pitch has been answered already.
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Direction != models.Outbound {
				continue
			}
			if t, ok := ParseRecommendation(history[i].Content); ok {
				trade, source = t, SourceTranscript
			}
			break
		}
	}

	// "yes, but make it 5" adjusts the order.
	if trade != nil {
		if q := ExtractQuantity(utterance); q > 0 {
			trade.Quantity = q
		}
		if action, ok := DetectAction(utterance); ok {
			trade.Action = action
		}
	}
	return Agreement{Trade: trade, Source: source}
}

type tradeFields struct {
	IsConversation *bool           `json:"is_conversation"`
	Action         *string         `json:"action"`
	Ticker         *string         `json:"ticker"`
	Quantity       json.RawMessage `json:"quantity"`
}

func (r *Resolver) combined(ctx context.Context, utterance string, history []models.CallLog) (Intent, bool) {
	out, err := r.llm.Classify(ctx, utterance, fmt.Sprintf(combinedHint, formatHistory(history)))
	if err != nil {
		r.logger.Warn("Intent classification failed, using fallback", zap.Error(err))
		return nil, false
	}

	var fields tradeFields
	if err := json.Unmarshal([]byte(llm.CleanJSON(out)), &fields); err != nil || fields.IsConversation == nil {
		r.logger.Warn("Unparseable intent from model, using fallback", zap.String("output", out))
		return nil, false
	}
	if *fields.IsConversation {
		return Conversation{Query: utterance}, true
	}
	return fields.trade(utterance), true
}

func (r *Resolver) twoStage(ctx context.Context, utterance string) (Intent, bool) {
	label, err := r.llm.Classify(ctx, utterance, labelHint)
	if err != nil {
		r.logger.Warn("Intent classification failed, using fallback", zap.Error(err))
		return nil, false
	}

	label = strings.ToUpper(label)
	switch {
	case strings.Contains(label, "CONVERSATION"):
		return Conversation{Query: utterance}, true
	case !strings.Contains(label, "TRADE"):
		r.logger.Warn("Unparseable intent label from model, using fallback", zap.String("output", label))
		return nil, false
	}

	var fields tradeFields
	out, err := r.llm.Classify(ctx, utterance, fieldsHint)
	if err == nil {
		err = json.Unmarshal([]byte(llm.CleanJSON(out)), &fields)
	}
	if err != nil {
		r.logger.Warn("Trade field extraction failed, using extractors", zap.Error(err))
		fields = tradeFields{}
	}
	return fields.trade(utterance), true
}

// trade takes each field from the model when it is valid, otherwise from the extractors.
func (f tradeFields) trade(utterance string) Trade {
	var t Trade
	if f.Action != nil {
		t.Action, _ = models.ParseAction(*f.Action)
	}
	if t.Action == "" {
		t.Action, _ = DetectAction(utterance)
	}
	if f.Ticker != nil {
		if sym := models.NormalizeTicker(*f.Ticker); ValidSymbol(sym) {
			t.Ticker = sym
		}
	}
	if t.Ticker == "" {
		t.Ticker = ExtractTicker(utterance)
	}
	quantity, fractional := rawQuantity(f.Quantity)
	switch {
	case fractional:
		// Left empty so the caller is asked for a whole number of shares.
		t.Quantity = 0
	case quantity > 0:
		t.Quantity = quantity
	default:
		t.Quantity = ExtractQuantity(utterance)
	}
	return t
}

// rawQuantity accepts 10, 10.0 or "10". A fractional count such as 10.7 is reported
// as fractional rather than truncated.
func rawQuantity(raw json.RawMessage) (quantity int, fractional bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		if n, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return 0, false
		}
	}
	if n != math.Trunc(n) {
		return 0, true
	}
	return int(n), false
}

func formatHistory(history []models.CallLog) string {
	if len(history) == 0 {
		return "This is the start of the call."
	}
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation:\n")
	for _, entry := range history {
		speaker := "Caller"
		if entry.Direction == models.Outbound {
			speaker = "Broker"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, entry.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
