// Package intent turns one caller utterance into a classified Intent.
//
// The language model is consulted where configured, but every call site has a
// deterministic fallback, and that fallback runs the same way whether the model is
// absent, failed, or answered with something that does not parse.
package intent

import "voice-broker-go/internal/models"

// Intent is one of Trade, PriceCheck, Agreement or Conversation.
type Intent interface {
	// Kind names the variant for logs and metrics.
	Kind() string
	isIntent()
}

// Trade is a request to buy or sell. Fields the caller did not give are zero.
type Trade struct {
	Action   models.Action
	Ticker   string
	Quantity int
}

// PriceCheck asks for a ticker's current price.
type PriceCheck struct {
	Ticker string
}

// Agreement is the caller accepting an earlier recommendation. Trade is nil when no
// recommendation could be recovered.
type Agreement struct {
	Trade  *Trade
	Source string // "recommendation" or "transcript"
}

// Conversation is anything else.
type Conversation struct {
	Query string
}

func (Trade) Kind() string        { return "trade" }
func (PriceCheck) Kind() string   { return "price_check" }
func (Agreement) Kind() string    { return "agreement" }
func (Conversation) Kind() string { return "conversation" }

func (Trade) isIntent()        {}
func (PriceCheck) isIntent()   {}
func (Agreement) isIntent()    {}
func (Conversation) isIntent() {}

// Complete reports whether every field needed to execute is present.
func (t Trade) Complete() bool {
	_, ok := models.ParseAction(string(t.Action))
	return ok && t.Ticker != "" && t.Quantity > 0
}

// Missing lists the absent fields by name, in action, ticker, quantity order.
func (t Trade) Missing() []string {
	var missing []string
	if _, ok := models.ParseAction(string(t.Action)); !ok {
		missing = append(missing, "action")
	}
	if t.Ticker == "" {
		missing = append(missing, "ticker")
	}
	if t.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	return missing
}

const (
	SourceRecommendation = "recommendation"
	SourceTranscript     = "transcript"
)
