package ledger

import (
	"errors"
	"fmt"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
)

// TradeResult is the settled outcome of a trade request. Failures are carried in Err
// rather than returned, so callers can explain them.
type TradeResult struct {
	Request     TradeRequest
	Trade       *models.Trade
	Position    *models.Position // after settlement; nil when closed or on failure
	Price       decimal.Decimal
	Total       decimal.Decimal
	CashBalance decimal.Decimal
	Err         error
}

func (r *TradeResult) fail(err error) *TradeResult {
	r.Err = err
	return r
}

// OK reports whether the trade settled.
func (r *TradeResult) OK() bool {
	return r.Err == nil && r.Trade != nil
}

// Status is "success" or the failure's stable code.
func (r *TradeResult) Status() string {
	if r.OK() {
		return "success"
	}
	return faults.CodeOf(r.Err)
}

// Kind is the failure category, meaningless on success.
func (r *TradeResult) Kind() faults.Kind {
	return faults.KindOf(r.Err)
}

// Message is a short human-readable description of the outcome.
func (r *TradeResult) Message() string {
	req := r.Request
	switch {
	case r.OK():
		return fmt.Sprintf("Successfully %s %d shares of %s at $%s", req.Action.PastTense(), req.Quantity, req.Ticker, r.Price.StringFixed(2))
	case errors.Is(r.Err, ErrInsufficientFunds):
		return fmt.Sprintf("Insufficient funds. Required: $%s", r.Total.StringFixed(2))
	case errors.Is(r.Err, ErrInsufficientShares):
		return fmt.Sprintf("Insufficient shares of %s to sell %d", req.Ticker, req.Quantity)
	case errors.Is(r.Err, ErrQuoteUnavailable):
		return fmt.Sprintf("Could not get a price for %s", req.Ticker)
	case errors.Is(r.Err, ErrInvalidQuantity):
		return "Quantity must be a positive whole number"
	case errors.Is(r.Err, ErrInvalidTrade):
		return "Trade is missing an action or ticker"
	case errors.Is(r.Err, ErrUserNotFound):
		return "User not found"
	default:
		return "Error executing trade"
	}
}
