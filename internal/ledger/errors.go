package ledger

import (
	"voice-broker-go/internal/accounts"
	"voice-broker-go/internal/faults"
)

var (
	ErrUserNotFound       = accounts.ErrUserNotFound
	ErrQuoteUnavailable   = faults.New(faults.Upstream, "quote_unavailable", "quote unavailable")
	ErrInsufficientFunds  = faults.New(faults.InsufficientResource, "insufficient_funds", "insufficient funds")
	ErrInsufficientShares = faults.New(faults.InsufficientResource, "insufficient_shares", "insufficient shares")
	ErrInvalidQuantity    = faults.New(faults.Validation, "invalid_quantity", "quantity must be a positive whole number")
	ErrInvalidTrade       = faults.New(faults.Validation, "invalid_trade", "invalid trade")
	// ErrConcurrentUpdate means the user's row changed between read and write; the
	// transaction was rolled back.
	ErrConcurrentUpdate = faults.New(faults.Internal, "concurrent_update", "balance changed during trade")
)
