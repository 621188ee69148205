package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the side of a trade.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction normalizes a spoken or typed action. It reports false for anything
// other than buy or sell.
func ParseAction(s string) (Action, bool) {
	switch Action(normalize(s)) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	}
	return "", false
}

// PastTense renders the action for spoken replies ("bought", "sold").
func (a Action) PastTense() string {
	if a == ActionSell {
		return "sold"
	}
	return "bought"
}

// Trade is an executed paper trade. Rows are append-only.
type Trade struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     string          `gorm:"index;not null" json:"user_id"`
	Ticker     string          `gorm:"index;not null" json:"ticker"`
	Action     Action          `gorm:"not null" json:"action"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	Price      decimal.Decimal `gorm:"type:text;not null" json:"price"`
	TotalValue decimal.Decimal `gorm:"type:text;not null" json:"total_value"`
	Timestamp  time.Time       `gorm:"index;not null" json:"timestamp"`
}
