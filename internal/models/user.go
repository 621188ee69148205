package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is a broker client. Cash is debited and credited by trade settlement.
type User struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	PhoneNumber string          `gorm:"uniqueIndex" json:"phone_number"`
	CashBalance decimal.Decimal `gorm:"type:text;not null" json:"cash_balance"`
	// Version is bumped on every balance write and guards against lost updates.
	Version   int64          `gorm:"not null;default:0" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Position is a user's holding in one ticker. A row only exists while Quantity > 0.
type Position struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    string          `gorm:"uniqueIndex:idx_user_ticker;not null" json:"user_id"`
	Ticker    string          `gorm:"uniqueIndex:idx_user_ticker;not null" json:"ticker"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	AvgPrice  decimal.Decimal `gorm:"type:text;not null" json:"avg_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
