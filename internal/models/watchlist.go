package models

import "time"

// WatchlistItem is a ticker a user asked the broker to keep an eye on.
type WatchlistItem struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	UserID  string    `gorm:"uniqueIndex:idx_watch_user_ticker;not null" json:"user_id"`
	Ticker  string    `gorm:"uniqueIndex:idx_watch_user_ticker;not null" json:"ticker"`
	AddedAt time.Time `json:"added_at"`
}
