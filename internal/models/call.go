package models

import "time"

// Direction says who spoke a transcript entry or who placed a call.
type Direction string

const (
	// Inbound is caller speech, or a call the caller placed.
	Inbound Direction = "inbound"
	// Outbound is assistant speech, or a call the broker placed.
	Outbound Direction = "outbound"
)

// Call tracks one telephony session and its last reported status.
type Call struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CallSID     string    `gorm:"column:call_sid;uniqueIndex;not null" json:"call_sid"`
	UserID      string    `gorm:"index" json:"user_id"`
	PhoneNumber string    `json:"phone_number"`
	Direction   Direction `json:"direction"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CallLog is one transcript entry. Entries are append-only and ordered by Timestamp within a call.
type CallLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CallSID   string    `gorm:"column:call_sid;index;not null" json:"call_sid"`
	UserID    string    `gorm:"index" json:"user_id"`
	Direction Direction `gorm:"not null" json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// CallType names the slot of the trading day a scheduled call is for.
type CallType string

const (
	CallMarketOpen  CallType = "market_open"
	CallMidDay      CallType = "mid_day"
	CallMarketClose CallType = "market_close"
)

// ParseCallType accepts the known call types, defaulting an empty value to market_open.
func ParseCallType(s string) (CallType, bool) {
	switch t := CallType(s); t {
	case "":
		return CallMarketOpen, true
	case CallMarketOpen, CallMidDay, CallMarketClose:
		return t, true
	}
	return "", false
}

// Scheduled call states.
const (
	ScheduleScheduled = "scheduled"
	SchedulePlaced    = "placed"
	ScheduleFailed    = "failed"
)

// CallSchedule is an outbound call the broker places at CallTime.
type CallSchedule struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      string    `gorm:"index;not null" json:"user_id"`
	PhoneNumber string    `gorm:"not null" json:"phone_number"`
	CallTime    time.Time `gorm:"index;not null" json:"call_time"`
	CallType    CallType  `gorm:"not null" json:"call_type"`
	Status      string    `gorm:"index;not null" json:"status"`
	CallSID     string    `gorm:"column:call_sid" json:"call_sid,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
