// Package transcript persists calls and their ordered transcript entries.
package transcript

import (
	"context"
	"fmt"
	"time"

	"voice-broker-go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store appends and reads call transcripts.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Append records one transcript entry.
func (s *Store) Append(ctx context.Context, callSID, userID string, direction models.Direction, content string) error {
	entry := models.CallLog{
		CallSID:   callSID,
		UserID:    userID,
		Direction: direction,
		Content:   content,
		Timestamp: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}
	return nil
}

// History returns a call's entries oldest first. Entries with equal timestamps keep
// insertion order.
func (s *Store) History(ctx context.Context, callSID string) ([]models.CallLog, error) {
	var entries []models.CallLog
	err := s.db.WithContext(ctx).
		Where("call_sid = ?", callSID).
		Order("timestamp asc").Order("id asc").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript for %s: %w", callSID, err)
	}
	return entries, nil
}

// RecordCall stores a call, or refreshes user and status if the sid is already known.
func (s *Store) RecordCall(ctx context.Context, call *models.Call) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "call_sid"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "status", "updated_at"}),
	}).Create(call).Error
	if err != nil {
		return fmt.Errorf("failed to record call %s: %w", call.CallSID, err)
	}
	return nil
}

// UpdateCallStatus applies a status callback. Unknown sids are ignored.
func (s *Store) UpdateCallStatus(ctx context.Context, callSID, status string) error {
	err := s.db.WithContext(ctx).Model(&models.Call{}).
		Where("call_sid = ?", callSID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update call %s: %w", callSID, err)
	}
	return nil
}

// FindCall returns a recorded call.
func (s *Store) FindCall(ctx context.Context, callSID string) (*models.Call, error) {
	var call models.Call
	if err := s.db.WithContext(ctx).First(&call, "call_sid = ?", callSID).Error; err != nil {
		return nil, err
	}
	return &call, nil
}
