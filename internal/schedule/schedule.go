// Package schedule books outbound calls for later and places them when due.
package schedule

import (
	"context"
	"fmt"
	"time"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// A call booked this far in the past is still accepted, to absorb clock skew.
const pastTolerance = time.Minute

var ErrInvalidSchedule = faults.New(faults.Validation, "invalid_schedule", "invalid call schedule")

// Store persists call schedules.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create books a call to phone at callTime.
func (s *Store) Create(ctx context.Context, userID, phone string, callTime time.Time, callType models.CallType) (*models.CallSchedule, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone number is required: %w", ErrInvalidSchedule)
	}
	if callTime.Before(s.now().Add(-pastTolerance)) {
		return nil, fmt.Errorf("call time %s is in the past: %w", callTime.Format(time.RFC3339), ErrInvalidSchedule)
	}

	sched := &models.CallSchedule{
		UserID:      userID,
		PhoneNumber: phone,
		CallTime:    callTime.UTC(),
		CallType:    callType,
		Status:      models.ScheduleScheduled,
	}
	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to schedule call", err)
	}
	return sched, nil
}

// Due returns schedules whose time has come, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]models.CallSchedule, error) {
	var due []models.CallSchedule
	err := s.db.WithContext(ctx).
		Where("status = ? AND call_time <= ?", models.ScheduleScheduled, now.UTC()).
		Order("call_time, id").
		Limit(limit).
		Find(&due).Error
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load due calls", err)
	}
	return due, nil
}

// claim moves a schedule out of "scheduled" so it is dialed at most once.
func (s *Store) claim(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.CallSchedule{}).
		Where("id = ? AND status = ?", id, models.ScheduleScheduled).
		Update("status", models.SchedulePlaced)
	return res.RowsAffected == 1, res.Error
}

func (s *Store) finish(ctx context.Context, id uint, status, callSID string) error {
	return s.db.WithContext(ctx).Model(&models.CallSchedule{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "call_sid": callSID}).Error
}

// Dialer places outbound calls.
type Dialer interface {
	Call(phone, userID string) (string, error)
}

// CallRecorder tracks placed calls alongside inbound ones.
type CallRecorder interface {
	RecordCall(ctx context.Context, call *models.Call) error
}

// Runner dials due schedules on a fixed interval.
type Runner struct {
	store    *Store
	dialer   Dialer
	calls    CallRecorder
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewRunner(store *Store, dialer Dialer, calls CallRecorder, interval time.Duration, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{store: store, dialer: dialer, calls: calls, interval: interval, batch: 20, logger: logger.Named("schedule")}
}

// Run polls until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Starting call scheduler", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping call scheduler...")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Scheduled call pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce dials every schedule due now and returns how many calls were placed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	due, err := r.store.Due(ctx, r.store.now(), r.batch)
	if err != nil {
		return 0, err
	}

	placed := 0
	for _, sched := range due {
		logger := r.logger.With(zap.Uint("schedule_id", sched.ID), zap.String("user_id", sched.UserID))
		ok, err := r.store.claim(ctx, sched.ID)
		if err != nil {
			return placed, faults.Wrap(faults.Internal, "db_error", "failed to claim scheduled call", err)
		}
		if !ok {
			continue
		}

		callSID, err := r.dialer.Call(sched.PhoneNumber, sched.UserID)
		if err != nil {
			logger.Warn("Scheduled call failed", zap.Error(err))
			if err := r.store.finish(ctx, sched.ID, models.ScheduleFailed, ""); err != nil {
				logger.Error("Failed to mark scheduled call as failed", zap.Error(err))
			}
			continue
		}
		if err := r.store.finish(ctx, sched.ID, models.SchedulePlaced, callSID); err != nil {
			logger.Error("Failed to record scheduled call outcome", zap.Error(err))
		}
		if err := r.calls.RecordCall(ctx, &models.Call{
			CallSID:     callSID,
			UserID:      sched.UserID,
			PhoneNumber: sched.PhoneNumber,
			Direction:   models.Outbound,
			Status:      "initiated",
		}); err != nil {
			logger.Warn("Failed to record scheduled call", zap.String("call_sid", callSID), zap.Error(err))
		}
		logger.Info("Placed scheduled call", zap.String("call_sid", callSID), zap.String("call_type", string(sched.CallType)))
		placed++
	}
	return placed, nil
}
