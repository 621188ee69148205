package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-broker-go/internal/database"
	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"
	"voice-broker-go/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var now = time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC)

type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) Call(phone, userID string) (string, error) {
	args := m.Called(phone, userID)
	return args.String(0), args.Error(1)
}

func setupTest(t *testing.T) (*gorm.DB, *Store) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	store := NewStore(db)
	store.now = func() time.Time { return now }
	return db, store
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("Booked", func(t *testing.T) {
		_, store := setupTest(t)

		sched, err := store.Create(ctx, "u1", "+14155550100", now.Add(time.Hour), models.CallMidDay)

		require.NoError(t, err)
		assert.NotZero(t, sched.ID)
		assert.Equal(t, models.ScheduleScheduled, sched.Status)
		assert.Equal(t, models.CallMidDay, sched.CallType)
	})

	t.Run("InThePast", func(t *testing.T) {
		_, store := setupTest(t)

		_, err := store.Create(ctx, "u1", "+14155550100", now.Add(-time.Hour), models.CallMarketOpen)

		assert.ErrorIs(t, err, ErrInvalidSchedule)
		assert.Equal(t, faults.Validation, faults.KindOf(err))
	})

	t.Run("NoPhone", func(t *testing.T) {
		_, store := setupTest(t)

		_, err := store.Create(ctx, "u1", "", now.Add(time.Hour), models.CallMarketOpen)

		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("PlacesOnlyDueCalls", func(t *testing.T) {
		// Arrange
		db, store := setupTest(t)
		calls := transcript.NewStore(db)
		due, err := store.Create(ctx, "u1", "+14155550100", now, models.CallMarketOpen)
		require.NoError(t, err)
		later, err := store.Create(ctx, "u2", "+14155550111", now.Add(2*time.Hour), models.CallMarketClose)
		require.NoError(t, err)

		dialer := new(MockDialer)
		dialer.On("Call", "+14155550100", "u1").Return("CA100", nil).Once()
		runner := NewRunner(store, dialer, calls, time.Second, zap.NewNop())

		// Act
		placed, err := runner.RunOnce(ctx)
		require.NoError(t, err)
		again, err := runner.RunOnce(ctx)
		require.NoError(t, err)

		// Assert
		assert.Equal(t, 1, placed)
		assert.Zero(t, again)
		dialer.AssertExpectations(t)

		var got models.CallSchedule
		require.NoError(t, db.First(&got, due.ID).Error)
		assert.Equal(t, models.SchedulePlaced, got.Status)
		assert.Equal(t, "CA100", got.CallSID)
		require.NoError(t, db.First(&got, later.ID).Error)
		assert.Equal(t, models.ScheduleScheduled, got.Status)

		call, err := calls.FindCall(ctx, "CA100")
		require.NoError(t, err)
		assert.Equal(t, "u1", call.UserID)
		assert.Equal(t, models.Outbound, call.Direction)
	})

	t.Run("DialFailureIsNotRetried", func(t *testing.T) {
		db, store := setupTest(t)
		sched, err := store.Create(ctx, "u1", "+14155550100", now, models.CallMarketOpen)
		require.NoError(t, err)

		dialer := new(MockDialer)
		dialer.On("Call", mock.Anything, mock.Anything).Return("", errors.New("twilio down")).Once()
		runner := NewRunner(store, dialer, transcript.NewStore(db), time.Second, zap.NewNop())

		placed, err := runner.RunOnce(ctx)
		require.NoError(t, err)
		_, err = runner.RunOnce(ctx)
		require.NoError(t, err)

		assert.Zero(t, placed)
		dialer.AssertNumberOfCalls(t, "Call", 1)
		var got models.CallSchedule
		require.NoError(t, db.First(&got, sched.ID).Error)
		assert.Equal(t, models.ScheduleFailed, got.Status)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	db, store := setupTest(t)
	runner := NewRunner(store, new(MockDialer), transcript.NewStore(db), 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
