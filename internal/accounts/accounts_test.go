package accounts

import (
	"context"
	"testing"

	"voice-broker-go/internal/database"
	"voice-broker-go/internal/faults"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestStore(t *testing.T) *Store {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	return NewStore(db, decimal.NewFromInt(10000), decimal.NewFromInt(25000), zap.NewNop())
}

func TestFindOrCreateByPhone(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	// Act
	first, created, err := store.FindOrCreateByPhone(ctx, "+14155550100")
	require.NoError(t, err)
	again, createdAgain, err := store.FindOrCreateByPhone(ctx, "+14155550100")
	require.NoError(t, err)

	// Assert
	assert.True(t, created)
	assert.False(t, createdAgain)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, decimal.NewFromInt(25000).Equal(again.CashBalance))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		store := setupTestStore(t)

		user, err := store.Register(ctx, " Jordan ", "jordan@example.com", "+14155550101")

		require.NoError(t, err)
		assert.Equal(t, "Jordan", user.Name)
		assert.True(t, decimal.NewFromInt(10000).Equal(user.CashBalance))
		found, err := store.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "+14155550101", found.PhoneNumber)
	})

	t.Run("DuplicatePhone", func(t *testing.T) {
		store := setupTestStore(t)
		_, err := store.Register(ctx, "A", "", "+14155550102")
		require.NoError(t, err)

		_, err = store.Register(ctx, "B", "", "+14155550102")

		assert.ErrorIs(t, err, ErrPhoneTaken)
		assert.Equal(t, faults.Validation, faults.KindOf(err))
	})

	t.Run("MissingName", func(t *testing.T) {
		store := setupTestStore(t)

		_, err := store.Register(ctx, "  ", "", "+14155550103")

		assert.ErrorIs(t, err, ErrInvalidUser)
	})
}

func TestFindByID(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.FindByID(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, faults.NotFound, faults.KindOf(err))
}

func strPtr(s string) *string { return &s }

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("ChangesOnlyGivenFields", func(t *testing.T) {
		store := setupTestStore(t)
		user, err := store.Register(ctx, "Jordan", "jordan@example.com", "+14155550101")
		require.NoError(t, err)

		updated, fields, err := store.Update(ctx, user.ID, UserUpdate{Name: strPtr(" Jordan B. "), PhoneNumber: strPtr("+14155550199")})

		require.NoError(t, err)
		assert.Equal(t, []string{"name", "phone_number"}, fields)
		assert.Equal(t, "Jordan B.", updated.Name)
		assert.Equal(t, "+14155550199", updated.PhoneNumber)
		assert.Equal(t, "jordan@example.com", updated.Email)
		assert.True(t, decimal.NewFromInt(10000).Equal(updated.CashBalance))
	})

	t.Run("NothingToChange", func(t *testing.T) {
		store := setupTestStore(t)
		user, err := store.Register(ctx, "Jordan", "", "+14155550101")
		require.NoError(t, err)

		same, fields, err := store.Update(ctx, user.ID, UserUpdate{})

		require.NoError(t, err)
		assert.Empty(t, fields)
		assert.Equal(t, user.ID, same.ID)
	})

	t.Run("PhoneOwnedByAnotherUser", func(t *testing.T) {
		store := setupTestStore(t)
		_, err := store.Register(ctx, "A", "", "+14155550101")
		require.NoError(t, err)
		b, err := store.Register(ctx, "B", "", "+14155550102")
		require.NoError(t, err)

		_, _, err = store.Update(ctx, b.ID, UserUpdate{PhoneNumber: strPtr("+14155550101")})

		assert.ErrorIs(t, err, ErrPhoneTaken)
	})

	t.Run("KeepingOwnPhone", func(t *testing.T) {
		store := setupTestStore(t)
		user, err := store.Register(ctx, "A", "", "+14155550101")
		require.NoError(t, err)

		_, fields, err := store.Update(ctx, user.ID, UserUpdate{PhoneNumber: strPtr("+14155550101")})

		require.NoError(t, err)
		assert.Equal(t, []string{"phone_number"}, fields)
	})

	t.Run("BlankName", func(t *testing.T) {
		store := setupTestStore(t)
		user, err := store.Register(ctx, "A", "", "+14155550101")
		require.NoError(t, err)

		_, _, err = store.Update(ctx, user.ID, UserUpdate{Name: strPtr("  ")})

		assert.ErrorIs(t, err, ErrInvalidUser)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		store := setupTestStore(t)

		_, _, err := store.Update(ctx, "missing", UserUpdate{Name: strPtr("X")})

		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestWatchlist(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	user, err := store.Register(ctx, "Jordan", "", "+14155550101")
	require.NoError(t, err)

	added, err := store.Watch(ctx, user.ID, " tsla ")
	require.NoError(t, err)
	assert.True(t, added)

	again, err := store.Watch(ctx, user.ID, "TSLA")
	require.NoError(t, err)
	assert.False(t, again)

	_, err = store.Watch(ctx, user.ID, "not a ticker")
	assert.ErrorIs(t, err, ErrInvalidTicker)
	_, err = store.Watch(ctx, "missing", "NVDA")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.Watch(ctx, user.ID, "NVDA")
	require.NoError(t, err)
	items, err := store.Watchlist(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "TSLA", items[0].Ticker)
	assert.Equal(t, "NVDA", items[1].Ticker)

	removed, err := store.Unwatch(ctx, user.ID, "tsla")
	require.NoError(t, err)
	assert.True(t, removed)
	removedAgain, err := store.Unwatch(ctx, user.ID, "TSLA")
	require.NoError(t, err)
	assert.False(t, removedAgain)

	items, err = store.Watchlist(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "NVDA", items[0].Ticker)
}
