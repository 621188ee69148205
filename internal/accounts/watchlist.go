package accounts

import (
	"context"
	"fmt"
	"time"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

var ErrInvalidTicker = faults.New(faults.Validation, "invalid_ticker", "invalid ticker symbol")

// Watchlist returns the user's watched tickers, oldest first.
func (s *Store) Watchlist(ctx context.Context, userID string) ([]models.WatchlistItem, error) {
	if _, err := s.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	items := []models.WatchlistItem{}
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("added_at, id").Find(&items).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load watchlist", err)
	}
	return items, nil
}

// Watch adds ticker to the user's watchlist. It reports false when it was already there.
func (s *Store) Watch(ctx context.Context, userID, ticker string) (bool, error) {
	ticker = models.NormalizeTicker(ticker)
	if !intent.ValidSymbol(ticker) {
		return false, fmt.Errorf("%q: %w", ticker, ErrInvalidTicker)
	}
	if _, err := s.FindByID(ctx, userID); err != nil {
		return false, err
	}

	item := models.WatchlistItem{UserID: userID, Ticker: ticker, AddedAt: time.Now()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
	if res.Error != nil {
		return false, faults.Wrap(faults.Internal, "db_error", "failed to update watchlist", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.logger.Info("Added ticker to watchlist", zap.String("user_id", userID), zap.String("ticker", ticker))
	return true, nil
}

// Unwatch removes ticker from the user's watchlist. It reports false when it was not there.
func (s *Store) Unwatch(ctx context.Context, userID, ticker string) (bool, error) {
	ticker = models.NormalizeTicker(ticker)
	if _, err := s.FindByID(ctx, userID); err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).Where("user_id = ? AND ticker = ?", userID, ticker).Delete(&models.WatchlistItem{})
	if res.Error != nil {
		return false, faults.Wrap(faults.Internal, "db_error", "failed to update watchlist", res.Error)
	}
	return res.RowsAffected > 0, nil
}
