// Package ledger settles paper trades against a user's cash balance and positions.
//
// A trade is priced once, before any lock is taken, and then settled inside a single
// database transaction. Trades for the same user are serialized by a per-user mutex,
// and the balance write is conditional on the user row's version so a lost update
// rolls the whole transaction back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Quoter prices tickers.
type Quoter interface {
	GetQuote(ctx context.Context, ticker string, bypassCache bool) (*market.Quote, error)
	GetQuotes(ctx context.Context, tickers []string) map[string]*market.Quote
}

// TradeNotifier is told about every settled trade.
type TradeNotifier interface {
	TradeExecuted(trade models.Trade, cashBalance decimal.Decimal)
}

// TradeRequest asks the ledger to settle one trade.
type TradeRequest struct {
	UserID   string        `json:"user_id"`
	Action   models.Action `json:"action"`
	Ticker   string        `json:"ticker"`
	Quantity int           `json:"quantity"`
}

// Ledger settles trades.
type Ledger struct {
	db       *gorm.DB
	quotes   Quoter
	notifier TradeNotifier
	locks    *userLocks
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger creates a ledger. notifier may be nil.
func NewLedger(db *gorm.DB, quotes Quoter, notifier TradeNotifier, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:       db,
		quotes:   quotes,
		notifier: notifier,
		locks:    newUserLocks(),
		logger:   logger.Named("ledger"),
		now:      time.Now,
	}
}

// ExecuteTrade validates, prices and settles a trade. It never panics on a business
// failure; the outcome, good or bad, is in the returned result.
func (l *Ledger) ExecuteTrade(ctx context.Context, req TradeRequest) *TradeResult {
	req.Ticker = models.NormalizeTicker(req.Ticker)
	result := &TradeResult{Request: req}

	if req.Quantity <= 0 {
		return result.fail(fmt.Errorf("got %d: %w", req.Quantity, ErrInvalidQuantity))
	}
	action, ok := models.ParseAction(string(req.Action))
	if !ok {
		return result.fail(fmt.Errorf("unknown action %q: %w", req.Action, ErrInvalidTrade))
	}
	req.Action = action
	result.Request.Action = action
	if req.Ticker == "" {
		return result.fail(fmt.Errorf("missing ticker: %w", ErrInvalidTrade))
	}
	if req.UserID == "" {
		return result.fail(fmt.Errorf("missing user id: %w", ErrUserNotFound))
	}

	// Price exactly once; the same price settles cash, position and the trade row.
	quote, err := l.quotes.GetQuote(ctx, req.Ticker, true)
	if err != nil {
		l.logger.Warn("Trade aborted, no price", zap.String("ticker", req.Ticker), zap.Error(err))
		return result.fail(fmt.Errorf("pricing %s: %w", req.Ticker, errors.Join(ErrQuoteUnavailable, err)))
	}
	price := quote.Price
	total := price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	result.Price = price
	result.Total = total

	unlock := l.locks.lock(req.UserID)
	defer unlock()

	var trade models.Trade
	var cash decimal.Decimal
	var position *models.Position
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", req.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s: %w", req.UserID, ErrUserNotFound)
			}
			return err
		}

		var held models.Position
		found := true
		if err := tx.Where("user_id = ? AND ticker = ?", req.UserID, req.Ticker).First(&held).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			found = false
		}

		switch req.Action {
		case models.ActionBuy:
			if user.CashBalance.LessThan(total) {
				return fmt.Errorf("need %s, have %s: %w", total.StringFixed(2), user.CashBalance.StringFixed(2), ErrInsufficientFunds)
			}
			cash = user.CashBalance.Sub(total)
			p, err := l.applyBuy(tx, req, held, found, price, total)
			if err != nil {
				return err
			}
			position = p
		case models.ActionSell:
			if !found || held.Quantity < req.Quantity {
				return fmt.Errorf("hold %d of %s, asked %d: %w", held.Quantity, req.Ticker, req.Quantity, ErrInsufficientShares)
			}
			cash = user.CashBalance.Add(total)
			p, err := l.applySell(tx, req, held)
			if err != nil {
				return err
			}
			position = p
		}

		res := tx.Model(&models.User{}).
			Where("id = ? AND version = ?", user.ID, user.Version).
			Updates(map[string]any{"cash_balance": cash, "version": user.Version + 1})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		trade = models.Trade{
			UserID:     req.UserID,
			Ticker:     req.Ticker,
			Action:     req.Action,
			Quantity:   req.Quantity,
			Price:      price,
			TotalValue: total,
			Timestamp:  l.now(),
		}
		return tx.Create(&trade).Error
	})
	if err != nil {
		var fe *faults.Error
		if !errors.As(err, &fe) {
			l.logger.Error("Trade transaction failed", zap.String("user_id", req.UserID), zap.Error(err))
			err = faults.Wrap(faults.Internal, "db_error", "trade could not be recorded", err)
		}
		return result.fail(err)
	}

	l.logger.Info("Trade executed",
		zap.String("user_id", req.UserID),
		zap.String("action", string(req.Action)),
		zap.String("ticker", req.Ticker),
		zap.Int("quantity", req.Quantity),
		zap.String("price", price.StringFixed(2)),
	)

	result.Trade = &trade
	result.CashBalance = cash
	result.Position = position
	if l.notifier != nil {
		l.notifier.TradeExecuted(trade, cash)
	}
	return result
}

// applyBuy grows or opens the position at the weighted average cost.
func (l *Ledger) applyBuy(tx *gorm.DB, req TradeRequest, held models.Position, found bool, price, total decimal.Decimal) (*models.Position, error) {
	if !found {
		held = models.Position{UserID: req.UserID, Ticker: req.Ticker, Quantity: req.Quantity, AvgPrice: price}
		if err := tx.Create(&held).Error; err != nil {
			return nil, err
		}
		return &held, nil
	}

	newQty := held.Quantity + req.Quantity
	cost := held.AvgPrice.Mul(decimal.NewFromInt(int64(held.Quantity))).Add(total)
	held.AvgPrice = cost.Div(decimal.NewFromInt(int64(newQty)))
	held.Quantity = newQty
	if err := tx.Model(&held).Updates(map[string]any{"quantity": held.Quantity, "avg_price": held.AvgPrice}).Error; err != nil {
		return nil, err
	}
	return &held, nil
}

// applySell shrinks the position, deleting it at zero. Average cost is unchanged.
func (l *Ledger) applySell(tx *gorm.DB, req TradeRequest, held models.Position) (*models.Position, error) {
	held.Quantity -= req.Quantity
	if held.Quantity == 0 {
		if err := tx.Delete(&held).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := tx.Model(&held).Update("quantity", held.Quantity).Error; err != nil {
		return nil, err
	}
	return &held, nil
}
