package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PositionView is a holding valued at the current price.
type PositionView struct {
	Ticker       string          `json:"ticker"`
	Quantity     int             `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Value        decimal.Decimal `json:"value"`
	ProfitLoss   decimal.Decimal `json:"profit_loss"` // percent against average cost
	// Live is false when no price was available and the average cost stands in.
	Live bool `json:"live"`
}

// PortfolioSummary is a user's cash, holdings and latest activity.
type PortfolioSummary struct {
	UserID         string          `json:"user_id"`
	Name           string          `json:"name"`
	CashBalance    decimal.Decimal `json:"cash_balance"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"` // cash plus positions
	Positions      []PositionView  `json:"positions"`
	RecentTrades   []models.Trade  `json:"recent_trades"`
	Watchlist      []string        `json:"watchlist"`
}

// Position returns the view for ticker, if held.
func (s *PortfolioSummary) Position(ticker string) (PositionView, bool) {
	for _, p := range s.Positions {
		if p.Ticker == ticker {
			return p, true
		}
	}
	return PositionView{}, false
}

// Describe renders the summary as plain text for language-model prompts.
func (s *PortfolioSummary) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", s.Name)
	fmt.Fprintf(&b, "Cash balance: $%s\n", s.CashBalance.StringFixed(2))
	fmt.Fprintf(&b, "Total portfolio value: $%s\n", s.PortfolioValue.StringFixed(2))
	if len(s.Positions) == 0 {
		b.WriteString("Positions: none\n")
	} else {
		b.WriteString("Positions:\n")
		for _, p := range s.Positions {
			fmt.Fprintf(&b, "- %s: %d shares, avg $%s, now $%s (%s%%)\n",
				p.Ticker, p.Quantity, p.AvgPrice.StringFixed(2), p.CurrentPrice.StringFixed(2), p.ProfitLoss.StringFixed(1))
		}
	}
	if len(s.Watchlist) > 0 {
		fmt.Fprintf(&b, "Watchlist: %s\n", strings.Join(s.Watchlist, ", "))
	}
	b.WriteString("Recent trades: ")
	b.WriteString(s.RecentTradesLine())
	return b.String()
}

// RecentTradesLine renders the recent trades, newest first.
func (s *PortfolioSummary) RecentTradesLine() string {
	if len(s.RecentTrades) == 0 {
		return "No recent trades."
	}
	parts := make([]string, 0, len(s.RecentTrades))
	for _, t := range s.RecentTrades {
		action := string(t.Action)
		if action != "" {
			action = strings.ToUpper(action[:1]) + action[1:]
		}
		parts = append(parts, fmt.Sprintf("%s %d %s @ $%s", action, t.Quantity, t.Ticker, t.Price.StringFixed(2)))
	}
	return strings.Join(parts, "; ")
}

// Summary values the user's positions concurrently. A position whose price cannot be
// fetched is valued at its average cost.
func (l *Ledger) Summary(ctx context.Context, userID string) (*PortfolioSummary, error) {
	db := l.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrUserNotFound)
		}
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load user", err)
	}

	var positions []models.Position
	if err := db.Where("user_id = ?", userID).Order("ticker asc").Find(&positions).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load positions", err)
	}

	recent, err := l.History(ctx, userID, 3)
	if err != nil {
		return nil, err
	}

	watchlist := []string{}
	if err := db.Model(&models.WatchlistItem{}).Where("user_id = ?", userID).Order("added_at, id").Pluck("ticker", &watchlist).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load watchlist", err)
	}

	tickers := make([]string, len(positions))
	for i, p := range positions {
		tickers[i] = p.Ticker
	}
	quotes := l.quotes.GetQuotes(ctx, tickers)

	summary := &PortfolioSummary{
		UserID:       user.ID,
		Name:         user.Name,
		CashBalance:  user.CashBalance,
		Positions:    make([]PositionView, 0, len(positions)),
		RecentTrades: recent,
		Watchlist:    watchlist,
	}
	total := user.CashBalance
	for _, p := range positions {
		view := PositionView{Ticker: p.Ticker, Quantity: p.Quantity, AvgPrice: p.AvgPrice, CurrentPrice: p.AvgPrice}
		if q, ok := quotes[p.Ticker]; ok {
			view.CurrentPrice = q.Price
			view.Live = true
		}
		view.Value = view.CurrentPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
		if p.AvgPrice.IsPositive() {
			view.ProfitLoss = view.CurrentPrice.Sub(p.AvgPrice).Div(p.AvgPrice).Mul(decimal.NewFromInt(100))
		}
		total = total.Add(view.Value)
		summary.Positions = append(summary.Positions, view)
	}
	summary.PortfolioValue = total
	return summary, nil
}

// Position returns the user's holding in ticker, or nil when none is held.
func (l *Ledger) Position(ctx context.Context, userID, ticker string) (*models.Position, error) {
	var positions []models.Position
	err := l.db.WithContext(ctx).Where("user_id = ? AND ticker = ?", userID, models.NormalizeTicker(ticker)).Limit(1).Find(&positions).Error
	if err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load position", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

// History returns the user's trades newest first. A non-positive limit returns all.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	q := l.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, faults.Wrap(faults.Internal, "db_error", "failed to load trade history", err)
	}
	return trades, nil
}
