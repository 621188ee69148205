package market

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Index is one major market index in a Summary.
type Index struct {
	Name          string          `json:"name"`
	Symbol        string          `json:"symbol"`
	Level         decimal.Decimal `json:"level"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Known         bool            `json:"known"`
}

// Headline is one news item.
type Headline struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Link      string    `json:"link"`
	Published time.Time `json:"published"`
}

// Summary is the market context used in greetings, prompts and the summary endpoint.
type Summary struct {
	Indices   []Index    `json:"indices"`
	Headlines []Headline `json:"headlines"`
}

var majorIndices = []struct{ name, symbol string }{
	{name: "S&P 500", symbol: "^GSPC"},
	{name: "Dow Jones", symbol: "^DJI"},
	{name: "Nasdaq", symbol: "^IXIC"},
}

var cannedHeadlines = []Headline{
	{Title: "Fed Announces Interest Rate Decision", Summary: "The Federal Reserve announced it will maintain current interest rates."},
	{Title: "Tech Stocks Rally on Earnings", Summary: "Major tech companies reported better-than-expected earnings, driving market gains."},
	{Title: "Oil Prices Drop Amid Supply Concerns", Summary: "Crude oil prices fell 2% as OPEC+ considers increasing production."},
}

// failedFeedTTL is how long canned headlines stand in after every feed failed.
const failedFeedTTL = time.Minute

// Summarizer builds market summaries from index quotes and RSS headlines.
type Summarizer struct {
	provider *Provider
	feeds    []string
	limit    int
	newsTTL  time.Duration
	http     *resty.Client
	parser   *gofeed.Parser
	logger   *zap.Logger

	mu         sync.Mutex
	news       []Headline
	expires    time.Time
	refreshing bool
}

// NewSummarizer creates a summarizer that caches headlines for newsTTL. With no
// feeds configured it always reports the canned headlines.
func NewSummarizer(provider *Provider, feeds []string, limit int, newsTTL time.Duration, logger *zap.Logger) *Summarizer {
	if limit <= 0 {
		limit = 3
	}
	if newsTTL <= 0 {
		newsTTL = 10 * time.Minute
	}
	return &Summarizer{
		provider: provider,
		feeds:    feeds,
		limit:    limit,
		newsTTL:  newsTTL,
		http:     resty.New().SetTimeout(5*time.Second).SetHeader("User-Agent", yahooUserAgent),
		parser:   gofeed.NewParser(),
		logger:   logger.Named("summary"),
	}
}

// Summary prices the major indices concurrently and attaches the latest headlines.
// Indices that cannot be priced are reported with Known=false.
func (s *Summarizer) Summary(ctx context.Context) *Summary {
	symbols := make([]string, len(majorIndices))
	for i, idx := range majorIndices {
		symbols[i] = idx.symbol
	}
	quotes := s.provider.GetQuotes(ctx, symbols)

	summary := &Summary{Indices: make([]Index, 0, len(majorIndices))}
	for _, idx := range majorIndices {
		entry := Index{Name: idx.name, Symbol: idx.symbol}
		if q, ok := quotes[idx.symbol]; ok {
			entry.Level = q.Price
			entry.ChangePercent = q.ChangePercent()
			entry.Known = true
		}
		summary.Indices = append(summary.Indices, entry)
	}
	summary.Headlines = s.headlines(ctx)
	return summary
}

// headlines serves cached news. One caller refreshes at a time, outside the lock;
// everyone else gets the previous headlines meanwhile.
func (s *Summarizer) headlines(ctx context.Context) []Headline {
	s.mu.Lock()
	if s.refreshing || time.Now().Before(s.expires) {
		news := s.news
		s.mu.Unlock()
		if news == nil {
			return s.canned()
		}
		return news
	}
	s.refreshing = true
	s.mu.Unlock()

	news := s.fetchHeadlines(ctx)
	ttl := s.newsTTL
	if len(news) == 0 {
		news = s.canned()
		ttl = min(failedFeedTTL, s.newsTTL)
	}

	s.mu.Lock()
	s.news = news
	s.expires = time.Now().Add(ttl)
	s.refreshing = false
	s.mu.Unlock()
	return news
}

func (s *Summarizer) canned() []Headline {
	return cannedHeadlines[:min(s.limit, len(cannedHeadlines))]
}

// fetchHeadlines merges all feeds newest first, dropping repeated titles.
func (s *Summarizer) fetchHeadlines(ctx context.Context) []Headline {
	var items []Headline
	for _, url := range s.feeds {
		fetched, err := s.fetchFeed(ctx, url)
		if err != nil {
			s.logger.Warn("Failed to fetch news feed", zap.String("url", url), zap.Error(err))
			continue
		}
		items = append(items, fetched...)
	}
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})

	seen := make(map[string]bool, len(items))
	unique := make([]Headline, 0, s.limit)
	for _, item := range items {
		if seen[item.Title] {
			continue
		}
		seen[item.Title] = true
		unique = append(unique, item)
		if len(unique) == s.limit {
			break
		}
	}
	return unique
}

func (s *Summarizer) fetchFeed(ctx context.Context, url string) ([]Headline, error) {
	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed returned status %s", resp.Status())
	}

	feed, err := s.parser.ParseString(resp.String())
	if err != nil {
		return nil, fmt.Errorf("malformed feed: %w", err)
	}

	items := make([]Headline, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		h := Headline{Title: title, Summary: strings.TrimSpace(item.Description), Link: item.Link}
		if item.PublishedParsed != nil {
			h.Published = *item.PublishedParsed
		}
		items = append(items, h)
	}
	return items, nil
}

// IndexLine renders one index for speech or prompts, "Unknown" when unpriced.
func (i Index) IndexLine() string {
	if !i.Known {
		return i.Name + ": Unknown"
	}
	return fmt.Sprintf("%s: %s (%s%%)", i.Name, i.Level.StringFixed(2), signed(i.ChangePercent))
}

// Describe renders the summary as plain text for language-model prompts.
func (s *Summary) Describe() string {
	var b strings.Builder
	for _, idx := range s.Indices {
		b.WriteString(idx.IndexLine())
		b.WriteString("\n")
	}
	if len(s.Headlines) == 0 {
		b.WriteString("No major news today.")
		return b.String()
	}
	b.WriteString("Top news:\n")
	for _, h := range s.Headlines {
		if h.Summary != "" {
			fmt.Fprintf(&b, "%s: %s\n", h.Title, h.Summary)
		} else {
			fmt.Fprintf(&b, "%s\n", h.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Spoken renders a one-sentence market line for the call greeting.
func (s *Summary) Spoken() string {
	for _, idx := range s.Indices {
		if !idx.Known {
			continue
		}
		direction := "up"
		if idx.ChangePercent.IsNegative() {
			direction = "down"
		}
		return fmt.Sprintf("The %s is %s %s%% today.", idx.Name, direction, idx.ChangePercent.Abs().StringFixed(1))
	}
	return "The market data feed is a little quiet right now."
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}
