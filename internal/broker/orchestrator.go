// Package broker drives one call turn: it resolves what the caller meant, acts on it,
// and phrases the spoken reply.
//
// Turns are independent; everything a turn knows about the call comes from the
// transcript. A turn always produces a reply, even when every backend is down.
package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/faults"
	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/llm"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"

	"go.uber.org/zap"
)

const (
	promptHistoryTurns = 8
	defaultTurnTimeout = 9 * time.Second
	// tradeTimeout bounds settlement independently of the turn deadline.
	tradeTimeout = 5 * time.Second
)

// UserDirectory finds callers.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
}

// Transcript is the call's conversational memory.
type Transcript interface {
	Append(ctx context.Context, callSID, userID string, direction models.Direction, content string) error
	History(ctx context.Context, callSID string) ([]models.CallLog, error)
}

// Trader settles trades and reports portfolios.
type Trader interface {
	ExecuteTrade(ctx context.Context, req ledger.TradeRequest) *ledger.TradeResult
	Summary(ctx context.Context, userID string) (*ledger.PortfolioSummary, error)
	Position(ctx context.Context, userID, ticker string) (*models.Position, error)
}

// Quoter prices a ticker.
type Quoter interface {
	GetQuote(ctx context.Context, ticker string, bypassCache bool) (*market.Quote, error)
}

// MarketSummarizer reports the overall market.
type MarketSummarizer interface {
	Summary(ctx context.Context) *market.Summary
}

// Recommender picks a stock to pitch.
type Recommender interface {
	Recommend(ctx context.Context, portfolio *ledger.PortfolioSummary, summary *market.Summary) models.Recommendation
}

// Resolver classifies an utterance.
type Resolver interface {
	Resolve(ctx context.Context, utterance string, history []models.CallLog, recent *models.Recommendation) intent.Intent
}

// Turn is one caller utterance delivered by the telephony channel.
type Turn struct {
	CallSID   string
	UserID    string
	Caller    string // E.164 phone number, used when UserID is empty
	Utterance string
	// Recommendation is the last pitch on this call, when the channel kept it.
	Recommendation *models.Recommendation
}

// Reply is what the caller hears next.
type Reply struct {
	Text string
	// Continue is false when the call should end after Text.
	Continue bool
	// Recommendation is set when Text ends with a pitch.
	Recommendation *models.Recommendation
	// Trade is set when the turn executed, or tried to execute, a trade.
	Trade *ledger.TradeResult
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Users       UserDirectory
	Transcripts Transcript
	Trader      Trader
	Quotes      Quoter
	Market      MarketSummarizer
	Recommender Recommender
	Resolver    Resolver
	// LLM phrases replies. It may be nil.
	LLM llm.Client
}

// Orchestrator handles call turns.
type Orchestrator struct {
	Dependencies
	cfg    config.Broker
	logger *zap.Logger
}

func NewOrchestrator(deps Dependencies, cfg config.Broker, logger *zap.Logger) *Orchestrator {
	if cfg.Name == "" {
		cfg.Name = "Wolf"
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	return &Orchestrator{Dependencies: deps, cfg: cfg, logger: logger.Named("broker")}
}

// HandleTurn answers one utterance and appends both sides to the transcript.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) Reply {
	if strings.TrimSpace(turn.Utterance) == "" {
		return Reply{Text: retryText, Continue: true}
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	reply, userID := o.safeTurn(turnCtx, turn)
	o.record(ctx, turn.CallSID, userID, models.Inbound, turn.Utterance)
	o.record(ctx, turn.CallSID, userID, models.Outbound, reply.Text)
	return reply
}

func (o *Orchestrator) safeTurn(ctx context.Context, turn Turn) (reply Reply, userID string) {
	userID = turn.UserID
	logger := o.logger.With(zap.String("call_sid", turn.CallSID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while handling turn", zap.Any("panic", r), zap.Stack("stack"))
			reply = Reply{Text: ApologyText, Continue: true}
		}
	}()

	user, err := o.lookupUser(ctx, turn)
	if err != nil {
		if faults.KindOf(err) == faults.NotFound {
			logger.Warn("Caller has no account", zap.String("caller", turn.Caller), zap.Error(err))
			return Reply{Text: unknownAccountText, Continue: false}, userID
		}
		logger.Error("Failed to look up caller", zap.Error(err))
		return Reply{Text: ApologyText, Continue: true}, userID
	}
	userID = user.ID

	reply, err = o.turn(ctx, user, turn)
	if err != nil {
		logger.Error("Failed to handle turn", zap.String("user_id", userID), zap.Error(err))
		return Reply{Text: ApologyText, Continue: true}, userID
	}
	return reply, userID
}

func (o *Orchestrator) lookupUser(ctx context.Context, turn Turn) (*models.User, error) {
	if turn.UserID != "" {
		return o.Users.FindByID(ctx, turn.UserID)
	}
	return o.Users.FindByPhone(ctx, turn.Caller)
}

func (o *Orchestrator) turn(ctx context.Context, user *models.User, turn Turn) (Reply, error) {
	history, err := o.Transcripts.History(ctx, turn.CallSID)
	if err != nil {
		return Reply{}, err
	}

	// Resolution gets half the turn; the rest is for acting and replying.
	resolveCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout/2)
	resolved := o.Resolver.Resolve(resolveCtx, turn.Utterance, history, turn.Recommendation)
	cancel()
	o.logger.Info("Handling turn",
		zap.String("call_sid", turn.CallSID),
		zap.String("user_id", user.ID),
		zap.String("intent", resolved.Kind()),
	)

	switch in := resolved.(type) {
	case intent.PriceCheck:
		return o.priceCheck(ctx, user, in.Ticker), nil
	case intent.Agreement:
		if in.Trade != nil {
			return o.trade(ctx, user, *in.Trade), nil
		}
		if intent.IsGoodbye(turn.Utterance) {
			return Reply{Text: goodbyeText, Continue: false}, nil
		}
		return o.converse(ctx, user, turn.Utterance, history), nil
	case intent.Trade:
		if !in.Complete() {
			return Reply{Text: clarification(in), Continue: true}, nil
		}
		return o.trade(ctx, user, in), nil
	case intent.Conversation:
		if intent.IsGoodbye(in.Query) {
			return Reply{Text: goodbyeText, Continue: false}, nil
		}
		return o.converse(ctx, user, in.Query, history), nil
	}
	return Reply{}, fmt.Errorf("unhandled intent %T", resolved)
}

func (o *Orchestrator) priceCheck(ctx context.Context, user *models.User, ticker string) Reply {
	q, err := o.Quotes.GetQuote(ctx, ticker, false)
	if err != nil {
		o.logger.Warn("Price check failed", zap.String("ticker", ticker), zap.Error(err))
		return Reply{Text: fmt.Sprintf("I can't get a clean price on %s right now. Give me a minute and ask again.", ticker), Continue: true}
	}

	held, err := o.Trader.Position(ctx, user.ID, ticker)
	if err != nil {
		o.logger.Warn("Failed to load position for price check", zap.String("ticker", ticker), zap.Error(err))
		held = nil
	}
	return Reply{Text: priceText(q, held), Continue: true}
}

func (o *Orchestrator) trade(ctx context.Context, user *models.User, t intent.Trade) Reply {
	// Settlement is not cut short by the turn deadline; it has its own bound.
	tradeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tradeTimeout)
	defer cancel()
	result := o.Trader.ExecuteTrade(tradeCtx, ledger.TradeRequest{
		UserID:   user.ID,
		Action:   t.Action,
		Ticker:   t.Ticker,
		Quantity: t.Quantity,
	})
	return Reply{Text: o.tradeText(ctx, result), Continue: true, Trade: result}
}

func (o *Orchestrator) tradeText(ctx context.Context, result *ledger.TradeResult) string {
	if !result.OK() {
		switch result.Kind() {
		case faults.Internal:
			o.logger.Error("Trade failed unexpectedly", zap.Error(result.Err))
			return ApologyText
		case faults.NotFound:
			return unknownAccountText
		}
	}

	if o.LLM != nil && o.cfg.LLMTradeReplies {
		req := result.Request
		prompt := fmt.Sprintf(tradePrompt, o.cfg.Name, req.Action, req.Quantity, req.Ticker, result.Message())
		text, err := o.LLM.Generate(ctx, prompt)
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		o.logger.Warn("Trade reply generation failed, using template", zap.Error(err))
	}
	return tradeTemplate(result)
}

func (o *Orchestrator) converse(ctx context.Context, user *models.User, query string, history []models.CallLog) Reply {
	portfolio := o.portfolio(ctx, user.ID)
	summary := o.Market.Summary(ctx)

	text := conversationCanned
	if o.LLM != nil {
		prompt := fmt.Sprintf(conversationPrompt, o.cfg.Name, describePortfolio(portfolio), summary.Describe(),
			formatHistory(history, promptHistoryTurns), query)
		generated, err := o.LLM.Generate(ctx, prompt)
		if err != nil || strings.TrimSpace(generated) == "" {
			o.logger.Warn("Conversation reply generation failed", zap.Error(err))
			text = conversationFailed
		} else {
			text = strings.TrimSpace(generated)
		}
	}

	reply := Reply{Text: text, Continue: true}
	if intent.IsAdvisory(query) {
		if rec := o.Recommender.Recommend(ctx, portfolio, summary); !rec.Empty() {
			reply.Text += " " + rec.Pitch()
			reply.Recommendation = &rec
		}
	}
	return reply
}

// Greet opens a call: persona greeting, market line, portfolio comment and a pitch.
func (o *Orchestrator) Greet(ctx context.Context, callSID, userID string) Reply {
	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	reply := o.safePitch(turnCtx, userID, func(portfolio *ledger.PortfolioSummary, summary *market.Summary) string {
		name := "buddy"
		if portfolio != nil && portfolio.Name != "" {
			name = portfolio.Name
		}
		if o.LLM != nil {
			prompt := fmt.Sprintf(introPrompt, o.cfg.Name, summary.Describe(), describePortfolio(portfolio))
			intro, err := o.LLM.Generate(turnCtx, prompt)
			if err == nil && strings.TrimSpace(intro) != "" {
				return strings.TrimSpace(intro)
			}
			o.logger.Warn("Intro generation failed, using template", zap.Error(err))
		}
		return introFallback(o.cfg.Name, name, portfolio, summary)
	})
	o.record(ctx, callSID, userID, models.Outbound, reply.Text)
	return reply
}

// Retry re-prompts a caller who said nothing recognizable, with a fresh pitch.
func (o *Orchestrator) Retry(ctx context.Context, callSID, userID string) Reply {
	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	reply := o.safePitch(turnCtx, userID, func(*ledger.PortfolioSummary, *market.Summary) string {
		return retryText
	})
	o.record(ctx, callSID, userID, models.Outbound, reply.Text)
	return reply
}

// safePitch builds lead text followed by a recommendation pitch.
func (o *Orchestrator) safePitch(ctx context.Context, userID string, lead func(*ledger.PortfolioSummary, *market.Summary) string) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Recovered from panic while pitching", zap.Any("panic", r), zap.Stack("stack"))
			reply = Reply{Text: fmt.Sprintf("Hey, %s here. What would you like to do today?", o.cfg.Name), Continue: true}
		}
	}()

	portfolio := o.portfolio(ctx, userID)
	summary := o.Market.Summary(ctx)
	text := lead(portfolio, summary)
	rec := o.Recommender.Recommend(ctx, portfolio, summary)
	if rec.Empty() {
		return Reply{Text: text, Continue: true}
	}
	return Reply{
		Text:           text + " " + rec.Pitch(),
		Continue:       true,
		Recommendation: &rec,
	}
}

// portfolio is best effort; nil means unknown.
func (o *Orchestrator) portfolio(ctx context.Context, userID string) *ledger.PortfolioSummary {
	if userID == "" {
		return nil
	}
	p, err := o.Trader.Summary(ctx, userID)
	if err != nil {
		o.logger.Warn("Failed to load portfolio", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return p
}

func (o *Orchestrator) record(ctx context.Context, callSID, userID string, direction models.Direction, content string) {
	if callSID == "" || content == "" {
		return
	}
	if err := o.Transcripts.Append(ctx, callSID, userID, direction, content); err != nil {
		o.logger.Warn("Failed to append transcript entry", zap.String("call_sid", callSID), zap.Error(err))
	}
}

func describePortfolio(p *ledger.PortfolioSummary) string {
	if p == nil {
		return "Unknown"
	}
	return p.Describe()
}
