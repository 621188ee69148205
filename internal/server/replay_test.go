package server

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"voice-broker-go/internal/broker"
	"voice-broker-go/internal/config"
	"voice-broker-go/internal/intent"
	"voice-broker-go/internal/ledger"
	"voice-broker-go/internal/market"
	"voice-broker-go/internal/models"
	"voice-broker-go/internal/telephony"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cannedRecommender struct {
	rec models.Recommendation
}

func (c cannedRecommender) Recommend(context.Context, *ledger.PortfolioSummary, *market.Summary) models.Recommendation {
	return c.rec
}

// setupLiveServer wires a real orchestrator, ledger and transcript behind the webhooks.
func setupLiveServer(t *testing.T) *testEnv {
	env := setupServer(t)
	quotes := fixedQuotes{price: decimal.NewFromInt(150)}
	trades := ledger.NewLedger(env.db, quotes, nil, zap.NewNop())
	orch := broker.NewOrchestrator(broker.Dependencies{
		Users:       env.accounts,
		Transcripts: env.calls,
		Trader:      trades,
		Quotes:      quotes,
		Market:      staticMarket{},
		Recommender: cannedRecommender{rec: models.Recommendation{Ticker: "AAPL", Action: models.ActionBuy, Quantity: 10, Rationale: "Services are ripping."}},
		Resolver:    intent.NewResolver(nil, intent.ModeCombined, zap.NewNop()),
	}, config.Broker{Name: "Wolf"}, zap.NewNop())

	env.server = NewServer(0, Dependencies{
		Accounts: env.accounts,
		Calls:    env.calls,
		Broker:   orch,
		Ledger:   trades,
		Quotes:   quotes,
		Market:   staticMarket{},
		Voice:    telephony.NewVoice("https://broker.example.com", "Wolf", config.Twilio{}, nil, zap.NewNop()),
		Dialer:   env.dialer,
	}, zap.NewNop())
	return env
}

func (e *testEnv) say(t *testing.T, callSID, utterance string) string {
	t.Helper()
	resp := e.do(http.MethodPost, "/api/calls/process_speech", "",
		url.Values{"From": {"+14155550100"}, "CallSid": {callSID}, "SpeechResult": {utterance}})
	require.Equal(t, http.StatusOK, resp.Code)
	return resp.Body.String()
}

func (e *testEnv) tradeCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Trade{}).Count(&n).Error)
	return n
}

func TestAgreedPitchExecutesOnce(t *testing.T) {
	// Arrange
	env := setupLiveServer(t)
	resp := env.do(http.MethodPost, "/api/calls/inbound", "", url.Values{"From": {"+14155550100"}, "CallSid": {"CA5"}})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "picking up 10 shares of AAPL")

	// Act
	confirmed := env.say(t, "CA5", "yes let's do it")
	afterThanks := env.say(t, "CA5", "yeah thanks")
	afterOkay := env.say(t, "CA5", "okay")

	// Assert
	assert.Contains(t, confirmed, "Boom!")
	assert.NotContains(t, afterThanks, "Boom!")
	assert.NotContains(t, afterOkay, "Boom!")
	assert.Equal(t, int64(1), env.tradeCount(t))
	assert.Nil(t, env.server.pitch("CA5"))

	var user models.User
	require.NoError(t, env.db.First(&user, "id = ?", "u1").Error)
	assert.True(t, decimal.NewFromInt(8500).Equal(user.CashBalance), user.CashBalance.String())

	history, err := env.calls.History(context.Background(), "CA5")
	require.NoError(t, err)
	assert.Len(t, history, 7)
}

func TestQuestionAfterPitchDoesNotTrade(t *testing.T) {
	env := setupLiveServer(t)
	env.do(http.MethodPost, "/api/calls/inbound", "", url.Values{"From": {"+14155550100"}, "CallSid": {"CA6"}})

	body := env.say(t, "CA6", "yeah, how is my portfolio doing?")

	assert.NotContains(t, body, "Boom!")
	assert.Zero(t, env.tradeCount(t))
	assert.Nil(t, env.server.pitch("CA6"))
}
