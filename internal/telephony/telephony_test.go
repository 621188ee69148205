package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/faults"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

const publicURL = "https://broker.example.com/"

func TestFormatE164(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "AlreadyE164", input: "+447700900123", expected: "+447700900123"},
		{name: "USTenDigits", input: "(415) 555-2671", expected: "+14155552671"},
		{name: "WithCountryCode", input: "1 415 555 2671", expected: "+14155552671"},
		{name: "Short", input: "55512", expected: "+55512"},
		{name: "Empty", input: "  ", expected: ""},
		{name: "NoDigits", input: "call me", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatE164(tc.input))
		})
	}
}

func TestVoice(t *testing.T) {
	v := NewVoice(publicURL, "Wolf", config.Twilio{}, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("ContinueListens", func(t *testing.T) {
		doc, err := v.Respond(ctx, "Bought 10 shares of AAPL.", true)

		require.NoError(t, err)
		assert.Contains(t, doc, "<Response>")
		assert.Contains(t, doc, "Bought 10 shares of AAPL.")
		assert.Contains(t, doc, `voice="Polly.Matthew"`)
		assert.Contains(t, doc, "<Gather")
		assert.Contains(t, doc, `input="speech"`)
		assert.Contains(t, doc, `action="https://broker.example.com/api/calls/process_speech"`)
		assert.Contains(t, doc, "https://broker.example.com/api/calls/retry")
		assert.NotContains(t, doc, "Hangup")
	})

	t.Run("EndHangsUp", func(t *testing.T) {
		doc, err := v.Respond(ctx, "Pleasure doing business.", false)

		require.NoError(t, err)
		assert.Contains(t, doc, "Pleasure doing business.")
		assert.Contains(t, doc, "Wolf out!")
		assert.Contains(t, doc, "Hangup")
		assert.NotContains(t, doc, "Gather")
	})

	t.Run("SignOffUsesBrokerName", func(t *testing.T) {
		named := NewVoice(publicURL, "Gordon", config.Twilio{}, nil, zap.NewNop())

		doc, err := named.Respond(ctx, "Done.", false)

		require.NoError(t, err)
		assert.Contains(t, doc, "Thanks for trading with us today. Gordon out!")
		assert.NotContains(t, doc, "Wolf")
	})

	t.Run("WelcomePrompt", func(t *testing.T) {
		doc, err := v.Welcome(ctx, "Hey Jordan!")

		require.NoError(t, err)
		assert.Contains(t, doc, "What would you like to do today?")
	})

	t.Run("Failure", func(t *testing.T) {
		doc := v.Failure()

		assert.Contains(t, doc, "problem connecting to your broker")
		assert.Contains(t, doc, "Hangup")
	})
}

func TestVoicePlaysSynthesizedClip(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer server.Close()
	clips := NewClipStore(time.Minute)
	speech := NewSynthesizer(config.ElevenLabs{ApiKey: "key", VoiceID: "v1", Model: "m", BaseURL: server.URL}, clips, zap.NewNop())
	v := NewVoice(publicURL, "Wolf", config.Twilio{}, speech, zap.NewNop())

	// Act
	doc, err := v.Respond(context.Background(), "Boom!", true)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, doc, "<Play")
	assert.Contains(t, doc, "https://broker.example.com/api/calls/audio/")
	assert.Len(t, clips.clips, 1)
}

func TestSynthesizer(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		var got speechRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/text-to-speech/v1", r.URL.Path)
			assert.Equal(t, "key", r.Header.Get("xi-api-key"))
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			_, _ = w.Write([]byte("audio"))
		}))
		defer server.Close()
		s := NewSynthesizer(config.ElevenLabs{ApiKey: "key", VoiceID: "v1", Model: "eleven_turbo_v2", BaseURL: server.URL}, NewClipStore(time.Minute), zap.NewNop())

		id, err := s.Synthesize(context.Background(), "hello")

		require.NoError(t, err)
		assert.Equal(t, "hello", got.Text)
		assert.Equal(t, "eleven_turbo_v2", got.ModelID)
		clip, err := s.Clip(id)
		require.NoError(t, err)
		assert.Equal(t, []byte("audio"), clip.Audio)
		assert.Equal(t, "audio/mpeg", clip.ContentType)
	})

	t.Run("UpstreamError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"voice not found"}`, http.StatusNotFound)
		}))
		defer server.Close()
		s := NewSynthesizer(config.ElevenLabs{ApiKey: "key", VoiceID: "v1", BaseURL: server.URL}, NewClipStore(time.Minute), zap.NewNop())

		_, err := s.Synthesize(context.Background(), "hello")

		assert.Equal(t, faults.Upstream, faults.KindOf(err))
	})

	t.Run("Disabled", func(t *testing.T) {
		s := NewSynthesizer(config.ElevenLabs{}, NewClipStore(time.Minute), zap.NewNop())

		assert.False(t, s.Enabled())
		_, err := s.Synthesize(context.Background(), "hello")
		assert.Error(t, err)
	})
}

func TestClipStoreExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	store := NewClipStore(time.Minute)
	store.now = func() time.Time { return now }

	id := store.Put([]byte("a"), "audio/mpeg")
	_, err := store.Get(id)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(id)
	assert.ErrorIs(t, err, ErrClipNotFound)
	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrClipNotFound)
}

type MockCalls struct {
	mock.Mock
}

func (m *MockCalls) CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.ApiV2010Call), args.Error(1)
}

func TestDialer(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		calls := new(MockCalls)
		sid := "CA123"
		calls.On("CreateCall", mock.MatchedBy(func(p *api.CreateCallParams) bool {
			return *p.To == "+14155552671" &&
				*p.From == "+15550000000" &&
				*p.Url == "https://broker.example.com/api/calls/connect/u1" &&
				*p.StatusCallback == "https://broker.example.com/api/calls/status/u1"
		})).Return(&api.ApiV2010Call{Sid: &sid}, nil)
		d := newDialer(calls, "+15550000000", publicURL, zap.NewNop())

		got, err := d.Call("415-555-2671", "u1")

		require.NoError(t, err)
		assert.Equal(t, "CA123", got)
		calls.AssertExpectations(t)
	})

	t.Run("InvalidPhone", func(t *testing.T) {
		d := newDialer(new(MockCalls), "+15550000000", publicURL, zap.NewNop())

		_, err := d.Call("", "u1")

		assert.ErrorIs(t, err, ErrInvalidPhone)
	})

	t.Run("TwilioError", func(t *testing.T) {
		calls := new(MockCalls)
		calls.On("CreateCall", mock.Anything).Return(nil, errors.New("unverified number"))
		d := newDialer(calls, "+15550000000", publicURL, zap.NewNop())

		_, err := d.Call("+14155552671", "u1")

		assert.Equal(t, "twilio_error", faults.CodeOf(err))
	})

	t.Run("MissingCredentials", func(t *testing.T) {
		_, err := NewDialer(config.Twilio{AccountSID: "AC1"}, publicURL, zap.NewNop())

		assert.ErrorIs(t, err, ErrTelephonyDisabled)
	})
}
