package telephony

import (
	"errors"
	"fmt"
	"strings"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/faults"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

var (
	ErrTelephonyDisabled = faults.New(faults.Upstream, "telephony_disabled", "twilio credentials are not configured")
	ErrInvalidPhone      = faults.New(faults.Validation, "invalid_phone", "invalid phone number")
)

var statusEvents = []string{"initiated", "ringing", "answered", "completed"}

// callCreator is the slice of the Twilio REST API the dialer uses.
type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// Dialer places outbound calls that call back into the server.
type Dialer struct {
	calls   callCreator
	from    string
	baseURL string
	logger  *zap.Logger
}

// NewDialer returns ErrTelephonyDisabled when credentials are missing.
func NewDialer(cfg config.Twilio, publicURL string, logger *zap.Logger) (*Dialer, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.PhoneNumber == "" {
		return nil, ErrTelephonyDisabled
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newDialer(client.Api, cfg.PhoneNumber, publicURL, logger), nil
}

func newDialer(calls callCreator, from, publicURL string, logger *zap.Logger) *Dialer {
	return &Dialer{
		calls:   calls,
		from:    from,
		baseURL: strings.TrimRight(publicURL, "/"),
		logger:  logger.Named("dialer"),
	}
}

// Call dials phone for userID and returns the call SID.
func (d *Dialer) Call(phone, userID string) (string, error) {
	to := FormatE164(phone)
	if to == "" {
		return "", fmt.Errorf("%q: %w", phone, ErrInvalidPhone)
	}

	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(d.from)
	params.SetUrl(d.baseURL + "/api/calls/connect/" + userID)
	params.SetStatusCallback(d.baseURL + "/api/calls/status/" + userID)
	params.SetStatusCallbackEvent(statusEvents)
	params.SetStatusCallbackMethod("POST")

	call, err := d.calls.CreateCall(params)
	if err != nil {
		d.logger.Error("Failed to initiate call", zap.String("to", to), zap.String("user_id", userID), zap.Error(err))
		return "", faults.Wrap(faults.Upstream, "twilio_error", "failed to initiate call", err)
	}
	if call.Sid == nil {
		return "", faults.Wrap(faults.Upstream, "twilio_error", "failed to initiate call", errors.New("response carried no call sid"))
	}

	d.logger.Info("Call initiated", zap.String("to", to), zap.String("call_sid", *call.Sid), zap.String("user_id", userID))
	return *call.Sid, nil
}
