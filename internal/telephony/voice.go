// Package telephony speaks to Twilio: TwiML for call turns, outbound dialing,
// and ElevenLabs speech clips.
package telephony

import (
	"context"
	"fmt"
	"strings"

	"voice-broker-go/internal/config"

	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"
)

const (
	connectFailText  = "Sorry, there was a problem connecting to your broker. Please try again later."
	firstPromptText  = "What would you like to do today?"
	followPromptText = "Anything else you'd like to do?"
	gatherTimeout    = "5"
)

// Voice renders replies as TwiML documents.
type Voice struct {
	baseURL  string
	voice    string
	language string
	signOff  string
	speech   *Synthesizer // optional
	logger   *zap.Logger
}

// NewVoice creates a renderer; brokerName signs off every call.
func NewVoice(publicURL, brokerName string, cfg config.Twilio, speech *Synthesizer, logger *zap.Logger) *Voice {
	if brokerName == "" {
		brokerName = "Wolf"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "Polly.Matthew"
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}
	return &Voice{
		baseURL:  strings.TrimRight(publicURL, "/"),
		voice:    voice,
		language: language,
		signOff:  fmt.Sprintf("Thanks for trading with us today. %s out!", brokerName),
		speech:   speech,
		logger:   logger.Named("voice"),
	}
}

// Welcome speaks the call-opening text and listens.
func (v *Voice) Welcome(ctx context.Context, text string) (string, error) {
	return v.render(ctx, text, true, firstPromptText)
}

// Respond speaks text, then either listens again or hangs up.
func (v *Voice) Respond(ctx context.Context, text string, listen bool) (string, error) {
	return v.render(ctx, text, listen, followPromptText)
}

// Failure hangs up after an apology. It never fails.
func (v *Voice) Failure() string {
	doc, err := twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: connectFailText, Voice: v.voice},
		&twiml.VoiceHangup{},
	})
	if err != nil {
		v.logger.Error("Failed to render failure TwiML", zap.Error(err))
		return `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`
	}
	return doc
}

func (v *Voice) render(ctx context.Context, text string, listen bool, prompt string) (string, error) {
	elements := []twiml.Element{v.speak(ctx, text)}

	if listen {
		elements = append(elements,
			&twiml.VoiceGather{
				Input:         "speech",
				Action:        v.baseURL + "/api/calls/process_speech",
				Method:        "POST",
				Timeout:       gatherTimeout,
				SpeechTimeout: "auto",
				Language:      v.language,
				InnerElements: []twiml.Element{&twiml.VoiceSay{Message: prompt, Voice: v.voice}},
			},
			&twiml.VoiceRedirect{Url: v.baseURL + "/api/calls/retry", Method: "POST"},
		)
	} else {
		elements = append(elements,
			&twiml.VoiceSay{Message: v.signOff, Voice: v.voice},
			&twiml.VoiceHangup{},
		)
	}
	return twiml.Voice(elements)
}

// speak plays a synthesized clip when one can be made, otherwise uses Say.
func (v *Voice) speak(ctx context.Context, text string) twiml.Element {
	if v.speech != nil && v.speech.Enabled() {
		id, err := v.speech.Synthesize(ctx, text)
		if err == nil {
			return &twiml.VoicePlay{Url: v.baseURL + "/api/calls/audio/" + id}
		}
		v.logger.Warn("Speech synthesis failed, falling back to Say", zap.Error(err))
	}
	return &twiml.VoiceSay{Message: text, Voice: v.voice}
}
