package telephony

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"voice-broker-go/internal/config"
	"voice-broker-go/internal/faults"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const synthesisTimeout = 8 * time.Second

// ErrClipNotFound means the clip expired or never existed.
var ErrClipNotFound = faults.New(faults.NotFound, "clip_not_found", "audio clip not found")

// Clip is a synthesized utterance.
type Clip struct {
	Audio       []byte
	ContentType string
	expires     time.Time
}

// ClipStore keeps synthesized clips until Twilio fetches them.
type ClipStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	clips map[string]Clip
	now   func() time.Time
}

func NewClipStore(ttl time.Duration) *ClipStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ClipStore{ttl: ttl, clips: make(map[string]Clip), now: time.Now}
}

// Put stores a clip and returns its id. Expired clips are swept on the way.
func (s *ClipStore) Put(audio []byte, contentType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, c := range s.clips {
		if now.After(c.expires) {
			delete(s.clips, id)
		}
	}

	id := uuid.NewString()
	s.clips[id] = Clip{Audio: audio, ContentType: contentType, expires: now.Add(s.ttl)}
	return id
}

func (s *ClipStore) Get(id string) (Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clips[id]
	if !ok {
		return Clip{}, ErrClipNotFound
	}
	if s.now().After(c.expires) {
		delete(s.clips, id)
		return Clip{}, ErrClipNotFound
	}
	return c, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesizer turns reply text into ElevenLabs audio clips.
type Synthesizer struct {
	client  *resty.Client
	apiKey  string
	voiceID string
	model   string
	clips   *ClipStore
	logger  *zap.Logger
}

func NewSynthesizer(cfg config.ElevenLabs, clips *ClipStore, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		client:  resty.New().SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")),
		apiKey:  cfg.ApiKey,
		voiceID: cfg.VoiceID,
		model:   cfg.Model,
		clips:   clips,
		logger:  logger.Named("elevenlabs"),
	}
}

// Enabled reports whether an API key is configured.
func (s *Synthesizer) Enabled() bool {
	return s != nil && s.apiKey != ""
}

// Synthesize renders text and stores the clip, returning its id.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if !s.Enabled() {
		return "", faults.New(faults.Upstream, "tts_disabled", "text-to-speech is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, synthesisTimeout)
	defer cancel()

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("xi-api-key", s.apiKey).
		SetHeader("Accept", "audio/mpeg").
		SetBody(speechRequest{
			Text:          text,
			ModelID:       s.model,
			VoiceSettings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		}).
		Post("/text-to-speech/" + s.voiceID)
	if err != nil {
		return "", faults.Wrap(faults.Upstream, "tts_unavailable", "speech request failed", err)
	}
	if resp.IsError() {
		return "", faults.New(faults.Upstream, "tts_unavailable",
			fmt.Sprintf("speech request failed with status %s: %s", resp.Status(), resp.String()))
	}
	if len(resp.Body()) == 0 {
		return "", faults.New(faults.Upstream, "tts_unavailable", "speech response was empty")
	}

	id := s.clips.Put(resp.Body(), "audio/mpeg")
	s.logger.Debug("Synthesized clip", zap.String("clip_id", id), zap.Int("bytes", len(resp.Body())))
	return id, nil
}

// Clip returns a stored clip.
func (s *Synthesizer) Clip(id string) (Clip, error) {
	return s.clips.Get(id)
}
