package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"
)

const (
	providerGoogle = "google"
	googleBitrate  = 32000 // MP3 from Cloud TTS is 32 kbps
)

// Google implements Provider for Google Cloud Text-to-Speech.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider. With an API key it uses key
// auth; otherwise it falls back to Application Default Credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultGoogleVoice
	cfg.Apply(opts...)
	cfg.VoiceID = ResolveVoice(GoogleVoices, cfg.VoiceID)

	clientOpts := []option.ClientOption{option.WithUserAgent("go-drowse")}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	} else {
		creds, err := google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("%w: no API key and no default credentials: %v", ErrNoAPIKey, err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(creds.TokenSource))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return providerGoogle }

// Synthesize converts text to an MP3 clip in the configured language.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.Language,
			Name:         g.config.VoiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  g.config.Speed,
		},
	}

	var resp *texttospeech.SynthesizeSpeechResponse
	var err error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
			}
			g.logger.Warn("retrying request", "attempt", attempt)
		}
		resp, err = g.service.Text.Synthesize(req).Context(ctx).Do()
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return nil, g.wrap(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", g.config.VoiceID,
	)

	format := AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1, Bitrate: googleBitrate}
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  EstimateDuration(len(audio), format),
		Text:      text,
		Provider:  providerGoogle,
		LatencyMs: latency,
	}, nil
}

// Health lists the voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	resp, err := g.service.Voices.List().LanguageCode(g.config.Language).Context(ctx).Do()
	if err != nil {
		return g.wrap(err)
	}
	if len(resp.Voices) == 0 {
		return WrapError(providerGoogle, fmt.Errorf("no voices for %s", g.config.Language))
	}
	return nil
}

// Close is a no-op; the service holds no long-lived connections of its own.
func (g *Google) Close() error {
	return nil
}

// wrap converts googleapi errors into APIErrors.
func (g *Google) wrap(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGoogle,
		}
	}
	return WrapError(providerGoogle, err)
}

func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}

var _ Provider = (*Google)(nil)
