package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-drowse/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io/v1"
	providerElevenLabs = "elevenlabs"

	// elevenLabsFormat is requested on every call so the bitrate is known.
	elevenLabsFormat  = "mp3_44100_128"
	elevenLabsBitrate = 128000
)

// ElevenLabs model IDs
const (
	// ModelFlashV2_5 is the fastest multilingual model and accepts a
	// language_code hint.
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model.
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider. Voice presets from
// ElevenLabsVoices are resolved to IDs.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelFlashV2_5
	cfg.VoiceID = DefaultElevenLabsVoice
	cfg.Apply(opts...)

	cfg.VoiceID = ResolveVoice(ElevenLabsVoices, cfg.VoiceID)
	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// Name implements Provider.
func (e *ElevenLabs) Name() string { return providerElevenLabs }

// Synthesize converts text to an MP3 clip.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, e.config.VoiceID, elevenLabsFormat)
	audio, err := postJSON(ctx, e.client, e.config, e.logger, url, e.buildPayload(text), e.header(), e.parseError)
	if err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
	)

	format := AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1, Bitrate: elevenLabsBitrate}
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  EstimateDuration(len(audio), format),
		Text:      text,
		Provider:  providerElevenLabs,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and API key validity.
func (e *ElevenLabs) Health(ctx context.Context) error {
	return WrapError(providerElevenLabs, getStatus(ctx, e.client, e.baseURL+"/user", e.header(), e.parseError))
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the resolved voice ID.
func (e *ElevenLabs) VoiceID() string {
	return e.config.VoiceID
}

func (e *ElevenLabs) buildPayload(text string) map[string]any {
	payload := map[string]any{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         e.config.VoiceSettings.Stability,
			"similarity_boost":  e.config.VoiceSettings.SimilarityBoost,
			"style":             e.config.VoiceSettings.Style,
			"use_speaker_boost": e.config.VoiceSettings.SpeakerBoost,
			"speed":             e.config.Speed,
		},
	}
	// Only the v2.5 models take a language hint.
	if strings.HasSuffix(e.config.ModelID, "_v2_5") {
		if lang := e.config.BaseLanguage(); lang != "" {
			payload["language_code"] = lang
		}
	}
	return payload
}

func (e *ElevenLabs) header() http.Header {
	h := http.Header{}
	h.Set("xi-api-key", e.config.APIKey)
	h.Set("Accept", EncodingMP3.MIME())
	return h
}

func (e *ElevenLabs) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Detail struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"detail"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Detail.Message != "" {
		message = errResp.Detail.Message
		code = errResp.Detail.Status
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerElevenLabs,
	}
}

var _ Provider = (*ElevenLabs)(nil)
