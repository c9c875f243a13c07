package tts

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-drowse/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"

	// openAIBitrate is the bitrate of the MP3 the speech endpoint returns.
	openAIBitrate = 64000
)

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
	VoiceCoral   = "coral"
)

// OpenAI model options
const (
	ModelTTS1         = "tts-1"
	ModelGPT4oMiniTTS = "gpt-4o-mini-tts"
)

// OpenAI implements Provider for the OpenAI speech endpoint. The language is
// inferred from the text, so Config.Language is only used in instructions
// for models that accept them.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelGPT4oMiniTTS
	cfg.VoiceID = VoiceCoral
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return providerOpenAI }

// Synthesize converts text to an MP3 clip.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	payload := map[string]any{
		"model":           o.config.ModelID,
		"voice":           o.config.VoiceID,
		"input":           text,
		"response_format": "mp3",
		"speed":           o.config.Speed,
	}
	if o.config.ModelID == ModelGPT4oMiniTTS && o.config.Language != "" {
		payload["instructions"] = "Speak in " + o.config.Language + " with a clear, urgent tone."
	}

	audio, err := postJSON(ctx, o.client, o.config, o.logger, o.baseURL+"/audio/speech", payload, o.header(), o.parseError)
	if err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	format := AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1, Bitrate: openAIBitrate}
	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  EstimateDuration(len(audio), format),
		Text:      text,
		Provider:  providerOpenAI,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	return WrapError(providerOpenAI, getStatus(ctx, o.client, o.baseURL+"/models", o.header(), o.parseError))
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

func (o *OpenAI) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+o.config.APIKey)
	return h
}

func (o *OpenAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

var _ Provider = (*OpenAI)(nil)
