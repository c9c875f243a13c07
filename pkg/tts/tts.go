// Package tts synthesizes the spoken drowsiness warning.
//
// Providers cover OpenAI, ElevenLabs (multilingual voices) and Google Cloud
// Text-to-Speech, which has the best Indonesian coverage. All of them
// implement Provider so they can be chained for fallback.
//
// Example usage:
//
//	provider, _ := tts.NewGoogle(ctx,
//	    tts.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    tts.WithLanguage("id-ID"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Kamu ngantuk Khalifa! Segera tidur ya")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"fmt"
	"time"
)

// Provider synthesizes a phrase into a playable clip.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Synthesize converts text to audio, returning the complete clip.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is a complete synthesized clip.
type AudioResult struct {
	Audio    []byte
	Format   AudioFormat
	Duration time.Duration // Estimated playback length

	Text      string
	Provider  string
	LatencyMs int64
}

// AudioFormat describes the clip encoding.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	Bitrate    int // bits per second, compressed formats only
}

// Encoding is an audio container/codec.
type Encoding string

const (
	EncodingMP3  Encoding = "mp3"
	EncodingOpus Encoding = "ogg_opus"
	EncodingWAV  Encoding = "wav" // LINEAR16 with a RIFF header
)

// MIME returns the content type a browser needs to play the encoding.
func (e Encoding) MIME() string {
	switch e {
	case EncodingOpus:
		return "audio/ogg"
	case EncodingWAV:
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

// EstimateDuration guesses playback length from the clip size. MP3 and Opus
// use the bitrate; WAV assumes 16-bit samples after a 44 byte header.
func EstimateDuration(size int, f AudioFormat) time.Duration {
	switch f.Encoding {
	case EncodingWAV:
		if f.SampleRate <= 0 {
			return 0
		}
		ch := f.Channels
		if ch <= 0 {
			ch = 1
		}
		samples := (size - 44) / (2 * ch)
		if samples <= 0 {
			return 0
		}
		return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
	default:
		if f.Bitrate <= 0 {
			return 0
		}
		return time.Duration(int64(size) * 8 * int64(time.Second) / int64(f.Bitrate))
	}
}

// VoiceSettings controls ElevenLabs voice characteristics.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings favors an urgent but steady delivery.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		Style:           0.2,
		SpeakerBoost:    true,
	}
}

// New builds a provider by name: "google", "openai", "elevenlabs" or "mock".
func New(ctx context.Context, name string, opts ...Option) (Provider, error) {
	switch name {
	case providerGoogle:
		return NewGoogle(ctx, opts...)
	case providerOpenAI:
		return NewOpenAI(opts...)
	case providerElevenLabs:
		return NewElevenLabs(opts...)
	case providerMock:
		return NewMock(), nil
	}
	return nil, fmt.Errorf("tts: unknown provider %q", name)
}
