// Package narration speaks the drowsiness warning. It synthesizes the phrase
// once, hands the clip to the audio outputs and blocks until a listener
// reports the end of playback, the clip's estimated length passes, or the
// caller cancels.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/teslashibe/go-drowse/pkg/tts"
)

// DefaultGrace is added to the estimated clip length before giving up on a
// listener acknowledgement.
const DefaultGrace = 1500 * time.Millisecond

// fallbackDuration is used when a provider cannot estimate the clip length.
const fallbackDuration = 3 * time.Second

// ErrNoProvider is returned by Speak when no synthesizer is configured.
var ErrNoProvider = errors.New("narration: no speech provider")

// Clip is one playback request.
type Clip struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Language string        `json:"language"`
	MIME     string        `json:"mime"`
	Duration time.Duration `json:"duration"`
	Audio    []byte        `json:"-"`
}

// Sink delivers clips to whatever plays them.
type Sink interface {
	// Play starts playback and returns how many listeners received the clip.
	Play(ctx context.Context, c Clip) (listeners int, err error)

	// Cancel asks listeners to stop a clip early.
	Cancel(id string)
}

// Speaker implements the controller's narrator.
type Speaker struct {
	provider tts.Provider
	sink     Sink
	language string
	grace    time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	cacheMu sync.Mutex
	cache   map[string]*tts.AudioResult

	pendingMu sync.Mutex
	pending   map[string]chan struct{}
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Speaker) { s.clock = c }
}

// WithGrace sets how long past the clip length to wait for an ack.
func WithGrace(d time.Duration) Option {
	return func(s *Speaker) { s.grace = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// NewSpeaker creates a speaker. sink may be nil, in which case Speak only
// waits out the clip length.
func NewSpeaker(provider tts.Provider, sink Sink, language string, opts ...Option) *Speaker {
	s := &Speaker{
		provider: provider,
		sink:     sink,
		language: language,
		grace:    DefaultGrace,
		clock:    clock.New(),
		logger:   slog.Default(),
		cache:    make(map[string]*tts.AudioResult),
		pending:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "narration")
	return s
}

// Warm synthesizes phrase ahead of the first alarm.
func (s *Speaker) Warm(ctx context.Context, phrase string) error {
	_, err := s.clip(ctx, phrase)
	return err
}

// Speak plays phrase and blocks until playback ends or ctx is done.
func (s *Speaker) Speak(ctx context.Context, phrase string) error {
	audio, err := s.clip(ctx, phrase)
	if err != nil {
		return err
	}

	c := Clip{
		ID:       uuid.NewString(),
		Text:     phrase,
		Language: s.language,
		MIME:     audio.Format.Encoding.MIME(),
		Duration: audio.Duration,
		Audio:    audio.Audio,
	}
	if c.Duration <= 0 {
		c.Duration = fallbackDuration
	}

	done := make(chan struct{})
	s.pendingMu.Lock()
	s.pending[c.ID] = done
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, c.ID)
		s.pendingMu.Unlock()
	}()

	listeners := 0
	if s.sink != nil {
		listeners, err = s.sink.Play(ctx, c)
		if err != nil {
			s.logger.Warn("playback failed", "clip", c.ID, "error", err)
		}
	}

	wait := c.Duration
	if listeners > 0 {
		wait += s.grace
	}
	timer := s.clock.Timer(wait)
	defer timer.Stop()

	s.logger.Debug("narrating", "clip", c.ID, "listeners", listeners, "wait", wait)

	select {
	case <-done:
		return nil
	case <-timer.C:
		if listeners > 0 {
			s.logger.Debug("no playback ack, assuming finished", "clip", c.ID)
		}
		return nil
	case <-ctx.Done():
		if s.sink != nil && listeners > 0 {
			s.sink.Cancel(c.ID)
		}
		return ctx.Err()
	}
}

// Ack marks a clip as finished playing. Unknown or repeated IDs are ignored.
func (s *Speaker) Ack(id string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	done, ok := s.pending[id]
	if !ok {
		return false
	}
	delete(s.pending, id)
	close(done)
	return true
}

// Pending returns the number of clips awaiting an ack.
func (s *Speaker) Pending() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

// clip returns the cached synthesis of phrase, synthesizing on a miss.
// Failures are not cached so the next alarm retries.
func (s *Speaker) clip(ctx context.Context, phrase string) (*tts.AudioResult, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	s.cacheMu.Lock()
	cached, ok := s.cache[phrase]
	s.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	result, err := s.provider.Synthesize(ctx, phrase)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	s.cacheMu.Lock()
	s.cache[phrase] = result
	s.cacheMu.Unlock()

	s.logger.Info("phrase synthesized",
		"provider", result.Provider,
		"bytes", len(result.Audio),
		"duration", result.Duration,
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}
