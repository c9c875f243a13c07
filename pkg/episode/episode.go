// Package episode records drowsy episodes: the span from the frame that
// trips the alarm to the frame where the eyes reopen.
package episode

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an episode ID is unknown.
var ErrNotFound = errors.New("episode: not found")

// Episode is one drowsy period.
type Episode struct {
	ID          string        `json:"id"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Frames      int           `json:"frames"`
	MinEAR      float64       `json:"min_ear"`
	Narrations  int           `json:"narrations"`
	Interrupted bool          `json:"interrupted,omitempty"` // Ended by a restart, not by the eyes reopening
}

// New opens an episode at the given time.
func New(now time.Time) *Episode {
	return &Episode{
		ID:        uuid.NewString(),
		StartedAt: now,
		MinEAR:    math.Inf(1),
	}
}

// Observe accounts one drowsy frame.
func (e *Episode) Observe(ear float64) {
	e.Frames++
	if ear < e.MinEAR {
		e.MinEAR = ear
	}
}

// Close ends the episode.
func (e *Episode) Close(now time.Time) {
	e.EndedAt = now
	e.Duration = now.Sub(e.StartedAt)
	if math.IsInf(e.MinEAR, 1) {
		e.MinEAR = 0
	}
}

// Store persists finished episodes.
type Store interface {
	// Save records a finished episode.
	Save(ctx context.Context, e Episode) error

	// List returns up to limit episodes, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Episode, error)

	// Get returns one episode by ID.
	Get(ctx context.Context, id string) (Episode, error)

	// Close releases resources.
	Close() error
}
