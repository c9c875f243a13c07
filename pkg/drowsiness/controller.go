package drowsiness

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-drowse/pkg/ear"
	"github.com/teslashibe/go-drowse/pkg/episode"
	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/landmark"
)

// saveTimeout bounds episode persistence from the controller loop.
const saveTimeout = 2 * time.Second

// Frame is one detector result.
type Frame struct {
	ID    uint64
	Faces []landmark.Face
	Image []byte // Optional JPEG to paint the HUD on
}

// Narrator speaks the warning phrase. Speak blocks until playback ends or
// ctx is cancelled. A failed narration is logged and not repeated until the
// episode ends.
type Narrator interface {
	Speak(ctx context.Context, phrase string) error
}

type silent struct{}

func (silent) Speak(ctx context.Context, phrase string) error { return nil }

// Publisher receives the display output of every processed frame.
type Publisher interface {
	PublishHUD(f hud.Frame)
	PublishCamera(jpeg []byte)
}

// Painter draws a HUD frame onto a camera image.
type Painter interface {
	Paint(jpeg []byte, f hud.Frame) ([]byte, error)
}

// Stats holds controller counters.
type Stats struct {
	Frames            uint64 `json:"frames"`
	Skipped           uint64 `json:"skipped"`
	NoFace            uint64 `json:"no_face"`
	Narrations        uint64 `json:"narrations"`
	NarrationFailures uint64 `json:"narration_failures"`
	Episodes          uint64 `json:"episodes"`
}

// Snapshot is the controller state visible to other goroutines.
type Snapshot struct {
	State
	Phase     hud.Phase `json:"phase"`
	LastFrame hud.Frame `json:"last_frame"`
}

// Controller runs a Monitor on one goroutine. Frames, narration completions,
// cool-down timers and start requests are all events on its loop.
type Controller struct {
	config    Config
	monitor   *Monitor
	narrator  Narrator
	publisher Publisher
	painter   Painter
	store     episode.Store
	clock     clock.Clock
	logger    *slog.Logger

	frames   chan Frame
	narrDone chan narrationResult
	rearm    chan uint64
	starts   chan chan struct{}

	// Loop-owned
	phase           hud.Phase
	current         *episode.Episode
	currentEpisode  uint64 // monitor generation of current
	cancelNarration context.CancelFunc

	snapMu sync.RWMutex
	snap   Snapshot

	framesProcessed atomic.Uint64
	framesSkipped   atomic.Uint64
	framesNoFace    atomic.Uint64
	narrations      atomic.Uint64
	narrFailures    atomic.Uint64
	episodes        atomic.Uint64
}

type narrationResult struct {
	episode uint64
	err     error
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithPublisher sets the display sink.
func WithPublisher(p Publisher) Option {
	return func(ctl *Controller) { ctl.publisher = p }
}

// WithPainter enables HUD painting on frames that carry an image.
func WithPainter(p Painter) Option {
	return func(ctl *Controller) { ctl.painter = p }
}

// WithStore records finished episodes.
func WithStore(s episode.Store) Option {
	return func(ctl *Controller) { ctl.store = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) { ctl.logger = l }
}

// NewController creates a controller. narrator may be nil for a silent monitor.
func NewController(cfg Config, narrator Narrator, opts ...Option) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if narrator == nil {
		narrator = silent{}
	}

	c := &Controller{
		config:   cfg,
		monitor:  NewMonitor(cfg),
		narrator: narrator,
		clock:    clock.New(),
		logger:   slog.Default(),
		frames:   make(chan Frame, cfg.QueueSize),
		narrDone: make(chan narrationResult, 1),
		rearm:    make(chan uint64, 1),
		starts:   make(chan chan struct{}),
		phase:    hud.PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = episode.NewMemory(0)
	}
	c.logger = c.logger.With("component", "drowsiness")
	c.snap = Snapshot{Phase: c.phase, LastFrame: hud.Frame{Gauge: hud.NoReading(), Indicator: hud.Status(c.phase)}}
	return c
}

// Submit queues a frame, blocking while the queue is full.
func (c *Controller) Submit(ctx context.Context, f Frame) error {
	select {
	case c.frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start is the operator's start action: it silences any narration, ends the
// current episode and resets the monitor.
func (c *Controller) Start(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case c.starts <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started",
		"ear_threshold", c.config.EARThreshold,
		"consec_frames", c.config.ConsecFrames,
		"cooldown", c.config.Cooldown,
	)

	for {
		select {
		case <-ctx.Done():
			c.stopNarration()
			c.finishEpisode(true)
			c.logger.Info("controller stopped")
			return ctx.Err()

		case f := <-c.frames:
			c.process(ctx, f)

		case r := <-c.narrDone:
			if r.err != nil {
				// AlertInProgress stays set so the episode is not narrated again.
				c.narrationFailed(r)
				continue
			}
			ep := r.episode
			if d, ok := c.monitor.NarrationFinished(ep); ok {
				c.clock.AfterFunc(d, func() {
					select {
					case c.rearm <- ep:
					case <-ctx.Done():
					}
				})
			}
			c.updateSnapshot(c.snapshotFrame())

		case ep := <-c.rearm:
			c.monitor.Rearm(ep)
			c.updateSnapshot(c.snapshotFrame())

		case done := <-c.starts:
			c.start()
			close(done)
		}
	}
}

// process runs one frame through EAR, the monitor and the HUD.
func (c *Controller) process(ctx context.Context, f Frame) {
	c.framesProcessed.Add(1)

	reading, err := ear.FromFaces(f.Faces)
	if err != nil {
		switch {
		case errors.Is(err, ear.ErrNoFace):
			c.framesNoFace.Add(1)
			if !c.monitor.State().Drowsy {
				c.phase = hud.PhaseNoFace
			}
		default:
			c.framesSkipped.Add(1)
			c.logger.Debug("frame skipped", "frame_id", f.ID, "error", err)
		}
		c.emit(f, hud.Frame{FrameID: f.ID, Gauge: hud.NoReading(), Indicator: hud.Status(c.phase), Counter: c.monitor.State().Counter})
		return
	}

	res := c.monitor.Update(reading.Average)

	if res.Entered {
		c.current = episode.New(c.clock.Now())
		c.currentEpisode = res.Episode
		c.episodes.Add(1)
		c.logger.Warn("drowsiness detected", "episode", c.current.ID, "ear", res.EAR, "counter", res.Counter)
	}
	if c.current != nil && res.Drowsy {
		c.current.Observe(res.EAR)
	}
	if res.Recovered {
		c.stopNarration()
		c.finishEpisode(false)
	}
	if res.Speak {
		c.speak(ctx, res.Episode)
	}

	if res.Drowsy {
		c.phase = hud.PhaseDrowsy
	} else {
		c.phase = hud.PhaseAwake
	}

	c.emit(f, hud.Frame{
		FrameID:   f.ID,
		Gauge:     hud.Render(res.EAR, c.config.EARThreshold),
		Indicator: hud.Status(c.phase),
		Counter:   res.Counter,
	})
}

// emit publishes a HUD frame and, when possible, the painted camera frame.
func (c *Controller) emit(f Frame, hf hud.Frame) {
	c.updateSnapshot(hf)

	if c.publisher == nil {
		return
	}
	c.publisher.PublishHUD(hf)

	if c.painter == nil || len(f.Image) == 0 {
		return
	}
	painted, err := c.painter.Paint(f.Image, hf)
	if err != nil {
		c.logger.Debug("paint failed", "frame_id", f.ID, "error", err)
		return
	}
	c.publisher.PublishCamera(painted)
}

// speak starts a narration for episode on its own goroutine.
func (c *Controller) speak(ctx context.Context, ep uint64) {
	c.narrations.Add(1)
	if c.current != nil {
		c.current.Narrations++
	}

	nctx, cancel := context.WithCancel(ctx)
	c.cancelNarration = cancel

	go func() {
		defer cancel()
		r := narrationResult{episode: ep}
		if err := c.narrator.Speak(nctx, c.config.Phrase); err != nil && !errors.Is(err, context.Canceled) {
			r.err = err
		}
		select {
		case c.narrDone <- r:
		case <-ctx.Done():
		}
	}()
}

// narrationFailed uncounts a narration that never played.
func (c *Controller) narrationFailed(r narrationResult) {
	c.narrations.Add(^uint64(0))
	c.narrFailures.Add(1)
	if c.current != nil && c.currentEpisode == r.episode && c.current.Narrations > 0 {
		c.current.Narrations--
	}
	c.logger.Warn("narration failed, alert muted until the episode ends", "episode", r.episode, "error", r.err)
}

// stopNarration cancels an in-flight narration, if any.
func (c *Controller) stopNarration() {
	if c.cancelNarration != nil {
		c.cancelNarration()
		c.cancelNarration = nil
	}
}

// finishEpisode closes and stores the current episode.
func (c *Controller) finishEpisode(interrupted bool) {
	if c.current == nil {
		return
	}
	e := c.current
	c.current = nil

	e.Close(c.clock.Now())
	e.Interrupted = interrupted

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, *e); err != nil {
		c.logger.Error("failed to save episode", "episode", e.ID, "error", err)
		return
	}
	c.logger.Info("drowsiness cleared",
		"episode", e.ID,
		"duration", e.Duration,
		"frames", e.Frames,
		"min_ear", e.MinEAR,
		"narrations", e.Narrations,
		"interrupted", interrupted,
	)
}

// start handles a start request on the loop goroutine.
func (c *Controller) start() {
	c.stopNarration()
	c.finishEpisode(true)
	c.monitor.Reset()
	c.phase = hud.PhaseStarting
	c.logger.Info("monitoring started")
	c.emit(Frame{}, hud.Frame{Gauge: hud.NoReading(), Indicator: hud.Status(c.phase)})
}

func (c *Controller) snapshotFrame() hud.Frame {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.LastFrame
}

func (c *Controller) updateSnapshot(hf hud.Frame) {
	c.snapMu.Lock()
	c.snap = Snapshot{State: c.monitor.State(), Phase: c.phase, LastFrame: hf}
	c.snapMu.Unlock()
}

// Snapshot returns the latest state, safe from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

// Stats returns the controller counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Frames:            c.framesProcessed.Load(),
		Skipped:           c.framesSkipped.Load(),
		NoFace:            c.framesNoFace.Load(),
		Narrations:        c.narrations.Load(),
		NarrationFailures: c.narrFailures.Load(),
		Episodes:          c.episodes.Load(),
	}
}

// Config returns the controller configuration.
func (c *Controller) Config() Config {
	return c.config
}

// Episodes returns the episode store.
func (c *Controller) Episodes() episode.Store {
	return c.store
}
