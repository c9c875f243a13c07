package drowsiness

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-drowse/pkg/episode"
	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/landmark"
)

// faceWithEAR builds a face mesh whose eyes both have the given ratio.
func faceWithEAR(ratio float64) landmark.Face {
	eye := func(cx float64) landmark.Eye {
		w, h := 0.1, ratio*0.1
		return landmark.Eye{
			{X: cx - w/2, Y: 0.4},
			{X: cx - w/6, Y: 0.4 - h/2},
			{X: cx + w/6, Y: 0.4 - h/2},
			{X: cx + w/2, Y: 0.4},
			{X: cx + w/6, Y: 0.4 + h/2},
			{X: cx - w/6, Y: 0.4 + h/2},
		}
	}
	face := make(landmark.Face, 478)
	left, right := eye(0.6), eye(0.4)
	for i, idx := range landmark.LeftEyeIndices {
		face[idx] = left[i]
	}
	for i, idx := range landmark.RightEyeIndices {
		face[idx] = right[i]
	}
	return face
}

func frameWithEAR(ratio float64) Frame {
	return Frame{Faces: []landmark.Face{faceWithEAR(ratio)}}
}

// fakeNarrator blocks each Speak until released or cancelled.
type fakeNarrator struct {
	calls     atomic.Int32
	cancelled atomic.Int32
	block     bool
	release   chan struct{}
}

func newFakeNarrator(block bool) *fakeNarrator {
	return &fakeNarrator{block: block, release: make(chan struct{}, 16)}
}

func (n *fakeNarrator) Speak(ctx context.Context, phrase string) error {
	n.calls.Add(1)
	if !n.block {
		return nil
	}
	select {
	case <-n.release:
		return nil
	case <-ctx.Done():
		n.cancelled.Add(1)
		return ctx.Err()
	}
}

// failingNarrator fails every Speak, like a TTS provider that is down.
type failingNarrator struct {
	calls atomic.Int32
}

func (n *failingNarrator) Speak(ctx context.Context, phrase string) error {
	n.calls.Add(1)
	return errors.New("tts: 503 service unavailable")
}

// lockedBuffer is a bytes.Buffer safe for a logger on another goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakePublisher struct {
	mu     sync.Mutex
	frames []hud.Frame
	camera int
}

func (p *fakePublisher) PublishHUD(f hud.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
}

func (p *fakePublisher) PublishCamera(jpeg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.camera++
}

func (p *fakePublisher) last() hud.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.frames) == 0 {
		return hud.Frame{}
	}
	return p.frames[len(p.frames)-1]
}

type fakePainter struct{ err error }

func (p fakePainter) Paint(jpeg []byte, f hud.Frame) ([]byte, error) {
	return jpeg, p.err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	ctl   *Controller
	narr  *fakeNarrator
	pub   *fakePublisher
	store *episode.Memory
	clock *clock.Mock
	ctx   context.Context
}

func newHarness(t *testing.T, block bool, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		narr:  newFakeNarrator(block),
		pub:   &fakePublisher{},
		store: episode.NewMemory(10),
		clock: clock.NewMock(),
	}
	opts = append([]Option{WithClock(h.clock), WithPublisher(h.pub), WithStore(h.store)}, opts...)
	h.ctl = NewController(DefaultConfig(), h.narr, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	done := make(chan struct{})
	go func() {
		h.ctl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) submit(t *testing.T, f Frame, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.ctl.Submit(h.ctx, f); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
}

func (h *harness) waitFrames(t *testing.T, n uint64) {
	t.Helper()
	waitFor(t, "frames processed", func() bool { return h.ctl.Stats().Frames >= n })
}

func TestControllerTwentyFiveLowFrames(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 25)
	h.waitFrames(t, 25)

	snap := h.ctl.Snapshot()
	if !snap.Drowsy || snap.Phase != hud.PhaseDrowsy {
		t.Errorf("snapshot = %+v, want drowsy", snap)
	}
	if last := h.pub.last(); !last.Warning || !last.Overlay || last.BarColor != hud.ColorAlert {
		t.Errorf("last HUD frame = %+v, want warning shown", last)
	}
	waitFor(t, "narration", func() bool { return h.narr.calls.Load() == 1 })
	if got := h.ctl.Stats().Narrations; got != 1 {
		t.Errorf("Narrations = %d, want 1", got)
	}
}

func TestControllerNineteenLowThenOpen(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 19)
	h.submit(t, frameWithEAR(0.30), 1)
	h.waitFrames(t, 20)

	snap := h.ctl.Snapshot()
	if snap.Drowsy || snap.Counter != 0 {
		t.Errorf("snapshot = %+v, want awake with counter 0", snap)
	}
	if h.narr.calls.Load() != 0 {
		t.Error("no narration expected")
	}
	if h.store.Len() != 0 {
		t.Error("no episode expected")
	}
}

func TestControllerRearmAfterCooldown(t *testing.T) {
	h := newHarness(t, false)

	h.submit(t, frameWithEAR(0.20), 20)
	waitFor(t, "first narration", func() bool { return h.narr.calls.Load() == 1 })

	// Without the clock advancing, more closed frames must not repeat it.
	h.submit(t, frameWithEAR(0.20), 10)
	h.waitFrames(t, 30)
	time.Sleep(20 * time.Millisecond)
	if got := h.narr.calls.Load(); got != 1 {
		t.Fatalf("narrations before cool-down = %d, want 1", got)
	}

	waitFor(t, "repeat narration", func() bool {
		h.clock.Add(DefaultCooldown)
		h.submit(t, frameWithEAR(0.20), 1)
		return h.narr.calls.Load() >= 2
	})
}

func TestControllerRecoveryCancelsNarration(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 20)
	waitFor(t, "narration", func() bool { return h.narr.calls.Load() == 1 })

	h.clock.Add(3 * time.Second)
	h.submit(t, frameWithEAR(0.32), 1)
	waitFor(t, "cancellation", func() bool { return h.narr.cancelled.Load() == 1 })

	snap := h.ctl.Snapshot()
	if snap.Drowsy || snap.AlertInProgress || snap.Counter != 0 {
		t.Errorf("snapshot = %+v, want reset", snap)
	}
	if last := h.pub.last(); last.Warning {
		t.Error("warning should be hidden after recovery")
	}

	eps, _ := h.store.List(context.Background(), 0)
	if len(eps) != 1 {
		t.Fatalf("episodes = %d, want 1", len(eps))
	}
	if eps[0].Frames != 1 || eps[0].Narrations != 1 || eps[0].Interrupted {
		t.Errorf("episode = %+v", eps[0])
	}
	if eps[0].Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", eps[0].Duration)
	}
}

func TestControllerStart(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 22)
	h.waitFrames(t, 22)
	waitFor(t, "narration", func() bool { return h.narr.calls.Load() == 1 })

	if err := h.ctl.Start(h.ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap := h.ctl.Snapshot()
	if snap.Phase != hud.PhaseStarting || snap.State != (State{}) {
		t.Errorf("snapshot = %+v, want starting with zero state", snap)
	}
	waitFor(t, "cancellation", func() bool { return h.narr.cancelled.Load() == 1 })

	eps, _ := h.store.List(context.Background(), 0)
	if len(eps) != 1 || !eps[0].Interrupted {
		t.Errorf("episodes = %+v, want one interrupted", eps)
	}
	if last := h.pub.last(); last.Status != "STARTING CAMERA..." {
		t.Errorf("status = %q", last.Status)
	}
}

func TestControllerDegenerateFrameSkipped(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 5)

	bad := faceWithEAR(0.20)
	bad[landmark.LeftEyeIndices[landmark.Corner3]] = bad[landmark.LeftEyeIndices[landmark.Corner0]]
	h.submit(t, Frame{Faces: []landmark.Face{bad}}, 1)
	h.waitFrames(t, 6)

	if got := h.ctl.Snapshot().Counter; got != 5 {
		t.Errorf("counter = %d, want 5", got)
	}
	if got := h.ctl.Stats().Skipped; got != 1 {
		t.Errorf("Skipped = %d, want 1", got)
	}
	last := h.pub.last()
	if last.Valid || last.Readout != "--" {
		t.Errorf("last HUD frame = %+v, want no reading", last)
	}
}

func TestControllerNoFace(t *testing.T) {
	h := newHarness(t, true)

	h.submit(t, frameWithEAR(0.20), 3)
	h.submit(t, Frame{}, 2)
	h.waitFrames(t, 5)

	snap := h.ctl.Snapshot()
	if snap.Phase != hud.PhaseNoFace {
		t.Errorf("phase = %v, want no_face", snap.Phase)
	}
	if snap.Counter != 3 {
		t.Errorf("counter = %d, want 3", snap.Counter)
	}
	if got := h.ctl.Stats().NoFace; got != 2 {
		t.Errorf("NoFace = %d, want 2", got)
	}
}

func TestControllerPaintsFramesWithImages(t *testing.T) {
	h := newHarness(t, true, WithPainter(fakePainter{}))

	f := frameWithEAR(0.30)
	f.Image = []byte{0xff, 0xd8}
	h.submit(t, f, 2)
	h.submit(t, frameWithEAR(0.30), 1)
	h.waitFrames(t, 3)

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	if h.pub.camera != 2 {
		t.Errorf("camera frames = %d, want 2", h.pub.camera)
	}
}

func TestControllerPaintErrorDropsCameraFrame(t *testing.T) {
	h := newHarness(t, true, WithPainter(fakePainter{err: errors.New("boom")}))

	f := frameWithEAR(0.30)
	f.Image = []byte{0xff, 0xd8}
	h.submit(t, f, 1)
	h.waitFrames(t, 1)

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	if h.pub.camera != 0 {
		t.Errorf("camera frames = %d, want 0", h.pub.camera)
	}
	if len(h.pub.frames) != 1 {
		t.Errorf("HUD frames = %d, want 1", len(h.pub.frames))
	}
}

func TestControllerSubmitCancelled(t *testing.T) {
	ctl := NewController(Config{QueueSize: 1}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	if err := ctl.Submit(ctx, Frame{}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	cancel()
	if err := ctl.Submit(ctx, Frame{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestControllerFailedNarrationNotRepeated(t *testing.T) {
	var logs lockedBuffer
	narr := &failingNarrator{}
	mock := clock.NewMock()
	store := episode.NewMemory(10)
	ctl := NewController(DefaultConfig(), narr,
		WithClock(mock),
		WithStore(store),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ctl.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	submit := func(f Frame, n int) {
		for i := 0; i < n; i++ {
			if err := ctl.Submit(ctx, f); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
	}

	submit(frameWithEAR(0.20), 20)
	waitFor(t, "narration failure", func() bool { return ctl.Stats().NarrationFailures == 1 })

	// Ten seconds of closed eyes: ten cool-downs would have passed.
	for i := 0; i < 100; i++ {
		mock.Add(100 * time.Millisecond)
		submit(frameWithEAR(0.20), 1)
	}
	waitFor(t, "frames processed", func() bool { return ctl.Stats().Frames >= 120 })

	if got := narr.calls.Load(); got != 1 {
		t.Errorf("Speak calls = %d, want 1", got)
	}
	st := ctl.Stats()
	if st.Narrations != 0 || st.NarrationFailures != 1 {
		t.Errorf("stats = %+v, want 0 narrations and 1 failure", st)
	}
	if snap := ctl.Snapshot(); !snap.Drowsy || !snap.AlertInProgress {
		t.Errorf("snapshot = %+v, want drowsy with alert held", snap)
	}
	if n := strings.Count(logs.String(), "narration failed"); n != 1 {
		t.Errorf("narration failure logged %d times, want 1", n)
	}

	// Recovery ends the episode without a played narration.
	submit(frameWithEAR(0.32), 1)
	waitFor(t, "episode saved", func() bool { return store.Len() == 1 })
	eps, _ := store.List(context.Background(), 0)
	if eps[0].Narrations != 0 {
		t.Errorf("episode narrations = %d, want 0", eps[0].Narrations)
	}

	// The next episode gets a fresh attempt.
	submit(frameWithEAR(0.20), 20)
	waitFor(t, "second attempt", func() bool { return narr.calls.Load() == 2 })
}
