package episode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestEpisodeLifecycle(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e := New(start)

	if e.ID == "" {
		t.Fatal("expected ID to be set")
	}

	e.Observe(0.21)
	e.Observe(0.12)
	e.Observe(0.18)
	e.Close(start.Add(3 * time.Second))

	if e.Frames != 3 {
		t.Errorf("Frames = %d, want 3", e.Frames)
	}
	if e.MinEAR != 0.12 {
		t.Errorf("MinEAR = %v, want 0.12", e.MinEAR)
	}
	if e.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", e.Duration)
	}
}

func TestEpisodeCloseWithoutFrames(t *testing.T) {
	now := time.Now()
	e := New(now)
	e.Close(now)
	if e.MinEAR != 0 {
		t.Errorf("MinEAR = %v, want 0 for empty episode", e.MinEAR)
	}
}

func TestMemoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	for i := 0; i < 3; i++ {
		if err := m.Save(ctx, Episode{ID: fmt.Sprintf("ep-%d", i)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := m.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"ep-2", "ep-1", "ep-0"}
	if len(got) != len(want) {
		t.Fatalf("got %d episodes, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}

	limited, _ := m.List(ctx, 2)
	if len(limited) != 2 || limited[0].ID != "ep-2" {
		t.Errorf("List(2) = %+v", limited)
	}
}

func TestMemoryCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	for i := 0; i < 5; i++ {
		m.Save(ctx, Episode{ID: fmt.Sprintf("ep-%d", i)})
	}

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	if _, err := m.Get(ctx, "ep-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ep-0 evicted, got %v", err)
	}
	if e, err := m.Get(ctx, "ep-4"); err != nil || e.ID != "ep-4" {
		t.Errorf("Get(ep-4) = %+v, %v", e, err)
	}
}

// TestRedisStore runs against a live server when REDIS_ADDRESS is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set, skipping Redis integration test")
	}

	ctx := context.Background()
	key := fmt.Sprintf("drowse:test:%d", time.Now().UnixNano())
	r, err := NewRedis(ctx, RedisConfig{Addr: addr, Key: key, Capacity: 2}, nil)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer func() {
		r.client.Del(ctx, key)
		r.Close()
	}()

	for i := 0; i < 3; i++ {
		if err := r.Save(ctx, Episode{ID: fmt.Sprintf("ep-%d", i), Frames: i}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := r.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "ep-2" || got[1].ID != "ep-1" {
		t.Errorf("List() = %+v", got)
	}
	if _, err := r.Get(ctx, "ep-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ep-0 trimmed, got %v", err)
	}
}
