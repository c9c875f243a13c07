package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type frame struct {
	mt   int
	data []byte
}

// fakeConn is an in-memory websocket connection.
type fakeConn struct {
	in     chan frame
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []frame
	block   chan struct{} // when set, writes wait on it
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		return f.mt, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage(mt int, data []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-c.closed:
			return errors.New("closed")
		}
	}
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, frame{mt, append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frame(nil), c.written...)
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

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func TestHubBroadcast(t *testing.T) {
	h, _ := startHub(t)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, conn := range conns {
		go NewClient(h, conn, nil).Run()
	}
	waitFor(t, "clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]string{"type": "hud"}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for i, conn := range conns {
		waitFor(t, "delivery", func() bool { return len(conn.frames()) == 2 })
		got := conn.frames()
		if got[0].mt != websocket.TextMessage || string(got[0].data) != `{"type":"hud"}` {
			t.Errorf("client %d text frame = %v %q", i, got[0].mt, got[0].data)
		}
		if got[1].mt != websocket.BinaryMessage {
			t.Errorf("client %d expected binary frame", i)
		}
	}
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	go NewClient(h, conn, nil).Run()
	waitFor(t, "register", func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "unregister", func() bool { return h.ClientCount() == 0 })
}

func TestHubHandlerReceivesText(t *testing.T) {
	h, _ := startHub(t)

	got := make(chan string, 1)
	conn := newFakeConn()
	client := NewClient(h, conn, func(c *Client, data []byte) {
		got <- string(data)
		if c.SendJSON(func() {}) {
			t.Error("SendJSON accepted a value that cannot be encoded")
		}
		c.SendJSON(map[string]string{"type": "pong"})
	})
	go client.Run()

	conn.in <- frame{websocket.BinaryMessage, []byte("ignored")}
	conn.in <- frame{websocket.TextMessage, []byte(`{"type":"ping"}`)}

	select {
	case msg := <-got:
		if msg != `{"type":"ping"}` {
			t.Errorf("handler got %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	waitFor(t, "reply", func() bool { return len(conn.frames()) == 1 })
	if string(conn.frames()[0].data) != `{"type":"pong"}` {
		t.Errorf("reply = %q", conn.frames()[0].data)
	}
}

func TestHubEvictsSlowClient(t *testing.T) {
	h, _ := startHub(t)

	slow := newFakeConn()
	slow.block = make(chan struct{})
	go NewClient(h, slow, nil).Run()
	waitFor(t, "register", func() bool { return h.ClientCount() == 1 })

	for i := 0; i < sendBuffer+10; i++ {
		h.BroadcastBinary([]byte{byte(i)})
		time.Sleep(100 * time.Microsecond)
	}

	waitFor(t, "eviction", func() bool { return h.Stats().Evicted == 1 })
	close(slow.block)
	waitFor(t, "connection closed", slow.isClosed)
	if h.ClientCount() != 0 {
		t.Errorf("clients = %d, want 0", h.ClientCount())
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	client := NewClient(h, conn, nil)
	go client.Run()
	waitFor(t, "register", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "close", conn.isClosed)
	if client.Send(NewJSONMessage([]byte("{}"))) {
		t.Error("Send after shutdown should fail")
	}

	// Registering against a stopped hub must not block.
	late := newFakeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, late, nil).Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client on stopped hub did not finish")
	}
}

func TestEncodeJSON(t *testing.T) {
	msg, err := EncodeJSON(struct {
		A int `json:"a"`
	}{A: 1})
	if err != nil || msg.Type != JSONMessage || string(msg.Data) != `{"a":1}` {
		t.Errorf("EncodeJSON() = %+v, %v", msg, err)
	}
	if _, err := EncodeJSON(make(chan int)); err == nil {
		t.Error("expected error for unsupported type")
	}
}
