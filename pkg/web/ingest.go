package web

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-drowse/pkg/drowsiness"
	"github.com/teslashibe/go-drowse/pkg/protocol"
)

// FrameSubmitter accepts detector frames.
type FrameSubmitter interface {
	Submit(ctx context.Context, f drowsiness.Frame) error
}

// Source is a connected landmark producer.
type Source struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Frames    uint64

	mu sync.Mutex
}

// Send writes a message to the source.
func (s *Source) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Ingest accepts landmark streams over websockets and feeds them to the
// controller in arrival order.
type Ingest struct {
	mu      sync.RWMutex
	sources map[string]*Source
	logger  *slog.Logger

	submitter FrameSubmitter
	onStart   func(ctx context.Context) error
	ctx       context.Context

	nextFrame atomic.Uint64

	messagesReceived atomic.Uint64
	framesReceived   atomic.Uint64
	rejected         atomic.Uint64
}

// NewIngest creates an ingest endpoint. Frames are dropped until a
// submitter is bound.
func NewIngest(logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingest{
		sources: make(map[string]*Source),
		logger:  logger.With("component", "ingest"),
		ctx:     context.Background(),
	}
}

// Bind sets where frames go and what a start message does. ctx bounds
// blocking submits.
func (in *Ingest) Bind(ctx context.Context, submitter FrameSubmitter, onStart func(ctx context.Context) error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ctx = ctx
	in.submitter = submitter
	in.onStart = onStart
}

// RegisterRoutes registers the landmark websocket routes. The /ws upgrade
// middleware must already be installed.
func (in *Ingest) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/landmarks", websocket.New(in.handleSource))
	app.Get("/ws/landmarks/:id", websocket.New(in.handleSource))
}

// handleSource handles one landmark producer connection.
func (in *Ingest) handleSource(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now()
	src := &Source{ID: id, Conn: c, Connected: now, LastSeen: now}

	in.mu.Lock()
	in.sources[id] = src
	count := len(in.sources)
	in.mu.Unlock()
	in.logger.Info("landmark source connected", "source", id, "total", count)

	defer func() {
		in.mu.Lock()
		if in.sources[id] == src {
			delete(in.sources, id)
		}
		count := len(in.sources)
		in.mu.Unlock()
		in.logger.Info("landmark source disconnected", "source", id, "total", count)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			in.logger.Debug("source read ended", "source", id, "error", err)
			return
		}

		src.mu.Lock()
		src.LastSeen = time.Now()
		src.mu.Unlock()

		in.messagesReceived.Add(1)
		in.handleMessage(src, data)
	}
}

// handleMessage processes one message from a source. Bad messages are
// answered with an error message and otherwise ignored.
func (in *Ingest) handleMessage(src *Source, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		in.reject(src, err)
		return
	}

	in.mu.RLock()
	submitter, onStart, ctx := in.submitter, in.onStart, in.ctx
	in.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeLandmarks:
		lm, err := msg.GetLandmarksData()
		if err != nil {
			in.reject(src, err)
			return
		}
		img, err := lm.DecodeImage()
		if err != nil {
			in.reject(src, err)
			return
		}

		in.framesReceived.Add(1)
		src.mu.Lock()
		src.Frames++
		src.mu.Unlock()

		if submitter == nil {
			return
		}
		frameID := lm.FrameID
		if frameID == 0 {
			frameID = in.nextFrame.Add(1)
		}
		f := drowsiness.Frame{ID: frameID, Faces: lm.FaceMeshes(), Image: img}
		if err := submitter.Submit(ctx, f); err != nil {
			in.logger.Debug("frame not submitted", "source", src.ID, "error", err)
		}

	case protocol.TypeStart:
		if onStart != nil {
			if err := onStart(ctx); err != nil {
				in.logger.Warn("start failed", "source", src.ID, "error", err)
			}
		}

	case protocol.TypePing:
		in.sendPong(src, msg)

	default:
		in.logger.Debug("ignoring message", "source", src.ID, "type", msg.Type)
	}
}

func (in *Ingest) reject(src *Source, err error) {
	in.rejected.Add(1)
	in.logger.Debug("rejected message", "source", src.ID, "error", err)
	if reply, merr := protocol.NewErrorMessage(err); merr == nil {
		src.Send(reply)
	}
}

func (in *Ingest) sendPong(src *Source, ping *protocol.Message) {
	var id string
	if pd, err := ping.GetPingData(); err == nil {
		id = pd.ID
	}
	pong, err := protocol.NewPongMessage(id, ping.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return
	}
	src.Send(pong)
}

// SourceCount returns the number of connected sources.
func (in *Ingest) SourceCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.sources)
}

// IngestStats contains ingest statistics
type IngestStats struct {
	Sources          int    `json:"sources"`
	MessagesReceived uint64 `json:"messages_received"`
	FramesReceived   uint64 `json:"frames_received"`
	Rejected         uint64 `json:"rejected"`
}

// Stats returns ingest statistics
func (in *Ingest) Stats() IngestStats {
	return IngestStats{
		Sources:          in.SourceCount(),
		MessagesReceived: in.messagesReceived.Load(),
		FramesReceived:   in.framesReceived.Load(),
		Rejected:         in.rejected.Load(),
	}
}

// SourceInfo describes a connected source.
type SourceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
}

// SourceInfos returns info about all connected sources.
func (in *Ingest) SourceInfos() []SourceInfo {
	in.mu.RLock()
	defer in.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(in.sources))
	for _, s := range in.sources {
		s.mu.Lock()
		infos = append(infos, SourceInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.LastSeen,
			Frames:    s.Frames,
		})
		s.mu.Unlock()
	}
	return infos
}
