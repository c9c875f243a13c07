// Package web serves the drowsiness HUD: landmark ingest, live HUD, audio
// and camera streams, and a small JSON API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-drowse/pkg/drowsiness"
	"github.com/teslashibe/go-drowse/pkg/episode"
	"github.com/teslashibe/go-drowse/pkg/hub"
	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/narration"
	"github.com/teslashibe/go-drowse/pkg/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 5 * time.Second

// Detector is the controller as seen by the server.
type Detector interface {
	FrameSubmitter
	Start(ctx context.Context) error
	Snapshot() drowsiness.Snapshot
	Stats() drowsiness.Stats
	Config() drowsiness.Config
	Episodes() episode.Store
}

// Acker completes narrations when audio clients report the end of a clip.
type Acker interface {
	Ack(id string) bool
}

// HealthCheck reports the health of a dependency.
type HealthCheck func(ctx context.Context) error

// Config configures the server.
type Config struct {
	Addr      string
	StaticDir string // Served at /; empty disables
	AccessLog bool
}

// Server is the HUD web server. It implements drowsiness.Publisher and
// narration.Sink.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	ingest    *Ingest
	hudHub    *hub.Hub
	audioHub  *hub.Hub
	cameraHub *hub.Hub

	mu       sync.RWMutex
	detector Detector
	acker    Acker
	checks   map[string]HealthCheck
	ctx      context.Context

	ready chan struct{}
}

// NewServer creates the server and its routes. Call Bind before Run.
func NewServer(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:    cfg,
		logger:    logger.With("component", "web"),
		ingest:    NewIngest(logger),
		hudHub:    hub.New("hud", logger),
		audioHub:  hub.New("audio", logger),
		cameraHub: hub.New("camera", logger),
		checks:    make(map[string]HealthCheck),
		ctx:       context.Background(),
		ready:     make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-drowse",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	if cfg.AccessLog {
		app.Use(fiberlog.New())
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/start", s.handleStart)
	api.Get("/episodes", s.handleListEpisodes)
	api.Get("/episodes/:id", s.handleGetEpisode)
	api.Get("/stats", s.handleStats)
	api.Get("/health", s.handleHealth)
	api.Get("/config", s.handleConfig)
	api.Get("/sources", s.handleSources)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	s.ingest.RegisterRoutes(app)
	app.Get("/ws/hud", websocket.New(s.handleHUDWS))
	app.Get("/ws/audio", websocket.New(s.handleAudioWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Bind attaches the controller and the narration acker.
func (s *Server) Bind(d Detector, a Acker) {
	s.mu.Lock()
	s.detector = d
	s.acker = a
	ctx := s.ctx
	s.mu.Unlock()

	s.ingest.Bind(ctx, d, d.Start)
}

// AddHealthCheck registers a dependency check for /api/health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// App exposes the fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.ctx = ctx
	detector := s.detector
	s.mu.Unlock()
	if detector != nil {
		s.ingest.Bind(ctx, detector, detector.Start)
	}

	go s.hudHub.Run(ctx)
	go s.audioHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listener(ln)
	}()
	close(s.ready)
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// =============================================================================
// drowsiness.Publisher
// =============================================================================

// PublishHUD broadcasts a HUD frame to viewers.
func (s *Server) PublishHUD(f hud.Frame) {
	if s.hudHub.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewHUDMessage(f)
	if err != nil {
		return
	}
	if err := s.hudHub.BroadcastJSON(msg); err != nil {
		s.logger.Debug("hud frame not sent", "error", err)
	}
}

// PublishCamera broadcasts a painted JPEG to camera viewers.
func (s *Server) PublishCamera(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// =============================================================================
// narration.Sink
// =============================================================================

// Play sends a clip to every audio client.
func (s *Server) Play(ctx context.Context, c narration.Clip) (int, error) {
	listeners := s.audioHub.ClientCount()
	if listeners == 0 {
		return 0, nil
	}
	msg, err := protocol.NewSpeakMessage(c.ID, c.Text, c.Language, c.MIME, c.Duration, c.Audio)
	if err != nil {
		return 0, err
	}
	if err := s.audioHub.BroadcastJSON(msg); err != nil {
		return 0, err
	}
	return listeners, nil
}

// Cancel tells audio clients to stop a clip.
func (s *Server) Cancel(id string) {
	msg, err := protocol.NewCancelMessage(id)
	if err != nil {
		return
	}
	s.audioHub.BroadcastJSON(msg)
}

var (
	_ drowsiness.Publisher = (*Server)(nil)
	_ narration.Sink       = (*Server)(nil)
)
