package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-drowse/pkg/drowsiness"
	"github.com/teslashibe/go-drowse/pkg/episode"
	"github.com/teslashibe/go-drowse/pkg/hub"
	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/landmark"
	"github.com/teslashibe/go-drowse/pkg/protocol"
)

const (
	defaultEpisodeLimit = 20
	healthTimeout       = 3 * time.Second
)

// Face detector settings advertised to landmark producers.
const (
	detectionConfidence = 0.5
	trackingConfidence  = 0.5
	maxFaces            = 1
)

var errNotBound = errors.New("detector not bound")

func (s *Server) bound() (Detector, Acker) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detector, s.acker
}

func unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": errNotBound.Error(),
	})
}

// handleStatus returns the detector state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	d, _ := s.bound()
	if d == nil {
		return unavailable(c)
	}
	return c.JSON(d.Snapshot())
}

// handleStart resets the detector and begins processing
func (s *Server) handleStart(c *fiber.Ctx) error {
	d, _ := s.bound()
	if d == nil {
		return unavailable(c)
	}
	if err := d.Start(c.UserContext()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"started": true})
}

// handleListEpisodes returns recent episodes, newest first
func (s *Server) handleListEpisodes(c *fiber.Ctx) error {
	d, _ := s.bound()
	if d == nil {
		return unavailable(c)
	}
	limit := c.QueryInt("limit", defaultEpisodeLimit)
	eps, err := d.Episodes().List(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if eps == nil {
		eps = []episode.Episode{}
	}
	return c.JSON(eps)
}

// handleGetEpisode returns one episode
func (s *Server) handleGetEpisode(c *fiber.Ctx) error {
	d, _ := s.bound()
	if d == nil {
		return unavailable(c)
	}
	ep, err := d.Episodes().Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, episode.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(ep)
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Detector drowsiness.Stats `json:"detector"`
	Hubs     []hub.Stats      `json:"hubs"`
	Ingest   IngestStats      `json:"ingest"`
}

// handleStats returns counters for every component
func (s *Server) handleStats(c *fiber.Ctx) error {
	resp := StatsResponse{
		Hubs:   []hub.Stats{s.hudHub.Stats(), s.audioHub.Stats(), s.cameraHub.Stats()},
		Ingest: s.ingest.Stats(),
	}
	if d, _ := s.bound(); d != nil {
		resp.Detector = d.Stats()
	}
	return c.JSON(resp)
}

// handleHealth runs the registered checks
func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.mu.RLock()
	checks := make(map[string]HealthCheck, len(s.checks))
	for name, check := range s.checks {
		checks[name] = check
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
	defer cancel()

	healthy := true
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"healthy": healthy,
		"checks":  results,
	})
}

// ConfigResponse is the body of GET /api/config. Landmark producers read it
// to configure their face detector.
type ConfigResponse struct {
	EARThreshold        float64 `json:"ear_threshold"`
	ConsecFrames        int     `json:"consec_frames"`
	CooldownMs          int64   `json:"cooldown_ms"`
	Phrase              string  `json:"phrase"`
	Language            string  `json:"language"`
	FullScaleEAR        float64 `json:"full_scale_ear"`
	DetectionConfidence float64 `json:"min_detection_confidence"`
	TrackingConfidence  float64 `json:"min_tracking_confidence"`
	MaxFaces            int     `json:"max_num_faces"`
	LeftEye             [6]int  `json:"left_eye"`
	RightEye            [6]int  `json:"right_eye"`
}

// handleConfig returns the detector thresholds and face-mesh settings
func (s *Server) handleConfig(c *fiber.Ctx) error {
	d, _ := s.bound()
	if d == nil {
		return unavailable(c)
	}
	cfg := d.Config()
	return c.JSON(ConfigResponse{
		EARThreshold:        cfg.EARThreshold,
		ConsecFrames:        cfg.ConsecFrames,
		CooldownMs:          cfg.Cooldown.Milliseconds(),
		Phrase:              cfg.Phrase,
		Language:            cfg.Language,
		FullScaleEAR:        hud.FullScaleEAR,
		DetectionConfidence: detectionConfidence,
		TrackingConfidence:  trackingConfidence,
		MaxFaces:            maxFaces,
		LeftEye:             landmark.LeftEyeIndices,
		RightEye:            landmark.RightEyeIndices,
	})
}

// handleSources lists connected landmark producers
func (s *Server) handleSources(c *fiber.Ctx) error {
	return c.JSON(s.ingest.SourceInfos())
}

// =============================================================================
// WebSocket handlers
// =============================================================================

// handleHUDWS streams HUD frames. Viewers may send start and ping.
func (s *Server) handleHUDWS(c *websocket.Conn) {
	client := hub.NewClient(s.hudHub, c, s.handleViewerMessage)

	// Send current frame
	if d, _ := s.bound(); d != nil {
		if msg, err := protocol.NewHUDMessage(d.Snapshot().LastFrame); err == nil {
			client.SendJSON(msg)
		}
	}

	client.Run()
}

// handleAudioWS streams narration clips and receives narration_end.
func (s *Server) handleAudioWS(c *websocket.Conn) {
	hub.NewClient(s.audioHub, c, s.handleAudioMessage).Run()
}

// handleCameraWS streams painted camera frames.
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c, nil).Run()
}

func (s *Server) handleViewerMessage(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.replyError(client, err)
		return
	}

	switch msg.Type {
	case protocol.TypeStart:
		d, _ := s.bound()
		if d == nil {
			s.replyError(client, errNotBound)
			return
		}
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()
		if err := d.Start(ctx); err != nil {
			s.logger.Warn("start failed", "client", client.ID, "error", err)
		}
	case protocol.TypePing:
		s.replyPong(client, msg)
	default:
		s.logger.Debug("ignoring viewer message", "client", client.ID, "type", msg.Type)
	}
}

func (s *Server) handleAudioMessage(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.replyError(client, err)
		return
	}

	switch msg.Type {
	case protocol.TypeNarrationEnd:
		end, err := msg.GetNarrationEndData()
		if err != nil {
			s.replyError(client, err)
			return
		}
		_, a := s.bound()
		if a == nil || !a.Ack(end.ID) {
			s.logger.Debug("stale narration_end", "client", client.ID, "id", end.ID)
		}
	case protocol.TypePing:
		s.replyPong(client, msg)
	default:
		s.logger.Debug("ignoring audio message", "client", client.ID, "type", msg.Type)
	}
}

func (s *Server) replyError(client *hub.Client, err error) {
	msg, merr := protocol.NewErrorMessage(err)
	if merr != nil {
		return
	}
	client.SendJSON(msg)
}

func (s *Server) replyPong(client *hub.Client, ping *protocol.Message) {
	var id string
	if pd, err := ping.GetPingData(); err == nil {
		id = pd.ID
	}
	pong, err := protocol.NewPongMessage(id, ping.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return
	}
	client.SendJSON(pong)
}
