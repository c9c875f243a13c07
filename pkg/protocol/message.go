// Package protocol defines the WebSocket messages exchanged between the
// drowsiness server and its clients: landmark producers, HUD viewers and
// audio players.
package protocol

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/landmark"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeLandmarks    MessageType = "landmarks"     // Detector output for one frame
	TypeNarrationEnd MessageType = "narration_end" // Audio client finished a clip
	TypeStart        MessageType = "start"         // Operator pressed start

	// Server → Client messages
	TypeHUD    MessageType = "hud"    // Gauge and status for one frame
	TypeSpeak  MessageType = "speak"  // Warning clip to play
	TypeCancel MessageType = "cancel" // Stop a clip early
	TypeError  MessageType = "error"  // Rejected client message

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType         `json:"type"`
	Timestamp int64               `json:"ts,omitempty"` // Unix milliseconds
	Data      jsoniter.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData jsoniter.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// LandmarksData is one detector frame. Faces holds the face mesh points of
// each detected face in normalized image coordinates; only the first face is
// used. An empty Faces means no face was found.
type LandmarksData struct {
	FrameID uint64             `json:"frame_id"`
	Width   int                `json:"width,omitempty" validate:"gte=0,lte=8192"`
	Height  int                `json:"height,omitempty" validate:"gte=0,lte=8192"`
	Faces   [][]landmark.Point `json:"faces" validate:"max=4,dive,min=1"`
	Image   string             `json:"image,omitempty" validate:"omitempty,base64"` // JPEG of the same frame
}

// NarrationEndData acknowledges the end of a clip.
type NarrationEndData struct {
	ID string `json:"id" validate:"required"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// HUDData is the display state after one frame.
type HUDData = hud.Frame

// SpeakData carries a warning clip.
type SpeakData struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	MIME       string `json:"mime"`
	DurationMs int64  `json:"duration_ms"`
	Data       string `json:"data"` // base64 encoded
}

// CancelData names the clip to stop.
type CancelData struct {
	ID string `json:"id"`
}

// ErrorData explains why a client message was rejected.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
