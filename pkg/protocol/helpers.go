package protocol

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/teslashibe/go-drowse/pkg/hud"
	"github.com/teslashibe/go-drowse/pkg/landmark"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewLandmarksMessage creates a landmarks message. jpeg may be nil.
func NewLandmarksMessage(frameID uint64, faces []landmark.Face, width, height int, jpeg []byte) (*Message, error) {
	data := LandmarksData{
		FrameID: frameID,
		Width:   width,
		Height:  height,
		Faces:   make([][]landmark.Point, len(faces)),
	}
	for i, f := range faces {
		data.Faces[i] = f
	}
	if len(jpeg) > 0 {
		data.Image = base64.StdEncoding.EncodeToString(jpeg)
	}
	return NewMessage(TypeLandmarks, data)
}

// NewNarrationEndMessage acknowledges a clip.
func NewNarrationEndMessage(id string) (*Message, error) {
	return NewMessage(TypeNarrationEnd, NarrationEndData{ID: id})
}

// NewHUDMessage creates a HUD message.
func NewHUDMessage(f hud.Frame) (*Message, error) {
	return NewMessage(TypeHUD, f)
}

// NewSpeakMessage creates a speak message carrying the audio.
func NewSpeakMessage(id, text, language, mime string, duration time.Duration, audio []byte) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakData{
		ID:         id,
		Text:       text,
		Language:   language,
		MIME:       mime,
		DurationMs: duration.Milliseconds(),
		Data:       base64.StdEncoding.EncodeToString(audio),
	})
}

// NewCancelMessage asks audio clients to stop a clip.
func NewCancelMessage(id string) (*Message, error) {
	return NewMessage(TypeCancel, CancelData{ID: id})
}

// NewErrorMessage reports a rejected message.
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetLandmarksData extracts and validates landmark data from a message.
func (m *Message) GetLandmarksData() (*LandmarksData, error) {
	var data LandmarksData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if err := validate.Struct(&data); err != nil {
		return nil, fmt.Errorf("invalid landmarks: %w", err)
	}
	return &data, nil
}

// FaceMeshes converts the wire faces into landmark faces.
func (l *LandmarksData) FaceMeshes() []landmark.Face {
	faces := make([]landmark.Face, len(l.Faces))
	for i, f := range l.Faces {
		faces[i] = f
	}
	return faces
}

// DecodeImage decodes the optional JPEG; nil when absent.
func (l *LandmarksData) DecodeImage() ([]byte, error) {
	if l.Image == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(l.Image)
}

// GetNarrationEndData extracts a clip acknowledgement.
func (m *Message) GetNarrationEndData() (*NarrationEndData, error) {
	var data NarrationEndData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if err := validate.Struct(&data); err != nil {
		return nil, fmt.Errorf("invalid narration_end: %w", err)
	}
	return &data, nil
}

// GetSpeakData extracts speak data from a message
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudio decodes the base64 audio data
func (s *SpeakData) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// GetHUDData extracts a HUD frame from a message.
func (m *Message) GetHUDData() (*HUDData, error) {
	var data HUDData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
