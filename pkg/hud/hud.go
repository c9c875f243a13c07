// Package hud maps EAR readings and monitor state to on-screen elements:
// the numeric readout, the EAR bar, the status line and the warning banner.
package hud

import (
	"image/color"
	"strconv"
)

// FullScaleEAR is the EAR shown as a full bar.
const FullScaleEAR = 0.4

// Color is a semantic display color.
type Color string

const (
	ColorNormal Color = "normal"
	ColorAlert  Color = "alert"
)

// CSS returns the stylesheet variable the browser HUD uses for the color.
func (c Color) CSS() string {
	if c == ColorAlert {
		return "var(--danger-color)"
	}
	return "var(--primary-color)"
}

// RGBA returns the color used when painting onto video frames.
func (c Color) RGBA() color.RGBA {
	if c == ColorAlert {
		return color.RGBA{R: 255, A: 255}
	}
	return color.RGBA{G: 255, A: 255}
}

// Gauge is the EAR readout and bar.
type Gauge struct {
	Valid       bool    `json:"valid"`
	EAR         float64 `json:"ear"`
	Readout     string  `json:"readout"`
	FillPercent float64 `json:"fill_percent"`
	BarColor    Color   `json:"bar_color"`
}

// Render maps an EAR value to the gauge.
func Render(ear, threshold float64) Gauge {
	fill := ear / FullScaleEAR * 100
	if fill > 100 {
		fill = 100
	}
	if fill < 0 {
		fill = 0
	}

	bar := ColorNormal
	if ear < threshold {
		bar = ColorAlert
	}

	return Gauge{
		Valid:       true,
		EAR:         ear,
		Readout:     strconv.FormatFloat(ear, 'f', 2, 64),
		FillPercent: fill,
		BarColor:    bar,
	}
}

// NoReading is the gauge shown for frames without a usable EAR.
func NoReading() Gauge {
	return Gauge{Readout: "--", BarColor: ColorNormal}
}

// Phase is the monitor phase shown on the status line.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseAwake    Phase = "awake"
	PhaseDrowsy   Phase = "drowsy"
	PhaseNoFace   Phase = "no_face"
)

// Indicator is the status line plus warning banner and overlay toggles.
type Indicator struct {
	Phase       Phase  `json:"phase"`
	Status      string `json:"status"`
	StatusColor Color  `json:"status_color"`
	Warning     bool   `json:"warning"`
	Overlay     bool   `json:"overlay"`
}

// Status maps a phase to the indicator.
func Status(p Phase) Indicator {
	switch p {
	case PhaseDrowsy:
		return Indicator{Phase: p, Status: "WARNING - DROWSY", StatusColor: ColorAlert, Warning: true, Overlay: true}
	case PhaseStarting:
		return Indicator{Phase: p, Status: "STARTING CAMERA...", StatusColor: ColorNormal}
	case PhaseNoFace:
		return Indicator{Phase: p, Status: "NO FACE DETECTED", StatusColor: ColorNormal}
	case PhaseAwake:
		return Indicator{Phase: p, Status: "ACTIVE - EYES OPEN", StatusColor: ColorNormal}
	default:
		return Indicator{Phase: PhaseIdle, Status: "STANDBY", StatusColor: ColorNormal}
	}
}

// Frame is everything the display needs for one processed frame.
type Frame struct {
	FrameID uint64 `json:"frame_id"`
	Gauge
	Indicator
	Counter int `json:"counter"`
}
