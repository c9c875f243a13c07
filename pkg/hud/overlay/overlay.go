// Package overlay paints HUD frames onto camera JPEGs with OpenCV.
// It requires cgo; only the serve command imports it.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-drowse/pkg/hud"
)

// Config holds frame painting options.
type Config struct {
	Mirror      bool    // Flip horizontally before painting (selfie view)
	Quality     int     // JPEG quality for the encoded result
	AlertAlpha  float64 // Opacity of the red wash while drowsy
	BarHeight   int
	BarWidth    int
	BracketSize int
}

// DefaultConfig returns the layout of the desktop HUD.
func DefaultConfig() Config {
	return Config{
		Mirror:      true,
		Quality:     80,
		AlertAlpha:  0.3,
		BarHeight:   200,
		BarWidth:    20,
		BracketSize: 80,
	}
}

var (
	uiColor    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	whiteColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Painter paints a HUD frame onto camera JPEGs.
type Painter struct {
	config Config
	mu     sync.Mutex
}

// New creates a painter.
func New(cfg Config) *Painter {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	return &Painter{config: cfg}
}

// Paint decodes jpeg, draws f on it and returns the re-encoded JPEG.
func (p *Painter) Paint(jpeg []byte, f hud.Frame) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	if p.config.Mirror {
		gocv.Flip(img, &img, 1)
	}

	p.drawBrackets(&img)
	p.drawBar(&img, f.Gauge)
	p.drawStatus(&img, f.Indicator)
	if f.Overlay {
		p.drawAlert(&img)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, p.config.Quality})
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// drawBrackets draws the four corner brackets.
func (p *Painter) drawBrackets(img *gocv.Mat) {
	w, h := img.Cols(), img.Rows()
	m, s := 20, p.config.BracketSize

	corners := []struct{ x, y, dx, dy int }{
		{m, m, 1, 1},
		{w - m, m, -1, 1},
		{m, h - m, 1, -1},
		{w - m, h - m, -1, -1},
	}
	for _, c := range corners {
		gocv.Line(img, image.Pt(c.x, c.y), image.Pt(c.x+c.dx*s, c.y), uiColor, 2)
		gocv.Line(img, image.Pt(c.x, c.y), image.Pt(c.x, c.y+c.dy*s), uiColor, 2)
	}
}

// drawBar draws the EAR bar on the left edge with its label.
func (p *Painter) drawBar(img *gocv.Mat, g hud.Gauge) {
	bh, bw := p.config.BarHeight, p.config.BarWidth
	x := 30
	y := img.Rows()/2 - bh/2

	gocv.Rectangle(img, image.Rect(x, y, x+bw, y+bh), uiColor, 1)

	if g.Valid {
		fill := int(g.FillPercent / 100 * float64(bh))
		gocv.Rectangle(img, image.Rect(x+2, y+bh-fill, x+bw-2, y+bh), g.BarColor.RGBA(), -1)
	}

	gocv.PutText(img, "EAR: "+g.Readout, image.Pt(x, y-10), gocv.FontHersheyPlain, 1, uiColor, 1)
}

// drawStatus draws the two status lines in the top right.
func (p *Painter) drawStatus(img *gocv.Mat, ind hud.Indicator) {
	x := img.Cols() - 200
	gocv.PutText(img, "SYSTEM: ACTIVE", image.Pt(x, 40), gocv.FontHersheyPlain, 1.2, uiColor, 1)
	gocv.PutText(img, ind.Status, image.Pt(x, 65), gocv.FontHersheyPlain, 1.2, ind.StatusColor.RGBA(), 1)
}

// drawAlert washes the frame red and prints the warning banner.
func (p *Painter) drawAlert(img *gocv.Mat) {
	w, h := img.Cols(), img.Rows()

	wash := img.Clone()
	defer wash.Close()
	gocv.Rectangle(&wash, image.Rect(0, 0, w, h), hud.ColorAlert.RGBA(), -1)
	gocv.AddWeighted(wash, p.config.AlertAlpha, *img, 1-p.config.AlertAlpha, 0, img)

	gocv.PutText(img, "WARNING: DROWSINESS DETECTED", image.Pt(w/2-250, h/2), gocv.FontHersheySimplex, 1.0, whiteColor, 3)
}
