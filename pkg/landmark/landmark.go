// Package landmark defines face-mesh landmark points and the fixed-size eye
// landmark sets consumed by the EAR calculator.
package landmark

import "math"

// FaceMesh landmark indices for the six eye points, ordered
// corner, top, top, corner, bottom, bottom.
// Left/right are from the subject's point of view.
var (
	LeftEyeIndices  = [EyePoints]int{362, 385, 387, 263, 373, 380}
	RightEyeIndices = [EyePoints]int{33, 160, 158, 133, 153, 144}
)

// Positions inside an Eye.
const (
	Corner0   = 0 // horizontal corner
	Top1      = 1 // pairs with Bottom5
	Top2      = 2 // pairs with Bottom4
	Corner3   = 3 // horizontal corner
	Bottom4   = 4
	Bottom5   = 5
	EyePoints = 6
)

// Point is a landmark in normalized frame coordinates.
// X and Y are in [0,1] relative to the frame; Z is relative depth and optional.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Finite reports whether all coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0) &&
		!math.IsNaN(p.Z) && !math.IsInf(p.Z, 0)
}

// Scale returns the point with every coordinate multiplied by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k, Z: p.Z * k}
}

// Distance returns the planar Euclidean distance between two points.
// Z is ignored.
func Distance(a, b Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Eye is the six-point landmark set for one eye, indexed by the
// Corner0..Bottom5 constants.
type Eye [EyePoints]Point

// Vertical returns the two eyelid gaps, |Top1-Bottom5| and |Top2-Bottom4|.
func (e Eye) Vertical() (a, b float64) {
	return Distance(e[Top1], e[Bottom5]), Distance(e[Top2], e[Bottom4])
}

// Horizontal returns the corner-to-corner width.
func (e Eye) Horizontal() float64 {
	return Distance(e[Corner0], e[Corner3])
}

// Face is the full ordered landmark list of one detected face.
type Face []Point

// MinFacePoints is the smallest face that contains every eye index.
const MinFacePoints = 388

// Eye picks the six points at the given indices.
// ok is false when the face is too short for any index.
func (f Face) Eye(indices [EyePoints]int) (eye Eye, ok bool) {
	for i, idx := range indices {
		if idx < 0 || idx >= len(f) {
			return Eye{}, false
		}
		eye[i] = f[idx]
	}
	return eye, true
}

// Eyes returns the left and right eye sets.
func (f Face) Eyes() (left, right Eye, ok bool) {
	left, okL := f.Eye(LeftEyeIndices)
	right, okR := f.Eye(RightEyeIndices)
	return left, right, okL && okR
}
