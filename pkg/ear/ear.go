// Package ear computes the Eye Aspect Ratio from face-mesh landmarks.
//
// EAR = (|p1-p5| + |p2-p4|) / (2 * |p0-p3|)
//
// Open eyes sit around 0.3; a closed eye drops toward 0. The value is
// scale invariant, so normalized and pixel coordinates give the same result.
package ear

import (
	"errors"
	"math"

	"github.com/teslashibe/go-drowse/pkg/landmark"
)

var (
	// ErrDegenerateEye is returned when the eye width is zero or a
	// coordinate is not a finite number. The frame carries no reading.
	ErrDegenerateEye = errors.New("ear: degenerate eye landmarks")

	// ErrShortFace is returned when a face has fewer points than the
	// eye indices require.
	ErrShortFace = errors.New("ear: face has too few landmarks")

	// ErrNoFace is returned when a frame has no detected face.
	ErrNoFace = errors.New("ear: no face in frame")
)

// Compute returns the aspect ratio of one eye.
func Compute(eye landmark.Eye) (float64, error) {
	for _, p := range eye {
		if !p.Finite() {
			return 0, ErrDegenerateEye
		}
	}

	c := eye.Horizontal()
	if c == 0 {
		return 0, ErrDegenerateEye
	}
	a, b := eye.Vertical()

	ratio := (a + b) / (2 * c)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, ErrDegenerateEye
	}
	return ratio, nil
}

// Reading is the per-frame result for one face.
type Reading struct {
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Average float64 `json:"average"`
}

// FromFace extracts both eyes and averages their ratios.
// A degenerate eye on either side invalidates the whole reading.
func FromFace(face landmark.Face) (Reading, error) {
	left, right, ok := face.Eyes()
	if !ok {
		return Reading{}, ErrShortFace
	}

	l, err := Compute(left)
	if err != nil {
		return Reading{}, err
	}
	r, err := Compute(right)
	if err != nil {
		return Reading{}, err
	}

	return Reading{Left: l, Right: r, Average: (l + r) / 2}, nil
}

// FromFaces reads the first face only; the detector is configured to
// report at most one.
func FromFaces(faces []landmark.Face) (Reading, error) {
	if len(faces) == 0 {
		return Reading{}, ErrNoFace
	}
	return FromFace(faces[0])
}
