package ear

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-drowse/pkg/landmark"
)

// unitEye has both vertical gaps equal to the horizontal width.
func unitEye() landmark.Eye {
	return landmark.Eye{
		landmark.Corner0: {X: 0, Y: 0.5},
		landmark.Top1:    {X: 0.25, Y: 0},
		landmark.Top2:    {X: 0.75, Y: 0},
		landmark.Corner3: {X: 1, Y: 0.5},
		landmark.Bottom4: {X: 0.75, Y: 1},
		landmark.Bottom5: {X: 0.25, Y: 1},
	}
}

// eyeWithRatio builds an eye of width 0.1 whose EAR equals ratio.
func eyeWithRatio(cx, cy, ratio float64) landmark.Eye {
	w := 0.1
	h := ratio * w
	return landmark.Eye{
		landmark.Corner0: {X: cx - w/2, Y: cy},
		landmark.Top1:    {X: cx - w/6, Y: cy - h/2},
		landmark.Top2:    {X: cx + w/6, Y: cy - h/2},
		landmark.Corner3: {X: cx + w/2, Y: cy},
		landmark.Bottom4: {X: cx + w/6, Y: cy + h/2},
		landmark.Bottom5: {X: cx - w/6, Y: cy + h/2},
	}
}

func TestComputeUnitEye(t *testing.T) {
	got, err := Compute(unitEye())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1.0) > 1e-12 {
		t.Errorf("Compute() = %v, want 1.0", got)
	}
}

func TestComputeFormula(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
	}{
		{"open", 0.32},
		{"threshold", 0.25},
		{"closing", 0.18},
		{"closed", 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eye := eyeWithRatio(0.4, 0.4, tt.ratio)
			a, b := eye.Vertical()
			want := (a + b) / (2 * eye.Horizontal())

			got, err := Compute(eye)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Compute() = %v, want %v", got, want)
			}
			if math.Abs(got-tt.ratio) > 1e-9 {
				t.Errorf("Compute() = %v, want fixture ratio %v", got, tt.ratio)
			}
		})
	}
}

func TestComputeScaleInvariant(t *testing.T) {
	eye := eyeWithRatio(0.5, 0.5, 0.27)
	base, err := Compute(eye)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, k := range []float64{0.01, 0.5, 2, 1280, 1e6} {
		var scaled landmark.Eye
		for i, p := range eye {
			scaled[i] = p.Scale(k)
		}
		got, err := Compute(scaled)
		if err != nil {
			t.Fatalf("k=%v: unexpected error: %v", k, err)
		}
		if math.Abs(got-base) > 1e-9 {
			t.Errorf("k=%v: Compute() = %v, want %v", k, got, base)
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	eye := eyeWithRatio(0.3, 0.6, 0.21)
	first, _ := Compute(eye)
	for i := 0; i < 10; i++ {
		if got, _ := Compute(eye); got != first {
			t.Fatalf("run %d: Compute() = %v, want %v", i, got, first)
		}
	}
}

func TestComputeDegenerate(t *testing.T) {
	t.Run("zero width", func(t *testing.T) {
		eye := unitEye()
		eye[landmark.Corner3] = eye[landmark.Corner0]
		if _, err := Compute(eye); !errors.Is(err, ErrDegenerateEye) {
			t.Errorf("expected ErrDegenerateEye, got %v", err)
		}
	})

	t.Run("all points equal", func(t *testing.T) {
		var eye landmark.Eye
		if _, err := Compute(eye); !errors.Is(err, ErrDegenerateEye) {
			t.Errorf("expected ErrDegenerateEye, got %v", err)
		}
	})

	t.Run("NaN coordinate", func(t *testing.T) {
		eye := unitEye()
		eye[landmark.Top1].Y = math.NaN()
		if _, err := Compute(eye); !errors.Is(err, ErrDegenerateEye) {
			t.Errorf("expected ErrDegenerateEye, got %v", err)
		}
	})
}

func faceWith(left, right landmark.Eye) landmark.Face {
	face := make(landmark.Face, 478)
	for i, idx := range landmark.LeftEyeIndices {
		face[idx] = left[i]
	}
	for i, idx := range landmark.RightEyeIndices {
		face[idx] = right[i]
	}
	return face
}

func TestFromFaceAverages(t *testing.T) {
	face := faceWith(eyeWithRatio(0.6, 0.4, 0.30), eyeWithRatio(0.4, 0.4, 0.20))

	r, err := FromFace(face)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r.Left-0.30) > 1e-9 || math.Abs(r.Right-0.20) > 1e-9 {
		t.Errorf("got left=%v right=%v", r.Left, r.Right)
	}
	if math.Abs(r.Average-0.25) > 1e-9 {
		t.Errorf("Average = %v, want 0.25", r.Average)
	}
}

func TestFromFaceDegenerateEyeSkipsFrame(t *testing.T) {
	bad := eyeWithRatio(0.6, 0.4, 0.3)
	bad[landmark.Corner3] = bad[landmark.Corner0]
	face := faceWith(bad, eyeWithRatio(0.4, 0.4, 0.3))

	if _, err := FromFace(face); !errors.Is(err, ErrDegenerateEye) {
		t.Errorf("expected ErrDegenerateEye, got %v", err)
	}
}

func TestFromFaceShort(t *testing.T) {
	if _, err := FromFace(make(landmark.Face, 10)); !errors.Is(err, ErrShortFace) {
		t.Errorf("expected ErrShortFace, got %v", err)
	}
}

func TestFromFaces(t *testing.T) {
	if _, err := FromFaces(nil); !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}

	first := faceWith(eyeWithRatio(0.6, 0.4, 0.30), eyeWithRatio(0.4, 0.4, 0.30))
	second := faceWith(eyeWithRatio(0.6, 0.4, 0.10), eyeWithRatio(0.4, 0.4, 0.10))
	r, err := FromFaces([]landmark.Face{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r.Average-0.30) > 1e-9 {
		t.Errorf("expected first face to be used, got %v", r.Average)
	}
}
