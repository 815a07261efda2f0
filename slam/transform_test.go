package slam

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestTransform_Apply(t *testing.T) {
	tests := []struct {
		name string
		m    Transform
		in   Point
		want Point
	}{
		{"identity", Identity(), Point{X: 3, Y: -2}, Point{X: 3, Y: -2}},
		{"translation", Translation(1, 2), Point{X: 3, Y: -2}, Point{X: 4, Y: 0}},
		{"rotation", Rotation(math.Pi / 2), Point{X: 1, Y: 0}, Point{X: 0, Y: 1}},
		{"rigid", RigidTransform(math.Pi, 1, 1), Point{X: 1, Y: 2}, Point{X: 0, Y: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.m.Apply(tt.in), approx); diff != "" {
				t.Errorf("Apply mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransform_ComposeAndInvert(t *testing.T) {
	m := RigidTransform(0.7, 3, -1)
	n := RigidTransform(-0.2, -2, 5)
	p := Point{X: 1.5, Y: 2.5}

	composed := m.Compose(n).Apply(p)
	sequential := m.Apply(n.Apply(p))
	if diff := cmp.Diff(sequential, composed, approx); diff != "" {
		t.Errorf("Compose mismatch (-want +got):\n%s", diff)
	}

	roundTrip := m.Invert().Apply(m.Apply(p))
	if diff := cmp.Diff(p, roundTrip, approx); diff != "" {
		t.Errorf("Invert round trip mismatch (-want +got):\n%s", diff)
	}

	singular := Transform{A: 1, B: 2, C: 2, D: 4, Tx: 1}
	if got := singular.Invert(); got != Identity() {
		t.Errorf("Invert of singular = %+v, want identity", got)
	}
}

func TestTransform_Homogeneous(t *testing.T) {
	m := RigidTransform(0.4, 2, -3)
	h := m.Homogeneous()
	if h.At(2, 0) != 0 || h.At(2, 1) != 0 || h.At(2, 2) != 1 {
		t.Errorf("last row = %v, want [0 0 1]", mat.Row(nil, 2, h))
	}

	var product mat.Dense
	product.Mul(h, m.Invert().Homogeneous())
	if !mat.EqualApprox(&product, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-12) {
		t.Errorf("H * H^-1 = %v, want identity", mat.Formatted(&product))
	}

	if diff := cmp.Diff(m, TransformFromHomogeneous(h), approx); diff != "" {
		t.Errorf("TransformFromHomogeneous mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_PoseDelta(t *testing.T) {
	delta := RigidTransform(-0.3, 0.5, 0.25).PoseDelta()
	if diff := cmp.Diff(NewPose(0.5, 0.25, -0.3), delta, approx); diff != "" {
		t.Errorf("PoseDelta mismatch (-want +got):\n%s", diff)
	}
	if det := Rotation(1.1).Det(); !almostEqual(det, 1, 1e-12) {
		t.Errorf("Det = %f, want 1", det)
	}
}

func TestPoseTransform(t *testing.T) {
	pose := NewPose(2, -1, math.Pi/2)
	m := PoseTransform(pose)

	// one meter ahead of a robot facing +y
	if diff := cmp.Diff(Point{X: 2, Y: 0}, m.Apply(Point{X: 1}), approx); diff != "" {
		t.Errorf("Apply mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(pose, PoseFromTransform(m), approx); diff != "" {
		t.Errorf("PoseFromTransform round trip mismatch (-want +got):\n%s", diff)
	}

	// heading comes back wrapped
	wrapped := PoseFromTransform(PoseTransform(NewPose(0, 0, 3*math.Pi/2)))
	if !almostEqual(wrapped.Heading, -math.Pi/2, 1e-12) {
		t.Errorf("Heading = %f, want %f", wrapped.Heading, -math.Pi/2)
	}
}
