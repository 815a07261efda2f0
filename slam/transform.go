package slam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Transform is a 2D affine transform: x' = ax + by + tx, y' = cx + dy + ty.
// It is the homogeneous 3x3 matrix [[A B Tx] [C D Ty] [0 0 1]] without the
// constant last row.
type Transform struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns the identity transform
func Identity() Transform {
	return Transform{A: 1, D: 1}
}

// Translation returns a pure translation
func Translation(tx, ty float64) Transform {
	return Transform{A: 1, D: 1, Tx: tx, Ty: ty}
}

// Rotation returns a rotation about the origin by theta radians
func Rotation(theta float64) Transform {
	s, c := math.Sincos(theta)
	return Transform{A: c, B: -s, C: s, D: c}
}

// RigidTransform returns rotation by theta followed by translation (tx, ty)
func RigidTransform(theta, tx, ty float64) Transform {
	t := Rotation(theta)
	t.Tx, t.Ty = tx, ty
	return t
}

// Apply transforms a single point
func (m Transform) Apply(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.Tx,
		Y: m.C*p.X + m.D*p.Y + m.Ty,
	}
}

// ApplyAll transforms every point of the slice
func (m Transform) ApplyAll(points []Point) []Point {
	result := make([]Point, len(points))
	for i, p := range points {
		result[i] = m.Apply(p)
	}
	return result
}

// Compose returns m * n: applying the result equals applying n, then m
func (m Transform) Compose(n Transform) Transform {
	return Transform{
		A:  m.A*n.A + m.B*n.C,
		B:  m.A*n.B + m.B*n.D,
		Tx: m.A*n.Tx + m.B*n.Ty + m.Tx,
		C:  m.C*n.A + m.D*n.C,
		D:  m.C*n.B + m.D*n.D,
		Ty: m.C*n.Tx + m.D*n.Ty + m.Ty,
	}
}

// Invert computes the inverse transform.
// Returns identity if the linear part is singular.
func (m Transform) Invert() Transform {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Identity()
	}
	inv := Transform{
		A: m.D / det,
		B: -m.B / det,
		C: -m.C / det,
		D: m.A / det,
	}
	inv.Tx = -(inv.A*m.Tx + inv.B*m.Ty)
	inv.Ty = -(inv.C*m.Tx + inv.D*m.Ty)
	return inv
}

// Det returns the determinant of the linear part
func (m Transform) Det() float64 {
	return m.A*m.D - m.B*m.C
}

// Angle extracts the rotation angle (radians) of the linear part
func (m Transform) Angle() float64 {
	return math.Atan2(m.C, m.A)
}

// Homogeneous returns the full 3x3 homogeneous matrix
func (m Transform) Homogeneous() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m.A, m.B, m.Tx,
		m.C, m.D, m.Ty,
		0, 0, 1,
	})
}

// TransformFromHomogeneous reads the top two rows of a 3x3 homogeneous matrix
func TransformFromHomogeneous(h mat.Matrix) Transform {
	return Transform{
		A: h.At(0, 0), B: h.At(0, 1), Tx: h.At(0, 2),
		C: h.At(1, 0), D: h.At(1, 1), Ty: h.At(1, 2),
	}
}

// PoseTransform returns the rigid transform taking robot frame coordinates
// at pose into the world frame
func PoseTransform(pose Pose) Transform {
	return RigidTransform(pose.Heading, pose.Position.X, pose.Position.Y)
}

// PoseFromTransform reads a pose back out of a rigid transform
func PoseFromTransform(m Transform) Pose {
	return NewPose(m.Tx, m.Ty, WrapHeading(m.Angle()))
}

// PoseDelta converts the transform into (dx, dy, dyaw) for compositing onto
// odometry poses
func (m Transform) PoseDelta() Pose {
	return NewPose(m.Tx, m.Ty, m.Angle())
}
