package slam

import "math"

// Point represents a 2D coordinate or vector
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p + q
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p * s
func (p Point) Scale(s float64) Point { return Point{X: p.X * s, Y: p.Y * s} }

// Dot returns the dot product of p and q
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Cross returns the z component of the 3D cross product of p and q
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

// Norm returns the euclidean length of p
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Angle returns the angle of p measured from the positive x axis
func (p Point) Angle() float64 { return math.Atan2(p.Y, p.X) }

// DistanceTo returns the euclidean distance between p and q
func (p Point) DistanceTo(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Rotate rotates p around the origin by theta radians (counter-clockwise)
func (p Point) Rotate(theta float64) Point {
	s, c := math.Sincos(theta)
	return Point{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
}

// UnitVector returns the unit vector pointing at angle theta
func UnitVector(theta float64) Point {
	s, c := math.Sincos(theta)
	return Point{X: c, Y: s}
}

// Pose is a robot position plus heading (radians, counter-clockwise from +x).
// Arithmetic is component-wise so that weighted means and variances can be
// computed directly on poses.
type Pose struct {
	Position Point   `json:"position" yaml:"position"`
	Heading  float64 `json:"heading" yaml:"heading"`
}

// NewPose creates a pose from its components
func NewPose(x, y, heading float64) Pose {
	return Pose{Position: Point{X: x, Y: y}, Heading: heading}
}

// Add returns the component-wise sum
func (p Pose) Add(q Pose) Pose {
	return Pose{Position: p.Position.Add(q.Position), Heading: p.Heading + q.Heading}
}

// Sub returns the component-wise difference
func (p Pose) Sub(q Pose) Pose {
	return Pose{Position: p.Position.Sub(q.Position), Heading: p.Heading - q.Heading}
}

// Mul returns the component-wise product
func (p Pose) Mul(q Pose) Pose {
	return Pose{
		Position: Point{X: p.Position.X * q.Position.X, Y: p.Position.Y * q.Position.Y},
		Heading:  p.Heading * q.Heading,
	}
}

// Div returns the component-wise quotient
func (p Pose) Div(q Pose) Pose {
	return Pose{
		Position: Point{X: p.Position.X / q.Position.X, Y: p.Position.Y / q.Position.Y},
		Heading:  p.Heading / q.Heading,
	}
}

// Scale multiplies every component by s
func (p Pose) Scale(s float64) Pose {
	return Pose{Position: p.Position.Scale(s), Heading: p.Heading * s}
}

// Sqrt returns the component-wise square root. Negative components yield 0.
func (p Pose) Sqrt() Pose {
	return Pose{
		Position: Point{X: safeSqrt(p.Position.X), Y: safeSqrt(p.Position.Y)},
		Heading:  safeSqrt(p.Heading),
	}
}

func safeSqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// WrapHeading normalizes an angle in radians to (-π, π]
func WrapHeading(yaw float64) float64 {
	angle := math.Mod(yaw, 2*math.Pi)
	if angle <= -math.Pi {
		angle += 2 * math.Pi
	} else if angle > math.Pi {
		angle -= 2 * math.Pi
	}
	return angle
}

// Twist is a control command: forward velocity (m/s) and angular velocity (rad/s)
type Twist struct {
	Velocity float64 `json:"velocity"`
	Angular  float64 `json:"angular"`
}

// Ray is a half-line starting at Origin
type Ray struct {
	Origin    Point
	Direction Point // unit length
}

// RayFromAngle creates a ray leaving origin at the given angle
func RayFromAngle(origin Point, angle float64) Ray {
	return Ray{Origin: origin, Direction: UnitVector(angle)}
}

// Segment is a line segment between A and B
type Segment struct {
	A Point
	B Point
}

// Intersect returns the point where the ray hits the segment, if any.
// Parallel (including colinear) configurations report no hit.
func (r Ray) Intersect(s Segment) (Point, bool) {
	edge := s.B.Sub(s.A)
	denom := r.Direction.Cross(edge)
	if math.Abs(denom) < 1e-12 {
		return Point{}, false
	}
	diff := s.A.Sub(r.Origin)
	t := diff.Cross(edge) / denom // along the ray
	u := diff.Cross(r.Direction) / denom
	if t < 0 || u < 0 || u > 1 {
		return Point{}, false
	}
	return r.Origin.Add(r.Direction.Scale(t)), true
}
