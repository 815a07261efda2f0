package slam

import (
	"math"
	"math/rand"

	"github.com/paulmach/orb"
)

// World is the static environment seen by the simulated scanner
type World struct {
	Walls []orb.LineString
}

// DefaultWorld returns a 20 x 12 m room with a pillar and a partial divider,
// centered on the origin so that it fits the default grid
func DefaultWorld() World {
	return World{Walls: []orb.LineString{
		{{-10, -6}, {10, -6}, {10, 6}, {-10, 6}, {-10, -6}},
		{{3, -1}, {4, -1}, {4, 1}, {3, 1}, {3, -1}},
		{{-4, 6}, {-4, 1.5}},
	}}
}

// Bound returns the bounding box of all walls
func (w World) Bound() orb.Bound {
	if len(w.Walls) == 0 {
		return orb.Bound{}
	}
	b := w.Walls[0].Bound()
	for _, ls := range w.Walls[1:] {
		b = b.Union(ls.Bound())
	}
	return b
}

// FitsGrid reports whether every wall lies inside grid, so that every hit
// the scanner can produce has a cell to land in
func (w World) FitsGrid(grid *GridMap) bool {
	if len(w.Walls) == 0 {
		return true
	}
	b := w.Bound()
	_, _, minOK := grid.WorldToMap(Point{X: b.Min[0], Y: b.Min[1]})
	_, _, maxOK := grid.WorldToMap(Point{X: b.Max[0], Y: b.Max[1]})
	return minOK && maxOK
}

// Segments flattens every wall polyline into straight segments
func (w World) Segments() []Segment {
	var segs []Segment
	for _, ls := range w.Walls {
		for i := 1; i < len(ls); i++ {
			segs = append(segs, Segment{
				A: Point{X: ls[i-1][0], Y: ls[i-1][1]},
				B: Point{X: ls[i][0], Y: ls[i][1]},
			})
		}
	}
	return segs
}

// LaserScanner simulates a 360° range finder
type LaserScanner struct {
	Columns    int     `yaml:"columns" json:"columns"`       // rays per sweep
	MaxRange   float64 `yaml:"maxRange" json:"maxRange"`     // meters
	RangeNoise float64 `yaml:"rangeNoise" json:"rangeNoise"` // std dev of gaussian range noise, meters
}

// DefaultLaserScanner returns a 90 column scanner with 30 m range
func DefaultLaserScanner() LaserScanner {
	return LaserScanner{Columns: 90, MaxRange: 30.0, RangeNoise: 0.01}
}

// ColumnAngle returns the sensor-relative angle of a column in [0, 2π)
func (s LaserScanner) ColumnAngle(col int) float64 {
	return float64(col) / float64(s.Columns) * 2 * math.Pi
}

// Scan raycasts every column against the world and keeps the closest hit.
// Columns without a hit within range report MaxRange, so consecutive scans
// always have the same number of measurements. rng may be nil for a
// noise-free scan.
func (s LaserScanner) Scan(pose Pose, world World, rng *rand.Rand) Scan {
	segments := world.Segments()

	scan := Scan{Measurements: make([]Measurement, 0, s.Columns)}
	for col := 0; col < s.Columns; col++ {
		angle := s.ColumnAngle(col)
		ray := RayFromAngle(pose.Position, pose.Heading+angle)

		closest := math.Inf(1)
		for _, seg := range segments {
			hit, ok := ray.Intersect(seg)
			if !ok {
				continue
			}
			if d := pose.Position.DistanceTo(hit); d < closest {
				closest = d
			}
		}

		distance := s.MaxRange
		if closest < s.MaxRange {
			distance = closest
			if rng != nil && s.RangeNoise > 0 {
				distance = math.Max(0, math.Min(s.MaxRange, distance+rng.NormFloat64()*s.RangeNoise))
			}
		}
		scan.Add(Measurement{Angle: angle, Distance: distance})
	}
	return scan
}

// Robot is the ground truth body driven around the simulated world
type Robot struct {
	Pose Pose
}

// Drive applies control for dt seconds
func (r *Robot) Drive(control Twist, dt float64) {
	r.Pose = Drive(r.Pose, control, dt)
}

// SteerTowards is a simple waypoint controller: it turns towards target at
// crawling speed, then drives with a proportional heading correction.
func SteerTowards(pose Pose, target Point, speed, turnRate float64) Twist {
	bearing := WrapHeading(target.Sub(pose.Position).Angle() - pose.Heading)
	if math.Abs(bearing) > 0.15 {
		return Twist{Velocity: speed * 0.2, Angular: math.Copysign(turnRate, bearing)}
	}
	return Twist{Velocity: speed, Angular: bearing}
}
