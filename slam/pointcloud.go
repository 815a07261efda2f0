package slam

import "fmt"

// PointCloud is an ordered collection of 2D points. Order matters: ICP
// correspondences are expressed as indices into the cloud.
type PointCloud struct {
	points []Point
}

// NewPointCloud creates a cloud holding a copy of points
func NewPointCloud(points []Point) PointCloud {
	pc := PointCloud{points: make([]Point, len(points))}
	copy(pc.points, points)
	return pc
}

// Len returns the number of points
func (pc PointCloud) Len() int { return len(pc.points) }

// IsEmpty reports whether the cloud has no points
func (pc PointCloud) IsEmpty() bool { return len(pc.points) == 0 }

// Add appends a point
func (pc *PointCloud) Add(p Point) { pc.points = append(pc.points, p) }

// At returns the i-th point
func (pc PointCloud) At(i int) Point { return pc.points[i] }

// Set replaces the i-th point
func (pc PointCloud) Set(i int, p Point) { pc.points[i] = p }

// Points returns a copy of the underlying points
func (pc PointCloud) Points() []Point {
	out := make([]Point, len(pc.points))
	copy(out, pc.points)
	return out
}

// Clone returns a deep copy
func (pc PointCloud) Clone() PointCloud {
	return NewPointCloud(pc.points)
}

// Centroid returns the mean of all points (the zero point for an empty cloud)
func (pc PointCloud) Centroid() Point {
	if len(pc.points) == 0 {
		return Point{}
	}
	var sumX, sumY float64
	for _, p := range pc.points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(pc.points))
	return Point{X: sumX / n, Y: sumY / n}
}

// Transform returns a new cloud with m applied to every point
func (pc PointCloud) Transform(m Transform) PointCloud {
	return PointCloud{points: m.ApplyAll(pc.points)}
}

// Reorder returns a new cloud whose i-th point is pc[indices[i]]
func (pc PointCloud) Reorder(indices []int) PointCloud {
	out := PointCloud{points: make([]Point, len(indices))}
	for i, idx := range indices {
		out.points[i] = pc.points[idx]
	}
	return out
}

func (pc PointCloud) String() string {
	return fmt.Sprintf("PointCloud(%d points)", len(pc.points))
}
