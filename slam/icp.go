package slam

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ICPConfig holds configuration for the ICP algorithm.
// Distances are in the same units as the input point clouds (meters).
type ICPConfig struct {
	MaxIterations int     `yaml:"maxIterations" json:"maxIterations"` // Maximum number of iterations
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`         // Stop when error improvement is below this
	Correction    string  `yaml:"correction" json:"correction"`       // How the result moves the proposed pose
}

// ICP correction modes
const (
	// CorrectionDelta adds (dx, dy, dyaw) of the fitted transform to the pose
	CorrectionDelta = "delta"
	// CorrectionRigid applies the fitted transform to the pose itself, so the
	// rotation also moves the position
	CorrectionRigid = "rigid"
)

// DefaultICPConfig returns the per-cycle ICP settings used by the filter
func DefaultICPConfig() ICPConfig {
	return ICPConfig{
		MaxIterations: 20,
		Tolerance:     1e-3,
		Correction:    CorrectionDelta,
	}
}

// Correct moves pose by the alignment result according to the configured
// correction mode
func (c ICPConfig) Correct(pose Pose, result ICPResult) Pose {
	if c.Correction == CorrectionRigid {
		return PoseFromTransform(result.Transform.Compose(PoseTransform(pose)))
	}
	return pose.Add(result.Delta)
}

// ICPResult contains the result of an ICP alignment
type ICPResult struct {
	Transform  Transform // Source-to-target transform
	Delta      Pose      // Transform expressed as (dx, dy, dyaw)
	Error      float64   // Mean correspondence distance of the accepted iterate
	Iterations int       // Number of iterations performed
	Converged  bool      // Improvement dropped below tolerance
	Diverged   bool      // Error increased; best-so-far was kept
}

// FitResult is the output of BestFitTransform
type FitResult struct {
	Rotation    *mat.Dense    // 2x2 proper rotation
	Translation *mat.VecDense // 2-vector
	Transform   Transform     // Same transform in homogeneous form
}

// NearestNeighbor finds, for each point of a (in order), the closest point of
// b by brute force. Ties keep the lowest index. Panics if either cloud is empty.
func NearestNeighbor(a, b PointCloud) (distances []float64, indices []int) {
	if a.IsEmpty() || b.IsEmpty() {
		panic(fmt.Sprintf("slam: nearest neighbor on empty cloud (a=%d, b=%d)", a.Len(), b.Len()))
	}

	distances = make([]float64, a.Len())
	indices = make([]int, a.Len())
	for i, p := range a.points {
		best := math.Inf(1)
		bestIdx := 0
		for j, q := range b.points {
			d := p.DistanceTo(q)
			if d < best {
				best = d
				bestIdx = j
			}
		}
		distances[i] = best
		indices[i] = bestIdx
	}
	return distances, indices
}

// BestFitTransform computes the proper rigid transform (R, t) minimizing
// Σ‖b[i] − (R·a[i] + t)‖² for paired clouds. Panics if the clouds are empty
// or differ in size.
func BestFitTransform(a, b PointCloud) FitResult {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("slam: best fit transform on clouds of different size (%d vs %d)", a.Len(), b.Len()))
	}
	if a.IsEmpty() {
		panic("slam: best fit transform on empty clouds")
	}

	ca := a.Centroid()
	cb := b.Centroid()

	// Cross-covariance of the centered pairs: H = Σ a' b'ᵀ
	var h00, h01, h10, h11 float64
	for i := range a.points {
		pa := a.points[i].Sub(ca)
		pb := b.points[i].Sub(cb)
		h00 += pa.X * pb.X
		h01 += pa.X * pb.Y
		h10 += pa.Y * pb.X
		h11 += pa.Y * pb.Y
	}
	h := mat.NewDense(2, 2, []float64{h00, h01, h10, h11})

	r := rotationFromCovariance(h)

	// t = cb - R·ca
	var rca mat.VecDense
	rca.MulVec(r, mat.NewVecDense(2, []float64{ca.X, ca.Y}))
	t := mat.NewVecDense(2, []float64{cb.X, cb.Y})
	t.SubVec(t, &rca)

	h3 := mat.NewDense(3, 3, nil)
	h3.Slice(0, 2, 0, 2).(*mat.Dense).Copy(r)
	h3.Set(0, 2, t.AtVec(0))
	h3.Set(1, 2, t.AtVec(1))
	h3.Set(2, 2, 1)

	return FitResult{
		Rotation:    r,
		Translation: t,
		Transform:   TransformFromHomogeneous(h3),
	}
}

// Homogeneous returns the fitted transform as a 3x3 homogeneous matrix
func (f FitResult) Homogeneous() *mat.Dense {
	return f.Transform.Homogeneous()
}

// rotationFromCovariance solves the orthogonal Procrustes problem with an SVD
// of H = U·S·Vᵀ, giving R = V·Uᵀ. A reflection is turned into a rotation by
// negating the row of Vᵀ that belongs to the smaller singular value. When H
// carries no energy (single point, coincident points) R is the identity.
func rotationFromCovariance(h *mat.Dense) *mat.Dense {
	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		Logf("[icp] SVD factorization failed, using identity rotation")
		return identity2()
	}

	values := svd.Values(nil) // descending
	if values[0] < 1e-12 {
		return identity2()
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())

	// Rank-deficient H (colinear points) leaves the second singular pair
	// ambiguous; the same flip resolves it.
	if mat.Det(&r) < 0 {
		for i := 0; i < 2; i++ {
			v.Set(i, 1, -v.At(i, 1))
		}
		r.Mul(&v, u.T())
	}
	return &r
}

func identity2() *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, 0, 0, 1})
}

// ICP aligns a onto b and returns the resulting pose delta (dx, dy, dyaw)
func ICP(a, b PointCloud, maxIterations int, tolerance float64) Pose {
	return RunICP(a, b, ICPConfig{MaxIterations: maxIterations, Tolerance: tolerance}).Delta
}

// RunICP runs iterative closest point from a onto b.
//
// Each iteration matches the current estimate of a against b, fits a rigid
// transform to the matched pairs and moves the estimate. The per-iteration
// transforms only drive the next correspondence search: the returned
// transform is fitted once more between the original a and the accepted
// estimate. The loop stops when the mean correspondence distance improves
// by less than the tolerance, or when it gets worse, in which case the
// previous estimate is kept.
func RunICP(a, b PointCloud, config ICPConfig) ICPResult {
	if a.Len() != b.Len() {
		panic(fmt.Sprintf("slam: ICP on clouds of different size (%d vs %d)", a.Len(), b.Len()))
	}
	if a.IsEmpty() {
		panic("slam: ICP on empty clouds")
	}

	var result ICPResult
	current := a.Clone()
	previous := current
	prevError := math.Inf(1)

	for iter := 0; iter < config.MaxIterations; iter++ {
		distances, indices := NearestNeighbor(current, b)
		meanError := mean(distances)
		result.Iterations = iter + 1

		if meanError > prevError {
			result.Diverged = true
			current = previous
			break
		}

		result.Error = meanError
		if prevError-meanError < config.Tolerance {
			result.Converged = true
			break
		}
		prevError = meanError

		fit := BestFitTransform(current, b.Reorder(indices))
		previous = current
		current = current.Transform(fit.Transform)
	}

	if result.Iterations == 0 {
		distances, _ := NearestNeighbor(a, b)
		result.Error = mean(distances)
	}

	final := BestFitTransform(a, current)
	result.Transform = final.Transform
	result.Delta = final.Transform.PoseDelta()
	return result
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
