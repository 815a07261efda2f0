package slam

import (
	"math"
	"math/rand"
)

// Particle is one hypothesis of the filter: a pose, an importance weight and
// the map built along that pose history. Each particle owns its map and its
// cached point cloud exclusively.
type Particle struct {
	Pose           Pose
	Weight         float64
	LogWeight      float64 // natural log of the running weight, immune to underflow
	Map            *GridMap
	PrevCorrection Pose // last ICP correction, for diagnostics

	prevCloud PointCloud
	hasPrev   bool
}

// NewParticle creates a particle owning grid
func NewParticle(pose Pose, weight float64, grid *GridMap) *Particle {
	return &Particle{Pose: pose, Weight: weight, LogWeight: math.Log(weight), Map: grid}
}

// Clone returns a deep copy, including the map and the cached cloud
func (p *Particle) Clone() *Particle {
	c := &Particle{
		Pose:           p.Pose,
		Weight:         p.Weight,
		LogWeight:      p.LogWeight,
		PrevCorrection: p.PrevCorrection,
		hasPrev:        p.hasPrev,
	}
	if p.Map != nil {
		c.Map = p.Map.Clone()
	}
	if p.hasPrev {
		c.prevCloud = p.prevCloud.Clone()
	}
	return c
}

// PreviousCloud returns the cloud cached by the last cycle, if any
func (p *Particle) PreviousCloud() (PointCloud, bool) {
	return p.prevCloud, p.hasPrev
}

// CycleResult reports what happened to a particle during one cycle
type CycleResult struct {
	Proposed  Pose
	Corrected Pose
	Eta       float64 // normalizer of the improved proposal (may underflow to 0)
	LogEta    float64
	ICP       *ICPResult
	Skipped   int // measurements outside the grid during the map update
}

// Cycle advances the particle by one step:
//  1. propose a pose from the motion model,
//  2. correct it by scan matching against the previous cloud,
//  3. sample candidates around the corrected pose,
//  4. weight them with the motion and measurement models and draw the new
//     pose from the gaussian they describe,
//  5. update weight, map and cached cloud.
func (p *Particle) Cycle(scan Scan, control Twist, dt float64, cfg FilterConfig, rng *rand.Rand) CycleResult {
	var res CycleResult
	prevPose := p.Pose

	proposed := SampleMotionModelVelocity(prevPose, control, dt, cfg.Motion, rng)
	res.Proposed = proposed

	corrected := proposed
	cloud := scan.ToPointCloud(proposed)
	if p.hasPrev && !cloud.IsEmpty() && cloud.Len() == p.prevCloud.Len() {
		icp := RunICP(cloud, p.prevCloud, cfg.ICP)
		res.ICP = &icp
		p.PrevCorrection = icp.Delta
		corrected = cfg.ICP.Correct(proposed, icp)
	}
	res.Corrected = corrected

	stdDev := Pose{
		Position: Point{
			X: cfg.SampleScale * math.Abs(control.Velocity) * dt,
			Y: cfg.SampleScale * math.Abs(control.Velocity) * dt,
		},
		Heading: cfg.SampleScale * math.Abs(control.Angular) * dt,
	}
	candidates := SamplePoses(corrected, stdDev, cfg.SampleCount, rng)

	// Weights are handled as logs and rescaled by the largest one before
	// exponentiating; eta is recovered as exp(maxLog)·Σ rel.
	occupied := p.Map.OccupiedCells()
	logs := make([]float64, len(candidates))
	maxLog := math.Inf(-1)
	for i, c := range candidates {
		l := math.Log(MotionModelVelocity(c, prevPose, control, dt, cfg.Motion)) +
			likelihoodLogScore(scan, c, p.Map, occupied, cfg.Likelihood)
		if math.IsNaN(l) {
			l = math.Inf(-1)
		}
		logs[i] = l
		if l > maxLog {
			maxLog = l
		}
	}

	var mean, variance Pose
	logEta := math.Inf(-1)
	if !math.IsInf(maxLog, -1) && !math.IsInf(maxLog, 1) {
		rel := make([]float64, len(candidates))
		sum := 0.0
		for i, l := range logs {
			rel[i] = math.Exp(l - maxLog)
			sum += rel[i]
		}
		for i, c := range candidates {
			mean = mean.Add(c.Scale(rel[i] / sum))
		}
		for i, c := range candidates {
			d := c.Sub(mean)
			variance = variance.Add(d.Mul(d).Scale(rel[i] / sum))
		}
		logEta = maxLog + math.Log(sum)
	} else {
		mean = corrected
	}
	res.Eta = math.Exp(logEta)
	res.LogEta = logEta

	final := SamplePoses(mean, variance.Sqrt(), 1, rng)[0]
	final.Heading = WrapHeading(final.Heading)

	p.Pose = final
	p.Weight *= res.Eta
	p.LogWeight += logEta
	res.Skipped = p.Map.Update(final, scan)
	p.prevCloud = scan.ToPointCloud(final)
	p.hasPrev = true
	return res
}

// SamplePoses draws k poses from a gaussian centered on center with
// per-axis standard deviation stdDev. Headings are not wrapped so that the
// samples can be averaged component-wise.
func SamplePoses(center, stdDev Pose, k int, rng *rand.Rand) []Pose {
	poses := make([]Pose, k)
	for i := range poses {
		poses[i] = Pose{
			Position: Point{
				X: center.Position.X + rng.NormFloat64()*stdDev.Position.X,
				Y: center.Position.Y + rng.NormFloat64()*stdDev.Position.Y,
			},
			Heading: center.Heading + rng.NormFloat64()*stdDev.Heading,
		}
	}
	return poses
}
