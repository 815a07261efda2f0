package slam

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ErrInvalidConfig is returned when a configuration fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// FilterConfig holds all particle filter tuning
type FilterConfig struct {
	NumParticles  int              `yaml:"numParticles" json:"numParticles"`
	Simulation    bool             `yaml:"simulation" json:"simulation"`       // use a fixed dt instead of wall-clock time
	SimulationDt  float64          `yaml:"simulationDt" json:"simulationDt"`   // seconds per cycle in simulation mode
	MinDt         float64          `yaml:"minDt" json:"minDt"`                 // lower bound for wall-clock dt
	SampleCount   int              `yaml:"sampleCount" json:"sampleCount"`     // candidates drawn around the corrected pose
	SampleScale   float64          `yaml:"sampleScale" json:"sampleScale"`     // candidate spread relative to commanded motion
	ResampleRatio float64          `yaml:"resampleRatio" json:"resampleRatio"` // resample when Neff < ratio * N
	GridSize      int              `yaml:"gridSize" json:"gridSize"`
	CellSize      float64          `yaml:"cellSize" json:"cellSize"`
	Workers       int              `yaml:"workers" json:"workers"` // 0 uses GOMAXPROCS
	Seed          int64            `yaml:"seed" json:"seed"`
	InitialPose   Pose             `yaml:"initialPose" json:"initialPose"`
	ICP           ICPConfig        `yaml:"icp" json:"icp"`
	Motion        MotionNoise      `yaml:"motion" json:"motion"`
	Likelihood    LikelihoodConfig `yaml:"likelihood" json:"likelihood"`

	// Now supplies wall-clock time outside simulation mode (defaults to time.Now)
	Now func() time.Time `yaml:"-" json:"-"`
}

// DefaultFilterConfig returns the defaults used by the simulator
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		NumParticles:  50,
		Simulation:    true,
		SimulationDt:  1.0,
		MinDt:         1e-3,
		SampleCount:   20,
		SampleScale:   0.1,
		ResampleRatio: 0.5,
		GridSize:      DefaultGridSize,
		CellSize:      DefaultCellSize,
		Seed:          time.Now().UnixNano(),
		ICP:           DefaultICPConfig(),
		Motion:        DefaultMotionNoise(),
		Likelihood:    DefaultLikelihoodConfig(),
	}
}

// Validate checks the configuration for values the filter cannot run with
func (c FilterConfig) Validate() error {
	switch {
	case c.NumParticles <= 0:
		return fmt.Errorf("%w: numParticles must be positive, got %d", ErrInvalidConfig, c.NumParticles)
	case c.SampleCount <= 0:
		return fmt.Errorf("%w: sampleCount must be positive, got %d", ErrInvalidConfig, c.SampleCount)
	case c.SampleScale < 0:
		return fmt.Errorf("%w: sampleScale must not be negative", ErrInvalidConfig)
	case c.Simulation && c.SimulationDt <= 0:
		return fmt.Errorf("%w: simulationDt must be positive", ErrInvalidConfig)
	case c.ResampleRatio < 0 || c.ResampleRatio > 1:
		return fmt.Errorf("%w: resampleRatio must be within [0, 1], got %v", ErrInvalidConfig, c.ResampleRatio)
	case c.GridSize <= 0 || c.CellSize <= 0:
		return fmt.Errorf("%w: grid must have positive size and cell size", ErrInvalidConfig)
	case c.ICP.MaxIterations < 0:
		return fmt.Errorf("%w: icp.maxIterations must not be negative", ErrInvalidConfig)
	case c.ICP.Correction != "" && c.ICP.Correction != CorrectionDelta && c.ICP.Correction != CorrectionRigid:
		return fmt.Errorf("%w: icp.correction must be %q or %q, got %q", ErrInvalidConfig, CorrectionDelta, CorrectionRigid, c.ICP.Correction)
	case c.Likelihood.SigmaHit <= 0:
		return fmt.Errorf("%w: likelihood.sigmaHit must be positive", ErrInvalidConfig)
	case c.Likelihood.MaxRange <= 0:
		return fmt.Errorf("%w: likelihood.maxRange must be positive", ErrInvalidConfig)
	}
	return nil
}

// Snapshot is a read-only copy of one particle
type Snapshot struct {
	Index      int // slot in the current population
	Pose       Pose
	Weight     float64
	Correction Pose
	Map        *GridMap
}

// CycleStats summarizes the last filter cycle
type CycleStats struct {
	Cycle        int           `json:"cycle"`
	Dt           float64       `json:"dt"`
	Neff         float64       `json:"neff"`
	Resampled    bool          `json:"resampled"`
	BestIndex    int           `json:"bestIndex"`
	BestWeight   float64       `json:"bestWeight"`
	ICPRuns      int           `json:"icpRuns"`
	ICPDiverged  int           `json:"icpDiverged"`
	Skipped      int           `json:"skipped"`
	ZeroEta      int           `json:"zeroEta"`
	Duration     time.Duration `json:"duration"`
	WeightsReset bool          `json:"weightsReset"`
}

// ParticleFilter is a FastSLAM style filter: every particle carries its own
// pose and map. Cycle must not be called concurrently with itself; the
// read accessors are safe to use from other goroutines.
type ParticleFilter struct {
	mu          sync.RWMutex
	cfg         FilterConfig
	particles   []*Particle
	rngs        []*rand.Rand // one per particle slot
	resampleRNG *rand.Rand
	best        int       // slot holding the estimate, or its copy after resampling
	estimate    *Particle // highest weighted particle, selected before resampling
	neff        float64
	lastTick    time.Time
	stats       CycleStats
}

// NewParticleFilter creates NumParticles copies of a particle at the initial
// pose with an empty map and uniform weight
func NewParticleFilter(cfg FilterConfig) (*ParticleFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	n := cfg.NumParticles
	proto := NewParticle(cfg.InitialPose, 1/float64(n), NewGridMap(cfg.GridSize, cfg.CellSize))

	pf := &ParticleFilter{
		cfg:         cfg,
		particles:   make([]*Particle, n),
		rngs:        make([]*rand.Rand, n),
		resampleRNG: rand.New(rand.NewSource(cfg.Seed + int64(n))),
		neff:        float64(n),
		lastTick:    cfg.Now(),
	}
	for i := range pf.particles {
		pf.particles[i] = proto.Clone()
		pf.rngs[i] = rand.New(rand.NewSource(cfg.Seed + int64(i)))
	}
	pf.estimate = pf.particles[0]
	return pf, nil
}

// Config returns the filter configuration
func (pf *ParticleFilter) Config() FilterConfig {
	return pf.cfg
}

func (pf *ParticleFilter) workers() int {
	if pf.cfg.Workers > 0 {
		return pf.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// nextDt returns the time step for this cycle
func (pf *ParticleFilter) nextDt() float64 {
	if pf.cfg.Simulation {
		return pf.cfg.SimulationDt
	}
	now := pf.cfg.Now()
	dt := now.Sub(pf.lastTick).Seconds()
	pf.lastTick = now
	if dt < pf.cfg.MinDt {
		dt = pf.cfg.MinDt
	}
	return dt
}

// Cycle advances the filter by one time step using scan and the control
// that was applied since the previous call
func (pf *ParticleFilter) Cycle(scan Scan, control Twist) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	start := time.Now()
	dt := pf.nextDt()

	// Particles share nothing mutable, so each gets its own goroutine slot.
	results := make([]CycleResult, len(pf.particles))
	var g errgroup.Group
	g.SetLimit(pf.workers())
	for i, p := range pf.particles {
		g.Go(func() error {
			results[i] = p.Cycle(scan, control, dt, pf.cfg, pf.rngs[i])
			return nil
		})
	}
	_ = g.Wait()

	stats := CycleStats{Cycle: pf.stats.Cycle + 1, Dt: dt}
	for _, r := range results {
		if r.ICP != nil {
			stats.ICPRuns++
			if r.ICP.Diverged {
				stats.ICPDiverged++
			}
		}
		if math.IsInf(r.LogEta, -1) {
			stats.ZeroEta++
		}
		stats.Skipped += r.Skipped
	}

	stats.WeightsReset = !pf.normalizeWeights()
	weights := pf.weights()
	pf.best = floats.MaxIdx(weights)
	pf.estimate = pf.particles[pf.best]
	pf.neff = EffectiveParticleCount(weights)
	stats.Neff = pf.neff
	stats.BestWeight = pf.estimate.Weight

	if pf.neff < pf.cfg.ResampleRatio*float64(len(pf.particles)) {
		// The estimate keeps its pre-resampling weight; best moves to the
		// first slot holding a copy of it.
		indices := LowVarianceIndices(weights, pf.resampleRNG)
		pf.particles = cloneSelected(pf.particles, indices)
		for slot, i := range indices {
			if i == pf.best {
				pf.best = slot
				break
			}
		}
		pf.neff = EffectiveParticleCount(pf.weights())
		stats.Resampled = true
	}
	stats.BestIndex = pf.best
	stats.Duration = time.Since(start)
	pf.stats = stats

	if stats.WeightsReset {
		Logf("[filter] cycle %d: every particle lost its weight, reset to uniform", stats.Cycle)
	}
}

// normalizeWeights rescales the particle weights to sum to one using their
// log weights. It returns false, after resetting to uniform weights, when no
// particle has any weight left.
func (pf *ParticleFilter) normalizeWeights() bool {
	n := len(pf.particles)
	logs := make([]float64, n)
	for i, p := range pf.particles {
		logs[i] = p.LogWeight
		if math.IsNaN(logs[i]) {
			logs[i] = math.Inf(-1)
		}
	}

	maxLog := floats.Max(logs)
	if math.IsInf(maxLog, 0) {
		for _, p := range pf.particles {
			p.Weight = 1 / float64(n)
			p.LogWeight = math.Log(p.Weight)
		}
		return false
	}

	// log Σ exp(l) computed stably
	logTotal := floats.LogSumExp(logs)
	for i, p := range pf.particles {
		p.LogWeight = logs[i] - logTotal
		p.Weight = math.Exp(p.LogWeight)
	}
	return true
}

func (pf *ParticleFilter) weights() []float64 {
	w := make([]float64, len(pf.particles))
	for i, p := range pf.particles {
		w[i] = p.Weight
	}
	return w
}

// BestParticle returns a snapshot of the highest weighted particle
func (pf *ParticleFilter) BestParticle() Snapshot {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	p := pf.estimate
	return Snapshot{
		Index:      pf.best,
		Pose:       p.Pose,
		Weight:     p.Weight,
		Correction: p.PrevCorrection,
		Map:        p.Map.Clone(),
	}
}

// Particles returns snapshots of every particle without their maps
func (pf *ParticleFilter) Particles() []Snapshot {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]Snapshot, len(pf.particles))
	for i, p := range pf.particles {
		out[i] = Snapshot{Index: i, Pose: p.Pose, Weight: p.Weight, Correction: p.PrevCorrection}
	}
	return out
}

// Weights returns the current normalized weights
func (pf *ParticleFilter) Weights() []float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.weights()
}

// Neff returns the effective particle count after the last cycle
func (pf *ParticleFilter) Neff() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.neff
}

// Len returns the number of particles
func (pf *ParticleFilter) Len() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.particles)
}

// Stats returns the statistics of the last cycle
func (pf *ParticleFilter) Stats() CycleStats {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.stats
}
