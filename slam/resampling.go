package slam

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// EffectiveParticleCount returns Neff = 1 / Σ w̃², where w̃ are the weights
// normalized to sum to one. For a non-degenerate set the result lies in
// [1, len(weights)]. Empty or all-zero weight sets return 0.
func EffectiveParticleCount(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 1) {
		return 0
	}
	normalized := make([]float64, len(weights))
	floats.ScaleTo(normalized, 1/total, weights)
	return 1 / floats.Dot(normalized, normalized)
}

// LowVarianceSampler draws len(particles) particles with probability
// proportional to their weights using LowVarianceIndices. Outputs are deep
// copies with weight 1/N.
//
// Panics if the weights do not sum to a positive finite value.
func LowVarianceSampler(particles []*Particle, rng *rand.Rand) []*Particle {
	weights := make([]float64, len(particles))
	for i, p := range particles {
		weights[i] = p.Weight
	}
	return cloneSelected(particles, LowVarianceIndices(weights, rng))
}

// LowVarianceIndices selects len(weights) indices with probability
// proportional to the weights using systematic resampling (Probabilistic
// Robotics, Table 4.4): one offset r in [0, 1/N) and N equally spaced
// pointers walked against the cumulative weights, so the walk only moves
// forward. Brackets are half-open, so a zero weight is never selected.
//
// Panics if the weights do not sum to a positive finite value.
func LowVarianceIndices(weights []float64, rng *rand.Rand) []int {
	n := len(weights)
	if n == 0 {
		return nil
	}

	cumulative := floats.CumSum(make([]float64, n), weights)
	total := cumulative[n-1]
	if !(total > 0) || math.IsInf(total, 1) {
		panic(fmt.Sprintf("slam: cannot resample, total weight is %v", total))
	}
	last := n - 1
	for weights[last] <= 0 {
		last--
	}

	step := 1 / float64(n)
	r := rng.Float64() * step
	out := make([]int, n)
	i := 0
	for m := range out {
		u := (r + float64(m)*step) * total
		// rounding can push the final pointer onto total itself
		for i < last && u >= cumulative[i] {
			i++
		}
		out[m] = i
	}
	return out
}

func cloneSelected(particles []*Particle, indices []int) []*Particle {
	if len(indices) == 0 {
		return nil
	}
	step := 1 / float64(len(indices))
	out := make([]*Particle, len(indices))
	for m, i := range indices {
		c := particles[i].Clone()
		c.Weight = step
		c.LogWeight = math.Log(step)
		out[m] = c
	}
	return out
}
