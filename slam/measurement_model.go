package slam

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// LikelihoodConfig holds the likelihood field parameters
type LikelihoodConfig struct {
	ZHit     float64 `yaml:"zHit" json:"zHit"`         // weight of the gaussian hit component
	ZRand    float64 `yaml:"zRand" json:"zRand"`       // weight of the uniform noise component
	SigmaHit float64 `yaml:"sigmaHit" json:"sigmaHit"` // meters
	MaxRange float64 `yaml:"maxRange" json:"maxRange"` // sensor maximum range in meters
}

// DefaultLikelihoodConfig returns the default likelihood field parameters
func DefaultLikelihoodConfig() LikelihoodConfig {
	return LikelihoodConfig{
		ZHit:     0.95,
		ZRand:    0.05,
		SigmaHit: 0.2,
		MaxRange: 30.0,
	}
}

// LikelihoodFieldRangeFinderModel scores scan taken from pose against grid
// (Probabilistic Robotics, Table 6.3). Readings at or beyond max range are
// ignored, as are readings whose endpoint falls outside the grid. Each kept
// reading contributes ZHit·N(d; 0, σ²) + ZRand/MaxRange, where d is the
// distance in meters to the closest occupied cell. Contributions multiply,
// so the result is an unnormalized score, not a probability.
func LikelihoodFieldRangeFinderModel(scan Scan, pose Pose, grid *GridMap, cfg LikelihoodConfig) float64 {
	return math.Exp(LikelihoodFieldLogScore(scan, pose, grid, cfg))
}

// LikelihoodFieldLogScore is the natural log of
// LikelihoodFieldRangeFinderModel. Long scans multiply hundreds of factors,
// so the filter works with this form to stay clear of underflow.
func LikelihoodFieldLogScore(scan Scan, pose Pose, grid *GridMap, cfg LikelihoodConfig) float64 {
	return likelihoodLogScore(scan, pose, grid, grid.OccupiedCells(), cfg)
}

// likelihoodLogScore takes the occupied cells explicitly so that callers
// scoring many poses against one map gather them only once
func likelihoodLogScore(scan Scan, pose Pose, grid *GridMap, occupied PointCloud, cfg LikelihoodConfig) float64 {
	hit := distuv.Normal{Mu: 0, Sigma: cfg.SigmaHit}
	uniform := 0.0
	if cfg.MaxRange > 0 {
		uniform = cfg.ZRand / cfg.MaxRange
	}

	logQ := 0.0
	for _, m := range scan.Measurements {
		if cfg.MaxRange > 0 && m.Distance >= cfg.MaxRange {
			continue
		}
		row, col, ok := grid.WorldToMap(m.ToPoint(pose))
		if !ok {
			continue
		}

		cell := Point{X: float64(row), Y: float64(col)}
		minDist := math.Inf(1)
		for _, o := range occupied.points {
			if d := cell.DistanceTo(o); d < minDist {
				minDist = d
			}
		}

		p := uniform
		if !math.IsInf(minDist, 1) {
			p += cfg.ZHit * hit.Prob(minDist*grid.CellSize())
		}
		logQ += math.Log(p)
	}
	return logQ
}
