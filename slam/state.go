package slam

import (
	"sync"
	"time"
)

// TrajectoryPoint is one estimated pose along the run
type TrajectoryPoint struct {
	Cycle     int       `json:"cycle"`
	Pose      Pose      `json:"pose"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// StateTracker keeps the latest estimate, its map and a bounded history for
// the HTTP endpoints and renderers
type StateTracker struct {
	mu          sync.RWMutex
	maxLen      int
	estimate    *Snapshot
	stats       CycleStats
	trajectory  []TrajectoryPoint
	groundTruth []Pose
	neff        []float64
}

// NewStateTracker creates a tracker keeping at most maxLen history entries.
// maxLen <= 0 keeps everything.
func NewStateTracker(maxLen int) *StateTracker {
	return &StateTracker{maxLen: maxLen}
}

// Update records the outcome of a filter cycle
func (st *StateTracker) Update(best Snapshot, stats CycleStats) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.estimate = &best
	st.stats = stats
	st.trajectory = st.bound(append(st.trajectory, TrajectoryPoint{
		Cycle:     stats.Cycle,
		Pose:      best.Pose,
		Weight:    best.Weight,
		Timestamp: time.Now(),
	}))
	st.neff = boundFloats(append(st.neff, stats.Neff), st.maxLen)
}

// RecordGroundTruth appends the true pose of a simulated robot
func (st *StateTracker) RecordGroundTruth(pose Pose) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.groundTruth = append(st.groundTruth, pose)
	if st.maxLen > 0 && len(st.groundTruth) > st.maxLen {
		st.groundTruth = st.groundTruth[len(st.groundTruth)-st.maxLen:]
	}
}

func (st *StateTracker) bound(t []TrajectoryPoint) []TrajectoryPoint {
	if st.maxLen > 0 && len(t) > st.maxLen {
		return t[len(t)-st.maxLen:]
	}
	return t
}

func boundFloats(v []float64, maxLen int) []float64 {
	if maxLen > 0 && len(v) > maxLen {
		return v[len(v)-maxLen:]
	}
	return v
}

// Estimate returns the latest best particle
func (st *StateTracker) Estimate() (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.estimate == nil {
		return Snapshot{}, false
	}
	return *st.estimate, true
}

// Map returns the map of the latest best particle, or nil
func (st *StateTracker) Map() *GridMap {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.estimate == nil {
		return nil
	}
	return st.estimate.Map
}

// Stats returns the statistics of the latest cycle
func (st *StateTracker) Stats() CycleStats {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stats
}

// Trajectory returns a copy of the estimated trajectory
func (st *StateTracker) Trajectory() []TrajectoryPoint {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]TrajectoryPoint, len(st.trajectory))
	copy(out, st.trajectory)
	return out
}

// TrajectoryPoses returns just the poses of the estimated trajectory
func (st *StateTracker) TrajectoryPoses() []Pose {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Pose, len(st.trajectory))
	for i, t := range st.trajectory {
		out[i] = t.Pose
	}
	return out
}

// GroundTruth returns a copy of the recorded true poses
func (st *StateTracker) GroundTruth() []Pose {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Pose, len(st.groundTruth))
	copy(out, st.groundTruth)
	return out
}

// NeffHistory returns a copy of the effective particle counts per cycle
func (st *StateTracker) NeffHistory() []float64 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]float64, len(st.neff))
	copy(out, st.neff)
	return out
}
