package search

import (
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// FixpointThreshold is the step distance below which Iterate stops.
const FixpointThreshold = 0.01

// DefaultNumNeighbors is the sample size of each kick.
const DefaultNumNeighbors = 8

// NeighborSource samples configurations around a point.
type NeighborSource interface {
	GenerateNeighbors(c space.Configuration, k int) []space.Configuration
}

// #region update-kick

// UpdateKick moves toward higher surrogate quality.
type UpdateKick struct {
	Scorer       Scorer
	NumNeighbors int
}

// Apply returns the best-scoring neighbor, or c itself when none beats
// perf.Psi. Ties keep the first neighbor drawn.
func (k UpdateKick) Apply(c space.Configuration, perf performance.Triplet, src NeighborSource) space.Configuration {
	best := c
	bestScore := perf.Psi
	for _, n := range src.GenerateNeighbors(c, k.NumNeighbors) {
		if s := k.Scorer.QualityScore(c, n, perf); s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

// #endregion update-kick

// #region stabilization-kick

// StabilizationKick moves toward higher surrogate stability and efficiency.
type StabilizationKick struct {
	Scorer       Scorer
	NumNeighbors int
}

// Apply returns the best-scoring neighbor, or c itself when none beats the
// weighted rho/omega baseline.
func (k StabilizationKick) Apply(c space.Configuration, perf performance.Triplet, src NeighborSource) space.Configuration {
	best := c
	bestScore := k.Scorer.StabilityBaseline(perf)
	for _, n := range src.GenerateNeighbors(c, k.NumNeighbors) {
		if s := k.Scorer.StabilityScore(c, n, perf); s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

// #endregion stabilization-kick

// #region double-kick

// DoubleKick composes the quality kick with the stabilization kick.
type DoubleKick struct {
	Update    UpdateKick
	Stabilize StabilizationKick
}

// NewDoubleKick builds both kicks over one scorer.
func NewDoubleKick(scorer Scorer, numNeighbors int) *DoubleKick {
	if numNeighbors <= 0 {
		numNeighbors = DefaultNumNeighbors
	}
	return &DoubleKick{
		Update:    UpdateKick{Scorer: scorer, NumNeighbors: numNeighbors},
		Stabilize: StabilizationKick{Scorer: scorer, NumNeighbors: numNeighbors},
	}
}

// Apply runs the stabilization kick on the update kick's result.
func (d *DoubleKick) Apply(c space.Configuration, perf performance.Triplet, src NeighborSource) space.Configuration {
	return d.Stabilize.Apply(d.Update.Apply(c, perf, src), perf, src)
}

// IterationResult describes a run of repeated double kicks.
type IterationResult struct {
	Final           space.Configuration
	ConvergenceRate float64
	Distances       []float64
}

// Iterate applies the operator up to maxIterations times, stopping once a
// step moves less than FixpointThreshold. ConvergenceRate is the ratio of the
// last to the first distance, or 0 with fewer than two distances.
func (d *DoubleKick) Iterate(c space.Configuration, perf performance.Triplet, src NeighborSource, maxIterations int) IterationResult {
	current := c
	var distances []float64
	for range maxIterations {
		next := d.Apply(current, perf, src)
		dist := space.Distance(current, next)
		distances = append(distances, dist)
		if dist < FixpointThreshold {
			break
		}
		current = next
	}

	res := IterationResult{Final: current, Distances: distances}
	if len(distances) >= 2 {
		res.ConvergenceRate = distances[len(distances)-1] / (distances[0] + 1e-10)
	}
	return res
}

// IsContractive reports whether distances strictly decrease. Fewer than two
// distances are not evidence of contraction.
func IsContractive(distances []float64) bool {
	if len(distances) < 2 {
		return false
	}
	for i := 1; i < len(distances); i++ {
		if distances[i] >= distances[i-1] {
			return false
		}
	}
	return true
}

// #endregion double-kick
