package search

import (
	"context"
	"math"

	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// #region heuristics

// Heuristics holds the surrogate bonus magnitudes. None of them is derived
// from data; they stand in for re-benchmarking.
type Heuristics struct {
	// Quality kick.
	MetatronBonus    float64 `yaml:"metatron_bonus"`
	MetatronMinDepth int     `yaml:"metatron_min_depth"`
	MetatronMaxDepth int     `yaml:"metatron_max_depth"`
	AdamBonus        float64 `yaml:"adam_bonus"`
	StartBonus       float64 `yaml:"start_bonus"` // per random start gained
	LRBandBonus      float64 `yaml:"lr_band_bonus"`
	LRBandLow        float64 `yaml:"lr_band_low"`
	LRBandHigh       float64 `yaml:"lr_band_high"`

	// Stabilization kick.
	StabilityWeight         float64 `yaml:"stability_weight"`
	EfficiencyWeight        float64 `yaml:"efficiency_weight"`
	ManyStartsBonus         float64 `yaml:"many_starts_bonus"`
	ManyStartsMin           int     `yaml:"many_starts_min"`
	ShallowBonus            float64 `yaml:"shallow_bonus"`
	ShallowMaxDepth         int     `yaml:"shallow_max_depth"`
	DepthReductionBonus     float64 `yaml:"depth_reduction_bonus"`
	IterationReductionBonus float64 `yaml:"iteration_reduction_bonus"`

	// Candidate estimate.
	EstimateMetatronBonus float64 `yaml:"estimate_metatron_bonus"`
	EstimateAdamBonus     float64 `yaml:"estimate_adam_bonus"`
	EstimateStartsBonus   float64 `yaml:"estimate_starts_bonus"`
	EstimateShallowBonus  float64 `yaml:"estimate_shallow_bonus"`
}

// DefaultHeuristics returns the stock bonus table.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		MetatronBonus:    0.05,
		MetatronMinDepth: 1,
		MetatronMaxDepth: 3,
		AdamBonus:        0.02,
		StartBonus:       0.01,
		LRBandBonus:      0.02,
		LRBandLow:        0.005,
		LRBandHigh:       0.02,

		StabilityWeight:         0.6,
		EfficiencyWeight:        0.4,
		ManyStartsBonus:         0.05,
		ManyStartsMin:           3,
		ShallowBonus:            0.03,
		ShallowMaxDepth:         2,
		DepthReductionBonus:     0.05,
		IterationReductionBonus: 0.02,

		EstimateMetatronBonus: 0.02,
		EstimateAdamBonus:     0.01,
		EstimateStartsBonus:   0.03,
		EstimateShallowBonus:  0.02,
	}
}

func (h Heuristics) metatronSweetSpot(c space.Configuration) bool {
	return c.AnsatzType == space.AnsatzMetatron &&
		c.AnsatzDepth >= h.MetatronMinDepth && c.AnsatzDepth <= h.MetatronMaxDepth
}

// #endregion heuristics

// #region interfaces

// Scorer ranks neighbors inside the two kicks.
type Scorer interface {
	// QualityScore is the surrogate psi of candidate, starting from perf.Psi.
	QualityScore(current, candidate space.Configuration, perf performance.Triplet) float64
	// StabilityScore is the surrogate weighted rho/omega blend of candidate.
	StabilityScore(current, candidate space.Configuration, perf performance.Triplet) float64
	// StabilityBaseline is the score a neighbor must beat in the stabilization kick.
	StabilityBaseline(perf performance.Triplet) float64
}

// Estimate is a predicted triplet for a candidate. Evidence is false when
// the estimator had no benchmark data to ground the prediction.
type Estimate struct {
	Triplet  performance.Triplet `json:"triplet"`
	Evidence bool                `json:"evidence"`
}

// PerformanceEstimator predicts a candidate's triplet. A real benchmarking
// backend can implement this in place of the heuristic.
type PerformanceEstimator interface {
	Estimate(ctx context.Context, current space.Configuration, perf performance.Triplet,
		candidate space.Configuration, benchmarks performance.Benchmarks) (Estimate, error)
}

// #endregion interfaces

// #region heuristic-estimator

// HeuristicEstimator scores and estimates with fixed bonuses. Weights
// decides which benchmark families count as evidence; nil means
// performance.DefaultWeights.
type HeuristicEstimator struct {
	H       Heuristics
	Weights performance.Weights
}

// NewHeuristicEstimator wraps h.
func NewHeuristicEstimator(h Heuristics) *HeuristicEstimator {
	return &HeuristicEstimator{H: h}
}

// QualityScore implements Scorer.
func (e *HeuristicEstimator) QualityScore(current, candidate space.Configuration, perf performance.Triplet) float64 {
	h := e.H
	score := perf.Psi
	if h.metatronSweetSpot(candidate) {
		score += h.MetatronBonus
	}
	if candidate.Optimizer == space.OptimizerAdam {
		score += h.AdamBonus
	}
	if gained := candidate.NumRandomStarts - current.NumRandomStarts; gained > 0 {
		score += h.StartBonus * float64(gained)
	}
	if candidate.LearningRate >= h.LRBandLow && candidate.LearningRate <= h.LRBandHigh {
		score += h.LRBandBonus
	}
	return math.Min(1, score)
}

// StabilityScore implements Scorer.
func (e *HeuristicEstimator) StabilityScore(current, candidate space.Configuration, perf performance.Triplet) float64 {
	h := e.H
	rho, omega := perf.Rho, perf.Omega
	if candidate.NumRandomStarts >= h.ManyStartsMin {
		rho += h.ManyStartsBonus
	}
	if candidate.AnsatzDepth <= h.ShallowMaxDepth {
		rho += h.ShallowBonus
	}
	if candidate.AnsatzDepth < current.AnsatzDepth {
		omega += h.DepthReductionBonus
	}
	if candidate.MaxIterations < current.MaxIterations {
		omega += h.IterationReductionBonus
	}
	return math.Min(1, h.StabilityWeight*rho+h.EfficiencyWeight*omega)
}

// StabilityBaseline implements Scorer.
func (e *HeuristicEstimator) StabilityBaseline(perf performance.Triplet) float64 {
	return e.H.StabilityWeight*perf.Rho + e.H.EfficiencyWeight*perf.Omega
}

// Estimate implements PerformanceEstimator. Without benchmark evidence no
// bonus is credited and the current triplet is returned unchanged. A
// snapshot counts as evidence only when at least one family contributes to
// the aggregate triplet.
func (e *HeuristicEstimator) Estimate(_ context.Context, _ space.Configuration, perf performance.Triplet,
	candidate space.Configuration, benchmarks performance.Benchmarks) (Estimate, error) {
	if _, n := performance.ComputeN(benchmarks, e.Weights); n == 0 {
		return Estimate{Triplet: perf, Evidence: false}, nil
	}
	h := e.H
	psi, rho, omega := perf.Psi, perf.Rho, perf.Omega
	if h.metatronSweetSpot(candidate) {
		psi = math.Min(1, psi+h.EstimateMetatronBonus)
	}
	if candidate.Optimizer == space.OptimizerAdam {
		psi = math.Min(1, psi+h.EstimateAdamBonus)
	}
	if candidate.NumRandomStarts >= h.ManyStartsMin {
		rho = math.Min(1, rho+h.EstimateStartsBonus)
	}
	if candidate.AnsatzDepth <= h.ShallowMaxDepth {
		omega = math.Min(1, omega+h.EstimateShallowBonus)
	}
	t, err := performance.NewTriplet(psi, rho, omega)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Triplet: t, Evidence: true}, nil
}

// #endregion heuristic-estimator
