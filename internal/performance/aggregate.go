package performance

import (
	"maps"
	"slices"

	"github.com/montanaflynn/stats"
)

// Benchmarks maps a family name to its raw decoded JSON payload.
type Benchmarks map[string]map[string]any

// Benchmark family names.
const (
	FamilyVQE         = "vqe"
	FamilyQAOA        = "qaoa"
	FamilyQuantumWalk = "quantum_walk"
	FamilyAdvanced    = "advanced"
	FamilyVQC         = "vqc"
	FamilyCrossSystem = "cross_system"
	FamilyIntegration = "integration"
)

// unknownFamilyWeight applies to families missing from the weight table.
const unknownFamilyWeight = 0.5

// #region weights

// Weights maps family name to its aggregation weight.
type Weights map[string]float64

// DefaultWeights favors the cross-system comparison and the two
// variational families.
func DefaultWeights() Weights {
	return Weights{
		FamilyVQE:         1.0,
		FamilyQAOA:        1.0,
		FamilyQuantumWalk: 0.5,
		FamilyAdvanced:    0.5,
		FamilyVQC:         0.5,
		FamilyCrossSystem: 1.5,
		FamilyIntegration: 0.5,
	}
}

func (w Weights) of(family string) float64 {
	if v, ok := w[family]; ok {
		return v
	}
	return unknownFamilyWeight
}

// #endregion weights

// #region compute

// Compute aggregates per-family estimates into one triplet. A payload with a
// record-style metrics block is taken as is in any family. Otherwise families
// without an extractor, with a non-positive weight, or whose extractor
// declines are skipped. With no contributor the neutral triplet is returned.
// A nil weight table means DefaultWeights.
func Compute(benchmarks Benchmarks, weights Weights) Triplet {
	t, _ := ComputeN(benchmarks, weights)
	return t
}

// ComputeN is Compute that also reports how many families contributed.
// Zero means the snapshot carried no usable evidence.
func ComputeN(benchmarks Benchmarks, weights Weights) (Triplet, int) {
	if weights == nil {
		weights = DefaultWeights()
	}

	var psi, rho, omega, ws []float64
	for _, family := range slices.Sorted(maps.Keys(benchmarks)) {
		w := weights.of(family)
		if w <= 0 {
			continue
		}
		c, ok := extractSchema(benchmarks[family])
		if !ok {
			extract, known := extractors[family]
			if !known {
				continue
			}
			if c, ok = extract(benchmarks[family]); !ok {
				continue
			}
		}
		psi = append(psi, c.psi)
		rho = append(rho, c.rho)
		omega = append(omega, c.omega)
		ws = append(ws, w)
	}
	if len(ws) == 0 {
		return Neutral(), 0
	}

	total, _ := stats.Sum(ws)
	return Triplet{
		Psi:   clamp01(weightedMean(psi, ws, total)),
		Rho:   clamp01(weightedMean(rho, ws, total)),
		Omega: clamp01(weightedMean(omega, ws, total)),
	}, len(ws)
}

func weightedMean(values, weights []float64, total float64) float64 {
	var sum float64
	for i, v := range values {
		sum += v * weights[i] / total
	}
	return sum
}

// #endregion compute
