package performance

import (
	"math"

	"github.com/montanaflynn/stats"
)

// referenceRate is the throughput (evaluations/s) that maps to efficiency 1.
const referenceRate = 10000.0

// components is an unclamped per-family estimate.
type components struct {
	psi, rho, omega float64
}

// extractor derives a family estimate; ok=false means the payload carries
// nothing this family can use.
type extractor func(payload map[string]any) (components, bool)

var extractors = map[string]extractor{
	FamilyVQE:         extractVQE,
	FamilyQAOA:        extractQAOA,
	FamilyCrossSystem: extractCrossSystem,
}

// #region vqe

func extractVQE(p map[string]any) (components, bool) {
	return components{psi: vqeQuality(p), rho: vqeStability(p), omega: throughputEfficiency(p)}, true
}

func vqeQuality(p map[string]any) float64 {
	if qm, ok := object(p, "quality_metrics"); ok {
		_, best := qm["best_ground_energy"]
		_, avg := qm["avg_ground_energy"]
		if best && avg {
			return numberOr(qm, "convergence_rate", 0.8)
		}
	}
	scores := qualityScores(p)
	if len(scores) > 0 {
		m, _ := stats.Max(scores)
		return m
	}
	return 0.5
}

func vqeStability(p map[string]any) float64 {
	scores := qualityScores(p)
	if len(scores) <= 1 {
		return 0.5
	}
	v, _ := stats.PopulationVariance(scores)
	return clamp01(1 - 10*v)
}

func qualityScores(p map[string]any) []float64 {
	results, ok := p["results"].([]any)
	if !ok {
		return nil
	}
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		m, _ := r.(map[string]any)
		scores = append(scores, numberOr(m, "quality_score", 0))
	}
	return scores
}

// #endregion vqe

// #region qaoa

func extractQAOA(p map[string]any) (components, bool) {
	return components{psi: qaoaQuality(p), rho: qaoaStability(p), omega: throughputEfficiency(p)}, true
}

func qaoaQuality(p map[string]any) float64 {
	if qm, ok := object(p, "quality_metrics"); ok {
		return numberOr(qm, "avg_approximation_ratio", 0.8)
	}
	var ratios []float64
	for _, v := range p {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if r, ok := number(m, "approximation_ratio"); ok {
			ratios = append(ratios, r)
		}
	}
	if len(ratios) == 0 {
		return 0.5
	}
	mean, _ := stats.Mean(ratios)
	return mean
}

func qaoaStability(p map[string]any) float64 {
	qm, ok := object(p, "quality_metrics")
	if !ok {
		return 0.8
	}
	return clamp01(1 - 10*numberOr(qm, "ratio_variance", 0))
}

// #endregion qaoa

// #region cross-system

func extractCrossSystem(p map[string]any) (components, bool) {
	m, ok := object(p, "metatron_qso")
	if !ok {
		return components{psi: 0.5, rho: 0.5, omega: 0.5}, true
	}
	vqe, _ := object(m, "vqe_performance")
	qaoa, _ := object(m, "qaoa_performance")

	vq := numberOr(vqe, "quality_score", 0)
	qq := numberOr(qaoa, "quality_score", 0)
	spread := (vq+qq)/2 - math.Min(vq, qq)

	return components{
		psi:   numberOr(m, "overall_score", 0.5),
		rho:   math.Max(0, 1-spread),
		omega: (numberOr(vqe, "speed_score", 0) + numberOr(qaoa, "speed_score", 0)) / 2,
	}, true
}

// #endregion cross-system

// #region schema

// extractSchema reads a record-style payload carrying a metrics block.
func extractSchema(p map[string]any) (components, bool) {
	m, ok := object(p, "metrics")
	if !ok {
		return components{}, false
	}
	psi, ok1 := number(m, "psi")
	rho, ok2 := number(m, "rho")
	omega, ok3 := number(m, "omega")
	if !ok1 || !ok2 || !ok3 {
		return components{}, false
	}
	return components{psi: psi, rho: rho, omega: omega}, true
}

// #endregion schema

// #region helpers

func throughputEfficiency(p map[string]any) float64 {
	if pm, ok := object(p, "performance_metrics"); ok {
		if eps, ok := number(pm, "evaluations_per_second"); ok {
			return math.Min(1, eps/referenceRate)
		}
	}
	return 0.5
}

func object(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key].(map[string]any)
	return v, ok
}

func number(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func numberOr(m map[string]any, key string, fallback float64) float64 {
	if v, ok := number(m, key); ok {
		return v
	}
	return fallback
}

// #endregion helpers
