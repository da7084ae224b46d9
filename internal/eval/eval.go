package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/LashSesh/qso/internal/space"
)

// #region eval-harness
// Harness checks the invariants a committed step must keep. It reports and
// never blocks.
type Harness struct {
	config Config
}

// NewHarness creates a harness with the given tolerances.
func NewHarness(config Config) *Harness {
	return &Harness{config: config}
}

// Run evaluates every check on s.
func (h *Harness) Run(s Snapshot) Result {
	var (
		metrics  []Metric
		failures []string
	)
	check := func(name string, value float64, pass bool, why string) {
		metrics = append(metrics, Metric{Name: name, Value: value, Pass: pass})
		if !pass {
			failures = append(failures, why)
		}
	}

	// 1. Field norm is 0 or 1.
	if s.Field != nil {
		n := s.Field.Norm()
		ok := n == 0 || math.Abs(n-1) <= h.config.NormTolerance
		check("field_norm", n, ok, fmt.Sprintf("field norm %.6f is neither 0 nor 1", n))

		// 2. Submodules stay within the largest encoding norm.
		limit := h.config.MaxSubmoduleNorm
		if limit <= 0 {
			limit = math.Sqrt(float64(s.Field.Dimension))
		}
		for i, sub := range s.Field.Submodules {
			sn := floats.Norm(sub, 2)
			check(fmt.Sprintf("submodule_%d_norm", i), sn, sn <= limit+h.config.NormTolerance,
				fmt.Sprintf("submodule %d norm %.4f exceeds %.4f", i, sn, limit))
		}
	}

	// 3. Triplet components in [0, 1].
	perfErr := s.Performance.Validate()
	check("performance_in_range", s.Performance.Norm(), perfErr == nil, fmt.Sprintf("performance %s out of range", s.Performance))

	// 4. Configuration valid.
	cfgErr := space.Validate(s.Config)
	check("configuration_valid", boolValue(cfgErr == nil), cfgErr == nil, fmt.Sprintf("configuration invalid: %v", cfgErr))

	// 5. J(t) in [0, 1].
	check("j_t", s.JT, s.JT >= 0 && s.JT <= 1, fmt.Sprintf("j_t %.4f outside [0, 1]", s.JT))

	reason := "all checks passed"
	switch len(failures) {
	case 0:
	case 1:
		reason = "eval failed: " + failures[0]
	default:
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failures), failures[0])
	}
	return Result{Passed: len(failures) == 0, Metrics: metrics, Reason: reason}
}

// #endregion eval-harness

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
