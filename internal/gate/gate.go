package gate

import (
	"fmt"
	"strings"

	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// #region gate
// Gate decides whether a candidate configuration replaces the current one.
type Gate struct {
	criteria Criteria
}

// NewGate creates a gate with the given thresholds.
func NewGate(criteria Criteria) *Gate {
	return &Gate{criteria: criteria}
}

// Criteria returns the gate's thresholds.
func (g *Gate) Criteria() Criteria {
	return g.criteria
}

// Check reports whether every criterion holds.
func (g *Gate) Check(
	current space.Configuration,
	currentPerf performance.Triplet,
	candidate space.Configuration,
	candidatePerf performance.Triplet,
	f *field.Field,
	injection []float64,
) (bool, error) {
	d, err := g.DetailedCheck(current, currentPerf, candidate, candidatePerf, f, injection)
	return d.Overall, err
}

// DetailedCheck evaluates the four criteria and reports each one. The
// configurations are part of the signature so a backend can condition on
// them; the stock criteria only read the triplets and the field. A nil field
// or injection skips the resonance criterion. The only error is a
// dimension mismatch between field and injection.
func (g *Gate) DetailedCheck(
	_ space.Configuration,
	currentPerf performance.Triplet,
	_ space.Configuration,
	candidatePerf performance.Triplet,
	f *field.Field,
	injection []float64,
) (Decision, error) {
	c := g.criteria
	d := Decision{
		QualityDelta:        candidatePerf.Psi - currentPerf.Psi,
		QualityThreshold:    c.MinQualityDelta,
		StabilityDelta:      candidatePerf.Rho - currentPerf.Rho,
		StabilityThreshold:  -c.StabilityTolerance,
		Efficiency:          candidatePerf.Omega,
		EfficiencyThreshold: c.MinEfficiency,
		ResonanceThreshold:  c.MinFieldResonance,
	}

	d.QualityPassed = candidatePerf.Psi >= currentPerf.Psi+c.MinQualityDelta
	d.StabilityPassed = candidatePerf.Rho >= currentPerf.Rho-c.StabilityTolerance
	d.EfficiencyPassed = candidatePerf.Omega >= c.MinEfficiency

	d.FieldPassed = true
	if f != nil && injection != nil {
		r, err := f.ResonanceWith(injection)
		if err != nil {
			return Decision{}, fmt.Errorf("field resonance: %w", err)
		}
		d.FieldChecked = true
		d.FieldResonance = r
		d.FieldPassed = r >= c.MinFieldResonance
	}

	d.Overall = d.QualityPassed && d.StabilityPassed && d.EfficiencyPassed && d.FieldPassed
	if d.Overall {
		d.Action = ActionAccept
		d.Reason = fmt.Sprintf("passed gate: dpsi=%.4f drho=%.4f omega=%.4f", d.QualityDelta, d.StabilityDelta, d.Efficiency)
	} else {
		d.Action = ActionReject
		d.Reason = "failed: " + strings.Join(failures(d), ", ")
	}
	return d, nil
}

// #endregion gate

// #region helpers
func failures(d Decision) []string {
	var out []string
	if !d.QualityPassed {
		out = append(out, fmt.Sprintf("quality delta %.4f < %.4f", d.QualityDelta, d.QualityThreshold))
	}
	if !d.StabilityPassed {
		out = append(out, fmt.Sprintf("stability delta %.4f < %.4f", d.StabilityDelta, d.StabilityThreshold))
	}
	if !d.EfficiencyPassed {
		out = append(out, fmt.Sprintf("efficiency %.4f < %.4f", d.Efficiency, d.EfficiencyThreshold))
	}
	if !d.FieldPassed {
		out = append(out, fmt.Sprintf("field resonance %.4f < %.4f", d.FieldResonance, d.ResonanceThreshold))
	}
	return out
}

// #endregion helpers
