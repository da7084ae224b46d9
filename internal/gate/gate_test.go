package gate

import (
	"errors"
	"testing"

	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

func tr(psi, rho, omega float64) performance.Triplet {
	return performance.Triplet{Psi: psi, Rho: rho, Omega: omega}
}

func alignedField(t *testing.T, perf performance.Triplet) (*field.Field, []float64) {
	t.Helper()
	f := field.New(field.DefaultConfig())
	inj := field.NewEncoder(f.Dimension).Encode(perf)
	if err := f.Update(inj); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return f, inj
}

func TestGateAcceptsOnCleanCandidate(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()
	f, inj := alignedField(t, tr(0.6, 0.5, 0.5))

	d, err := g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.6, 0.5, 0.5), f, inj)
	if err != nil {
		t.Fatalf("DetailedCheck: %v", err)
	}
	if !d.Overall || d.Action != ActionAccept {
		t.Fatalf("expected accept, got %s: %s", d.Action, d.Reason)
	}
	if !d.FieldChecked {
		t.Fatal("expected resonance criterion to be evaluated")
	}
}

func TestGateRejectsQualityRegression(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()
	ok, err := g.Check(cfg, tr(0.6, 0.5, 0.5), cfg, tr(0.59, 0.5, 0.5), nil, nil)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if ok {
		t.Fatal("expected reject on quality regression")
	}
}

func TestGateStabilityTolerance(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()

	d, _ := g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.45, 0.5), nil, nil)
	if !d.StabilityPassed {
		t.Fatalf("drop within tolerance should pass: %s", d.Reason)
	}
	d, _ = g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.35, 0.5), nil, nil)
	if d.StabilityPassed || d.Overall {
		t.Fatal("drop beyond tolerance should fail")
	}
}

func TestGateEfficiencyFloorDominates(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()
	f, inj := alignedField(t, tr(1, 1, 0.29))

	d, err := g.DetailedCheck(cfg, tr(0, 0, 0), cfg, tr(1, 1, 0.29), f, inj)
	if err != nil {
		t.Fatalf("DetailedCheck: %v", err)
	}
	if d.Overall || d.EfficiencyPassed {
		t.Fatal("omega below the floor must reject regardless of other criteria")
	}
	if !d.QualityPassed || !d.StabilityPassed || !d.FieldPassed {
		t.Fatalf("other criteria should pass: %+v", d)
	}

	// Boundary: omega equal to the floor passes.
	d, _ = g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.5, 0.3), nil, nil)
	if !d.EfficiencyPassed || !d.Overall {
		t.Fatalf("omega == floor should pass: %s", d.Reason)
	}
}

func TestGateFieldResonanceCriterion(t *testing.T) {
	c := DefaultCriteria()
	c.MinFieldResonance = 0.5
	g := NewGate(c)
	cfg := space.Default()

	f, inj := alignedField(t, tr(0.5, 0.5, 0.5))
	opposed := make([]float64, len(inj))
	for i, v := range inj {
		opposed[i] = -v
	}

	d, err := g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.5, 0.5), f, opposed)
	if err != nil {
		t.Fatalf("DetailedCheck: %v", err)
	}
	if d.FieldPassed || d.Overall {
		t.Fatalf("anti-aligned injection should fail, resonance=%f", d.FieldResonance)
	}
	if d.Action != ActionReject || d.Reason == "" {
		t.Fatalf("expected reject with reason, got %q %q", d.Action, d.Reason)
	}
}

func TestGateSkipsFieldWhenAbsent(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()
	d, err := g.DetailedCheck(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.5, 0.5), nil, nil)
	if err != nil {
		t.Fatalf("DetailedCheck: %v", err)
	}
	if d.FieldChecked || !d.FieldPassed {
		t.Fatalf("field criterion should pass vacuously: %+v", d)
	}
}

func TestGateDimensionMismatch(t *testing.T) {
	g := NewGate(DefaultCriteria())
	cfg := space.Default()
	f := field.New(field.DefaultConfig())
	_, err := g.Check(cfg, tr(0.5, 0.5, 0.5), cfg, tr(0.5, 0.5, 0.5), f, make([]float64, 3))
	var dme *field.DimensionMismatchError
	if !errors.As(err, &dme) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}
