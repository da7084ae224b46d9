package eval

import (
	"strings"
	"testing"

	"github.com/LashSesh/qso/internal/field"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

func snapshot(t *testing.T) Snapshot {
	t.Helper()
	f := field.New(field.DefaultConfig())
	perf := performance.Neutral()
	if err := f.Update(field.NewEncoder(f.Dimension).Encode(perf)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	f.UpdateSubmodules(perf, space.AlgorithmVQE)
	return Snapshot{Field: f, Config: space.Default(), Performance: perf, JT: perf.J()}
}

func metric(r Result, name string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return Metric{}, false
}

func TestEvalPassesOnCommittedStep(t *testing.T) {
	h := NewHarness(DefaultConfig())
	result := h.Run(snapshot(t))

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	// field norm, 3 submodules, performance, configuration, j_t
	if len(result.Metrics) != 7 {
		t.Fatalf("expected 7 metrics, got %d", len(result.Metrics))
	}
}

func TestEvalPassesOnZeroField(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := snapshot(t)
	s.Field = field.New(field.DefaultConfig())

	result := h.Run(s)
	if !result.Passed {
		t.Fatalf("zero field should pass: %s", result.Reason)
	}
	if m, _ := metric(result, "field_norm"); m.Value != 0 {
		t.Fatalf("field_norm = %f, want 0", m.Value)
	}
}

func TestEvalFailsOnDenormalizedField(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := snapshot(t)
	for i := range s.Field.State {
		s.Field.State[i] *= 2
	}

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail on norm 2 field")
	}
	if !strings.Contains(result.Reason, "field norm") {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestEvalFailsOnSubmoduleSpike(t *testing.T) {
	config := DefaultConfig()
	config.MaxSubmoduleNorm = 0.1
	h := NewHarness(config)

	result := h.Run(snapshot(t))
	if result.Passed {
		t.Fatal("expected fail on submodule norm")
	}
	m, ok := metric(result, "submodule_0_norm")
	if !ok || m.Pass {
		t.Fatalf("submodule_0_norm should fail: %+v", m)
	}
	if m, _ := metric(result, "submodule_1_norm"); !m.Pass {
		t.Fatal("untouched submodule should pass")
	}
}

func TestEvalCountsMultipleFailures(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := snapshot(t)
	s.Config.AnsatzDepth = 0
	s.Performance = performance.Triplet{Psi: 1.5, Rho: 0.5, Omega: 0.5}
	s.JT = 2

	result := h.Run(s)
	if result.Passed {
		t.Fatal("expected fail")
	}
	if !strings.HasPrefix(result.Reason, "eval failed: 3 checks") {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestEvalWithoutField(t *testing.T) {
	h := NewHarness(DefaultConfig())
	s := snapshot(t)
	s.Field = nil

	result := h.Run(s)
	if !result.Passed {
		t.Fatalf("expected pass: %s", result.Reason)
	}
	if _, ok := metric(result, "field_norm"); ok {
		t.Fatal("field checks should be skipped without a field")
	}
}
