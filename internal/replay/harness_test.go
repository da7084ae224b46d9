package replay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/state"
)

// helper: a snapshot whose metrics block every family accepts.
func metricsSnapshot(psi, rho, omega float64) performance.Benchmarks {
	return performance.Benchmarks{
		"vqe": {"metrics": map[string]any{"psi": psi, "rho": rho, "omega": omega}},
	}
}

// helper: a fixture with n identical evidence-bearing snapshots.
func evidenceFixture(n int) *Fixture {
	f := &Fixture{Seed: 3, InitBenchmarks: metricsSnapshot(0.6, 0.6, 0.6)}
	for i := range n {
		f.Snapshots = append(f.Snapshots, FixtureSnapshot{Benchmarks: metricsSnapshot(0.6+0.01*float64(i), 0.6, 0.6)})
	}
	return f
}

// 1. Replay matches a calibrator driven directly over the same snapshots.
func TestReplay_MatchesDirectRun(t *testing.T) {
	f := evidenceFixture(6)
	results, err := Replay(context.Background(), f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	snaps := []performance.Benchmarks{f.InitBenchmarks}
	for _, s := range f.Snapshots {
		snaps = append(snaps, s.Benchmarks)
	}
	cal := calibrator.New(f.CalibratorConfig(calibrator.DefaultConfig()),
		calibrator.WithSource(benchmark.NewSequenceSource(snaps...)))
	if err := cal.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	direct, err := cal.Run(context.Background(), len(f.Snapshots))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, r := range results {
		if r.StepID != stepID("", i) {
			t.Errorf("result %d: step_id=%s", i, r.StepID)
		}
		if r.Accepted != direct[i].Accepted || r.CRITriggered != direct[i].CRITriggered {
			t.Errorf("step %d: replay (%v,%v) direct (%v,%v)", i+1,
				r.Accepted, r.CRITriggered, direct[i].Accepted, direct[i].CRITriggered)
		}
		if diff := cmp.Diff(direct[i].CurrentPerformance, r.Performance, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Errorf("step %d performance (-direct +replay):\n%s", i+1, diff)
		}
	}
}

// 2. Summarize counts outcomes and keeps the final state.
func TestSummarize(t *testing.T) {
	results := []Result{
		{Accepted: true, Outcome: OutcomeAccept},
		{Accepted: false, Outcome: OutcomeReject},
		{Accepted: false, CRITriggered: true, Outcome: OutcomeRegimeSwitch,
			Performance: performance.Triplet{Psi: 0.4, Rho: 0.5, Omega: 0.6}},
	}
	s := Summarize(results)
	if s.TotalSteps != 3 || s.Accepted != 1 || s.Rejected != 2 || s.RegimeSwitches != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.FinalPerformance.Psi != 0.4 {
		t.Fatalf("final performance = %v", s.FinalPerformance)
	}
	if empty := Summarize(nil); empty.TotalSteps != 0 {
		t.Fatalf("empty summary %+v", empty)
	}
}

// 3. Compare reports each diverging field and a length difference.
func TestCompare(t *testing.T) {
	results := []Result{{Accepted: true}, {CRITriggered: true}}
	expected := []FixtureExpectedResult{
		{StepID: "a", Accepted: true},
		{StepID: "b", Accepted: true},
		{StepID: "c"},
	}
	got := Compare(results, expected)
	want := []Mismatch{
		{Field: "steps", Want: 3, Got: 2},
		{StepID: "b", Field: "accepted", Want: true, Got: false},
		{StepID: "b", Field: "cri_triggered", Want: false, Got: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatches (-want +got):\n%s", diff)
	}
}

// 4. A run recorded in the ledger exports to a fixture that replays cleanly.
func TestFromLedger_RoundTrip(t *testing.T) {
	store, err := state.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	f := evidenceFixture(5)
	snaps := []performance.Benchmarks{f.InitBenchmarks}
	for _, s := range f.Snapshots {
		snaps = append(snaps, s.Benchmarks)
	}
	cfg := f.CalibratorConfig(calibrator.DefaultConfig())
	cal := calibrator.New(cfg, calibrator.WithSource(benchmark.NewSequenceSource(snaps...)))
	if err := cal.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	ledger := calibrator.Ledger{Store: store}
	if _, err := ledger.RecordInit(cal); err != nil {
		t.Fatalf("RecordInit: %v", err)
	}
	for range f.Snapshots {
		res, err := cal.Step(context.Background())
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if _, err := ledger.RecordStep(cal, res); err != nil {
			t.Fatalf("RecordStep: %v", err)
		}
	}

	rows, err := store.ListWithProvenance(-1)
	if err != nil {
		t.Fatalf("ListWithProvenance: %v", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	exported, err := FromLedger(rows, 0)
	if err != nil {
		t.Fatalf("FromLedger: %v", err)
	}
	if exported.Seed != f.Seed || len(exported.Snapshots) != 5 {
		t.Fatalf("seed=%d snapshots=%d", exported.Seed, len(exported.Snapshots))
	}
	results, err := Replay(context.Background(), exported)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if m := Compare(results, exported.ExpectedResults); len(m) != 0 {
		t.Fatalf("replayed ledger diverged: %+v", m)
	}

	limited, err := FromLedger(rows, 2)
	if err != nil {
		t.Fatalf("FromLedger limit: %v", err)
	}
	if len(limited.Snapshots) != 2 || limited.ExpectedResults[1].StepID != "step-2" {
		t.Fatalf("unexpected limited export %+v", limited.ExpectedResults)
	}
}

// 5. Rows without an init entry cannot be exported.
func TestFromLedger_NoRun(t *testing.T) {
	_, err := FromLedger([]state.VersionWithProvenance{{TriggerType: "step"}}, 0)
	if !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
}
