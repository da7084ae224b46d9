package benchmark

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

const validRecord = `{
	"system": "vqe",
	"config_id": "vqe_metatron_d2_adam_lr1e2",
	"timestamp": "2025-01-02T03:04:05Z",
	"config": {"algorithm": "VQE", "ansatz_depth": 2, "learning_rate": 0.01, "max_iterations": 100},
	"metrics": {"psi": 0.8, "rho": 0.7, "omega": 0.6},
	"raw_results": {"energy": -1.1},
	"aux": {}
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func problemsOf(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return verr.Problems
}

// #region validate-tests

func TestValidateAcceptsRecord(t *testing.T) {
	rec, err := Validate([]byte(validRecord))
	require.NoError(t, err)
	assert.Equal(t, "vqe", rec.System)
	assert.Equal(t, Metrics{Psi: 0.8, Rho: 0.7, Omega: 0.6}, rec.Metrics)
	assert.Equal(t, "VQE", rec.Config["algorithm"])

	ts, ok := rec.Time()
	require.True(t, ok)
	assert.Equal(t, 2025, ts.Year())
}

func TestValidateMissingFields(t *testing.T) {
	_, err := Validate([]byte(`{"system": "vqe"}`))
	p := problemsOf(t, err)
	assert.Len(t, p, 4)
	assert.Contains(t, p, "missing required field: metrics")
}

func TestValidateCollectsEveryRule(t *testing.T) {
	raw := `{
		"system": 3,
		"config_id": "x",
		"timestamp": true,
		"config": {"ansatz_depth": 2.0, "learning_rate": 0, "max_iterations": -1},
		"metrics": {"psi": "high", "rho": 0.5},
		"aux": []
	}`
	p := problemsOf(t, func() error { _, err := Validate([]byte(raw)); return err }())
	want := []string{
		"'system' must be non-empty string",
		"'timestamp' must be string or number",
		"'config' must contain 'algorithm' field",
		"'config.ansatz_depth' must be integer in [1, 10], got 2.0",
		"'config.learning_rate' must be in (0, 1], got 0",
		"'config.max_iterations' must be positive integer, got -1",
		"'metrics.psi' must be number",
		"'metrics' missing required field: omega",
		"'aux' must be object if present",
	}
	assert.Equal(t, want, p)
}

func TestValidateMetricRangeAndEmptyStrings(t *testing.T) {
	raw := strings.Replace(validRecord, `"psi": 0.8`, `"psi": 1.2`, 1)
	raw = strings.Replace(raw, `"system": "vqe"`, `"system": ""`, 1)
	p := problemsOf(t, func() error { _, err := Validate([]byte(raw)); return err }())
	require.Len(t, p, 2)
	assert.Equal(t, "'system' must be non-empty", p[0])
	assert.Equal(t, "'metrics.psi' must be in range [0, 1], got 1.2", p[1])
}

func TestValidateMalformedJSON(t *testing.T) {
	_, err := Validate([]byte(`{"system":`))
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr), "syntax errors are not validation errors")

	_, err = Validate([]byte(`[1, 2]`))
	assert.NotEmpty(t, problemsOf(t, err))
}

// #endregion validate-tests

// #region io-tests

func TestLoadFileSingleAndBatch(t *testing.T) {
	dir := t.TempDir()
	single := writeFile(t, dir, "one.json", validRecord)
	batch := writeFile(t, dir, "batch.json", `{"benchmarks": [`+validRecord+`,`+
		strings.Replace(validRecord, `"system": "vqe"`, `"system": "qaoa"`, 1)+`]}`)

	recs, err := LoadFile(single)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = LoadFile(batch)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "qaoa", recs[1].System)
}

func TestLoadFileBatchFailsOnBadEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "batch.json", `{"benchmarks": [`+validRecord+`, {"system": "x"}]}`)
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "benchmarks[1]")
	problemsOf(t, err)
}

func TestLoadDirSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", validRecord)
	writeFile(t, dir, "b.json", `{"system": "broken"}`)
	writeFile(t, dir, "c.json", `not json`)
	writeFile(t, dir, "nested/d.json", strings.Replace(validRecord, `"system": "vqe"`, `"system": "vqc"`, 1))
	writeFile(t, dir, "notes.txt", "ignored")

	recs, skipped, err := LoadDir(dir, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "vqe", recs[0].System)
	assert.Equal(t, "vqc", recs[1].System)
	require.Len(t, skipped, 2)
	assert.Equal(t, filepath.Join(dir, "b.json"), skipped[0].Path)
}

func TestLoadDirMissingIsError(t *testing.T) {
	_, _, err := LoadDir(filepath.Join(t.TempDir(), "absent"), "")
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	rec := Record{
		System:  "qaoa",
		Config:  map[string]any{"algorithm": "QAOA", "depth": 3},
		Metrics: Metrics{Psi: 0.9, Rho: 0.8, Omega: 0.7},
	}
	p1, err := Write(dir, rec)
	require.NoError(t, err)
	p2, err := Write(dir, rec)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "same-second writes must not collide")
	assert.True(t, strings.HasPrefix(filepath.Base(p1), "qaoa_qaoa_p3_"))

	recs, err := LoadFile(p1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "qaoa_p3", recs[0].ConfigID)
	assert.Equal(t, rec.Metrics, recs[0].Metrics)
	_, ok := recs[0].Time()
	assert.True(t, ok)
}

func TestWriteRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(dir, Record{System: "vqe", Config: map[string]any{"algorithm": "VQE"}, Metrics: Metrics{Psi: 2}})
	problemsOf(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestConfigID(t *testing.T) {
	assert.Equal(t, "vqe_metatron_d2_adam_lr1e2", ConfigID(space.Default()))

	c := space.Default()
	c.AnsatzType = space.AnsatzEfficientSU2
	c.Optimizer = space.OptimizerLBFGS
	c.LearningRate = 0.1
	c.AnsatzDepth = 5
	assert.Equal(t, "vqe_effsu2_d5_lbfgs_lr1e1", ConfigID(c))

	assert.Equal(t, "config_unnamed", ConfigIDFromMap(map[string]any{}))
	long := ConfigIDFromMap(map[string]any{"algorithm": strings.Repeat("x", 100)})
	assert.Len(t, long, maxConfigIDLength)
}

// #endregion io-tests

// #region aggregate-tests

func rec(system, ts string, psi, rho, omega float64) Record {
	return Record{
		System:    system,
		ConfigID:  system + "_cfg",
		Timestamp: ts,
		Config:    map[string]any{"algorithm": "VQE"},
		Metrics:   Metrics{Psi: psi, Rho: rho, Omega: omega},
	}
}

func TestFilter(t *testing.T) {
	records := []Record{
		rec("vqe", "", 0.9, 0.5, 0.5),
		rec("qaoa", "", 0.4, 0.5, 0.5),
		rec("vqe", "", 0.3, 0.5, 0.5),
	}
	assert.Len(t, Filter(records, Query{System: "vqe"}), 2)
	assert.Len(t, Filter(records, Query{MinPsi: 0.35}), 2)
	assert.Len(t, Filter(records, Query{System: "vqe", MinPsi: 0.5}), 1)
	assert.Len(t, Filter(records, Query{ConfigID: "qaoa_cfg"}), 1)
	assert.Empty(t, Filter(records, Query{Algorithm: "QAOA"}))
}

func TestAggregate(t *testing.T) {
	s := Aggregate([]Record{
		rec("vqe", "", 0.2, 0.5, 1),
		rec("qaoa", "", 0.4, 0.5, 0),
	})
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, []string{"qaoa", "vqe"}, s.Systems)
	assert.InDelta(t, 0.3, s.Psi.Mean, 1e-12)
	assert.InDelta(t, 0.1, s.Psi.Std, 1e-12)
	assert.Equal(t, 0.2, s.Psi.Min)
	assert.Equal(t, 0.4, s.Psi.Max)
	assert.InDelta(t, 0.0, s.Rho.Std, 1e-12)
	assert.InDelta(t, 0.5, s.Omega.Std, 1e-12)

	empty := Aggregate(nil)
	assert.Equal(t, 0, empty.Count)
}

func TestGroupBySystemKeepsLatest(t *testing.T) {
	b := GroupBySystem([]Record{
		rec("vqe", "2025-01-02T00:00:00Z", 0.9, 0.5, 0.5),
		rec("vqe", "2025-01-01T00:00:00Z", 0.1, 0.5, 0.5),
		rec("qaoa", "", 0.3, 0.5, 0.5),
		rec("qaoa", "", 0.6, 0.5, 0.5),
	})
	require.Len(t, b, 2)
	assert.Equal(t, 0.9, b["vqe"]["metrics"].(map[string]any)["psi"])
	assert.Equal(t, 0.6, b["qaoa"]["metrics"].(map[string]any)["psi"])

	got := performance.Compute(performance.Benchmarks{"vqe": b["vqe"]}, nil)
	assert.InDelta(t, 0.9, got.Psi, 1e-12)
}

// #endregion aggregate-tests

// #region source-tests

func TestFamilyDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vqe_baseline.json", `{"results": [{"quality_score": 0.9}]}`)
	writeFile(t, dir, "advanced_algorithms_baseline.json", `{"metrics": {"psi": 0.1, "rho": 0.2, "omega": 0.3}}`)

	b, err := FamilyDirSource{Dir: dir}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.Contains(t, b, performance.FamilyVQE)
	assert.Contains(t, b, performance.FamilyAdvanced)

	missing, err := FamilyDirSource{Dir: filepath.Join(dir, "absent")}.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFamilyDirSourceMalformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "qaoa_baseline.json", `{"quality_metrics":`)
	_, err := FamilyDirSource{Dir: dir}.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qaoa_baseline.json")
}

func TestRecordDirSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", validRecord)
	writeFile(t, dir, "bad.json", `{}`)

	b, err := RecordDirSource{Dir: dir}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, b, 1)

	empty, err := RecordDirSource{Dir: filepath.Join(dir, "absent")}.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSequenceSource(t *testing.T) {
	first := performance.Benchmarks{"vqe": {"n": 1.0}}
	second := performance.Benchmarks{"vqe": {"n": 2.0}}
	src := NewSequenceSource(first, second)
	ctx := context.Background()

	for _, want := range []float64{1, 2, 2} {
		b, err := src.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, b["vqe"]["n"])
	}
	assert.Equal(t, 3, src.Served())

	b, err := NewSequenceSource().Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestMergedSourceLaterWins(t *testing.T) {
	base := StaticSource{Benchmarks: performance.Benchmarks{"vqe": {"n": 1.0}, "qaoa": {"n": 1.0}}}
	over := StaticSource{Benchmarks: performance.Benchmarks{"vqe": {"n": 2.0}}}

	b, err := MergedSource{base, over}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, b["vqe"]["n"])
	assert.Equal(t, 1.0, b["qaoa"]["n"])

	dir := t.TempDir()
	writeFile(t, dir, "qaoa_baseline.json", `{`)
	_, err = MergedSource{base, FamilyDirSource{Dir: dir}}.Load(context.Background())
	require.Error(t, err)
}

func TestStaticSourceCopies(t *testing.T) {
	src := StaticSource{Benchmarks: performance.Benchmarks{"vqe": {"n": 1.0}}}
	b, _ := src.Load(context.Background())
	b["vqe"]["n"] = 5.0
	again, _ := src.Load(context.Background())
	assert.Equal(t, 1.0, again["vqe"]["n"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// #endregion source-tests
