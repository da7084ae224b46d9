package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/replay"
	"github.com/LashSesh/qso/internal/settings"
	"github.com/LashSesh/qso/internal/state"
)

const sampleRecord = `{
	"system": "vqe",
	"config_id": "vqe_metatron_d2_adam_lr1e2",
	"timestamp": "2025-01-02T03:04:05Z",
	"config": {"algorithm": "VQE", "ansatz_depth": 2, "learning_rate": 0.01, "max_iterations": 100},
	"metrics": {"psi": 0.8, "rho": 0.7, "omega": 0.6},
	"raw_results": {},
	"aux": {}
}`

// run executes one scs invocation in the current directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "scs %s\n%s", strings.Join(args, " "), out)
	return out
}

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestStatusBeforeInit(t *testing.T) {
	inTempDir(t)
	_, err := run(t, "status")
	require.ErrorIs(t, err, errNotInitialized)

	_, err = run(t, "export")
	require.ErrorIs(t, err, errNotInitialized)
}

func TestInitStepStatusExport(t *testing.T) {
	dir := inTempDir(t)

	out := mustRun(t, "init")
	assert.Contains(t, out, "Initializing Seraphic Calibration Shell...")
	assert.Contains(t, out, "Using default initial configuration")
	assert.FileExists(t, filepath.Join(dir, "scs_state.json"))
	assert.FileExists(t, filepath.Join(dir, defaultBestConfig))

	out = mustRun(t, "step", "-n", "3")
	assert.Contains(t, out, "Running 3 calibration step(s)...")
	assert.Contains(t, out, "Loaded state from")
	assert.Contains(t, out, "Step 3:")
	assert.Contains(t, out, "Final Performance:")

	out = mustRun(t, "status")
	assert.Contains(t, out, "Seraphic Calibration Shell Status")
	assert.Contains(t, out, "Step count:")
	assert.Contains(t, out, "CRI diagnostics:")

	out = mustRun(t, "export", "--stdout", "-o", "exported.json")
	assert.Contains(t, out, "Exported configuration to exported.json")
	assert.Contains(t, out, `"algorithm"`)
	assert.FileExists(t, filepath.Join(dir, "exported.json"))
}

func TestStepWithoutStateInitializes(t *testing.T) {
	inTempDir(t)
	out := mustRun(t, "step")
	assert.Contains(t, out, "No existing state found, initializing...")
	assert.Contains(t, out, "Step 1:")
}

func TestValidateAndIngest(t *testing.T) {
	dir := inTempDir(t)
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(good, []byte(sampleRecord), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(`{"system": ""}`), 0o644))

	out := mustRun(t, "validate", good)
	assert.Contains(t, out, "(1 record(s))")

	out, err := run(t, "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 file(s) invalid")
	assert.Contains(t, out, "INVALID")

	out = mustRun(t, "ingest", "--record-dir", "records", good)
	assert.Contains(t, out, "Ingested vqe (vqe_metatron_d2_adam_lr1e2)")
	entries, err := os.ReadDir(filepath.Join(dir, "records"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProposeJSON(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "records"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "records", "vqe.json"), []byte(sampleRecord), 0o644))

	out := mustRun(t, "propose", "--record-dir", "records", "-n", "3", "--json")
	var proposals []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &proposals))
	assert.NotEmpty(t, proposals)
	assert.LessOrEqual(t, len(proposals), 3)
}

func TestLedgerRoundTrip(t *testing.T) {
	dir := inTempDir(t)
	ledger := filepath.Join(dir, "ledger.db")

	mustRun(t, "--ledger", ledger, "init")
	mustRun(t, "--ledger", ledger, "step", "-n", "4")

	out := mustRun(t, "--ledger", ledger, "inspect", "--json")
	var rows []inspectRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, "init", rows[0].Decision)
	assert.Equal(t, 4, rows[4].Step)

	out = mustRun(t, "--ledger", ledger, "inspect")
	assert.Contains(t, out, "Decision")

	fixture := filepath.Join(dir, "fixture.json")
	out = mustRun(t, "--ledger", ledger, "fixture-export", "--out", fixture)
	assert.Contains(t, out, "Exported 4 snapshot(s)")

	out = mustRun(t, "replay", "--fixture", fixture)
	assert.Contains(t, out, "Summary: 4 total, 4 match, 0 diverge")
}

func TestInspectRequiresLedger(t *testing.T) {
	inTempDir(t)
	_, err := run(t, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger is required")
}

func TestReplayColdStartFixture(t *testing.T) {
	path, err := filepath.Abs(filepath.Join("..", "..", "internal", "replay", "testdata", "cold_start.json"))
	require.NoError(t, err)
	inTempDir(t)

	out := mustRun(t, "replay", "--fixture", path)
	assert.Contains(t, out, "Summary: 10 total, 10 match, 0 diverge")
	assert.Contains(t, out, "regime switches 1")
}

func TestPrintComparisonDiverges(t *testing.T) {
	results := []replay.Result{{StepID: "s1", Accepted: true}}
	expected := []replay.FixtureExpectedResult{{StepID: "s1", Accepted: false}}

	var out bytes.Buffer
	err := printComparison(&out, results, expected)
	require.True(t, errors.Is(err, errDiverged), "got %v", err)
	assert.Contains(t, out.String(), "DIFF")
}

// flakySource serves empty snapshots until its budget runs out.
type flakySource struct{ left int }

func (f *flakySource) Load(context.Context) (performance.Benchmarks, error) {
	if f.left == 0 {
		return nil, errors.New("benchmark dir unavailable")
	}
	f.left--
	return performance.Benchmarks{}, nil
}

func TestStepFailureLeavesFilesInLineWithLedger(t *testing.T) {
	dir := inTempDir(t)
	s := settings.Default()
	s.StateFile = filepath.Join(dir, "state.json")
	s.HistoryFile = filepath.Join(dir, "history.json")
	a := &app{settings: s, logger: zap.NewNop()}

	store, err := state.NewStore(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	defer store.Close()
	ledger := &calibrator.Ledger{Store: store}

	// One load for Initialize, then two good steps; the third step fails.
	cal := s.Calibrator(nil, calibrator.WithSource(&flakySource{left: 3}))
	require.NoError(t, cal.Initialize(context.Background(), nil))
	_, err = ledger.RecordInit(cal)
	require.NoError(t, err)

	var out bytes.Buffer
	err = a.runSteps(context.Background(), cal, ledger, 5, &out)
	require.ErrorContains(t, err, "benchmark dir unavailable")

	cur, err := store.GetCurrent()
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Step)

	resumed := s.Calibrator(nil)
	require.NoError(t, resumed.LoadState(s.StateFile))
	assert.Equal(t, cur.Step, resumed.StepCount())
	history, err := calibrator.ReadHistory(s.HistoryFile)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
