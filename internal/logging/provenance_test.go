package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE provenance_log (
		version_id    TEXT NOT NULL,
		step          INTEGER NOT NULL,
		trigger_type  TEXT NOT NULL,
		snapshot_json TEXT,
		decision      TEXT NOT NULL,
		reason        TEXT,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-decision-tests
func TestLogDecision_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		VersionID:    "v1",
		Step:         3,
		TriggerType:  TriggerStep,
		SnapshotJSON: `{"step":3}`,
		Decision:     DecisionAccept,
		Reason:       "all criteria passed",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM provenance_log").Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row, got %d", count)
	}

	var versionID, decision string
	var step int
	db.QueryRow("SELECT version_id, step, decision FROM provenance_log").Scan(&versionID, &step, &decision)
	if versionID != "v1" || step != 3 {
		t.Errorf("unexpected row %q step %d", versionID, step)
	}
	if decision != DecisionAccept {
		t.Errorf("expected decision %q, got %q", DecisionAccept, decision)
	}
}

func TestLogDecision_ZeroCreatedAt(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	err := LogDecision(db, ProvenanceEntry{VersionID: "v2", TriggerType: TriggerInit, Decision: DecisionInit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var createdAtStr string
	db.QueryRow("SELECT created_at FROM provenance_log").Scan(&createdAtStr)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
}

func TestLogDecision_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ProvenanceEntry{
		VersionID:   "v3",
		TriggerType: TriggerStep,
		Decision:    DecisionReject,
		CreatedAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogDecision(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshot, reason sql.NullString
	db.QueryRow("SELECT snapshot_json, reason FROM provenance_log").Scan(&snapshot, &reason)
	if snapshot.Valid {
		t.Error("expected NULL snapshot_json for empty string")
	}
	if reason.Valid {
		t.Error("expected NULL reason for empty string")
	}
}

func TestLogDecision_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	err := LogDecision(db, ProvenanceEntry{VersionID: "v4", TriggerType: TriggerStep, Decision: DecisionAccept})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

func TestLogStepRoundTrip(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	rec := StepRecord{
		Step:                 7,
		Benchmarks:           performance.Benchmarks{"vqe": {"metrics": map[string]any{"psi": 0.7, "rho": 0.6, "omega": 0.5}}},
		CandidateConfig:      space.Default(),
		EstimatedPerformance: performance.Triplet{Psi: 0.7, Rho: 0.6, Omega: 0.5},
		Evidence:             true,
		PoR:                  gate.Decision{Overall: true, Action: gate.ActionAccept},
		Criteria:             gate.DefaultCriteria(),
		Accepted:             true,
		JT:                   0.21,
	}
	if err := LogStep(db, "v7", rec, "ok"); err != nil {
		t.Fatalf("LogStep: %v", err)
	}

	var snapshot, decision string
	db.QueryRow("SELECT snapshot_json, decision FROM provenance_log").Scan(&snapshot, &decision)
	if decision != DecisionAccept {
		t.Fatalf("decision = %q", decision)
	}
	got, err := ParseStepRecord(snapshot)
	if err != nil {
		t.Fatalf("ParseStepRecord: %v", err)
	}
	if got.Step != 7 || !got.Accepted || got.JT != 0.21 {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.CandidateConfig.Equal(space.Default()) {
		t.Fatal("candidate config did not round trip")
	}
}

func TestLogInit(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogInit(db, "v0", StepRecord{Seed: 42, Benchmarks: performance.Benchmarks{}}); err != nil {
		t.Fatalf("LogInit: %v", err)
	}
	var trigger, decision, snapshot string
	var step int
	db.QueryRow("SELECT trigger_type, decision, step, snapshot_json FROM provenance_log").Scan(&trigger, &decision, &step, &snapshot)
	if trigger != TriggerInit || decision != DecisionInit || step != 0 {
		t.Fatalf("got trigger=%q decision=%q step=%d", trigger, decision, step)
	}
	rec, err := ParseStepRecord(snapshot)
	if err != nil {
		t.Fatalf("ParseStepRecord: %v", err)
	}
	if rec.Seed != 42 {
		t.Fatalf("seed = %d, want 42", rec.Seed)
	}
}

// #endregion log-decision-tests

// #region step-record-tests
func TestStepRecordDecision(t *testing.T) {
	cases := []struct {
		rec  StepRecord
		want string
	}{
		{StepRecord{Accepted: true}, DecisionAccept},
		{StepRecord{}, DecisionReject},
		{StepRecord{Accepted: true, CRITriggered: true}, DecisionRegimeSwitch},
	}
	for _, c := range cases {
		if got := c.rec.Decision(); got != c.want {
			t.Errorf("Decision() = %q, want %q", got, c.want)
		}
	}
}

func TestParseStepRecord_Empty(t *testing.T) {
	rec, err := ParseStepRecord("")
	if err != nil || rec != nil {
		t.Fatalf("expected nil, nil; got %v, %v", rec, err)
	}
	if _, err := ParseStepRecord("{"); err == nil {
		t.Fatal("expected error on bad json")
	}
}

// #endregion step-record-tests

// #region null-if-empty-tests
func TestNullIfEmpty_Empty(t *testing.T) {
	result := nullIfEmpty("")
	if result != nil {
		t.Errorf("expected nil for empty string, got %v", result)
	}
}

func TestNullIfEmpty_NonEmpty(t *testing.T) {
	result := nullIfEmpty("hello")
	if result != "hello" {
		t.Errorf("expected 'hello', got %v", result)
	}
}

// #endregion null-if-empty-tests
