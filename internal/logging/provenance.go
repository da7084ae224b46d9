package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (version_id, step, trigger_type, snapshot_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.Step,
		entry.TriggerType,
		nullIfEmpty(entry.SnapshotJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// LogStep serializes rec and logs it against versionID.
func LogStep(db *sql.DB, versionID string, rec StepRecord, reason string) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal step record: %w", err)
	}
	return LogDecision(db, ProvenanceEntry{
		VersionID:    versionID,
		Step:         rec.Step,
		TriggerType:  TriggerStep,
		SnapshotJSON: string(data),
		Decision:     rec.Decision(),
		Reason:       reason,
	})
}

// LogInit records the start of a run. rec carries the initial benchmark
// snapshot and the seed; its outcome fields are ignored.
func LogInit(db *sql.DB, versionID string, rec StepRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal step record: %w", err)
	}
	return LogDecision(db, ProvenanceEntry{
		VersionID:    versionID,
		Step:         rec.Step,
		TriggerType:  TriggerInit,
		SnapshotJSON: string(data),
		Decision:     DecisionInit,
	})
}

// ParseStepRecord decodes a snapshot_json column. Empty input yields nil.
func ParseStepRecord(s string) (*StepRecord, error) {
	if s == "" {
		return nil, nil
	}
	var rec StepRecord
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return nil, fmt.Errorf("parse step record: %w", err)
	}
	return &rec, nil
}

// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
