package replay

import (
	"errors"
	"fmt"

	"github.com/LashSesh/qso/internal/logging"
	"github.com/LashSesh/qso/internal/state"
)

// ErrNoRun is returned when the ledger rows hold no initialized run.
var ErrNoRun = errors.New("no init entry in ledger")

// #region export

// FromLedger rebuilds a fixture from ledger rows given oldest first. The
// latest init row starts the run; at most limit steps after it are kept
// (all when limit <= 0). Rows without a step record, and disabled steps,
// are skipped.
func FromLedger(rows []state.VersionWithProvenance, limit int) (*Fixture, error) {
	start := -1
	for i, r := range rows {
		if r.TriggerType == logging.TriggerInit {
			start = i
		}
	}
	if start < 0 {
		return nil, ErrNoRun
	}

	initRow := rows[start]
	initRec, err := logging.ParseStepRecord(initRow.SnapshotJSON)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", initRow.VersionID, err)
	}
	startConfig := initRow.Config.Clone()
	f := &Fixture{
		StartConfig: &startConfig,
		Snapshots:   []FixtureSnapshot{},
	}
	if initRec != nil {
		f.Seed = initRec.Seed
		f.InitBenchmarks = initRec.Benchmarks
	}

	for _, r := range rows[start+1:] {
		if limit > 0 && len(f.Snapshots) == limit {
			break
		}
		if r.TriggerType != logging.TriggerStep || r.Decision == logging.DecisionDisabled {
			continue
		}
		rec, err := logging.ParseStepRecord(r.SnapshotJSON)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", r.Step, r.VersionID, err)
		}
		if rec == nil {
			continue
		}
		if len(f.Snapshots) == 0 {
			criteria := rec.Criteria
			f.Settings.Gate = &criteria
		}
		id := fmt.Sprintf("step-%d", rec.Step)
		f.Snapshots = append(f.Snapshots, FixtureSnapshot{StepID: id, Benchmarks: rec.Benchmarks})
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			StepID:       id,
			Accepted:     rec.Accepted,
			CRITriggered: rec.CRITriggered,
		})
	}
	f.Description = fmt.Sprintf("Ledger export: run %s, %d steps", initRow.VersionID, len(f.Snapshots))
	return f, nil
}

// #endregion export
