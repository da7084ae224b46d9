package calibrator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/LashSesh/qso/internal/logging"
	"github.com/LashSesh/qso/internal/state"
)

// #region ledger

// Ledger mirrors calibrator progress into a durable version store: one
// version per step plus a provenance row carrying the step record.
type Ledger struct {
	Store *state.Store
}

// RecordInit stores the initialized state as a new root version.
func (l Ledger) RecordInit(c *Calibrator) (state.Version, error) {
	if !c.initialized {
		return state.Version{}, ErrNotInitialized
	}
	v, err := l.Store.CreateInitial(c.version())
	if err != nil {
		return state.Version{}, fmt.Errorf("ledger init: %w", err)
	}
	rec := logging.StepRecord{
		Step:       c.steps,
		Seed:       c.cfg.Seed,
		Benchmarks: c.initBenchmarks,
		Criteria:   c.cfg.Gate,
	}
	if err := logging.LogInit(l.Store.DB(), v.VersionID, rec); err != nil {
		return state.Version{}, fmt.Errorf("ledger init: %w", err)
	}
	return v, nil
}

// RecordStep commits the state res left behind and logs its decision. A
// disabled step is logged against the active version without a commit.
func (l Ledger) RecordStep(c *Calibrator, res StepResult) (state.Version, error) {
	if !res.Enabled {
		cur, err := l.Store.GetCurrent()
		if errors.Is(err, state.ErrUnknownVersion) {
			return state.Version{}, nil
		}
		if err != nil {
			return state.Version{}, fmt.Errorf("ledger step: %w", err)
		}
		err = logging.LogDecision(l.Store.DB(), logging.ProvenanceEntry{
			VersionID:   cur.VersionID,
			Step:        c.steps,
			TriggerType: logging.TriggerStep,
			Decision:    logging.DecisionDisabled,
			Reason:      res.Message,
		})
		if err != nil {
			return state.Version{}, fmt.Errorf("ledger step: %w", err)
		}
		return cur, nil
	}

	v, err := l.Store.Commit(c.version())
	if err != nil {
		return state.Version{}, fmt.Errorf("ledger step %d: %w", res.Step, err)
	}
	rec := logging.StepRecord{
		Step:                 res.Step,
		Seed:                 c.cfg.Seed,
		Benchmarks:           res.Benchmarks,
		CandidateConfig:      res.CandidateConfig,
		EstimatedPerformance: res.EstimatedPerformance,
		Evidence:             res.Evidence,
		PoR:                  res.PoRDetailed,
		Criteria:             c.cfg.Gate,
		Accepted:             res.Accepted,
		CRITriggered:         res.CRITriggered,
		JT:                   res.JT,
	}
	if err := logging.LogStep(l.Store.DB(), v.VersionID, rec, stepReason(res)); err != nil {
		return state.Version{}, fmt.Errorf("ledger step %d: %w", res.Step, err)
	}
	return v, nil
}

func stepReason(res StepResult) string {
	switch {
	case res.CRITriggered:
		return fmt.Sprintf("regime switch at j_t=%.4f", res.JT)
	case !res.Evidence:
		return "no benchmark evidence"
	}
	return res.PoRDetailed.Reason
}

// version snapshots the committed in-memory state.
func (c *Calibrator) version() state.Version {
	return state.Version{
		Step:        c.steps,
		Config:      c.current.Clone(),
		Performance: c.perf,
		FieldVector: slices.Clone(c.field.State),
	}
}

// #endregion ledger
