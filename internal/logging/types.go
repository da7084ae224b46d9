package logging

import (
	"time"

	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// Decisions recorded in provenance_log.
const (
	DecisionInit         = "init"
	DecisionAccept       = "accept"
	DecisionReject       = "reject"
	DecisionRegimeSwitch = "regime_switch"
	DecisionDisabled     = "disabled"
)

// Trigger types.
const (
	TriggerInit = "init"
	TriggerStep = "step"
)

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	VersionID    string
	Step         int
	TriggerType  string
	SnapshotJSON string // StepRecord
	Decision     string
	Reason       string
	CreatedAt    time.Time
}

// #endregion provenance-entry

// #region step-record
// StepRecord captures everything a step decided on. Serialized as JSON into
// provenance_log.snapshot_json so the step can be replayed.
type StepRecord struct {
	Step       int                    `json:"step"`
	Seed       int64                  `json:"seed"`
	Benchmarks performance.Benchmarks `json:"benchmarks"`

	CandidateConfig      space.Configuration `json:"candidate_config"`
	EstimatedPerformance performance.Triplet `json:"estimated_performance"`
	Evidence             bool                `json:"evidence"`

	// Gate output and the criteria active at decision time.
	PoR      gate.Decision `json:"por_detailed"`
	Criteria gate.Criteria `json:"criteria"`

	Accepted     bool    `json:"accepted"`
	CRITriggered bool    `json:"cri_triggered"`
	JT           float64 `json:"j_t"`
}

// Decision maps a step outcome to its provenance decision. A regime switch
// wins over accept/reject.
func (r StepRecord) Decision() string {
	switch {
	case r.CRITriggered:
		return DecisionRegimeSwitch
	case r.Accepted:
		return DecisionAccept
	}
	return DecisionReject
}

// #endregion step-record
