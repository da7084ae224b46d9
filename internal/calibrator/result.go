package calibrator

import (
	"encoding/json"

	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/eval"
	"github.com/LashSesh/qso/internal/gate"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// disabledMessage is reported when the capability is off.
const disabledMessage = "SCS is disabled"

// StepResult summarizes every intermediate result of one step.
type StepResult struct {
	Step                 int                  `json:"step"`
	Enabled              bool                 `json:"enabled"`
	Message              string               `json:"message,omitempty"`
	BenchmarksLoaded     []string             `json:"benchmarks_loaded"`
	CandidateConfig      space.Configuration  `json:"candidate_config"`
	EstimatedPerformance performance.Triplet  `json:"estimated_performance"`
	Evidence             bool                 `json:"evidence"`
	PoRResult            bool                 `json:"por_result"`
	PoRDetailed          gate.Decision        `json:"por_detailed"`
	Accepted             bool                 `json:"accepted"`
	JT                   float64              `json:"j_t"`
	CRITriggered         bool                 `json:"cri_triggered"`
	NewRegimeConfig      *space.Configuration `json:"new_regime_config,omitempty"`
	CurrentPerformance   performance.Triplet  `json:"current_performance"`
	CRIDiagnostics       cri.Diagnostics      `json:"cri_diagnostics"`
	Invariants           eval.Result          `json:"invariants"`

	// Benchmarks is the snapshot the step ran on, kept for the ledger.
	Benchmarks performance.Benchmarks `json:"-"`
}

// MarshalJSON renders a disabled step as {"enabled": false, "message": ...}.
func (r StepResult) MarshalJSON() ([]byte, error) {
	if !r.Enabled {
		return json.Marshal(struct {
			Enabled bool   `json:"enabled"`
			Message string `json:"message"`
		}{false, r.Message})
	}
	type plain StepResult
	return json.Marshal(plain(r))
}

// HistoryEntry is one line of the calibration history file.
type HistoryEntry struct {
	Step         int                 `json:"step"`
	Config       space.Configuration `json:"config"`
	Performance  performance.Triplet `json:"performance"`
	JT           float64             `json:"j_t"`
	PoRAccepted  bool                `json:"por_accepted"`
	CRITriggered bool                `json:"cri_triggered"`
	Timestamp    float64             `json:"timestamp"` // unix seconds
}

// historyFile is the on-disk form of the history.
type historyFile struct {
	History []HistoryEntry `json:"history"`
}

// stateFile is the on-disk form of the calibrator state.
type stateFile struct {
	StepCount          int                  `json:"step_count"`
	CurrentConfig      *space.Configuration `json:"current_config"`
	CurrentPerformance *performance.Triplet `json:"current_performance"`
	Field              json.RawMessage      `json:"field"`
	CRIDiagnostics     *cri.Diagnostics     `json:"cri_diagnostics,omitempty"`
}
