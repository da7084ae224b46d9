package cri

import (
	"fmt"
	"slices"
)

// Diagnostics is the serializable CRI summary carried in step results and
// the state file.
type Diagnostics struct {
	StepsSinceImpulse int       `json:"steps_since_impulse"`
	CurrentJT         float64   `json:"current_j_t"`
	IsStagnating      bool      `json:"is_stagnating"`
	IsDegrading       bool      `json:"is_degrading"`
	HistoryLength     int       `json:"history_length"`
	JTHistory         []float64 `json:"j_t_history"`
}

// Diagnostics reports the impulse's current view of J(t).
func (i *Impulse) Diagnostics() Diagnostics {
	h := i.global.History()
	tail := h[max(0, len(h)-diagnosticsTail):]
	if tail == nil {
		tail = []float64{}
	}
	return Diagnostics{
		StepsSinceImpulse: i.since,
		CurrentJT:         i.global.Current(),
		IsStagnating:      i.global.IsStagnating(i.config.StagnationThreshold),
		IsDegrading:       i.global.IsDegrading(i.config.DegradationThreshold),
		HistoryLength:     len(h),
		JTHistory:         slices.Clone(tail),
	}
}

// Restore rebuilds the counter and J history from saved diagnostics. Only the
// retained tail is recoverable; with the default window that is all of it.
func (i *Impulse) Restore(d Diagnostics) error {
	if d.StepsSinceImpulse < 0 {
		return fmt.Errorf("restore cri: negative steps_since_impulse %d", d.StepsSinceImpulse)
	}
	h := slices.Clone(d.JTHistory)
	if limit := 2 * i.global.Window; len(h) > limit {
		h = h[len(h)-limit:]
	}
	i.global.history = h
	i.since = d.StepsSinceImpulse
	return nil
}
