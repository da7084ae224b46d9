package replay

import (
	"context"
	"fmt"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

// Outcomes reported in Result.Outcome.
const (
	OutcomeAccept       = "accept"
	OutcomeReject       = "reject"
	OutcomeRegimeSwitch = "regime_switch"
)

// #region types

// Result captures the outcome of replaying one snapshot.
type Result struct {
	StepID       string
	Step         int
	Outcome      string
	Accepted     bool
	CRITriggered bool
	JT           float64
	Reason       string

	// State after this step.
	Config      space.Configuration
	Performance performance.Triplet
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps       int
	Accepted         int
	Rejected         int
	RegimeSwitches   int
	FinalConfig      space.Configuration
	FinalPerformance performance.Triplet
}

// Mismatch is one field where a replayed step diverged from the fixture.
type Mismatch struct {
	StepID string
	Field  string
	Want   any
	Got    any
}

// #endregion types

// #region replay

// Replay runs a fresh calibrator over the fixture's snapshots, one step per
// snapshot, entirely in memory. opts may add a logger or recorder; the
// benchmark source is always the fixture.
func Replay(ctx context.Context, f *Fixture, opts ...calibrator.Option) ([]Result, error) {
	snapshots := make([]performance.Benchmarks, 0, len(f.Snapshots)+1)
	first := f.InitBenchmarks
	if first == nil {
		first = performance.Benchmarks{}
	}
	snapshots = append(snapshots, first)
	for _, s := range f.Snapshots {
		snapshots = append(snapshots, s.Benchmarks)
	}

	opts = append(opts, calibrator.WithSource(benchmark.NewSequenceSource(snapshots...)))
	cal := calibrator.New(f.CalibratorConfig(calibrator.DefaultConfig()), opts...)
	if err := cal.Initialize(ctx, f.StartConfig); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	results := make([]Result, 0, len(f.Snapshots))
	for i, s := range f.Snapshots {
		res, err := cal.Step(ctx)
		if err != nil {
			return results, fmt.Errorf("replay %s: %w", stepID(s.StepID, i), err)
		}
		best, _ := cal.Best()
		results = append(results, Result{
			StepID:       stepID(s.StepID, i),
			Step:         res.Step,
			Outcome:      outcome(res),
			Accepted:     res.Accepted,
			CRITriggered: res.CRITriggered,
			JT:           res.JT,
			Reason:       res.PoRDetailed.Reason,
			Config:       best,
			Performance:  res.CurrentPerformance,
		})
	}
	return results, nil
}

func outcome(res calibrator.StepResult) string {
	switch {
	case res.CRITriggered:
		return OutcomeRegimeSwitch
	case res.Accepted:
		return OutcomeAccept
	}
	return OutcomeReject
}

func stepID(id string, i int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("step-%d", i+1)
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Accepted {
			s.Accepted++
		} else {
			s.Rejected++
		}
		if r.CRITriggered {
			s.RegimeSwitches++
		}
	}
	if n := len(results); n > 0 {
		s.FinalConfig = results[n-1].Config
		s.FinalPerformance = results[n-1].Performance
	}
	return s
}

// Compare matches results against expectations by position. A length
// difference is reported as a mismatch on "steps".
func Compare(results []Result, expected []FixtureExpectedResult) []Mismatch {
	var out []Mismatch
	if len(results) != len(expected) {
		out = append(out, Mismatch{Field: "steps", Want: len(expected), Got: len(results)})
	}
	for i := range min(len(results), len(expected)) {
		r, e := results[i], expected[i]
		id := stepID(e.StepID, i)
		if r.Accepted != e.Accepted {
			out = append(out, Mismatch{StepID: id, Field: "accepted", Want: e.Accepted, Got: r.Accepted})
		}
		if r.CRITriggered != e.CRITriggered {
			out = append(out, Mismatch{StepID: id, Field: "cri_triggered", Want: e.CRITriggered, Got: r.CRITriggered})
		}
	}
	return out
}

// #endregion replay
