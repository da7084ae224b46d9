package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/replay"
)

// errDiverged makes replay exit non-zero.
var errDiverged = errors.New("replay diverged from fixture")

// #region inspect

type inspectRow struct {
	VersionID string  `json:"version_id"`
	ParentID  string  `json:"parent_id,omitempty"`
	Step      int     `json:"step"`
	Decision  string  `json:"decision"`
	Reason    string  `json:"reason,omitempty"`
	Algorithm string  `json:"algorithm"`
	Psi       float64 `json:"psi"`
	Rho       float64 `json:"rho"`
	Omega     float64 `json:"omega"`
	J         float64 `json:"j"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
}

func (a *app) newInspectCmd() *cobra.Command {
	var last int
	var rollback string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List ledger versions with their decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.requireLedger()
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if rollback != "" {
				if err := store.Rollback(rollback); err != nil {
					return err
				}
				fmt.Fprintf(out, "Active version is now %s\n", rollback)
				return nil
			}

			rows, err := store.ListWithProvenance(last)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "no versions found")
				return nil
			}
			active := ""
			if cur, err := store.GetCurrent(); err == nil {
				active = cur.VersionID
			}

			// Store order is newest first; show oldest first.
			list := make([]inspectRow, len(rows))
			for i, vp := range rows {
				list[len(rows)-1-i] = inspectRow{
					VersionID: vp.VersionID,
					ParentID:  vp.ParentID,
					Step:      vp.Step,
					Decision:  vp.Decision,
					Reason:    vp.Reason,
					Algorithm: vp.Config.Algorithm,
					Psi:       vp.Performance.Psi,
					Rho:       vp.Performance.Rho,
					Omega:     vp.Performance.Omega,
					J:         vp.Performance.J(),
					Active:    vp.VersionID == active,
					CreatedAt: vp.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				}
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			printInspectTable(out, list)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show the N most recent versions")
	cmd.Flags().StringVar(&rollback, "rollback", "", "make version ID the active one")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON instead of a table")
	return cmd
}

func printInspectTable(w io.Writer, rows []inspectRow) {
	fmt.Fprintf(w, "%-2s%-10s %5s  %-14s %-12s %7s %7s %7s %7s  %s\n",
		"", "Version", "Step", "Decision", "Algorithm", "ψ", "ρ", "ω", "J", "Time")
	fmt.Fprintf(w, "%-2s%-10s+%5s-+%-14s+%-12s+%7s+%7s+%7s+%7s-+%s\n",
		"", "----------", "-----", "--------------", "------------", "-------", "-------", "-------", "-------", "--------------------")
	for _, r := range rows {
		mark := ""
		if r.Active {
			mark = "*"
		}
		fmt.Fprintf(w, "%-2s%-10s %5d  %-14s %-12s %7.4f %7.4f %7.4f %7.4f  %s\n",
			mark, shortID(r.VersionID), r.Step, r.Decision, r.Algorithm, r.Psi, r.Rho, r.Omega, r.J, r.CreatedAt)
		if r.Reason != "" {
			fmt.Fprintf(w, "%-12s %s\n", "", mutedStyle.Render(r.Reason))
		}
	}
}

// #endregion inspect

// #region fixture-export

func (a *app) newFixtureExportCmd() *cobra.Command {
	var outPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "fixture-export",
		Short: "Turn the latest ledger run into a replay fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			store, err := a.requireLedger()
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.ListWithProvenance(-1)
			if err != nil {
				return err
			}
			slices.Reverse(rows)
			f, err := replay.FromLedger(rows, limit)
			if err != nil {
				return err
			}
			if err := replay.SaveFixture(outPath, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d snapshot(s) to %s\n", len(f.Snapshots), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "fixture file to write")
	cmd.Flags().IntVar(&limit, "limit", 0, "export only the first N steps of the run (0 means all)")
	return cmd
}

// #endregion fixture-export

// #region replay

func (a *app) newReplayCmd() *cobra.Command {
	var fixturePath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a fixture and compare against its expected results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fixturePath == "" {
				return errors.New("--fixture is required")
			}
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}
			results, err := replay.Replay(cmd.Context(), f, calibrator.WithLogger(a.logger))
			if err != nil {
				return err
			}
			return printComparison(cmd.OutOrStdout(), results, f.ExpectedResults)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "fixture JSON file")
	return cmd
}

// printComparison writes one line per step and returns errDiverged when any
// expected field differs.
func printComparison(w io.Writer, results []replay.Result, expected []replay.FixtureExpectedResult) error {
	fmt.Fprintf(w, "%-12s| %-22s| %-22s| %s\n", "Step", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%-12s+%-23s+%-23s+%s\n", "------------", "-----------------------", "-----------------------", "------")

	matches := 0
	total := min(len(results), len(expected))
	for i := range total {
		e, r := expected[i], results[i]
		want := fmt.Sprintf("acc=%v cri=%v", e.Accepted, e.CRITriggered)
		got := fmt.Sprintf("acc=%v cri=%v", r.Accepted, r.CRITriggered)
		match := warnStyle.Render("DIFF")
		if want == got {
			match = okStyle.Render("OK")
			matches++
		}
		fmt.Fprintf(w, "%-12s| %-22s| %-22s| %s\n", r.StepID, want, got, match)
	}

	s := replay.Summarize(results)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", total, matches, total-matches)
	fmt.Fprintf(w, "Accepted %d, rejected %d, regime switches %d\n", s.Accepted, s.Rejected, s.RegimeSwitches)

	mismatches := replay.Compare(results, expected)
	for _, m := range mismatches {
		if m.Field == "steps" {
			fmt.Fprintf(w, "Step count differs: want %v, got %v\n", m.Want, m.Got)
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %d mismatch(es)", errDiverged, len(mismatches))
	}
	return nil
}

// #endregion replay
