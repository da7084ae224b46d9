package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/tuner"
)

// newTuner builds a tuner over the resolved settings, mirroring into the
// ledger when one is configured. The close func is always safe to call.
func (a *app) newTuner(opts ...tuner.Option) (*tuner.Tuner, func(), error) {
	store, err := a.openLedger()
	if err != nil {
		return nil, func() {}, err
	}
	opts = append([]tuner.Option{tuner.WithLogger(a.logger)}, opts...)
	if store == nil {
		return tuner.New(a.settings, opts...), func() {}, nil
	}
	opts = append(opts, tuner.WithLedger(store))
	return tuner.New(a.settings, opts...), func() { _ = store.Close() }, nil
}

// #region propose

func (a *app) newProposeCmd() *cobra.Command {
	var n int
	var minQuality float64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Run the auto-tuner until quality is reached or progress plateaus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n < 1 {
				return fmt.Errorf("-n must be >= 1, got %d", n)
			}
			t, closeTuner, err := a.newTuner()
			if err != nil {
				return err
			}
			defer closeTuner()

			if _, err := t.Initialize(cmd.Context(), nil); err != nil {
				return err
			}
			proposals, err := t.Run(cmd.Context(), n, minQuality)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(proposals, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			if !t.Enabled() {
				fmt.Fprintln(out, "SCS is disabled; proposing the default configuration")
			}
			fmt.Fprintf(out, "%-6s| %-8s| %-9s| %-4s| %s\n", "Step", "ψ", "Accepted", "CRI", "Δφ")
			fmt.Fprintf(out, "%-6s+%-9s+%-10s+%-5s+%s\n", "------", "---------", "----------", "-----", "--------")
			for _, p := range proposals {
				fmt.Fprintf(out, "%-6d| %-8.4f| %-9v| %-4v| %+.4f\n",
					p.Step, p.CurrentPerformance.Psi, p.PoRAccepted, p.CRITriggered, p.DeltaPhi)
			}
			if len(proposals) > 0 {
				last := proposals[len(proposals)-1]
				fmt.Fprintf(out, "\nProposed configuration: %s/%s depth %d, %s lr %g\n",
					last.Config.Algorithm, last.Config.AnsatzType, last.Config.AnsatzDepth,
					last.Config.Optimizer, last.Config.LearningRate)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "num-steps", "n", 10, "maximum number of proposals")
	cmd.Flags().Float64Var(&minQuality, "min-quality", 0, "stop once ψ reaches this (default from settings)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print proposals as JSON")
	return cmd
}

// #endregion propose

// #region ingest

func (a *app) newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Validate benchmark records and store them for the next step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, closeTuner, err := a.newTuner()
			if err != nil {
				return err
			}
			defer closeTuner()

			out := cmd.OutOrStdout()
			for _, path := range args {
				records, err := benchmark.LoadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				for _, rec := range records {
					dst, err := t.Ingest(rec)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					fmt.Fprintf(out, "Ingested %s (%s) -> %s\n", rec.System, rec.ConfigID, dst)
				}
			}
			return nil
		},
	}
}

// #endregion ingest

// #region validate

func (a *app) newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check benchmark files against the record schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			bad := 0
			for _, path := range args {
				records, err := benchmark.LoadFile(path)
				if err != nil {
					bad++
					fmt.Fprintf(out, "%s %s: %v\n", warnStyle.Render("INVALID"), path, err)
					continue
				}
				fmt.Fprintf(out, "%s %s (%d record(s))\n", okStyle.Render("OK"), path, len(records))
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d file(s) invalid", bad, len(args))
			}
			return nil
		},
	}
}

// #endregion validate
