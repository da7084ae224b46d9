package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/LashSesh/qso/internal/calibrator"
	"github.com/LashSesh/qso/internal/space"
)

const (
	defaultBestConfig   = "scs_best_config.json"
	defaultExportConfig = "scs_config_export.json"
)

// #region init

func (a *app) newInitCmd() *cobra.Command {
	var configFile, output string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize calibration state from a seed configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Initializing Seraphic Calibration Shell...")

			var seed *space.Configuration
			if configFile != "" {
				c, err := space.LoadFile(configFile)
				if err != nil {
					return err
				}
				seed = &c
				fmt.Fprintf(out, "Loaded initial configuration from %s\n", configFile)
			} else {
				fmt.Fprintln(out, "Using default initial configuration")
			}

			cal := a.settings.Calibrator(a.logger)
			if err := cal.Initialize(cmd.Context(), seed); err != nil {
				return err
			}
			if err := cal.SaveState(a.settings.StateFile); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved initial state to %s\n", a.settings.StateFile)

			ledger, closeLedger, err := a.ledger()
			if err != nil {
				return err
			}
			defer closeLedger()
			if ledger != nil {
				if _, err := ledger.RecordInit(cal); err != nil {
					return err
				}
			}

			perf, _ := cal.Performance()
			fmt.Fprintln(out, "\nInitial Performance:")
			writePerformance(out, perf, false)

			best, _ := cal.Best()
			if err := space.SaveFile(output, best); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSaved configuration to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config-file", "", "initial configuration file (JSON)")
	cmd.Flags().StringVarP(&output, "output", "o", defaultBestConfig, "output path for the best configuration")
	return cmd
}

// #endregion init

// #region step

func (a *app) newStepCmd() *cobra.Command {
	var n int
	var output string
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Run calibration steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n < 1 {
				return fmt.Errorf("-n must be >= 1, got %d", n)
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			cal := a.settings.Calibrator(a.logger)
			ledger, closeLedger, err := a.ledger()
			if err != nil {
				return err
			}
			defer closeLedger()

			if !a.settings.Enabled {
				res, err := cal.Step(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, res.Message)
				if ledger != nil {
					_, err = ledger.RecordStep(cal, res)
				}
				return err
			}

			fmt.Fprintf(out, "Running %d calibration step(s)...\n", n)
			if fileExists(a.settings.StateFile) {
				if err := cal.LoadState(a.settings.StateFile); err != nil {
					return err
				}
				if fileExists(a.settings.HistoryFile) {
					if err := cal.LoadHistory(a.settings.HistoryFile); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "Loaded state from %s\n", a.settings.StateFile)
			} else {
				fmt.Fprintln(out, "No existing state found, initializing...")
				if err := cal.Initialize(ctx, nil); err != nil {
					return err
				}
				if err := cal.SaveState(a.settings.StateFile); err != nil {
					return err
				}
				if ledger != nil {
					if _, err := ledger.RecordInit(cal); err != nil {
						return err
					}
				}
			}

			if err := a.runSteps(ctx, cal, ledger, n, out); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSaved state to %s\n", a.settings.StateFile)
			fmt.Fprintf(out, "Saved history to %s\n", a.settings.HistoryFile)

			best, _ := cal.Best()
			if err := space.SaveFile(output, best); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved best configuration to %s\n", output)

			perf, _ := cal.Performance()
			fmt.Fprintln(out, "\nFinal Performance:")
			writePerformance(out, perf, true)
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "num-steps", "n", 1, "number of calibration steps to run")
	cmd.Flags().StringVarP(&output, "output", "o", defaultBestConfig, "output path for the best configuration")
	return cmd
}

// runSteps advances cal n times. State and history are written after every
// step, before the ledger commit, so the files are never behind the ledger
// when a later step fails.
func (a *app) runSteps(ctx context.Context, cal *calibrator.Calibrator, ledger *calibrator.Ledger, n int, out io.Writer) error {
	for range n {
		res, err := cal.Step(ctx)
		if err != nil {
			return err
		}
		if err := cal.SaveState(a.settings.StateFile); err != nil {
			return err
		}
		if err := cal.SaveHistory(a.settings.HistoryFile); err != nil {
			return err
		}
		if ledger != nil {
			if _, err := ledger.RecordStep(cal, res); err != nil {
				return err
			}
		}

		fmt.Fprintf(out, "\nStep %d:\n", res.Step)
		fmt.Fprintf(out, "  Accepted: %s\n", yesNo(res.Accepted, true))
		fmt.Fprintf(out, "  J(t): %.4f\n", res.JT)
		fmt.Fprintf(out, "  CRI triggered: %v\n", res.CRITriggered)
		if res.Accepted {
			p := res.CurrentPerformance
			fmt.Fprintf(out, "  Performance: ψ=%.4f, ρ=%.4f, ω=%.4f\n", p.Psi, p.Rho, p.Omega)
		}
	}
	return nil
}

// #endregion step

// #region status

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current calibration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cal, err := a.loadCalibrator()
			if err != nil {
				return err
			}
			best, _ := cal.Best()
			perf, _ := cal.Performance()
			fmt.Fprintln(cmd.OutOrStdout(), statusPanel(cal.StepCount(), best, perf, cal.Diagnostics()))
			return nil
		},
	}
}

// #endregion status

// #region export

func (a *app) newExportCmd() *cobra.Command {
	var output string
	var stdout bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the best configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cal, err := a.loadCalibrator()
			if err != nil {
				return err
			}
			best, _ := cal.Best()
			if err := space.SaveFile(output, best); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Exported configuration to %s\n", output)
			if stdout {
				data, err := json.MarshalIndent(best, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nConfiguration:\n%s\n", data)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", defaultExportConfig, "output file path")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "also print the configuration")
	return cmd
}

// #endregion export

// #region shared

// loadCalibrator restores the state file, failing when there is none.
func (a *app) loadCalibrator() (*calibrator.Calibrator, error) {
	if !fileExists(a.settings.StateFile) {
		return nil, errNotInitialized
	}
	cal := a.settings.Calibrator(a.logger)
	if err := cal.LoadState(a.settings.StateFile); err != nil {
		return nil, err
	}
	return cal, nil
}

// ledger opens the configured ledger. Without one it returns a nil ledger;
// the close func is always safe to call.
func (a *app) ledger() (*calibrator.Ledger, func(), error) {
	store, err := a.openLedger()
	if err != nil || store == nil {
		return nil, func() {}, err
	}
	return &calibrator.Ledger{Store: store}, func() { _ = store.Close() }, nil
}

// #endregion shared
