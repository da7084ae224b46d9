// Command scs is the Seraphic Calibration Shell: it keeps a calibration
// state on disk and advances it one benchmark-driven step at a time.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/logging"
	"github.com/LashSesh/qso/internal/settings"
	"github.com/LashSesh/qso/internal/state"
)

// errNotInitialized is reported by commands that need a state file.
var errNotInitialized = errors.New("SCS not initialized. Run 'scs init' first")

// #region app

// app carries what PersistentPreRunE resolved to every subcommand.
type app struct {
	settingsPath string
	envFile      string
	flags        struct {
		benchmarkDir, recordDir, stateFile, historyFile string
		logLevel, ledger                                string
	}

	settings settings.Settings
	logger   *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	def := settings.Default()

	root := &cobra.Command{
		Use:   "scs",
		Short: "Seraphic Calibration Shell",
		Long: `scs calibrates algorithm configurations against benchmark results.

Each step proposes a neighbouring configuration, estimates its performance
triplet (quality, stability, efficiency) and accepts it only when the
Proof-of-Resonance gate passes. A stagnating run triggers a regime switch.

Examples:
  scs init
  scs step -n 5
  scs status
  scs export -o best_config.json`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.settingsPath, "settings", "", "YAML settings file")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before settings")
	pf.StringVar(&a.flags.benchmarkDir, "benchmark-dir", def.BenchmarkDir, "directory containing benchmark baseline files")
	pf.StringVar(&a.flags.recordDir, "record-dir", def.RecordDir, "directory of ingested benchmark records")
	pf.StringVar(&a.flags.stateFile, "state-file", def.StateFile, "state file path")
	pf.StringVar(&a.flags.historyFile, "history-file", def.HistoryFile, "history file path")
	pf.StringVar(&a.flags.logLevel, "log-level", def.Log.Level, "log level (debug, info, warn, error)")
	pf.StringVar(&a.flags.ledger, "ledger", "", "sqlite calibration ledger")

	root.AddCommand(
		a.newInitCmd(),
		a.newStepCmd(),
		a.newStatusCmd(),
		a.newExportCmd(),
		a.newProposeCmd(),
		a.newIngestCmd(),
		a.newValidateCmd(),
		a.newReplayCmd(),
		a.newInspectCmd(),
		a.newFixtureExportCmd(),
		a.newWatchCmd(),
		a.newServeCmd(),
		a.newRemoteCmd(),
	)
	return root
}

// setup loads .env, settings and flag overrides, in that order of
// precedence (flags win), then builds the logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := settings.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	s, err := settings.Load(a.settingsPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	overrides := []struct {
		name string
		src  string
		dst  *string
	}{
		{"benchmark-dir", a.flags.benchmarkDir, &s.BenchmarkDir},
		{"record-dir", a.flags.recordDir, &s.RecordDir},
		{"state-file", a.flags.stateFile, &s.StateFile},
		{"history-file", a.flags.historyFile, &s.HistoryFile},
		{"log-level", a.flags.logLevel, &s.Log.Level},
		{"ledger", a.flags.ledger, &s.Ledger},
	}
	for _, o := range overrides {
		if flags.Changed(o.name) {
			*o.dst = o.src
		}
	}
	if err := s.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(s.Log.Level, s.Log.Format)
	if err != nil {
		return err
	}
	a.settings, a.logger = s, logger
	return nil
}

// #endregion app

// #region helpers

// openLedger opens the configured ledger, or returns nil when none is set.
func (a *app) openLedger() (*state.Store, error) {
	if a.settings.Ledger == "" {
		return nil, nil
	}
	store, err := state.NewStore(a.settings.Ledger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

// requireLedger is openLedger for commands that cannot run without one.
func (a *app) requireLedger() (*state.Store, error) {
	if a.settings.Ledger == "" {
		return nil, errors.New("a ledger is required: pass --ledger or set SCS_LEDGER")
	}
	return a.openLedger()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// #endregion helpers
