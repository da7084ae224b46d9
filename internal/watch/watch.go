// Package watch runs a calibration step whenever benchmark files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/tuner"
)

// Proposer runs one tuning step. *rpc.Service and *tuner.Tuner both fit.
type Proposer interface {
	Propose(ctx context.Context) (tuner.Proposal, error)
}

// Watcher batches JSON file events in its directories and proposes once per
// quiet period.
type Watcher struct {
	dirs     []string
	proposer Proposer
	debounce time.Duration
	logger   *zap.Logger

	// OnProposal, when set, receives every proposal the watcher triggers.
	OnProposal func(tuner.Proposal)
}

// New returns a watcher over dirs. Directories that do not exist yet are
// created on Run.
func New(p Proposer, debounce time.Duration, logger *zap.Logger, dirs ...string) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{dirs: dirs, proposer: p, debounce: debounce, logger: logger}
}

// Run blocks until ctx is done. A failed step is logged and watching
// continues; only setup failures are returned.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.dirs) == 0 {
		return errors.New("watch: no directories")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Info("watching benchmark directory", zap.String("dir", dir))
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("benchmark change", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			pending++
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			w.fire(ctx, pending)
			pending = 0
		}
	}
}

func (w *Watcher) fire(ctx context.Context, changes int) {
	p, err := w.proposer.Propose(ctx)
	if err != nil {
		w.logger.Error("triggered step failed", zap.Int("changes", changes), zap.Error(err))
		return
	}
	w.logger.Info("triggered step",
		zap.Int("changes", changes),
		zap.Int("step", p.Step),
		zap.Bool("accepted", p.PoRAccepted),
		zap.Bool("regime_switch", p.CRITriggered),
	)
	if w.OnProposal != nil {
		w.OnProposal(p)
	}
}

// relevant keeps creates, writes and renames of JSON files.
func relevant(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}
