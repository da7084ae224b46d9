// Package rpc exposes a tuner over gRPC and HTTP. Every transport shares one
// Service, which serializes access to the tuner's calibrator.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/LashSesh/qso/internal/benchmark"
	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
	"github.com/LashSesh/qso/internal/tuner"
)

// ErrMalformed wraps a request body that is not a JSON object.
var ErrMalformed = errors.New("malformed record")

// #region status

// Status is a point-in-time view of the calibrator.
type Status struct {
	Enabled     bool                 `json:"enabled"`
	Initialized bool                 `json:"initialized"`
	Step        int                  `json:"step"`
	Config      *space.Configuration `json:"config,omitempty"`
	Performance *performance.Triplet `json:"performance,omitempty"`
	CRI         *cri.Diagnostics     `json:"cri,omitempty"`
}

// #endregion status

// #region service

// Service is the transport-neutral calibration API.
type Service struct {
	mu     sync.Mutex
	tuner  *tuner.Tuner
	logger *zap.Logger
}

// NewService wraps t. A nil logger discards output.
func NewService(t *tuner.Tuner, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tuner: t, logger: logger}
}

// Propose runs one tuning step.
func (s *Service) Propose(ctx context.Context) (tuner.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuner.Propose(ctx)
}

// Ingest validates a decoded record and stores it for the next step.
func (s *Service) Ingest(m map[string]any) (string, error) {
	rec, err := benchmark.ValidateMap(m)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuner.Ingest(rec)
}

// IngestJSON is Ingest for a raw JSON record.
func (s *Service) IngestJSON(raw []byte) (string, error) {
	rec, err := benchmark.Validate(raw)
	if err != nil {
		if !isBadRequest(err) {
			err = fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuner.Ingest(rec)
}

// Status reports the current calibrator state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	cal := s.tuner.Calibrator()
	st := Status{Enabled: s.tuner.Enabled(), Initialized: cal.Initialized(), Step: cal.StepCount()}
	if !st.Initialized {
		return st
	}
	if cfg, err := cal.Best(); err == nil {
		st.Config = &cfg
	}
	if perf, err := cal.Performance(); err == nil {
		st.Performance = &perf
	}
	d := cal.Diagnostics()
	st.CRI = &d
	return st
}

// #endregion service

// isBadRequest reports whether err is the caller's fault.
func isBadRequest(err error) bool {
	var verr *benchmark.ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrMalformed)
}
