// Package telemetry exports calibration metrics.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LashSesh/qso/internal/performance"
)

// Namespace prefixes every metric name.
const Namespace = "scs"

// Step outcomes used as the "outcome" label.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeDisabled = "disabled"
)

// Recorder receives one observation per calibration step.
type Recorder interface {
	// RecordStep is called after a step commits.
	RecordStep(outcome string, regimeSwitch bool, jt float64, perf performance.Triplet)
	// RecordError is called when a step fails in the named stage.
	RecordError(stage string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordStep(string, bool, float64, performance.Triplet) {}
func (Nop) RecordError(string)                                   {}

// Prometheus implements Recorder with client_golang collectors.
type Prometheus struct {
	steps        *prometheus.CounterVec
	regimeSwitch prometheus.Counter
	errors       *prometheus.CounterVec
	jt           prometheus.Gauge
	component    *prometheus.GaugeVec
}

// NewPrometheus registers the calibration collectors on reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "steps_total",
			Help:      "Calibration steps by outcome.",
		}, []string{"outcome"}),
		regimeSwitch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "regime_switches_total",
			Help:      "Resonance impulses applied.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_errors_total",
			Help:      "Failed calibration steps by stage.",
		}, []string{"stage"}),
		jt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "j_t",
			Help:      "Latest global functional J(t) = psi*rho*omega.",
		}),
		component: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "performance",
			Help:      "Latest performance triplet by component.",
		}, []string{"component"}),
	}
	for _, c := range []prometheus.Collector{p.steps, p.regimeSwitch, p.errors, p.jt, p.component} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return p, nil
}

// RecordStep implements Recorder.
func (p *Prometheus) RecordStep(outcome string, regimeSwitch bool, jt float64, perf performance.Triplet) {
	p.steps.WithLabelValues(outcome).Inc()
	if outcome == OutcomeDisabled {
		return
	}
	if regimeSwitch {
		p.regimeSwitch.Inc()
	}
	p.jt.Set(jt)
	p.component.WithLabelValues("psi").Set(perf.Psi)
	p.component.WithLabelValues("rho").Set(perf.Rho)
	p.component.WithLabelValues("omega").Set(perf.Omega)
}

// RecordError implements Recorder.
func (p *Prometheus) RecordError(stage string) {
	p.errors.WithLabelValues(stage).Inc()
}
