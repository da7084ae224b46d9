package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/LashSesh/qso/internal/cri"
	"github.com/LashSesh/qso/internal/performance"
	"github.com/LashSesh/qso/internal/space"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorOK     = lipgloss.Color("#2CD7C7")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorMuted  = lipgloss.Color("#5C7A84")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headingStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle      = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

// yesNo renders a boolean, highlighting true when good says it is good.
func yesNo(v, good bool) string {
	s := fmt.Sprint(v)
	if v == good {
		return okStyle.Render(s)
	}
	return warnStyle.Render(s)
}

func writePerformance(w io.Writer, p performance.Triplet, harmonic bool) {
	fmt.Fprintf(w, "  ψ (quality):     %.4f\n", p.Psi)
	fmt.Fprintf(w, "  ρ (stability):   %.4f\n", p.Rho)
	fmt.Fprintf(w, "  ω (efficiency):  %.4f\n", p.Omega)
	if harmonic {
		fmt.Fprintf(w, "  Harmonic mean:   %.4f\n", p.HarmonicMean())
	}
}

// statusPanel renders the status command's boxed summary.
func statusPanel(step int, cfg space.Configuration, perf performance.Triplet, d cri.Diagnostics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", headingStyle.Render("Step count:"), step)

	fmt.Fprintf(&b, "\n%s\n", headingStyle.Render("Current configuration:"))
	fmt.Fprintf(&b, "  Algorithm: %s\n", cfg.Algorithm)
	fmt.Fprintf(&b, "  Ansatz: %s (depth %d)\n", cfg.AnsatzType, cfg.AnsatzDepth)
	fmt.Fprintf(&b, "  Optimizer: %s (lr %g)\n", cfg.Optimizer, cfg.LearningRate)

	fmt.Fprintf(&b, "\n%s\n", headingStyle.Render("Current performance:"))
	writePerformance(&b, perf, true)

	fmt.Fprintf(&b, "\n%s\n", headingStyle.Render("CRI diagnostics:"))
	fmt.Fprintf(&b, "  Steps since impulse: %d\n", d.StepsSinceImpulse)
	fmt.Fprintf(&b, "  Current J(t): %.4f\n", d.CurrentJT)
	fmt.Fprintf(&b, "  Stagnating: %s\n", yesNo(d.IsStagnating, false))
	fmt.Fprintf(&b, "  Degrading: %s", yesNo(d.IsDegrading, false))

	return titleStyle.Render("Seraphic Calibration Shell Status") + "\n" + boxStyle.Render(b.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
