// Package cplscheme implements the Coupling Scheme engine (component G):
// the state machine governing time/window/iteration progress and exchange
// ordering across serial/parallel, explicit/implicit coupling.
package cplscheme

import (
	"math"

	"github.com/opencoupler/core/internal/acceleration"
	"github.com/opencoupler/core/internal/core"
)

// ConvergenceMeasure compares a CouplingData's previous and current
// iteration and reports whether the fixed-point iteration has converged for
// that data.
type ConvergenceMeasure interface {
	Measure(previous, current []float64) bool
	NormResidual() float64
}

// AbsoluteConvergenceMeasure converges once the 2-norm of the difference
// between iterations falls below a fixed limit.
type AbsoluteConvergenceMeasure struct {
	limit float64
	last float64
}

// NewAbsoluteConvergenceMeasure builds a measure with the given absolute
// limit.
func NewAbsoluteConvergenceMeasure(limit float64) *AbsoluteConvergenceMeasure {
	return &AbsoluteConvergenceMeasure{limit: limit}
}

// Measure implements ConvergenceMeasure.
func (m *AbsoluteConvergenceMeasure) Measure(previous, current []float64) bool {
	sum := 0.0
	for i := range current {
		d := current[i] - previous[i]
		sum += d * d
	}
	m.last = math.Sqrt(sum)
	return m.last <= m.limit
}

// NormResidual implements ConvergenceMeasure.
func (m *AbsoluteConvergenceMeasure) NormResidual() float64 { return m.last }

// RelativeConvergenceMeasure converges once the 2-norm of the difference,
// relative to the 2-norm of the current iterate, falls below limit (a
// fraction, e.g. 1e-3 for 0.1%).
type RelativeConvergenceMeasure struct {
	limit float64
	last float64
}

// NewRelativeConvergenceMeasure builds a measure with the given relative
// limit.
func NewRelativeConvergenceMeasure(limit float64) *RelativeConvergenceMeasure {
	return &RelativeConvergenceMeasure{limit: limit}
}

// Measure implements ConvergenceMeasure.
func (m *RelativeConvergenceMeasure) Measure(previous, current []float64) bool {
	diffSum, curSum := 0.0, 0.0
	for i := range current {
		d := current[i] - previous[i]
		diffSum += d * d
		curSum += current[i] * current[i]
	}
	norm := math.Sqrt(curSum)
	if norm == 0 {
		norm = 1
	}
	m.last = math.Sqrt(diffSum) / norm
	return m.last <= m.limit
}

// NormResidual implements ConvergenceMeasure.
func (m *RelativeConvergenceMeasure) NormResidual() float64 { return m.last }

// convergenceMeasureContext binds one ConvergenceMeasure to the coupling
// data it watches, plus the suffices/strict/logging flags from
// <convergence-measure>.
type convergenceMeasureContext struct {
	data *acceleration.CouplingData
	dataName string
	measure ConvergenceMeasure
	suffices bool
	strict bool
	doesLogging bool
}

// measureConvergence evaluates every registered convergence measure against
// its coupling data and combines them: overall convergence is (all
// converged) OR (any sufficient AND no strict unmet). A strict measure
// still unmet at the iteration cap is a fatal error.
func measureConvergence(contexts []convergenceMeasureContext, iterations, maxIterations int) (bool, error) {
	allConverged := true
	oneSuffices := false
	oneStrict := false
	for _, c := range contexts {
		converged := c.measure.Measure(c.data.PreviousIteration(), c.data.Values())
		if !converged {
			allConverged = false
			if c.strict {
				oneStrict = true
				if maxIterations > 0 && iterations >= maxIterations {
					return false, core.ErrWrongState.Error()
				}
			}
		} else if c.suffices {
			oneSuffices = true
		}
	}
	return allConverged || (oneSuffices && !oneStrict), nil
}
