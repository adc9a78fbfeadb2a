// Package acceleration implements CouplingData and its history buffers
// (component F): extrapolation-predictor history and the fixed-point
// Acceleration interface consumed by the implicit coupling scheme.
package acceleration

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
)

// CouplingData is the exchange-layer wrapper of a Data buffer: it
// additionally tracks the last converged iterate, a bounded history of
// previous converged iterates for extrapolation, and whether it still needs
// an initial exchange.
type CouplingData struct {
	DataID core.DataID

	// values is the live buffer the solver writes/reads; owned by the
	// mesh.Data this wraps, shared by reference so acceleration mutates the
	// same memory the next write mapping reads from.
	values *[]float64

	previousIteration []float64
	lastConverged []float64
	// history holds up to extrapolationOrder+1 converged iterates, oldest
	// first, for the extrapolation predictor.
	history [][]float64

	requiresInitialization bool
	extrapolationOrder int
}

// NewCouplingData wraps values (the live Data buffer) for exchange and
// acceleration bookkeeping.
func NewCouplingData(id core.DataID, values *[]float64, extrapolationOrder int, requiresInitialization bool) (*CouplingData, error) {
	if extrapolationOrder < 0 || extrapolationOrder > core.MaxExtrapolationOrder {
		return nil, fmt.Errorf("extrapolation order %d not supported (max %d): %w", extrapolationOrder, core.MaxExtrapolationOrder, core.ErrInvalidArgument.Error())
	}
	return &CouplingData{
		DataID: id,
		values: values,
		extrapolationOrder: extrapolationOrder,
		requiresInitialization: requiresInitialization,
		previousIteration: append([]float64(nil), (*values)...),
	}, nil
}

// Values returns the live buffer.
func (cd *CouplingData) Values() []float64 { return *cd.values }

// SetValues overwrites the live buffer in place.
func (cd *CouplingData) SetValues(v []float64) {
	copy(*cd.values, v)
}

// PreviousIteration returns the buffer's value as of the start of the
// current fixed-point iteration, used by convergence measures.
func (cd *CouplingData) PreviousIteration() []float64 { return cd.previousIteration }

// RequiresInitialization reports whether this data still needs an initial
// exchange.
func (cd *CouplingData) RequiresInitialization() bool { return cd.requiresInitialization }

// MarkInitialized clears the pending-initial-exchange flag.
func (cd *CouplingData) MarkInitialized() { cd.requiresInitialization = false }

// SetRequiresInitialization marks whether this data needs an initial
// exchange before the first advance, overriding the value passed to
// NewCouplingData once the owning exchange's configuration is known.
func (cd *CouplingData) SetRequiresInitialization(v bool) { cd.requiresInitialization = v }

// SetExtrapolationOrder updates the extrapolation order used by
// StoreExtrapolationData/MoveToNextWindow, overriding the value passed to
// NewCouplingData once the owning coupling scheme's configuration is known.
func (cd *CouplingData) SetExtrapolationOrder(order int) error {
	if order < 0 || order > core.MaxExtrapolationOrder {
		return fmt.Errorf("extrapolation order %d not supported (max %d): %w", order, core.MaxExtrapolationOrder, core.ErrInvalidArgument.Error())
	}
	cd.extrapolationOrder = order
	return nil
}

// StoreIteration snapshots the live buffer as the new "previous iteration"
// baseline for the next convergence measurement.
func (cd *CouplingData) StoreIteration() {
	cd.previousIteration = append(cd.previousIteration[:0], *cd.values...)
}

// StoreExtrapolationData snapshots the current iterate into the
// extrapolation history ring buffer.
func (cd *CouplingData) StoreExtrapolationData() {
	snapshot := append([]float64(nil), *cd.values...)
	cd.history = append(cd.history, snapshot)
	if len(cd.history) > cd.extrapolationOrder+1 {
		cd.history = cd.history[len(cd.history)-(cd.extrapolationOrder+1):]
	}
}

// MoveToNextWindow records the converged iterate as the last-converged value
// and extrapolates the next window's predictor in place, overwriting the
// live buffer:
//
//	order 0: carry the last converged value forward (no-op on the buffer).
//	order 1: linearly extrapolate from the last two converged values.
func (cd *CouplingData) MoveToNextWindow() {
	cd.lastConverged = append(cd.lastConverged[:0], *cd.values...)
	switch {
	case cd.extrapolationOrder == 1 && len(cd.history) >= 2:
		prev := cd.history[len(cd.history)-2]
		curr := cd.history[len(cd.history)-1]
		extrapolated := make([]float64, len(curr))
		for i := range curr {
			extrapolated[i] = 2*curr[i] - prev[i]
		}
		cd.SetValues(extrapolated)
	default:
		// order 0, or not enough history yet: carry forward as-is.
	}
}

// LastConverged returns the most recently converged iterate, or nil before
// the first window completes.
func (cd *CouplingData) LastConverged() []float64 { return cd.lastConverged }
