package acceleration

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/opencoupler/core/internal/core"
)

// Aitken implements vector Aitken $\Delta^2$ relaxation: the relaxation factor is re-derived from consecutive residuals
// within a time window instead of held fixed, typically converging faster
// than ConstantRelaxation once the residual direction stabilizes.
type Aitken struct {
	initialOmega float64

	omega float64
	havePrevious bool
	prevResidual []float64
}

// NewAitken builds an Aitken accelerator seeded with initialOmega for the
// first iteration of every time window.
func NewAitken(initialOmega float64) (*Aitken, error) {
	if initialOmega <= 0 || initialOmega > 1 {
		return nil, fmt.Errorf("initial relaxation factor %v must be in (0, 1]: %w", initialOmega, core.ErrInvalidArgument.Error())
	}
	return &Aitken{initialOmega: initialOmega, omega: initialOmega}, nil
}

// Initialize implements Acceleration.
func (a *Aitken) Initialize(DataMap) error { return nil }

// PerformAcceleration implements Acceleration. It computes the combined
// residual r = x~ - x_prev across every field in data, updates omega from
// the previous iteration's residual, and relaxes every field by the
// resulting factor: x_{k+1} = x_k^prev + omega * r.
func (a *Aitken) PerformAcceleration(data DataMap) error {
	cur, _ := data.concat()
	prev, _ := prevConcat(data)
	if len(cur) != len(prev) {
		return fmt.Errorf("residual dimension mismatch: %d vs %d: %w", len(cur), len(prev), core.ErrInvalidState.Error())
	}

	residual := make([]float64, len(cur))
	for i := range cur {
		residual[i] = cur[i] - prev[i]
	}

	if a.havePrevious && len(a.prevResidual) == len(residual) {
		diff := make([]float64, len(residual))
		for i := range residual {
			diff[i] = residual[i] - a.prevResidual[i]
		}
		denom := floats.Dot(diff, diff)
		if denom > 0 {
			a.omega = -a.omega * floats.Dot(a.prevResidual, diff) / denom
		}
	}
	a.prevResidual = residual
	a.havePrevious = true

	next := make([]float64, len(cur))
	for i := range cur {
		next[i] = prev[i] + a.omega*residual[i]
	}
	data.scatter(next)
	return nil
}

// IterationsConverged implements Acceleration: the next window restarts
// from the configured initial relaxation factor.
func (a *Aitken) IterationsConverged(DataMap) error {
	a.omega = a.initialOmega
	a.havePrevious = false
	a.prevResidual = nil
	return nil
}

// GetLSSystemCols implements Acceleration; Aitken keeps no least-squares
// system.
func (a *Aitken) GetLSSystemCols() int { return 0 }

// GetDeletedColumns implements Acceleration.
func (a *Aitken) GetDeletedColumns() int { return 0 }

// GetDroppedColumns implements Acceleration.
func (a *Aitken) GetDroppedColumns() int { return 0 }

// prevConcat stacks every field's PreviousIteration() snapshot the same way
// DataMap.concat stacks current values, so residuals line up index for
// index.
func prevConcat(m DataMap) (values []float64, offsets []int) {
	ids := m.orderedIDs()
	offsets = make([]int, len(ids)+1)
	for i, id := range ids {
		offsets[i+1] = offsets[i] + len(m[id].PreviousIteration())
	}
	values = make([]float64, offsets[len(ids)])
	for i, id := range ids {
		copy(values[offsets[i]:offsets[i+1]], m[id].PreviousIteration())
	}
	return values, offsets
}
