package acceleration

import (
	"fmt"
	"sort"

	"github.com/opencoupler/core/internal/core"
)

// DataMap is the ordered view of coupling data the implicit coupling scheme
// hands to an Acceleration at each iteration: keyed by data id so
// an acceleration variant can concatenate/split several fields into one
// combined residual vector.
type DataMap map[core.DataID]*CouplingData

// orderedIDs returns m's keys in a stable order so every acceleration
// variant concatenates fields the same way across calls (map iteration order
// is not stable in Go).
func (m DataMap) orderedIDs() []core.DataID {
	ids := make([]core.DataID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// concat stacks every data field's current values into one vector, in
// orderedIDs order, plus the offsets needed to split it back apart.
func (m DataMap) concat() (values []float64, offsets []int) {
	ids := m.orderedIDs()
	offsets = make([]int, len(ids)+1)
	for i, id := range ids {
		offsets[i+1] = offsets[i] + len(m[id].Values())
	}
	values = make([]float64, offsets[len(ids)])
	for i, id := range ids {
		copy(values[offsets[i]:offsets[i+1]], m[id].Values())
	}
	return values, offsets
}

func (m DataMap) scatter(values []float64) {
	ids := m.orderedIDs()
	offset := 0
	for _, id := range ids {
		d := m[id]
		n := len(d.Values())
		d.SetValues(values[offset : offset+n])
		offset += n
	}
}

// Acceleration is the fixed-point accelerator plugged into the implicit
// coupling scheme. The scheme calls PerformAcceleration on every
// failed iteration and IterationsConverged once a window's fixed point is
// reached; Initialize runs once before the first iteration of a run.
type Acceleration interface {
	Initialize(data DataMap) error
	// PerformAcceleration mutates every CouplingData's live buffer in data
	// in place to produce the next iteration's predictor.
	PerformAcceleration(data DataMap) error
	// IterationsConverged is called once a time window's fixed point is
	// reached, so quasi-Newton variants can roll their iteration history
	// into the cross-window history used by the next window's first step.
	IterationsConverged(data DataMap) error
	// GetLSSystemCols reports the current least-squares system's column
	// count (0 for non-quasi-Newton variants).
	GetLSSystemCols() int
	// GetDeletedColumns reports columns dropped this call for
	// ill-conditioning (quasi-Newton variants only).
	GetDeletedColumns() int
	// GetDroppedColumns reports columns dropped for exceeding the
	// configured reused-time-windows limit (quasi-Newton variants only).
	GetDroppedColumns() int
}

// ConstantRelaxation implements the simplest Acceleration: every iterate is
// relaxed toward the previous one by a fixed factor, independent of residual
// history.
//
//	x_{k+1} = (1 - omega) * x_k^prev + omega * x_k~
type ConstantRelaxation struct {
	omega float64
}

// NewConstantRelaxation builds a constant-relaxation accelerator with the
// given under-relaxation factor in (0, 1].
func NewConstantRelaxation(omega float64) (*ConstantRelaxation, error) {
	if omega <= 0 || omega > 1 {
		return nil, fmt.Errorf("relaxation factor %v must be in (0, 1]: %w", omega, core.ErrInvalidArgument.Error())
	}
	return &ConstantRelaxation{omega: omega}, nil
}

// Initialize implements Acceleration; constant relaxation carries no state.
func (a *ConstantRelaxation) Initialize(DataMap) error { return nil }

// PerformAcceleration implements Acceleration.
func (a *ConstantRelaxation) PerformAcceleration(data DataMap) error {
	for _, id := range data.orderedIDs() {
		d := data[id]
		prev := d.PreviousIteration()
		cur := d.Values()
		if len(prev) != len(cur) {
			return fmt.Errorf("data %v: previous iteration has %d values, current has %d: %w", id, len(prev), len(cur), core.ErrInvalidState.Error())
		}
		next := make([]float64, len(cur))
		for i := range cur {
			next[i] = (1-a.omega)*prev[i] + a.omega*cur[i]
		}
		d.SetValues(next)
	}
	return nil
}

// IterationsConverged implements Acceleration; nothing to roll forward.
func (a *ConstantRelaxation) IterationsConverged(DataMap) error { return nil }

// GetLSSystemCols implements Acceleration.
func (a *ConstantRelaxation) GetLSSystemCols() int { return 0 }

// GetDeletedColumns implements Acceleration.
func (a *ConstantRelaxation) GetDeletedColumns() int { return 0 }

// GetDroppedColumns implements Acceleration.
func (a *ConstantRelaxation) GetDroppedColumns() int { return 0 }
