package acceleration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/opencoupler/core/internal/core"
)

// iqnColumn is one column of the quasi-Newton least-squares system: the
// residual difference dR = r_k - r_{k-1} and the matching output difference
// dX = x~_k - x~_{k-1}, tagged with the time window it was recorded in so
// IterationsConverged can age columns out once they exceed the configured
// reuse horizon.
type iqnColumn struct {
	dR, dX []float64
	window int
}

// IQNILS implements the interface quasi-Newton inverse least-squares
// accelerator: it builds a least-squares model V*alpha ≈ -r_k from the
// history of residual/output differences and uses it to jump toward the
// fixed point directly, falling back to constant relaxation for the very
// first iteration of a run, when no history exists yet.
type IQNILS struct {
	initialRelaxation float64
	// filterThreshold drops a column from the least-squares system when the
	// corresponding diagonal entry of its QR factorization's R falls below
	// this magnitude relative to the leading entry, a symptom of
	// near-linear-dependence with an already-kept column.
	filterThreshold float64
	reusedWindows int

	cols []iqnColumn
	prevResidual []float64
	prevOutput []float64
	haveHistory bool
	windowIndex int

	lastDeletedColumns int
	lastDroppedColumns int
}

// NewIQNILS builds an IQN-ILS accelerator. reusedWindows bounds how many
// past time windows' columns stay in the least-squares system (0 means only
// the current window's columns are kept).
func NewIQNILS(initialRelaxation float64, reusedWindows int) (*IQNILS, error) {
	if initialRelaxation <= 0 || initialRelaxation > 1 {
		return nil, fmt.Errorf("initial relaxation factor %v must be in (0, 1]: %w", initialRelaxation, core.ErrInvalidArgument.Error())
	}
	if reusedWindows < 0 {
		return nil, fmt.Errorf("reused time windows %d must be >= 0: %w", reusedWindows, core.ErrInvalidArgument.Error())
	}
	return &IQNILS{initialRelaxation: initialRelaxation, filterThreshold: 1e-10, reusedWindows: reusedWindows}, nil
}

// Initialize implements Acceleration.
func (a *IQNILS) Initialize(DataMap) error { return nil }

// PerformAcceleration implements Acceleration.
func (a *IQNILS) PerformAcceleration(data DataMap) error {
	cur, _ := data.concat()
	prev, _ := prevConcat(data)
	if len(cur) != len(prev) {
		return fmt.Errorf("residual dimension mismatch: %d vs %d: %w", len(cur), len(prev), core.ErrInvalidState.Error())
	}

	residual := make([]float64, len(cur))
	for i := range cur {
		residual[i] = cur[i] - prev[i]
	}

	if a.haveHistory && len(a.prevResidual) == len(residual) {
		dR := make([]float64, len(residual))
		dX := make([]float64, len(residual))
		for i := range residual {
			dR[i] = residual[i] - a.prevResidual[i]
			dX[i] = cur[i] - a.prevOutput[i]
		}
		if norm := mat.Norm(mat.NewVecDense(len(dR), dR), 2); norm > 0 {
			a.cols = append(a.cols, iqnColumn{dR: dR, dX: dX, window: a.windowIndex})
		}
	}

	var next []float64
	a.lastDeletedColumns = 0
	if len(a.cols) == 0 {
		next = make([]float64, len(cur))
		for i := range cur {
			next[i] = prev[i] + a.initialRelaxation*residual[i]
		}
	} else {
		alpha, keptCols, err := a.solveLeastSquares(residual)
		if err != nil {
			return err
		}
		a.lastDeletedColumns = len(a.cols) - len(keptCols)
		a.cols = keptCols

		next = make([]float64, len(cur))
		copy(next, cur)
		for j, col := range a.cols {
			for i := range next {
				next[i] += alpha[j] * col.dX[i]
			}
		}
	}

	a.prevResidual = residual
	a.prevOutput = append([]float64(nil), cur...)
	a.haveHistory = true

	data.scatter(next)
	return nil
}

// solveLeastSquares finds alpha minimizing ||V*alpha + residual||_2 where V's
// columns are the kept dR history, dropping columns whose QR factorization
// reveals near-linear-dependence with already-kept columns.
func (a *IQNILS) solveLeastSquares(residual []float64) ([]float64, []iqnColumn, error) {
	m := len(residual)
	kept := make([]iqnColumn, 0, len(a.cols))
	var v mat.Dense
	for _, col := range a.cols {
		candidate := mat.NewDense(m, len(kept)+1, nil)
		for j, k := range kept {
			candidate.SetCol(j, k.dR)
		}
		candidate.SetCol(len(kept), col.dR)

		var qr mat.QR
		qr.Factorize(candidate)
		var r mat.Dense
		qr.RTo(&r)
		diag := math.Abs(r.At(len(kept), len(kept)))
		lead := math.Abs(r.At(0, 0))
		if lead > 0 && diag/lead < a.filterThreshold {
			continue // near-linearly-dependent with an already-kept column
		}
		kept = append(kept, col)
	}
	if len(kept) == 0 {
		return nil, kept, nil
	}

	v.ReuseAs(m, len(kept))
	for j, col := range kept {
		v.SetCol(j, col.dR)
	}
	neg := make([]float64, m)
	for i := range residual {
		neg[i] = -residual[i]
	}
	b := mat.NewVecDense(m, neg)

	var qr mat.QR
	qr.Factorize(&v)
	var alpha mat.VecDense
	if err := qr.SolveVecTo(&alpha, false, b); err != nil {
		return nil, nil, fmt.Errorf("least-squares solve: %v: %w", err, core.ErrInvalidState.Error())
	}
	out := make([]float64, len(kept))
	for j := range out {
		out[j] = alpha.AtVec(j)
	}
	return out, kept, nil
}

// IterationsConverged implements Acceleration: it advances the window index
// and ages out columns recorded more than reusedWindows windows ago.
func (a *IQNILS) IterationsConverged(DataMap) error {
	a.windowIndex++
	cutoff := a.windowIndex - a.reusedWindows
	kept := a.cols[:0]
	dropped := 0
	for _, col := range a.cols {
		if col.window < cutoff {
			dropped++
			continue
		}
		kept = append(kept, col)
	}
	a.cols = kept
	a.lastDroppedColumns = dropped
	return nil
}

// GetLSSystemCols implements Acceleration.
func (a *IQNILS) GetLSSystemCols() int { return len(a.cols) }

// GetDeletedColumns implements Acceleration.
func (a *IQNILS) GetDeletedColumns() int { return a.lastDeletedColumns }

// GetDroppedColumns implements Acceleration.
func (a *IQNILS) GetDroppedColumns() int { return a.lastDroppedColumns }
