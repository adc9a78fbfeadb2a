package acceleration

import (
	"math"
	"testing"

	"github.com/opencoupler/core/internal/core"
)

func newTestData(id core.DataID, values []float64) *CouplingData {
	buf := append([]float64(nil), values...)
	cd, err := NewCouplingData(id, &buf, 0, false)
	if err != nil {
		panic(err)
	}
	return cd
}

func TestConstantRelaxationRelaxesTowardPrevious(t *testing.T) {
	cr, err := NewConstantRelaxation(0.25)
	if err != nil {
		t.Fatal(err)
	}
	cd := newTestData(0, []float64{1, 1})
	cd.StoreIteration() // previous iteration is {1,1}
	cd.SetValues([]float64{5, 5})

	data := DataMap{0: cd}
	if err := cr.PerformAcceleration(data); err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 2} // 0.75*1 + 0.25*5
	got := cd.Values()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("relaxed value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConstantRelaxationRejectsOutOfRangeOmega(t *testing.T) {
	if _, err := NewConstantRelaxation(0); err == nil {
		t.Fatal("expected rejection of omega=0")
	}
	if _, err := NewConstantRelaxation(1.5); err == nil {
		t.Fatal("expected rejection of omega=1.5")
	}
}

func TestAitkenConvergesOnLinearResidual(t *testing.T) {
	// A fixed-point map whose residual is exactly linear in x (r(x) = a - x)
	// is a case Aitken's extrapolation solves in one corrective step once it
	// has two residuals to compare, since the true Jacobian is the identity.
	aitken, err := NewAitken(0.5)
	if err != nil {
		t.Fatal(err)
	}
	const target = 10.0
	iterate := func(x float64) float64 { return target } // r = target - x

	cd := newTestData(0, []float64{0})
	data := DataMap{0: cd}

	x := 0.0
	for i := 0; i < 4; i++ {
		cd.StoreIteration()
		x = iterate(x)
		cd.SetValues([]float64{x})
		if err := aitken.PerformAcceleration(data); err != nil {
			t.Fatal(err)
		}
		x = cd.Values()[0]
	}
	if math.Abs(x-target) > 1e-6 {
		t.Fatalf("Aitken did not converge: got %v, want %v", x, target)
	}
}

func TestAitkenResetsOmegaOnConvergence(t *testing.T) {
	aitken, err := NewAitken(0.5)
	if err != nil {
		t.Fatal(err)
	}
	cd := newTestData(0, []float64{0})
	data := DataMap{0: cd}
	cd.StoreIteration()
	cd.SetValues([]float64{1})
	if err := aitken.PerformAcceleration(data); err != nil {
		t.Fatal(err)
	}
	if err := aitken.IterationsConverged(data); err != nil {
		t.Fatal(err)
	}
	if aitken.omega != 0.5 {
		t.Errorf("omega after IterationsConverged = %v, want initial 0.5", aitken.omega)
	}
}

func TestIQNILSFirstIterationFallsBackToConstantRelaxation(t *testing.T) {
	iqn, err := NewIQNILS(0.1, 4)
	if err != nil {
		t.Fatal(err)
	}
	cd := newTestData(0, []float64{1, 1})
	cd.StoreIteration()
	cd.SetValues([]float64{5, 5})

	data := DataMap{0: cd}
	if err := iqn.PerformAcceleration(data); err != nil {
		t.Fatal(err)
	}
	want := 1 + 0.1*(5-1)
	if math.Abs(cd.Values()[0]-want) > 1e-9 {
		t.Fatalf("first IQN-ILS iteration = %v, want constant-relaxation result %v", cd.Values()[0], want)
	}
	if iqn.GetLSSystemCols() != 0 {
		t.Errorf("GetLSSystemCols() = %d after only one iteration, want 0", iqn.GetLSSystemCols())
	}
}

func TestIQNILSBuildsLSColumnAfterSecondIteration(t *testing.T) {
	iqn, err := NewIQNILS(0.1, 4)
	if err != nil {
		t.Fatal(err)
	}
	cd := newTestData(0, []float64{0})
	data := DataMap{0: cd}

	cd.StoreIteration()
	cd.SetValues([]float64{10})
	if err := iqn.PerformAcceleration(data); err != nil {
		t.Fatal(err)
	}

	cd.StoreIteration()
	cd.SetValues([]float64{cd.Values()[0] + 4})
	if err := iqn.PerformAcceleration(data); err != nil {
		t.Fatal(err)
	}

	if iqn.GetLSSystemCols() != 1 {
		t.Fatalf("GetLSSystemCols() = %d after second iteration, want 1", iqn.GetLSSystemCols())
	}
}

func TestIQNILSDropsColumnsOutsideReuseWindow(t *testing.T) {
	iqn, err := NewIQNILS(0.1, 0)
	if err != nil {
		t.Fatal(err)
	}
	cd := newTestData(0, []float64{0})
	data := DataMap{0: cd}

	cd.StoreIteration()
	cd.SetValues([]float64{10})
	_ = iqn.PerformAcceleration(data)
	cd.StoreIteration()
	cd.SetValues([]float64{cd.Values()[0] + 4})
	_ = iqn.PerformAcceleration(data)

	if iqn.GetLSSystemCols() == 0 {
		t.Fatal("expected at least one LS column before the window converges")
	}
	if err := iqn.IterationsConverged(data); err != nil {
		t.Fatal(err)
	}
	if got := iqn.GetDroppedColumns(); got == 0 {
		t.Errorf("GetDroppedColumns() = %d, want > 0 with reusedWindows=0", got)
	}
	if iqn.GetLSSystemCols() != 0 {
		t.Errorf("GetLSSystemCols() = %d after convergence with reusedWindows=0, want 0", iqn.GetLSSystemCols())
	}
}
