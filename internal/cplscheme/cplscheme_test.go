package cplscheme

import (
	"testing"

	"github.com/opencoupler/core/internal/acceleration"
	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/core"
)

func newTestCouplingData(t *testing.T, id core.DataID, initial []float64) *acceleration.CouplingData {
	t.Helper()
	buf := append([]float64(nil), initial...)
	cd, err := acceleration.NewCouplingData(id, &buf, 0, false)
	if err != nil {
		t.Fatalf("NewCouplingData: %v", err)
	}
	return cd
}

func TestAbsoluteConvergenceMeasure(t *testing.T) {
	m := NewAbsoluteConvergenceMeasure(0.1)
	if m.Measure([]float64{1, 1}, []float64{1.2, 1.2}) {
		t.Fatalf("expected non-convergence for a large step")
	}
	if !m.Measure([]float64{1, 1}, []float64{1.01, 1.0}) {
		t.Fatalf("expected convergence for a small step")
	}
}

func TestRelativeConvergenceMeasure(t *testing.T) {
	m := NewRelativeConvergenceMeasure(0.01)
	if !m.Measure([]float64{100, 100}, []float64{100.5, 100.5}) {
		t.Fatalf("0.5/141.4 relative step should converge under a 1%% limit")
	}
	if m.Measure([]float64{100, 100}, []float64{105, 105}) {
		t.Fatalf("5%% relative step should not converge under a 1%% limit")
	}
}

func TestMeasureConvergenceSufficesOverridesUnmetNonStrict(t *testing.T) {
	sufficing := newTestCouplingData(t, 1, []float64{1})
	unmet := newTestCouplingData(t, 2, []float64{1})
	sufficing.StoreIteration()
	unmet.StoreIteration()
	sufficing.SetValues([]float64{1})
	unmet.SetValues([]float64{5})

	contexts := []convergenceMeasureContext{
		{data: sufficing, measure: NewAbsoluteConvergenceMeasure(0.01), suffices: true},
		{data: unmet, measure: NewAbsoluteConvergenceMeasure(0.01), suffices: false},
	}
	converged, err := measureConvergence(contexts, 2, 10)
	if err != nil {
		t.Fatalf("measureConvergence: %v", err)
	}
	if !converged {
		t.Fatalf("a sufficing measure with no strict measure unmet should converge overall")
	}
}

func TestMeasureConvergenceStrictUnmetAtMaxIterationsFails(t *testing.T) {
	strictData := newTestCouplingData(t, 1, []float64{1})
	strictData.StoreIteration()
	strictData.SetValues([]float64{5})

	contexts := []convergenceMeasureContext{
		{data: strictData, measure: NewAbsoluteConvergenceMeasure(0.01), strict: true},
	}
	_, err := measureConvergence(contexts, 10, 10)
	if err == nil {
		t.Fatalf("expected an error when a strict measure is unmet at the iteration cap")
	}
}

// memPair builds two BaseCouplingScheme-ready Communications connected by
// in-memory pipes, plus one distributed channel configured under meshID on
// both sides.
func memPair(meshID core.MeshID) (a, b *comm.MemCommunication) {
	pa, pb := comm.NewMemPrimaryPair()
	a = comm.NewMemCommunication(pa)
	b = comm.NewMemCommunication(pb)
	da, db := comm.NewMemDistributedPair()
	a.ConfigurePartitions(meshID, da)
	b.ConfigurePartitions(meshID, db)
	return a, b
}

// TestSerialExplicitRoundTrip runs one window of a two-participant
// SerialExplicit scheme end to end: the first participant sends x, the
// second receives it, computes y, and sends it back; the first then
// receives y. This exercises the full send/receive ordering without an
// iteration loop, since the explicit variant measures no convergence.
func TestSerialExplicitRoundTrip(t *testing.T) {
	const meshID = core.MeshID(1)
	commFirst, commSecond := memPair(meshID)

	firstOut := newTestCouplingData(t, 10, []float64{2})
	secondIn := newTestCouplingData(t, 10, []float64{0})
	secondOut := newTestCouplingData(t, 20, []float64{0})
	firstIn := newTestCouplingData(t, 20, []float64{0})

	first, err := NewSerialExplicit(BaseConfig{
		LocalParticipant:  "A",
		FirstParticipant:  "A",
		SecondParticipant: "B",
		Communication:     commFirst,
		MaxTime:           UndefinedMaxTime,
		MaxTimeWindows:    1,
		TimeWindowSize:    1,
	})
	if err != nil {
		t.Fatalf("NewSerialExplicit(A): %v", err)
	}
	base1 := first.(*BaseCouplingScheme)
	base1.AddExchange(&ExchangeData{Data: firstOut, Name: "x", MeshID: meshID, Dim: 1}, true)
	base1.AddExchange(&ExchangeData{Data: firstIn, Name: "y", MeshID: meshID, Dim: 1}, false)

	second, err := NewSerialExplicit(BaseConfig{
		LocalParticipant:  "B",
		FirstParticipant:  "A",
		SecondParticipant: "B",
		Communication:     commSecond,
		MaxTime:           UndefinedMaxTime,
		MaxTimeWindows:    1,
		TimeWindowSize:    1,
	})
	if err != nil {
		t.Fatalf("NewSerialExplicit(B): %v", err)
	}
	base2 := second.(*BaseCouplingScheme)
	base2.AddExchange(&ExchangeData{Data: secondIn, Name: "x", MeshID: meshID, Dim: 1}, false)
	base2.AddExchange(&ExchangeData{Data: secondOut, Name: "y", MeshID: meshID, Dim: 1}, true)

	if err := first.Initialize(0, 0); err != nil {
		t.Fatalf("first.Initialize: %v", err)
	}
	if err := second.Initialize(0, 0); err != nil {
		t.Fatalf("second.Initialize: %v", err)
	}

	if err := base1.AddComputedTime(1); err != nil {
		t.Fatalf("AddComputedTime(A): %v", err)
	}
	if err := base2.AddComputedTime(1); err != nil {
		t.Fatalf("AddComputedTime(B): %v", err)
	}

	if err := first.FirstExchange(); err != nil {
		t.Fatalf("first.FirstExchange: %v", err)
	}
	if err := second.FirstExchange(); err != nil {
		t.Fatalf("second.FirstExchange: %v", err)
	}

	// serialExchangeSecondExplicit receives x and sends y back within the
	// same call, so secondOut must hold the value to send before the call
	// is made; here it carries whatever the solver last wrote (its initial
	// zero value).
	if err := second.SecondExchange(); err != nil {
		t.Fatalf("second.SecondExchange: %v", err)
	}
	if got := secondIn.Values()[0]; got != 2 {
		t.Fatalf("expected secondIn = 2 after receiving firstOut, got %v", got)
	}
	if !second.HasDataBeenReceived() {
		t.Fatalf("expected second.HasDataBeenReceived after SecondExchange")
	}

	if err := first.SecondExchange(); err != nil {
		t.Fatalf("first.SecondExchange: %v", err)
	}
	if got := firstIn.Values()[0]; got != 0 {
		t.Fatalf("expected firstIn = 0 (secondOut's untouched initial value), got %v", got)
	}
	if !second.IsTimeWindowComplete() || !first.IsTimeWindowComplete() {
		t.Fatalf("expected both sides to report the single time window complete")
	}
}

func TestCompositionalDelegatesOngoingAndCompleteness(t *testing.T) {
	const meshID = core.MeshID(1)
	commFirst, commSecond := memPair(meshID)

	explicitFirst, err := NewSerialExplicit(BaseConfig{
		LocalParticipant:  "A",
		FirstParticipant:  "A",
		SecondParticipant: "B",
		Communication:     commFirst,
		MaxTime:           UndefinedMaxTime,
		MaxTimeWindows:    1,
		TimeWindowSize:    1,
	})
	if err != nil {
		t.Fatalf("NewSerialExplicit: %v", err)
	}
	explicitSecond, err := NewSerialExplicit(BaseConfig{
		LocalParticipant:  "B",
		FirstParticipant:  "A",
		SecondParticipant: "B",
		Communication:     commSecond,
		MaxTime:           UndefinedMaxTime,
		MaxTimeWindows:    1,
		TimeWindowSize:    1,
	})
	if err != nil {
		t.Fatalf("NewSerialExplicit: %v", err)
	}

	comp := NewCompositional(explicitFirst, explicitSecond)
	if err := comp.Initialize(0, 0); err != nil {
		t.Fatalf("comp.Initialize: %v", err)
	}
	if !comp.IsCouplingOngoing() {
		t.Fatalf("expected the composition to still be ongoing before any window runs")
	}
	if comp.IsTimeWindowComplete() {
		t.Fatalf("no window has been exchanged yet")
	}
}
