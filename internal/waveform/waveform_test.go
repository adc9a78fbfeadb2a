package waveform

import "testing"

func TestSampleAtEndpoints(t *testing.T) {
	w, err := New(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Initialize([]float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := w.Store([]float64{10, 20}); err != nil {
		t.Fatal(err)
	}
	// order 1, 2 samples: oldest=[0,0] (t=0), newest=[10,20] (t=1).
	got, err := w.SampleAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 10 || got[1] != 20 {
		t.Errorf("SampleAt(1) = %v, want [10 20]", got)
	}
	got, err = w.SampleAt(0)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("SampleAt(0) = %v, want [0 0]", got)
	}
	got, err = w.SampleAt(0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 5 || got[1] != 10 {
		t.Errorf("SampleAt(0.5) = %v, want [5 10]", got)
	}
}

func TestMoveToNextWindowRotates(t *testing.T) {
	w, _ := New(1, 1)
	_ = w.Initialize([]float64{0})
	_ = w.Store([]float64{1})
	w.MoveToNextWindow()
	got, _ := w.SampleAt(0)
	if got[0] != 1 {
		t.Errorf("after rotate, SampleAt(0) = %v, want [1] (old newest becomes oldest)", got)
	}
	_ = w.Store([]float64{2})
	got, _ = w.SampleAt(1)
	if got[0] != 2 {
		t.Errorf("SampleAt(1) = %v, want [2]", got)
	}
}

func TestOrderZeroAlwaysReturnsMostRecent(t *testing.T) {
	w, _ := New(0, 1)
	_ = w.Initialize([]float64{7})
	got, err := w.SampleAt(0.3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 7 {
		t.Errorf("order-0 SampleAt(0.3) = %v, want [7]", got)
	}
}

func TestSampleAtRejectsOutOfRange(t *testing.T) {
	w, _ := New(0, 1)
	_ = w.Initialize([]float64{1})
	if _, err := w.SampleAt(1.5); err == nil {
		t.Errorf("expected error for t outside [0,1]")
	}
}
