package mapping

import (
	"reflect"
	"testing"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

func TestNearestNeighborScenario1(t *testing.T) {
	// Grounded on scenario 1 (Direct mesh access, explicit + mapping).
	a := []geom.Coord{{0.2, 0.2}, {0.1, 0.6}, {0.1, 0.0}, {0.1, 0.0}}
	b := []geom.Coord{{0, 0}, {0, 0.05}, {0.1, 0.1}, {0.1, 0}, {0.5, 0.5}}

	nn := NewNearestNeighbor(1, b, a) // maps Forces@MeshB onto MeshA
	if err := nn.Compute(ConstraintConsistent); err != nil {
		t.Fatal(err)
	}
	out, err := nn.Map([]float64{0, 1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 4, 3, 3}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Map() = %v, want %v", out, want)
	}
}

func TestDataContextAppendMappingValidatesSides(t *testing.T) {
	dc := NewDataContext(core.DataID(1), core.MeshID(0), "Forces")
	mc := MappingContext{Mapping: &NearestNeighbor{}, FromData: core.DataID(1), ToData: core.DataID(2), Timing: TimingOnAdvance}
	if err := dc.AppendMapping(mc); err != nil {
		t.Fatal(err)
	}
	if !dc.HasWriteMapping() {
		t.Errorf("expected HasWriteMapping true")
	}
	if dc.HasReadMapping() {
		t.Errorf("expected HasReadMapping false")
	}

	bad := MappingContext{Mapping: &NearestNeighbor{}, FromData: core.DataID(5), ToData: core.DataID(6), Timing: TimingOnAdvance}
	if err := dc.AppendMapping(bad); err == nil {
		t.Errorf("expected error appending mapping that doesn't reference provided data")
	}
}
