package mesh

import (
	"testing"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

func TestSetVerticesAssignsContiguousIDs(t *testing.T) {
	m := New(0, "M", 2)
	m.SetVertex(geom.Coord{0, 0})
	ids := m.SetVertices([]geom.Coord{{1, 0}, {2, 0}, {3, 0}})
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	for i, id := range ids {
		want := core.VertexID(1 + i)
		if id != want {
			t.Errorf("ids[%d] = %v, want %v", i, id, want)
		}
	}
	if m.Size() != 4 {
		t.Errorf("Size() = %d, want 4", m.Size())
	}
	seen := map[core.VertexID]bool{}
	for _, v := range m.Vertices {
		if seen[v.ID] {
			t.Errorf("duplicate vertex id %v", v.ID)
		}
		seen[v.ID] = true
	}
}

func TestCreateUniqueEdgeDeduplicates(t *testing.T) {
	m := New(0, "M", 2)
	ids := m.SetVertices([]geom.Coord{{0, 0}, {1, 0}, {0, 1}})
	a, b, c := ids[0], ids[1], ids[2]

	e1, err := m.CreateUniqueEdge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := m.CreateUniqueEdge(b, a) // reversed order, same endpoints
	if err != nil {
		t.Fatal(err)
	}
	if e1 != e2 {
		t.Errorf("edge(a,b) != edge(b,a): %d vs %d", e1, e2)
	}
	e3, err := m.CreateUniqueEdge(a, c)
	if err != nil {
		t.Fatal(err)
	}
	if e3 == e1 {
		t.Errorf("distinct endpoint sets produced same edge index")
	}
	if len(m.Edges) != 2 {
		t.Errorf("len(Edges) = %d, want 2", len(m.Edges))
	}
}

func TestCreateTriangleWithEdgesIsIdempotent(t *testing.T) {
	m := New(0, "M", 2)
	ids := m.SetVertices([]geom.Coord{{0, 0}, {1, 0}, {0, 1}})
	a, b, c := ids[0], ids[1], ids[2]

	if _, err := m.CreateTriangleWithEdges(a, b, c); err != nil {
		t.Fatal(err)
	}
	if len(m.Edges) != 3 {
		t.Fatalf("len(Edges) = %d, want 3", len(m.Edges))
	}
	// A second triangle sharing edge (a,b) must not duplicate it.
	d := m.SetVertex(geom.Coord{1, 1})
	if _, err := m.CreateTriangleWithEdges(a, b, d); err != nil {
		t.Fatal(err)
	}
	if len(m.Edges) != 5 { // +2 new edges (a,d) and (b,d); (a,b) reused
		t.Errorf("len(Edges) = %d, want 5", len(m.Edges))
	}
}

func TestSetQuadSplitsShorterDiagonal(t *testing.T) {
	m := New(0, "M", 2)
	// Unit square: diagonal (0,2) == diagonal (1,3) in length; tie-break
	// picks (v0,v2).
	ids := m.SetVertices([]geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	order := [4]core.VertexID{ids[0], ids[1], ids[2], ids[3]}
	coords := [4]geom.Coord{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	idx, err := m.SetQuad(order, coords)
	if err != nil {
		t.Fatal(err)
	}
	q := m.Quads[idx]
	triA := m.Triangles[q.Triangles[0]]
	if triA.V[0] != ids[0] || triA.V[2] != ids[2] {
		t.Errorf("expected split along (v0,v2), got triangle %v", triA.V)
	}
}

func TestDataBufferResizesOnVertexInsertion(t *testing.T) {
	m := New(0, "M", 2)
	d := NewData(0, "Velocities", 2, false, 2)
	m.AddData(d)
	m.SetVertex(geom.Coord{0, 0})
	if len(d.Values()) != 2 {
		t.Fatalf("len(values) = %d, want 2", len(d.Values()))
	}
	m.SetVertices([]geom.Coord{{1, 0}, {2, 0}})
	if len(d.Values()) != 6 {
		t.Fatalf("len(values) = %d, want 6", len(d.Values()))
	}
}

func TestAllocateDataValuesMatchesInvariant(t *testing.T) {
	d := NewData(0, "Forces", 3, false, 3)
	d.AllocateDataValues(5)
	if len(d.Values()) != 15 {
		t.Errorf("len(values) = %d, want 15", len(d.Values()))
	}
}

func TestSetVertexGradientRejectedWithoutFlag(t *testing.T) {
	d := NewData(0, "Temperature", 1, false, 2)
	d.AllocateDataValues(1)
	if err := d.SetVertexGradient(0, []float64{1, 2}); err == nil {
		t.Errorf("expected error writing gradient on a data field without HasGradient")
	}
}

func TestAccessRegionRejectsSmallerThanOwned(t *testing.T) {
	m := New(0, "M", 2)
	m.SetVertices([]geom.Coord{{0, 0}, {1, 1}})
	small, _ := geom.NewBoundingBox(2, geom.Coord{0.2, 0.2}, geom.Coord{0.3, 0.3})
	if err := m.SetAccessRegion(small); err == nil {
		t.Errorf("expected error for access region strictly smaller than owned bbox")
	}
}
