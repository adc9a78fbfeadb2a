// Package mesh implements the Mesh & Data Store (component A): vertices,
// edges, triangles, quads and tetrahedra, plus the per-data value and
// gradient buffers attached to a mesh.
package mesh

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

// Vertex is a single mesh point, copied by value into the mesh's vertex
// slice. Index holds its coordinates; its ID is assigned on creation and
// equals the mesh's vertex count at the time of insertion.
type Vertex struct {
	Index geom.Coord
	ID core.VertexID
}

// Edge connects two vertices of the same mesh by id.
type Edge struct {
	A, B core.VertexID
}

func normalizedEdgeKey(a, b core.VertexID) (core.VertexID, core.VertexID) {
	if a > b {
		return b, a
	}
	return a, b
}

// Triangle connects three vertices (and, once built, three edges) of the
// same mesh.
type Triangle struct {
	V [3]core.VertexID
	Edges [3]int // indices into Mesh.Edges
}

// Quad is stored decomposed: the four corner vertices plus the two triangle
// indices its diagonal split produced.
type Quad struct {
	V [4]core.VertexID
	Triangles [2]int // indices into Mesh.Triangles
}

// Tetrahedron is stored as its 4 vertices plus the 4 triangle and 6 edge
// indices that back it.
type Tetrahedron struct {
	V [4]core.VertexID
	Triangles [4]int
	Edges [6]int
}

// Mesh owns an ordered, append-only sequence of vertices plus optional
// connectivity. Invariant: every connectivity primitive references
// valid vertex ids of this mesh; ids are stable until Clear.
type Mesh struct {
	ID core.MeshID
	Name string
	Dims int

	Vertices []Vertex
	Edges []Edge
	Triangles []Triangle
	Quads []Quad
	Tetrahedra []Tetrahedron

	edgeIndex map[[2]core.VertexID]int

	// locked is set once partitioning completes; writes
	// after that must go through ResetMesh first.
	locked bool

	data map[core.DataID]*Data

	// accessRegion is unioned by SetAccessRegion; populated into accessRegionVertices at partitioning time.
	accessRegion geom.BoundingBox
	accessRegionSet bool
	accessRegionVertices []core.VertexID
}

// New creates an empty mesh. dims must be 2 or 3.
func New(id core.MeshID, name string, dims int) *Mesh {
	return &Mesh{
		ID: id,
		Name: name,
		Dims: dims,
		edgeIndex: make(map[[2]core.VertexID]int),
		data: make(map[core.DataID]*Data),
	}
}

// Locked reports whether the mesh has been locked by partitioning.
func (m *Mesh) Locked() bool { return m.locked }

// Lock prevents further vertex/connectivity writes until Clear.
func (m *Mesh) Lock() { m.locked = true }

// CheckWritable returns core.ErrWrongState if the mesh is locked.
func (m *Mesh) CheckWritable() error {
	if m.locked {
		return fmt.Errorf("mesh %q is locked: %w", m.Name, core.ErrWrongState.Error())
	}
	return nil
}

// SetVertex appends one vertex and returns its assigned id.
func (m *Mesh) SetVertex(coord geom.Coord) core.VertexID {
	id := core.VertexID(len(m.Vertices))
	m.Vertices = append(m.Vertices, Vertex{Index: coord, ID: id})
	for _, d := range m.data {
		d.growToVertexCount(len(m.Vertices))
	}
	return id
}

// SetVertices appends n vertices and returns their assigned ids, which form
// the contiguous range [oldSize, oldSize+n).
func (m *Mesh) SetVertices(coords []geom.Coord) []core.VertexID {
	ids := make([]core.VertexID, len(coords))
	for i, c := range coords {
		ids[i] = m.SetVertex(c)
	}
	return ids
}

// Size returns the current vertex count.
func (m *Mesh) Size() int { return len(m.Vertices) }

func (m *Mesh) validVertex(id core.VertexID) bool {
	return id >= 0 && int(id) < len(m.Vertices)
}

// CreateUniqueEdge returns the index of the edge between a and b, creating
// it if it does not already exist.
func (m *Mesh) CreateUniqueEdge(a, b core.VertexID) (int, error) {
	if !m.validVertex(a) || !m.validVertex(b) {
		return -1, fmt.Errorf("edge references vertex outside mesh %q: %w", m.Name, core.ErrInvalidArgument.Error())
	}
	key := [2]core.VertexID{}
	key[0], key[1] = normalizedEdgeKey(a, b)
	if idx, ok := m.edgeIndex[key]; ok {
		return idx, nil
	}
	idx := len(m.Edges)
	m.Edges = append(m.Edges, Edge{A: a, B: b})
	m.edgeIndex[key] = idx
	return idx, nil
}

// CreateTriangleWithEdges builds a triangle over a,b,c, creating any of its
// three edges that don't already exist.
func (m *Mesh) CreateTriangleWithEdges(a, b, c core.VertexID) (int, error) {
	e0, err := m.CreateUniqueEdge(a, b)
	if err != nil {
		return -1, err
	}
	e1, err := m.CreateUniqueEdge(b, c)
	if err != nil {
		return -1, err
	}
	e2, err := m.CreateUniqueEdge(c, a)
	if err != nil {
		return -1, err
	}
	idx := len(m.Triangles)
	m.Triangles = append(m.Triangles, Triangle{V: [3]core.VertexID{a, b, c}, Edges: [3]int{e0, e1, e2}})
	return idx, nil
}

// SetQuad builds a quad over four coplanar vertices, decomposing it into two
// triangles along the shorter diagonal. order is the canonical
// cyclic vertex order produced by the caller's convexity oracle.
func (m *Mesh) SetQuad(order [4]core.VertexID, coords [4]geom.Coord) (int, error) {
	for i, v := range order {
		if !m.validVertex(v) {
			return -1, fmt.Errorf("quad references vertex outside mesh %q: %w", m.Name, core.ErrInvalidArgument.Error())
		}
		for j := i + 1; j < 4; j++ {
			if order[j] == v {
				return -1, fmt.Errorf("quad has duplicate vertex %v: %w", v, core.ErrInvalidArgument.Error())
			}
		}
	}
	_, triA, triB := splitDiagonal(coords)
	ta, err := m.CreateTriangleWithEdges(order[triA[0]], order[triA[1]], order[triA[2]])
	if err != nil {
		return -1, err
	}
	tb, err := m.CreateTriangleWithEdges(order[triB[0]], order[triB[1]], order[triB[2]])
	if err != nil {
		return -1, err
	}
	idx := len(m.Quads)
	m.Quads = append(m.Quads, Quad{V: order, Triangles: [2]int{ta, tb}})
	return idx, nil
}

// SetTetrahedron builds a tetrahedron over four vertices: 4 triangles + 6
// edges + the tetra record.
func (m *Mesh) SetTetrahedron(v [4]core.VertexID) (int, error) {
	faces := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	var t Tetrahedron
	t.V = v
	for i, f := range faces {
		tri, err := m.CreateTriangleWithEdges(v[f[0]], v[f[1]], v[f[2]])
		if err != nil {
			return -1, err
		}
		t.Triangles[i] = tri
	}
	edgePairs := [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}
	for i, p := range edgePairs {
		e, err := m.CreateUniqueEdge(v[p[0]], v[p[1]])
		if err != nil {
			return -1, err
		}
		t.Edges[i] = e
	}
	idx := len(m.Tetrahedra)
	m.Tetrahedra = append(m.Tetrahedra, t)
	return idx, nil
}

// Clear empties all vertices, connectivity and data buffers, and unlocks the
// mesh. Used by ResetMesh; the partition for this
// mesh is left undefined until the next initialize().
func (m *Mesh) Clear() {
	m.Vertices = nil
	m.Edges = nil
	m.Triangles = nil
	m.Quads = nil
	m.Tetrahedra = nil
	m.edgeIndex = make(map[[2]core.VertexID]int)
	m.locked = false
	for _, d := range m.data {
		d.reset()
	}
	m.accessRegionVertices = nil
	log.Infof("mesh %q cleared; partition undefined until next initialize", m.Name)
}

// AddData attaches a Data field to this mesh.
func (m *Mesh) AddData(d *Data) {
	m.data[d.ID] = d
	d.growToVertexCount(len(m.Vertices))
}

// Data looks up an attached data field by id.
func (m *Mesh) Data(id core.DataID) (*Data, bool) {
	d, ok := m.data[id]
	return d, ok
}

// SetAccessRegion unions region into the mesh's access bounding box. A
// region strictly smaller than the mesh's own bounding box is rejected.
func (m *Mesh) SetAccessRegion(region geom.BoundingBox) error {
	owned := m.OwnedBoundingBox()
	if !owned.IsEmpty() && region.StrictlySmallerThan(owned) {
		return fmt.Errorf("access region smaller than owned mesh bounding box: %w", core.ErrInvalidArgument.Error())
	}
	if m.accessRegionSet {
		m.accessRegion.Expand(region)
	} else {
		m.accessRegion = region
		m.accessRegionSet = true
	}
	return nil
}

// AccessRegion returns the current access region and whether one was set.
func (m *Mesh) AccessRegion() (geom.BoundingBox, bool) {
	return m.accessRegion, m.accessRegionSet
}

// OwnedBoundingBox computes the bounding box of this mesh's own vertices.
func (m *Mesh) OwnedBoundingBox() geom.BoundingBox {
	box := geom.NewEmptyBoundingBox(m.Dims)
	for _, v := range m.Vertices {
		box.ExpandPoint(v.Index)
	}
	return box
}

// SetAccessRegionVertices records the subset of vertices that fall within
// the access region; populated at partitioning time.
func (m *Mesh) SetAccessRegionVertices(ids []core.VertexID) {
	m.accessRegionVertices = ids
}

// AccessRegionVertices returns ids and coordinates of the vertices falling
// within the access region.
func (m *Mesh) AccessRegionVertices() ([]core.VertexID, []geom.Coord) {
	ids := make([]core.VertexID, len(m.accessRegionVertices))
	coords := make([]geom.Coord, len(m.accessRegionVertices))
	for i, id := range m.accessRegionVertices {
		ids[i] = id
		coords[i] = m.Vertices[id].Index
	}
	return ids, coords
}

func splitDiagonal(coords [4]geom.Coord) (diag [2]int, triA, triB [3]int) {
	return geom.SplitDiagonal(coords[0], coords[1], coords[2], coords[3])
}
