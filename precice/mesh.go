package precice

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

// resolveMesh returns the mesh.Mesh this participant built under name, or an
// error if name was never declared as a provide-mesh or receive-mesh.
func (s *SolverInterface) resolveMesh(name string) (meshHandle, error) {
	m, ok := s.meshes[name]
	if !ok {
		return meshHandle{}, fmt.Errorf("unknown mesh %q: %w", name, core.ErrInvalidArgument.Error())
	}
	return meshHandle{m}, nil
}

// meshHandle is a thin wrapper so this file's vertex/connectivity writers
// read as methods on "the mesh" without exporting the internal mesh.Mesh
// type through the facade's own API surface.
type meshHandle struct {
	m interface {
		CheckWritable() error
		SetVertex(geom.Coord) core.VertexID
		SetVertices([]geom.Coord) []core.VertexID
		CreateUniqueEdge(core.VertexID, core.VertexID) (int, error)
		CreateTriangleWithEdges(core.VertexID, core.VertexID, core.VertexID) (int, error)
		SetQuad([4]core.VertexID, [4]geom.Coord) (int, error)
		SetTetrahedron([4]core.VertexID) (int, error)
		Size() int
		SetAccessRegion(geom.BoundingBox) error
		AccessRegionVertices() ([]core.VertexID, []geom.Coord)
		Clear()
	}
}

func coordFrom(dims int, components []float64) (geom.Coord, error) {
	var c geom.Coord
	if len(components) != dims {
		return c, fmt.Errorf("expected %d coordinate components, got %d: %w", dims, len(components), core.ErrInvalidArgument.Error())
	}
	copy(c[:], components)
	return c, nil
}

// SetMeshVertex appends one vertex (dims components) to meshName and returns
// its assigned id.
func (s *SolverInterface) SetMeshVertex(meshName string, position []float64) (core.VertexID, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return -1, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return -1, err
	}
	c, err := coordFrom(s.dims, position)
	if err != nil {
		return -1, err
	}
	return h.m.SetVertex(c), nil
}

// SetMeshVertices appends n vertices (dims components each, flattened
// vertex-major) to meshName and returns their assigned ids.
func (s *SolverInterface) SetMeshVertices(meshName string, positions []float64) ([]core.VertexID, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return nil, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return nil, err
	}
	if len(positions)%s.dims != 0 {
		return nil, fmt.Errorf("positions length %d not a multiple of %d: %w", len(positions), s.dims, core.ErrInvalidArgument.Error())
	}
	n := len(positions) / s.dims
	coords := make([]geom.Coord, n)
	for i := 0; i < n; i++ {
		c, err := coordFrom(s.dims, positions[i*s.dims:(i+1)*s.dims])
		if err != nil {
			return nil, err
		}
		coords[i] = c
	}
	return h.m.SetVertices(coords), nil
}

// GetMeshVertexSize returns the current vertex count of meshName.
func (s *SolverInterface) GetMeshVertexSize(meshName string) (int, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return 0, err
	}
	return h.m.Size(), nil
}

// SetMeshEdge creates the edge between first and second, if it does not
// already exist, and returns its index.
func (s *SolverInterface) SetMeshEdge(meshName string, first, second core.VertexID) (int, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return -1, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return -1, err
	}
	return h.m.CreateUniqueEdge(first, second)
}

// SetMeshEdges creates one edge per consecutive (vertices[2i], vertices[2i+1])
// pair.
func (s *SolverInterface) SetMeshEdges(meshName string, vertices []core.VertexID) error {
	if len(vertices)%2 != 0 {
		return fmt.Errorf("vertex id count %d is not even: %w", len(vertices), core.ErrInvalidArgument.Error())
	}
	for i := 0; i < len(vertices); i += 2 {
		if _, err := s.SetMeshEdge(meshName, vertices[i], vertices[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// SetMeshTriangle builds the triangle over first, second, third, creating
// any of its edges that don't already exist.
func (s *SolverInterface) SetMeshTriangle(meshName string, first, second, third core.VertexID) (int, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return -1, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return -1, err
	}
	return h.m.CreateTriangleWithEdges(first, second, third)
}

// SetMeshTriangles builds one triangle per consecutive vertex id triple.
func (s *SolverInterface) SetMeshTriangles(meshName string, vertices []core.VertexID) error {
	if len(vertices)%3 != 0 {
		return fmt.Errorf("vertex id count %d is not a multiple of 3: %w", len(vertices), core.ErrInvalidArgument.Error())
	}
	for i := 0; i < len(vertices); i += 3 {
		if _, err := s.SetMeshTriangle(meshName, vertices[i], vertices[i+1], vertices[i+2]); err != nil {
			return err
		}
	}
	return nil
}

// vertexPosition looks up the stored coordinate of a vertex id, needed by
// SetMeshQuad/SetMeshTetrahedron to run the convexity/diagonal-split oracle.
func (s *SolverInterface) vertexPosition(meshName string, id core.VertexID) (geom.Coord, error) {
	m, ok := s.meshes[meshName]
	if !ok {
		return geom.Coord{}, fmt.Errorf("unknown mesh %q: %w", meshName, core.ErrInvalidArgument.Error())
	}
	if id < 0 || int(id) >= len(m.Vertices) {
		return geom.Coord{}, fmt.Errorf("vertex id %d out of range for mesh %q: %w", id, meshName, core.ErrInvalidArgument.Error())
	}
	return m.Vertices[id].Index, nil
}

// SetMeshQuad builds a quad over four vertices, decomposed into two
// triangles along the shorter diagonal.
func (s *SolverInterface) SetMeshQuad(meshName string, v [4]core.VertexID) (int, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return -1, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return -1, err
	}
	var coords [4]geom.Coord
	for i, id := range v {
		c, err := s.vertexPosition(meshName, id)
		if err != nil {
			return -1, err
		}
		coords[i] = c
	}
	return h.m.SetQuad(v, coords)
}

// SetMeshQuads builds one quad per consecutive vertex id quadruple.
func (s *SolverInterface) SetMeshQuads(meshName string, vertices []core.VertexID) error {
	if len(vertices)%4 != 0 {
		return fmt.Errorf("vertex id count %d is not a multiple of 4: %w", len(vertices), core.ErrInvalidArgument.Error())
	}
	for i := 0; i < len(vertices); i += 4 {
		var v [4]core.VertexID
		copy(v[:], vertices[i:i+4])
		if _, err := s.SetMeshQuad(meshName, v); err != nil {
			return err
		}
	}
	return nil
}

// SetMeshTetrahedron builds a tetrahedron over four vertices.
func (s *SolverInterface) SetMeshTetrahedron(meshName string, v [4]core.VertexID) (int, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return -1, err
	}
	if err := h.m.CheckWritable(); err != nil {
		return -1, err
	}
	return h.m.SetTetrahedron(v)
}

// SetMeshTetrahedra builds one tetrahedron per consecutive vertex id
// quadruple.
func (s *SolverInterface) SetMeshTetrahedra(meshName string, vertices []core.VertexID) error {
	if len(vertices)%4 != 0 {
		return fmt.Errorf("vertex id count %d is not a multiple of 4: %w", len(vertices), core.ErrInvalidArgument.Error())
	}
	for i := 0; i < len(vertices); i += 4 {
		var v [4]core.VertexID
		copy(v[:], vertices[i:i+4])
		if _, err := s.SetMeshTetrahedron(meshName, v); err != nil {
			return err
		}
	}
	return nil
}

// SetMeshAccessRegion restricts which vertices of a received mesh this
// participant can read/write through the direct-access API, by unioning a
// bounding box into the mesh's access region. Must be called before
// Initialize.
func (s *SolverInterface) SetMeshAccessRegion(meshName string, boundingBox []float64) error {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return err
	}
	if len(boundingBox) != 2*s.dims {
		return fmt.Errorf("bounding box needs %d components (min/max per dimension), got %d: %w", 2*s.dims, len(boundingBox), core.ErrInvalidArgument.Error())
	}
	min, err := coordFrom(s.dims, boundingBox[:s.dims])
	if err != nil {
		return err
	}
	max, err := coordFrom(s.dims, boundingBox[s.dims:])
	if err != nil {
		return err
	}
	box, err := geom.NewBoundingBox(s.dims, min, max)
	if err != nil {
		return err
	}
	return h.m.SetAccessRegion(box)
}

// GetMeshVerticesAndIDs returns the ids and flattened (vertex-major)
// coordinates of the vertices falling within the access region set by
// SetMeshAccessRegion.
func (s *SolverInterface) GetMeshVerticesAndIDs(meshName string) ([]core.VertexID, []float64, error) {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return nil, nil, err
	}
	ids, coords := h.m.AccessRegionVertices()
	flat := make([]float64, 0, len(coords)*s.dims)
	for _, c := range coords {
		flat = append(flat, c[:s.dims]...)
	}
	return ids, flat, nil
}

// ResetMesh empties meshName's vertices, connectivity and data buffers and
// unlocks it for direct writes again. The mesh's partition is not rebuilt,
// and exchanges on the mesh after a reset are not checked against it.
func (s *SolverInterface) ResetMesh(meshName string) error {
	h, err := s.resolveMesh(meshName)
	if err != nil {
		return err
	}
	h.m.Clear()
	return nil
}
