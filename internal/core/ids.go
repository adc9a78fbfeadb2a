package core

import "fmt"

// MeshID identifies a Mesh uniquely within one participant's configuration.
type MeshID int

// InvalidMeshID is the sentinel for "no mesh", never a valid id.
const InvalidMeshID MeshID = -1

// DataID identifies a Data or GlobalData field uniquely within one
// participant's configuration.
type DataID int

// InvalidDataID is the sentinel for "no data".
const InvalidDataID DataID = -1

// VertexID identifies a vertex within a single mesh. Ids are assigned
// densely starting at 0 in creation order and are stable until the mesh is
// cleared.
type VertexID int

func (v VertexID) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// RankID identifies a rank within one participant; 0 is always the primary.
type RankID int

// PrimaryRank is the rank that owns control-channel connections and writes
// logs/exports.
const PrimaryRank RankID = 0
