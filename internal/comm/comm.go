// Package comm implements the Communication Abstractions (component B):
// point-to-point primary-rank channels and per-secondary-rank distributed
// channels used to exchange control messages and bulk numeric buffers
// between participants.
//
// The wire transport itself (MPI / raw sockets) is out of scope: this
// package defines the Communication interface every transport must
// satisfy, plus an in-memory implementation for single-process tests and a
// TCP/gob implementation for real inter-process use.
package comm

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

// Kind tags a wire message's payload shape. Using a distinct Kind per
// message, rather than a sentinel mesh id of -1 for global data, avoids
// any ambiguity between a real mesh id and a "no mesh" marker.
type Kind int

const (
	// KindScalar carries one float64 (time-window size, convergence norms).
	KindScalar Kind = iota
	// KindBool carries one bool (convergence verdict).
	KindBool
	// KindMeshBuffer carries a |vertices|*dim buffer attached to a mesh.
	KindMeshBuffer
	// KindGlobalData carries a dim-length buffer not attached to any mesh.
	KindGlobalData
	// KindBoundingBox carries one rank's bounding box during partitioning.
	KindBoundingBox
	// KindHandshake carries the identifying string of a primary handshake.
	KindHandshake
	// KindIDs carries a vertex id array accompanying a mesh coordinate buffer.
	KindIDs
)

// BoundingBoxMessage is the wire shape of a bounding-box exchange:
// "(participantRank, [min0,max0,min1,max1,(min2,max2)?])".
type BoundingBoxMessage struct {
	Rank core.RankID
	Dims int
	Bounds []float64 // flattened [min0,max0,min1,max1,(min2,max2)]
}

// EncodeBoundingBox flattens a bounding box into its wire shape.
func EncodeBoundingBox(rank core.RankID, box geom.BoundingBox) BoundingBoxMessage {
	dims := box.Dims()
	bounds := make([]float64, 0, 2*dims)
	for d := 0; d < dims; d++ {
		bounds = append(bounds, box.Min[d], box.Max[d])
	}
	return BoundingBoxMessage{Rank: rank, Dims: dims, Bounds: bounds}
}

// DecodeBoundingBox rebuilds a bounding box from its wire shape.
func DecodeBoundingBox(msg BoundingBoxMessage) (geom.BoundingBox, error) {
	if len(msg.Bounds) != 2*msg.Dims {
		return geom.BoundingBox{}, fmt.Errorf("bounding box message: expected %d bounds, got %d: %w", 2*msg.Dims, len(msg.Bounds), core.ErrProtocolPayload.Error())
	}
	var min, max geom.Coord
	for d := 0; d < msg.Dims; d++ {
		min[d] = msg.Bounds[2*d]
		max[d] = msg.Bounds[2*d+1]
	}
	return geom.NewBoundingBox(msg.Dims, min, max)
}

// PrimaryChannel is the one-per-remote-participant control channel used for
// handshakes, bounding-box exchange, time-window-size announcements and
// convergence verdicts.
type PrimaryChannel interface {
	// Handshake sends (or, on the accepting side, receives and echoes) the
	// identifying string. Close does not exchange any closing messages
	// with the peer.
	Handshake(localID string) (remoteID string, err error)

	SendScalar(v float64) error
	ReceiveScalar() (float64, error)

	SendBool(v bool) error
	ReceiveBool() (bool, error)

	SendBoundingBox(msg BoundingBoxMessage) error
	ReceiveBoundingBox() (BoundingBoxMessage, error)

	Close() error
}

// DistributedChannel is a per-secondary-rank channel used for bulk mesh and
// data payloads.
type DistributedChannel interface {
	// SendMeshBuffer sends a contiguous buffer of length |vertices|*dim for
	// meshID. meshID is ignored by GlobalData
	// exchanges, which use SendGlobalBuffer instead.
	SendMeshBuffer(meshID core.MeshID, dim int, values []float64) error
	ReceiveMeshBuffer(meshID core.MeshID, dim int) ([]float64, error)

	SendGlobalBuffer(dim int, values []float64) error
	ReceiveGlobalBuffer(dim int) ([]float64, error)

	// SendIDs/ReceiveIDs carry the vertex ids accompanying a mesh
	// coordinate buffer during partitioning.
	SendIDs(ids []int) error
	ReceiveIDs() ([]int, error)

	Close() error
}

// Communication groups everything one participant needs to talk to one
// peer: the single primary channel plus one distributed channel per mesh
// exchanged with that peer.
type Communication interface {
	Primary() PrimaryChannel
	Distributed(meshID core.MeshID) (DistributedChannel, error)
	// ConfigurePartitions attaches a distributed channel for meshID, to be
	// used during partitioning and subsequent data exchange.
	ConfigurePartitions(meshID core.MeshID, ch DistributedChannel)
	// PreConnectSecondaryRanks establishes the secondary-rank connections
	// ahead of bulk exchange.
	PreConnectSecondaryRanks() error
	CloseAll() error
}
