// Package partition implements the Partition subsystem (component C): the
// distributed protocol by which a provider scatters a mesh to a receiver,
// including bounding-box comparison, communicate/filter/remap, and mapping
// registration.
package partition

import (
	"fmt"
	"sort"

	log "github.com/golang/glog"
	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/errgroup"

	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
	"github.com/opencoupler/core/internal/mesh"
)

// Partition is the common contract both Provided and Received partitions
// satisfy; the solver interface drives every used mesh's partition the same
// way during initialize().
type Partition interface {
	MeshID() core.MeshID
	Requirement() core.MeshRequirement
	// Communicate performs this partition's half of the wire protocol.
	Communicate() error
	// Filter computes the local slice (no-op for a provider).
	Filter() error
	// Compute runs remap + mapping registration after Filter.
	Compute() error
}

// ProvidedPartition wraps a mesh a participant provides. It owns the full
// local mesh and broadcasts it to receivers on demand. Its
// effective requirement is the maximum, in the VERTEX < FULL ordering, of
// its own and any receiver's declared requirement.
type ProvidedPartition struct {
	mesh *mesh.Mesh
	requirement core.MeshRequirement

	// broadcastCache records, per receiver rank, how many vertices the most
	// recent Communicate sent to it; Communicate re-flattens the mesh on
	// every call and does not read the cache back. Grounded on
	// blb/pkg/rpc/connection_cache.go's use of groupcache/lru for a small,
	// frequently-reused cache.
	broadcastCache *lru.Cache

	receivers []*receiverChannel
}

type receiverChannel struct {
	rank core.RankID
	ch comm.DistributedChannel
	// filterBox restricts the broadcast to vertices inside this box, used
	// for two-level initialization's per-receiver pre-filtering.
	filterBox *geom.BoundingBox
}

// NewProvidedPartition wraps m as a provided partition with its own
// requirement (from this participant's <use-data>/<provide-mesh> config).
func NewProvidedPartition(m *mesh.Mesh, own core.MeshRequirement) *ProvidedPartition {
	return &ProvidedPartition{mesh: m, requirement: own, broadcastCache: lru.New(32)}
}

// MeshID implements Partition.
func (p *ProvidedPartition) MeshID() core.MeshID { return p.mesh.ID }

// Requirement implements Partition.
func (p *ProvidedPartition) Requirement() core.MeshRequirement { return p.requirement }

// AddReceiverRequirement folds a receiver's declared requirement into the
// provider's effective requirement.
func (p *ProvidedPartition) AddReceiverRequirement(req core.MeshRequirement) {
	p.requirement = p.requirement.Max(req)
}

// AddReceiver registers one receiver rank's distributed channel, optionally
// restricted to a pre-filter box for two-level initialization.
func (p *ProvidedPartition) AddReceiver(rank core.RankID, ch comm.DistributedChannel, filterBox *geom.BoundingBox) {
	p.receivers = append(p.receivers, &receiverChannel{rank: rank, ch: ch, filterBox: filterBox})
}

// Communicate broadcasts the mesh to every registered receiver concurrently.
// Under two-level initialization, each receiver gets only the vertices
// inside its filterBox to avoid a full broadcast. Fan-out is grounded on
// the pack's errgroup-based concurrent dispatch pattern: each receiver's
// channel is independent, so one slow or failing rank does not hold up the
// others.
func (p *ProvidedPartition) Communicate() error {
	dims := p.mesh.Dims
	sent := make([]int, len(p.receivers))

	var g errgroup.Group
	for i, r := range p.receivers {
		i, r := i, r
		g.Go(func() error {
			coords, ids := p.sliceFor(r)
			flat := flattenCoords(coords, dims)
			if err := r.ch.SendMeshBuffer(p.mesh.ID, dims, flat); err != nil {
				return err
			}
			if err := r.ch.SendIDs(ids); err != nil {
				return err
			}
			sent[i] = len(ids)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, r := range p.receivers {
		p.broadcastCache.Add(r.rank, sent[i])
		log.Infof("partition %q: broadcast %d vertices to rank %d", p.mesh.Name, sent[i], r.rank)
	}
	return nil
}

func (p *ProvidedPartition) sliceFor(r *receiverChannel) ([]geom.Coord, []int) {
	if r.filterBox == nil {
		coords := make([]geom.Coord, len(p.mesh.Vertices))
		ids := make([]int, len(p.mesh.Vertices))
		for i, v := range p.mesh.Vertices {
			coords[i] = v.Index
			ids[i] = int(v.ID)
		}
		return coords, ids
	}
	var coords []geom.Coord
	var ids []int
	for _, v := range p.mesh.Vertices {
		if r.filterBox.Contains(v.Index) {
			coords = append(coords, v.Index)
			ids = append(ids, int(v.ID))
		}
	}
	return coords, ids
}

// Filter is a no-op for a provider: it owns the full mesh already.
func (p *ProvidedPartition) Filter() error { return nil }

// Compute is a no-op for a provider beyond Communicate: providers do not
// register mappings against their own mesh.
func (p *ProvidedPartition) Compute() error { return nil }

// ReceivedPartition wraps a mesh this participant receives from a
// provider. Filtering restricts the received mesh to this rank's bounding
// box, expanded by a safety factor and unioned with the access region if
// one was set.
type ReceivedPartition struct {
	mesh *mesh.Mesh
	requirement core.MeshRequirement
	safetyFactor float64
	allowDirectAccess bool

	dc interface {
		ReceiveMeshBuffer(core.MeshID, int) ([]float64, error)
		ReceiveIDs() ([]int, error)
	}

	ownedBox geom.BoundingBox
	globalIDs []core.VertexID // global.ids[local index] = global vertex id

	receivedCoords []geom.Coord
	receivedGlobal []int
}

// NewReceivedPartition wraps m as a received partition.
func NewReceivedPartition(m *mesh.Mesh, requirement core.MeshRequirement, safetyFactor float64, allowDirectAccess bool) *ReceivedPartition {
	return &ReceivedPartition{mesh: m, requirement: requirement, safetyFactor: safetyFactor, allowDirectAccess: allowDirectAccess}
}

// MeshID implements Partition.
func (p *ReceivedPartition) MeshID() core.MeshID { return p.mesh.ID }

// Requirement implements Partition.
func (p *ReceivedPartition) Requirement() core.MeshRequirement { return p.requirement }

// AttachChannel connects the distributed channel this receiver communicates
// over.
func (p *ReceivedPartition) AttachChannel(ch comm.DistributedChannel) {
	p.dc = ch
}

// SetOwnedBoundingBox sets the union of owned interface points from the
// participant's own used meshes — the basis for this rank's filter box
// before inflation.
func (p *ReceivedPartition) SetOwnedBoundingBox(box geom.BoundingBox) {
	p.ownedBox = box
}

// Communicate receives the (possibly pre-filtered) global mesh from the
// provider.
func (p *ReceivedPartition) Communicate() error {
	flat, err := p.dc.ReceiveMeshBuffer(p.mesh.ID, p.mesh.Dims)
	if err != nil {
		return err
	}
	ids, err := p.dc.ReceiveIDs()
	if err != nil {
		return err
	}
	coords := unflattenCoords(flat, p.mesh.Dims)
	if len(coords) != len(ids) {
		return fmt.Errorf("partition %q: received %d coords but %d ids: %w", p.mesh.Name, len(coords), len(ids), core.ErrProtocolPayload.Error())
	}
	p.receivedCoords = coords
	p.receivedGlobal = ids
	return nil
}

// Filter computes this rank's bounding box, discards remote vertices outside
// it, and stores the surviving slice. If the resulting
// box is empty, the partition is legitimately empty — not an error.
func (p *ReceivedPartition) Filter() error {
	box := p.ownedBox
	box.Inflate(p.safetyFactor)
	if region, ok := p.mesh.AccessRegion(); ok {
		box.Expand(region)
	}

	coords := p.receivedCoords
	ids := p.receivedGlobal

	var keptCoords []geom.Coord
	var keptGlobal []int
	if !box.IsEmpty() {
		for i, c := range coords {
			if box.Contains(c) {
				keptCoords = append(keptCoords, c)
				keptGlobal = append(keptGlobal, ids[i])
			}
		}
	}
	log.Infof("partition %q: filtered %d/%d remote vertices into local box", p.mesh.Name, len(keptCoords), len(coords))

	p.mesh.Vertices = nil
	localIDs := p.mesh.SetVertices(keptCoords)
	p.globalIDs = make([]core.VertexID, len(keptGlobal))
	for i, g := range keptGlobal {
		p.globalIDs[i] = core.VertexID(g)
	}

	var accessIDs []core.VertexID
	if region, ok := p.mesh.AccessRegion(); ok && p.allowDirectAccess {
		for i, c := range keptCoords {
			if region.Contains(c) {
				accessIDs = append(accessIDs, localIDs[i])
			}
		}
	}
	p.mesh.SetAccessRegionVertices(accessIDs)
	return nil
}

// GlobalToLocal translates a global vertex id (as seen by the provider) to
// this rank's dense local id, for mapping kernels that must address the
// original numbering.
func (p *ReceivedPartition) GlobalToLocal(global int) (core.VertexID, bool) {
	for local, g := range p.globalIDs {
		if int(g) == global {
			return core.VertexID(local), true
		}
	}
	return -1, false
}

// LocalSize returns the number of vertices kept after filtering. A value of
// zero is a legitimate empty partition, not an error.
func (p *ReceivedPartition) LocalSize() int { return p.mesh.Size() }

// Compute registers this received partition's decomposed mesh so mapping
// kernels can build their stencils; the actual
// stencil construction belongs to the Mapping kernel itself (out of scope).
func (p *ReceivedPartition) Compute() error {
	log.V(1).Infof("partition %q: registered %d local vertices for mapping", p.mesh.Name, p.mesh.Size())
	return nil
}

func flattenCoords(coords []geom.Coord, dims int) []float64 {
	out := make([]float64, len(coords)*dims)
	for i, c := range coords {
		for d := 0; d < dims; d++ {
			out[i*dims+d] = c[d]
		}
	}
	return out
}

func unflattenCoords(flat []float64, dims int) []geom.Coord {
	n := len(flat) / dims
	out := make([]geom.Coord, n)
	for i := 0; i < n; i++ {
		for d := 0; d < dims; d++ {
			out[i][d] = flat[i*dims+d]
		}
	}
	return out
}

// SortMeshesByName orders used meshes by name before partitioning, avoiding
// the cross-deadlock that could occur when two participants exchange two
// meshes in opposite directions. Two-level
// initialization disables this re-sort at the call site.
func SortMeshesByName(names []string) {
	sort.Strings(names)
}
