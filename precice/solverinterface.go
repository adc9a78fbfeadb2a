// Package precice implements the public solver-facing facade (component H):
// SolverInterface, the single type a coupled solver constructs, drives
// through initialize/advance/finalize, and reads/writes mesh and data
// through. Everything below it (mesh storage, partitioning, mapping,
// acceleration, the coupling scheme) is wired together here from a parsed
// configuration document.
package precice

import (
	"fmt"
	"math"
	"sort"

	log "github.com/golang/glog"

	"golang.org/x/sync/errgroup"

	"github.com/opencoupler/core/internal/acceleration"
	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/config"
	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/cplscheme"
	"github.com/opencoupler/core/internal/geom"
	"github.com/opencoupler/core/internal/mapping"
	"github.com/opencoupler/core/internal/mesh"
	"github.com/opencoupler/core/internal/partition"
	"github.com/opencoupler/core/internal/waveform"
)

// advanceMetric tracks Advance call counts/latencies across every
// SolverInterface in the process, labelled by participant. Registered once
// at package init so constructing multiple interfaces (e.g. one per
// participant in a single test binary) never double-registers the
// collector.
var advanceMetric = core.NewOpMetric("precice_advance", "participant")

// Peer is the wire connection to one remote participant. Dialing sockets,
// accepting connections, or wiring an in-memory pair for a single-process
// test is the caller's responsibility: SolverInterface only drives the
// protocol once every peer it needs is already connected and, for meshes
// this participant exchanges with that peer, already has its distributed
// channel configured via comm.Communication.ConfigurePartitions.
type Peer = comm.Communication

// BuildConfig bundles what NewSolverInterface needs beyond the parsed
// configuration document itself.
type BuildConfig struct {
	// ParticipantName selects which <participant> in doc this process is.
	ParticipantName string
	// Peers maps every remote participant name this process exchanges
	// meshes or data with to its already-connected Communication.
	Peers map[string]Peer
	// CheckpointPath, when non-empty, records completed time windows to a
	// local boltdb file for restart inspection. See
	// cplscheme.BaseConfig.CheckpointPath.
	CheckpointPath string
}

// SolverInterface is the per-process coupling facade: one mesh and data
// registry, one coupling scheme, driving the initialize/advance/finalize
// lifecycle a solver's time loop calls into.
type SolverInterface struct {
	participant string
	dims        int

	meshes       map[string]*mesh.Mesh
	meshIDByName map[string]core.MeshID
	dataIDByName map[string]core.DataID
	dataDeclByID map[core.DataID]config.DataDecl

	partitions map[core.MeshID]partition.Partition

	couplingData map[core.DataID]*acceleration.CouplingData
	// readDataMesh records, for every read-data the local participant
	// declared, which mesh it lives on (needed to size time-sampled reads).
	readDataMesh map[core.DataID]core.MeshID
	// waveforms holds the time-sampling buffer for every read-data, built
	// once its mesh's vertex count is final (see Initialize).
	waveforms map[core.DataID]*waveform.Waveform
	// windowSize is the configured fixed time-window length, or
	// cplscheme.UndefinedTimeWindowSize if the first participant sets it on
	// the fly; ReadDataAtTime requires the former.
	windowSize float64

	scheme cplscheme.CouplingScheme
	// sendsInitializedData is true when this participant sends at least one
	// exchange marked initialize="true", requiring write mappings to run on
	// prior data before the scheme's own Initialize.
	sendsInitializedData bool

	// mappingDecls holds every <mapping:...> this participant declared,
	// validated against its read/write data but not yet realized into a
	// kernel: a mapping needs each mesh's final, partitioned vertex set,
	// which is only available once Initialize's partition loop completes.
	mappingDecls []mappingDecl
	// mappingBuffers is the synthetic-id-keyed lookup table MapData's
	// lookup/store closures consult; see realizeMappings.
	mappingBuffers map[core.DataID]*mesh.Data
	writeMappings  []*mapping.DataContext
	readMappings   []*mapping.DataContext

	initialized bool
	finalized   bool
}

// mappingDecl is one validated <mapping:...> declaration, deferred until
// Initialize because its kernel needs final vertex coordinates.
type mappingDecl struct {
	dataName         string
	fromMesh, toMesh string
	timing           mapping.Timing
	constraint       mapping.Constraint
	isWrite          bool
}

// fullDomainBoundingBox returns the bounding box covering all of space, the
// owned region assumed for a single-rank participant: with no peer ranks to
// partition against, every received vertex belongs to this rank.
func fullDomainBoundingBox(dims int) geom.BoundingBox {
	var min, max geom.Coord
	for d := 0; d < dims; d++ {
		min[d] = math.Inf(-1)
		max[d] = math.Inf(1)
	}
	box, err := geom.NewBoundingBox(dims, min, max)
	if err != nil {
		core.Fatalf("fullDomainBoundingBox: %v", err)
	}
	return box
}

// NewSolverInterface builds the coupling facade for one participant from a
// parsed configuration document. It constructs every mesh and data field
// the participant's <provide-mesh>/<receive-mesh>/<read-data>/<write-data>
// declarations name, but performs no I/O: call Initialize to run the
// partitioning handshake and the scheme's own initialization.
func NewSolverInterface(doc *config.Document, cfg BuildConfig) (*SolverInterface, error) {
	if err := config.Validate(doc); err != nil {
		return nil, err
	}
	participant, ok := findParticipant(doc, cfg.ParticipantName)
	if !ok {
		return nil, fmt.Errorf("unknown participant %q: %w", cfg.ParticipantName, core.ErrUnknownParticipant.Error())
	}

	s := &SolverInterface{
		participant:    cfg.ParticipantName,
		dims:           doc.Dimensions,
		meshes:         make(map[string]*mesh.Mesh),
		meshIDByName:   make(map[string]core.MeshID),
		dataIDByName:   make(map[string]core.DataID),
		dataDeclByID:   make(map[core.DataID]config.DataDecl),
		partitions:     make(map[core.MeshID]partition.Partition),
		couplingData:   make(map[core.DataID]*acceleration.CouplingData),
		readDataMesh:   make(map[core.DataID]core.MeshID),
		waveforms:      make(map[core.DataID]*waveform.Waveform),
		mappingBuffers: make(map[core.DataID]*mesh.Data),
	}

	for i, d := range doc.Data {
		id := core.DataID(i)
		s.dataIDByName[d.Name] = id
		s.dataDeclByID[id] = d
	}
	for i, m := range doc.Meshes {
		s.meshIDByName[m.Name] = core.MeshID(i)
	}

	if err := s.buildMeshes(doc, participant, cfg); err != nil {
		return nil, err
	}
	if err := s.buildData(doc, participant); err != nil {
		return nil, err
	}
	if err := s.buildScheme(doc, participant, cfg); err != nil {
		return nil, err
	}
	if err := s.buildMappings(participant); err != nil {
		return nil, err
	}
	return s, nil
}

func findParticipant(doc *config.Document, name string) (config.ParticipantDecl, bool) {
	for _, p := range doc.Participants {
		if p.Name == name {
			return p, true
		}
	}
	return config.ParticipantDecl{}, false
}

// buildMeshes constructs a mesh.Mesh per provide-mesh/receive-mesh the
// participant declares, attaches its use-data fields, and builds the
// Partition that owns the corresponding broadcast or receive protocol.
func (s *SolverInterface) buildMeshes(doc *config.Document, p config.ParticipantDecl, cfg BuildConfig) error {
	meshDeclByName := make(map[string]config.MeshDecl)
	for _, m := range doc.Meshes {
		meshDeclByName[m.Name] = m
	}

	for _, name := range p.ProvideMesh {
		if _, ok := meshDeclByName[name]; !ok {
			return fmt.Errorf("participant %q provides unknown mesh %q: %w", p.Name, name, core.ErrConfigSemantics.Error())
		}
		meshID := s.meshIDByName[name]
		m := mesh.New(meshID, name, s.dims)
		s.meshes[name] = m

		pp := partition.NewProvidedPartition(m, core.MeshRequirementFull)
		for _, other := range doc.Participants {
			if other.Name == p.Name {
				continue
			}
			for _, rm := range other.ReceiveMesh {
				if rm.Name != name || rm.From != p.Name {
					continue
				}
				peer, ok := cfg.Peers[other.Name]
				if !ok {
					return fmt.Errorf("mesh %q: no connection configured to receiver %q: %w", name, other.Name, core.ErrInvalidArgument.Error())
				}
				ch, err := peer.Distributed(meshID)
				if err != nil {
					return err
				}
				pp.AddReceiver(core.PrimaryRank, ch, nil)
			}
		}
		s.partitions[meshID] = pp
	}

	for _, rm := range p.ReceiveMesh {
		if _, ok := meshDeclByName[rm.Name]; !ok {
			return fmt.Errorf("participant %q receives unknown mesh %q: %w", p.Name, rm.Name, core.ErrConfigSemantics.Error())
		}
		meshID := s.meshIDByName[rm.Name]
		m := mesh.New(meshID, rm.Name, s.dims)
		s.meshes[rm.Name] = m

		peer, ok := cfg.Peers[rm.From]
		if !ok {
			return fmt.Errorf("mesh %q: no connection configured to provider %q: %w", rm.Name, rm.From, core.ErrInvalidArgument.Error())
		}
		ch, err := peer.Distributed(meshID)
		if err != nil {
			return err
		}
		rp := partition.NewReceivedPartition(m, core.MeshRequirementFull, 0, true)
		rp.AttachChannel(ch)
		rp.SetOwnedBoundingBox(fullDomainBoundingBox(s.dims))
		s.partitions[meshID] = rp
	}
	return nil
}

// buildData attaches a mesh.Data field (sized once the mesh's vertices are
// known) for every use-data declaration on a mesh this participant touches.
func (s *SolverInterface) buildData(doc *config.Document, p config.ParticipantDecl) error {
	for _, md := range doc.Meshes {
		m, ok := s.meshes[md.Name]
		if !ok {
			continue
		}
		for _, dataName := range md.UseData {
			id, ok := s.dataIDByName[dataName]
			if !ok {
				return fmt.Errorf("mesh %q uses unknown data %q: %w", md.Name, dataName, core.ErrConfigSemantics.Error())
			}
			decl := s.dataDeclByID[id]
			dims := 1
			if decl.Vector {
				dims = s.dims
			}
			d := mesh.NewData(id, dataName, dims, false, s.dims)
			m.AddData(d)
		}
	}

	for _, ref := range p.ReadData {
		m, ok := s.meshes[ref.Mesh]
		if !ok {
			return fmt.Errorf("read-data %q: unknown mesh %q: %w", ref.Name, ref.Mesh, core.ErrConfigSemantics.Error())
		}
		id, ok := s.dataIDByName[ref.Name]
		if !ok {
			return fmt.Errorf("read-data: unknown data %q: %w", ref.Name, core.ErrConfigSemantics.Error())
		}
		d, ok := m.Data(id)
		if !ok {
			return fmt.Errorf("read-data %q: not declared on mesh %q via use-data: %w", ref.Name, ref.Mesh, core.ErrConfigSemantics.Error())
		}
		cd, err := acceleration.NewCouplingData(id, d.ValuesPtr(), 0, false)
		if err != nil {
			return err
		}
		s.couplingData[id] = cd
		s.readDataMesh[id] = m.ID
	}
	for _, ref := range p.WriteData {
		m, ok := s.meshes[ref.Mesh]
		if !ok {
			return fmt.Errorf("write-data %q: unknown mesh %q: %w", ref.Name, ref.Mesh, core.ErrConfigSemantics.Error())
		}
		id, ok := s.dataIDByName[ref.Name]
		if !ok {
			return fmt.Errorf("write-data: unknown data %q: %w", ref.Name, core.ErrConfigSemantics.Error())
		}
		d, ok := m.Data(id)
		if !ok {
			return fmt.Errorf("write-data %q: not declared on mesh %q via use-data: %w", ref.Name, ref.Mesh, core.ErrConfigSemantics.Error())
		}
		if _, exists := s.couplingData[id]; exists {
			continue
		}
		cd, err := acceleration.NewCouplingData(id, d.ValuesPtr(), 0, false)
		if err != nil {
			return err
		}
		s.couplingData[id] = cd
	}
	return nil
}

// buildScheme wires the first configured coupling-scheme into the
// appropriate bilateral CouplingScheme variant. Only one top-level
// <coupling-scheme:...> element per document is supported: compositional
// and multi schemes with nested children are not parsed by internal/config
// and are out of scope for this facade.
func (s *SolverInterface) buildScheme(doc *config.Document, p config.ParticipantDecl, cfg BuildConfig) error {
	if len(doc.Schemes) == 0 {
		return fmt.Errorf("configuration declares no coupling-scheme: %w", core.ErrConfigSemantics.Error())
	}
	decl := doc.Schemes[0]
	s.windowSize = decl.TimeWindowSize

	var remote string
	switch s.participant {
	case decl.FirstParticipant:
		remote = decl.SecondParticipant
	case decl.SecondParticipant:
		remote = decl.FirstParticipant
	default:
		return fmt.Errorf("participant %q not named in coupling-scheme %s: %w", s.participant, decl.Kind, core.ErrConfigSemantics.Error())
	}
	peer, ok := cfg.Peers[remote]
	if !ok {
		return fmt.Errorf("coupling-scheme %s: no connection configured to %q: %w", decl.Kind, remote, core.ErrInvalidArgument.Error())
	}

	bcfg := cplscheme.BaseConfig{
		LocalParticipant:               s.participant,
		FirstParticipant:               decl.FirstParticipant,
		SecondParticipant:              decl.SecondParticipant,
		Communication:                  peer,
		MaxTime:                        decl.MaxTime,
		MaxTimeWindows:                 decl.MaxTimeWindows,
		TimeWindowSize:                 decl.TimeWindowSize,
		Implicit:                       decl.Kind == "serial-implicit" || decl.Kind == "parallel-implicit",
		MaxIterations:                  decl.MaxIterations,
		ExtrapolationOrder:             decl.ExtrapolationOrder,
		FirstParticipantSetsWindowSize: decl.WindowMethod == "first-participant",
		CheckpointPath:                 cfg.CheckpointPath,
	}

	var scheme cplscheme.CouplingScheme
	var err error
	switch decl.Kind {
	case "serial-explicit":
		scheme, err = cplscheme.NewSerialExplicit(bcfg)
	case "serial-implicit":
		scheme, err = cplscheme.NewSerialImplicit(bcfg)
	case "parallel-explicit":
		scheme, err = cplscheme.NewParallelExplicit(bcfg)
	case "parallel-implicit":
		scheme, err = cplscheme.NewParallelImplicit(bcfg)
	default:
		return fmt.Errorf("coupling-scheme kind %q not supported by this facade: %w", decl.Kind, core.ErrConfigSemantics.Error())
	}
	if err != nil {
		return err
	}
	base, _ := scheme.(*cplscheme.BaseCouplingScheme)

	for _, ex := range decl.Exchanges {
		dataID, ok := s.dataIDByName[ex.Data]
		if !ok {
			return fmt.Errorf("exchange: unknown data %q: %w", ex.Data, core.ErrConfigSemantics.Error())
		}
		cd, ok := s.couplingData[dataID]
		if !ok {
			return fmt.Errorf("exchange: data %q not registered as read/write for this participant: %w", ex.Data, core.ErrConfigSemantics.Error())
		}
		meshID, ok := s.meshIDByName[ex.Mesh]
		if !ok {
			return fmt.Errorf("exchange: unknown mesh %q: %w", ex.Mesh, core.ErrConfigSemantics.Error())
		}
		dims := 1
		if s.dataDeclByID[dataID].Vector {
			dims = s.dims
		}
		if err := cd.SetExtrapolationOrder(decl.ExtrapolationOrder); err != nil {
			return err
		}
		if ex.Initialize {
			cd.SetRequiresInitialization(true)
		}
		exd := &cplscheme.ExchangeData{Data: cd, Name: ex.Data, MeshID: meshID, Dim: dims, Initialize: ex.Initialize}
		if ex.From == s.participant {
			base.AddExchange(exd, true)
			if ex.Initialize {
				s.sendsInitializedData = true
			}
		} else if ex.To == s.participant {
			base.AddExchange(exd, false)
		}
	}

	for _, cm := range decl.ConvergenceMeasures {
		dataID, ok := s.dataIDByName[cm.Data]
		if !ok {
			return fmt.Errorf("convergence-measure: unknown data %q: %w", cm.Data, core.ErrConfigSemantics.Error())
		}
		cd, ok := s.couplingData[dataID]
		if !ok {
			continue
		}
		var measure cplscheme.ConvergenceMeasure
		if cm.Relative {
			measure = cplscheme.NewRelativeConvergenceMeasure(cm.Limit)
		} else {
			measure = cplscheme.NewAbsoluteConvergenceMeasure(cm.Limit)
		}
		base.AddConvergenceMeasure(cd, cm.Data, measure, cm.Suffices, cm.Strict, cm.Logging)
	}

	if decl.Acceleration != nil {
		accel, err := buildAcceleration(*decl.Acceleration)
		if err != nil {
			return err
		}
		base.SetAcceleration(accel)
	}

	s.scheme = scheme
	return nil
}

func buildAcceleration(decl config.AccelerationDecl) (acceleration.Acceleration, error) {
	switch decl.Kind {
	case "constant-relaxation":
		return acceleration.NewConstantRelaxation(decl.RelaxationFactor)
	case "aitken":
		return acceleration.NewAitken(decl.RelaxationFactor)
	case "IQN-ILS":
		return acceleration.NewIQNILS(decl.RelaxationFactor, decl.ReusedTimeWindows)
	default:
		return nil, fmt.Errorf("acceleration kind %q not supported: %w", decl.Kind, core.ErrConfigSemantics.Error())
	}
}

// buildMappings validates every <mapping:...> declaration the participant
// carries against its known meshes and read/write data, deferring kernel
// construction to realizeMappings (called from Initialize, once
// partitioning has settled each mesh's final vertex set).
func (s *SolverInterface) buildMappings(p config.ParticipantDecl) error {
	for _, md := range p.Mappings {
		if _, ok := s.meshIDByName[md.From]; !ok {
			return fmt.Errorf("mapping %s: unknown source mesh %q: %w", md.Kind, md.From, core.ErrConfigSemantics.Error())
		}
		if _, ok := s.meshIDByName[md.To]; !ok {
			return fmt.Errorf("mapping %s: unknown target mesh %q: %w", md.Kind, md.To, core.ErrConfigSemantics.Error())
		}
		dataName, isWrite, err := mappingDataRole(p, md.From, md.To)
		if err != nil {
			return err
		}

		timing := mapping.TimingOnAdvance
		if md.Timing == "initial" {
			timing = mapping.TimingInitial
		}
		constraint := mapping.ConstraintConsistent
		if md.Constraint == "conservative" {
			constraint = mapping.ConstraintConservative
		}

		s.mappingDecls = append(s.mappingDecls, mappingDecl{
			dataName: dataName, fromMesh: md.From, toMesh: md.To,
			timing: timing, constraint: constraint, isWrite: isWrite,
		})
	}
	return nil
}

// mappingDataRole finds the read-data or write-data this participant bound
// from/to to, and reports which side it is: a write mapping (data written
// on from, mapped onto to before exchange) if found among WriteData, a
// read mapping (data read on to, mapped from a value already present on
// from) if found among ReadData. internal/config's <mapping> element
// carries no explicit data name, so the binding is inferred from whichever
// read/write declaration actually names one of the two meshes.
func mappingDataRole(p config.ParticipantDecl, from, to string) (string, bool, error) {
	for _, ref := range p.WriteData {
		if ref.Mesh == from {
			return ref.Name, true, nil
		}
	}
	for _, ref := range p.ReadData {
		if ref.Mesh == to {
			return ref.Name, false, nil
		}
	}
	return "", false, fmt.Errorf("mapping %s->%s: no write-data on %q or read-data on %q to bind it to: %w", from, to, from, to, core.ErrConfigSemantics.Error())
}

// realizeMappings builds the mapping kernel, synthetic data ids and
// DataContext for every validated mapping declaration, now that every mesh's
// vertices are final. Must run after Initialize's partition
// communicate/filter/compute loop, not at construction time: NearestNeighbor
// captures its coordinate slices eagerly, before a ReceivedPartition's
// Filter has trimmed them to this rank's share.
func (s *SolverInterface) realizeMappings() error {
	for _, decl := range s.mappingDecls {
		fromMesh := s.meshes[decl.fromMesh]
		toMesh := s.meshes[decl.toMesh]

		dataID, ok := s.dataIDByName[decl.dataName]
		if !ok {
			return fmt.Errorf("mapping: unknown data %q: %w", decl.dataName, core.ErrConfigSemantics.Error())
		}
		fromData, ok := fromMesh.Data(dataID)
		if !ok {
			return fmt.Errorf("mapping: data %q not declared via use-data on mesh %q: %w", decl.dataName, decl.fromMesh, core.ErrConfigSemantics.Error())
		}
		toData, ok := toMesh.Data(dataID)
		if !ok {
			return fmt.Errorf("mapping: data %q not declared via use-data on mesh %q: %w", decl.dataName, decl.toMesh, core.ErrConfigSemantics.Error())
		}

		dims := 1
		if s.dataDeclByID[dataID].Vector {
			dims = s.dims
		}
		kernel := mapping.NewNearestNeighbor(dims, coordsOf(fromMesh), coordsOf(toMesh))
		if err := kernel.Compute(decl.constraint); err != nil {
			return err
		}

		// FromData/ToData must differ even though both sides share
		// decl.dataName's global DataID: synthesize a mapping-local id per
		// (mesh, data) pair. This id space is only ever consulted through
		// s.mappingBuffers, so overlap with the global per-name DataID space
		// is harmless.
		fromID := syntheticDataID(fromMesh.ID, dataID)
		toID := syntheticDataID(toMesh.ID, dataID)
		s.mappingBuffers[fromID] = fromData
		s.mappingBuffers[toID] = toData

		mc := mapping.MappingContext{Mapping: kernel, FromData: fromID, ToData: toID, Timing: decl.timing, Constraint: decl.constraint}
		if decl.isWrite {
			dc := mapping.NewDataContext(fromID, fromMesh.ID, decl.dataName)
			if err := dc.AppendMapping(mc); err != nil {
				return err
			}
			s.writeMappings = append(s.writeMappings, dc)
		} else {
			dc := mapping.NewDataContext(toID, toMesh.ID, decl.dataName)
			if err := dc.AppendMapping(mc); err != nil {
				return err
			}
			s.readMappings = append(s.readMappings, dc)
		}
	}
	return nil
}

func syntheticDataID(meshID core.MeshID, dataID core.DataID) core.DataID {
	return core.DataID(int(meshID)*100000 + int(dataID))
}

func coordsOf(m *mesh.Mesh) []geom.Coord {
	out := make([]geom.Coord, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = v.Index
	}
	return out
}

func (s *SolverInterface) mappingLookup(id core.DataID) ([]float64, error) {
	d, ok := s.mappingBuffers[id]
	if !ok {
		return nil, fmt.Errorf("mapping: no buffer registered for synthetic data id %v: %w", id, core.ErrInvalidState.Error())
	}
	return d.Values(), nil
}

func (s *SolverInterface) mappingStore(id core.DataID, values []float64) error {
	d, ok := s.mappingBuffers[id]
	if !ok {
		return fmt.Errorf("mapping: no buffer registered for synthetic data id %v: %w", id, core.ErrInvalidState.Error())
	}
	return d.SetValues(values)
}

// runWriteMappings applies every write-side mapping whose configured timing
// matches, concurrently across data contexts: each maps a disjoint
// (fromData, toData) buffer pair, so one slow or failing mapping does not
// hold up the others.
func (s *SolverInterface) runWriteMappings(timing mapping.Timing) error {
	var g errgroup.Group
	for _, dc := range s.writeMappings {
		dc := dc
		g.Go(func() error { return dc.MapData(timing, s.mappingLookup, s.mappingStore) })
	}
	return g.Wait()
}

// runReadMappings applies every read-side mapping whose configured timing
// matches, concurrently across data contexts.
func (s *SolverInterface) runReadMappings(timing mapping.Timing) error {
	var g errgroup.Group
	for _, dc := range s.readMappings {
		dc := dc
		g.Go(func() error { return dc.MapData(timing, s.mappingLookup, s.mappingStore) })
	}
	return g.Wait()
}

// Initialize runs the partitioning handshake for every configured mesh (in
// deterministic name order, so both sides of a provide/receive pair agree
// on ordering) and then the coupling scheme's own Initialize.
func (s *SolverInterface) Initialize() error {
	if s.initialized {
		return fmt.Errorf("initialize called twice: %w", core.ErrWrongState.Error())
	}
	names := make([]string, 0, len(s.meshes))
	for name := range s.meshes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		meshID := s.meshIDByName[name]
		part := s.partitions[meshID]
		if err := part.Communicate(); err != nil {
			return fmt.Errorf("mesh %q: partition communicate: %w", name, err)
		}
		if err := part.Filter(); err != nil {
			return fmt.Errorf("mesh %q: partition filter: %w", name, err)
		}
		if err := part.Compute(); err != nil {
			return fmt.Errorf("mesh %q: partition compute: %w", name, err)
		}
		s.meshes[name].Lock()
	}

	if err := s.realizeMappings(); err != nil {
		return err
	}

	if s.sendsInitializedData {
		if err := s.runWriteMappings(mapping.TimingInitial); err != nil {
			return err
		}
	}
	if err := s.scheme.Initialize(0, 0); err != nil {
		return err
	}
	if s.scheme.HasDataBeenReceived() {
		if err := s.runReadMappings(mapping.TimingInitial); err != nil {
			return err
		}
	}

	// ReceiveResultOfFirstAdvance is a real synchronization point in the
	// facade's intended concurrent deployment: it blocks the second
	// participant until the first participant's own first Advance has run
	// FirstExchange and sent. Driving multiple participants from one process
	// (as the tests in this package do) requires running each participant's
	// Initialize/Advance loop on its own goroutine past this point, since the
	// in-memory channel receive underneath genuinely blocks.
	if err := s.scheme.ReceiveResultOfFirstAdvance(); err != nil {
		return err
	}
	if s.scheme.HasDataBeenReceived() {
		if err := s.runReadMappings(mapping.TimingInitial); err != nil {
			return err
		}
	}

	for dataID, meshID := range s.readDataMesh {
		cd := s.couplingData[dataID]
		w, err := waveform.New(0, len(cd.Values()))
		if err != nil {
			return fmt.Errorf("mesh %d data %d: building waveform: %w", meshID, dataID, err)
		}
		if err := w.Initialize(cd.Values()); err != nil {
			return err
		}
		s.waveforms[dataID] = w
	}

	s.initialized = true
	log.Infof("precice: participant %q initialized", s.participant)
	return nil
}

// Advance runs one coupling step of length dt: registers the computed time,
// then drives the scheme's synchronization/exchange phases. Returns the
// maximum dt the solver may use for its next step.
func (s *SolverInterface) Advance(dt float64) (float64, error) {
	lm := advanceMetric.Start(s.participant)
	result, err := s.advance(dt)
	if err != nil {
		lm.Failed()
	}
	lm.End()
	return result, err
}

func (s *SolverInterface) advance(dt float64) (float64, error) {
	if !s.initialized {
		return 0, fmt.Errorf("advance called before initialize: %w", core.ErrWrongState.Error())
	}
	if s.finalized {
		return 0, fmt.Errorf("advance called after finalize: %w", core.ErrWrongState.Error())
	}
	if dt <= 0 {
		return 0, fmt.Errorf("advance: dt must be > 0, got %v: %w", dt, core.ErrInvalidArgument.Error())
	}
	base, ok := s.scheme.(interface{ AddComputedTime(float64) error })
	if ok {
		if err := base.AddComputedTime(dt); err != nil {
			return 0, err
		}
	}
	if err := s.runWriteMappings(mapping.TimingOnAdvance); err != nil {
		return 0, err
	}
	if err := s.scheme.FirstSynchronization(); err != nil {
		return 0, err
	}
	if err := s.scheme.FirstExchange(); err != nil {
		return 0, err
	}
	if err := s.scheme.SecondSynchronization(); err != nil {
		return 0, err
	}
	if err := s.scheme.SecondExchange(); err != nil {
		return 0, err
	}
	if s.scheme.HasDataBeenReceived() {
		if err := s.runReadMappings(mapping.TimingOnAdvance); err != nil {
			return 0, err
		}
	}
	for dataID, w := range s.waveforms {
		if err := w.Store(s.couplingData[dataID].Values()); err != nil {
			return 0, err
		}
	}
	if s.scheme.IsTimeWindowComplete() {
		for _, w := range s.waveforms {
			w.MoveToNextWindow()
		}
	}
	return s.scheme.GetNextTimestepMaxLength(), nil
}

// Finalize tears down the coupling scheme. Calling any other method
// afterward is a wrong-state error.
func (s *SolverInterface) Finalize() error {
	if s.finalized {
		return fmt.Errorf("finalize called twice: %w", core.ErrWrongState.Error())
	}
	if err := s.scheme.Finalize(); err != nil {
		return err
	}
	s.finalized = true
	log.Infof("precice: participant %q finalized", s.participant)
	return nil
}

// IsCouplingOngoing reports whether further advance() calls are expected.
func (s *SolverInterface) IsCouplingOngoing() bool { return s.scheme.IsCouplingOngoing() }

// IsTimeWindowComplete reports whether the window just advanced converged
// (always true for explicit schemes).
func (s *SolverInterface) IsTimeWindowComplete() bool { return s.scheme.IsTimeWindowComplete() }

// GetMaxTimeStepSize returns the maximum dt the solver may use for its next
// advance call.
func (s *SolverInterface) GetMaxTimeStepSize() float64 { return s.scheme.GetNextTimestepMaxLength() }

// RequiresInitialData reports whether the solver must write initial values
// before the first advance.
func (s *SolverInterface) RequiresInitialData() bool {
	return s.scheme.IsActionRequired(core.ActionInitializeData)
}

// RequiresWritingCheckpoint reports whether the solver must persist its
// state before the next advance.
func (s *SolverInterface) RequiresWritingCheckpoint() bool {
	return s.scheme.IsActionRequired(core.ActionWriteCheckpoint)
}

// RequiresReadingCheckpoint reports whether the solver must roll back to
// its last checkpoint (a non-converged implicit iteration).
func (s *SolverInterface) RequiresReadingCheckpoint() bool {
	return s.scheme.IsActionRequired(core.ActionReadCheckpoint)
}

// MarkActionFulfilled records that the solver has carried out the named
// action. The caller must pass whichever of core.ActionWriteCheckpoint,
// core.ActionReadCheckpoint or core.ActionInitializeData its preceding
// query reported as required.
func (s *SolverInterface) MarkActionFulfilled(a core.Action) {
	s.scheme.MarkActionFulfilled(a)
}

// RequiresMeshConnectivityFor reports whether meshName needs edge/triangle/
// quad/tetrahedron connectivity from the solver, not just vertex positions.
// Every mesh built by this facade currently requests full connectivity;
// finer-grained per-mapping requirement negotiation is not implemented.
func (s *SolverInterface) RequiresMeshConnectivityFor(meshName string) (bool, error) {
	meshID, ok := s.meshIDByName[meshName]
	if !ok {
		return false, fmt.Errorf("unknown mesh %q: %w", meshName, core.ErrInvalidArgument.Error())
	}
	part, ok := s.partitions[meshID]
	if !ok {
		return false, fmt.Errorf("mesh %q not used by this participant: %w", meshName, core.ErrInvalidArgument.Error())
	}
	return part.Requirement() == core.MeshRequirementFull, nil
}

// RequiresGradientDataFor reports whether dataName was declared with
// gradient support. Gradient declarations are not parsed by
// internal/config yet, so this always returns false.
func (s *SolverInterface) RequiresGradientDataFor(dataName string) bool {
	return false
}

