// Package mapping binds data fields to meshes and zero or more interpolation
// mappings, consumed through the uniform Mapping interface. NearestNeighbor
// is the one kernel implemented in this package; nearest-projection and RBF
// kernels are not implemented.
package mapping

import (
	"fmt"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/core"
)

// Timing controls when a mapping is applied relative to the exchange.
type Timing int

const (
	// TimingOnAdvance applies the mapping on every exchange.
	TimingOnAdvance Timing = iota
	// TimingInitial applies the mapping only once, during initialize().
	TimingInitial
)

// Constraint is the interpolation constraint requested in configuration,
// passed through to the Mapping kernel, never interpreted here.
type Constraint int

const (
	// ConstraintConsistent preserves point values.
	ConstraintConsistent Constraint = iota
	// ConstraintConservative preserves integral quantities (e.g. forces).
	ConstraintConservative
)

// Mapping is the uniform interface every numeric mapping kernel
// (nearest-neighbor, nearest-projection, RBF,...) must satisfy. Only
// NearestNeighbor is implemented in this package.
type Mapping interface {
	// Compute builds the interpolation stencil for the given constraint.
	Compute(constraint Constraint) error
	// Map applies the computed stencil to a dataDim-wide vertex-major input
	// buffer and returns the mapped output buffer.
	Map(input []float64) ([]float64, error)
	// HasComputedMapping reports whether Compute has succeeded.
	HasComputedMapping() bool
}

// MappingContext is a (mapping, fromDataId, toDataId, timing, hasMappedData)
// tuple. Invariant: either FromData or ToData equals the owning
// DataContext's ProvidedData id; both data must share a name.
type MappingContext struct {
	Mapping Mapping
	FromData core.DataID
	ToData core.DataID
	Timing Timing
	Constraint Constraint
	HasMappedData bool
}

// DataContext binds one Data field to one Mesh and the mapping contexts that
// read or write it. Grounded on precice::impl::DataContext in
// original_source.
type DataContext struct {
	ProvidedData core.DataID
	MeshID core.MeshID
	DataName string

	mappings []MappingContext
}

// NewDataContext creates a mapping-free data context; call AppendMapping to
// attach read/write mappings.
func NewDataContext(providedData core.DataID, meshID core.MeshID, name string) *DataContext {
	return &DataContext{ProvidedData: providedData, MeshID: meshID, DataName: name}
}

// AppendMapping attaches a mapping context, validating that it references
// ProvidedData on exactly one side. Only
// unique mappings may be appended; appending the same mapping object twice
// is rejected.
func (dc *DataContext) AppendMapping(mc MappingContext) error {
	if mc.FromData != dc.ProvidedData && mc.ToData != dc.ProvidedData {
		return fmt.Errorf("mapping context does not reference provided data %v: %w", dc.ProvidedData, core.ErrInvalidArgument.Error())
	}
	if mc.FromData == dc.ProvidedData && mc.ToData == dc.ProvidedData {
		return fmt.Errorf("mapping context references the same data on both sides: %w", core.ErrInvalidArgument.Error())
	}
	for _, existing := range dc.mappings {
		if existing.Mapping == mc.Mapping {
			return fmt.Errorf("mapping already appended to data context %q: %w", dc.DataName, core.ErrInvalidArgument.Error())
		}
	}
	dc.mappings = append(dc.mappings, mc)
	return nil
}

// HasMapping reports whether this context has any attached mapping.
func (dc *DataContext) HasMapping() bool { return len(dc.mappings) > 0 }

// HasReadMapping reports whether this context has a mapping that maps into
// ProvidedData.
func (dc *DataContext) HasReadMapping() bool {
	for _, mc := range dc.mappings {
		if mc.ToData == dc.ProvidedData {
			return true
		}
	}
	return false
}

// HasWriteMapping reports whether this context has a mapping that maps out
// of ProvidedData.
func (dc *DataContext) HasWriteMapping() bool {
	for _, mc := range dc.mappings {
		if mc.FromData == dc.ProvidedData {
			return true
		}
	}
	return false
}

// MapData runs every attached mapping whose Timing matches.
func (dc *DataContext) MapData(timing Timing, lookup func(core.DataID) ([]float64, error), store func(core.DataID, []float64) error) error {
	for i, mc := range dc.mappings {
		if mc.Timing != timing {
			continue
		}
		if !mc.Mapping.HasComputedMapping() {
			return fmt.Errorf("mapping for data %q not yet computed: %w", dc.DataName, core.ErrInvalidState.Error())
		}
		input, err := lookup(mc.FromData)
		if err != nil {
			return err
		}
		output, err := mc.Mapping.Map(input)
		if err != nil {
			return err
		}
		if err := store(mc.ToData, output); err != nil {
			return err
		}
		dc.mappings[i].HasMappedData = true
		log.V(2).Infof("data %q: applied mapping %d->%d (timing=%v)", dc.DataName, mc.FromData, mc.ToData, timing)
	}
	return nil
}
