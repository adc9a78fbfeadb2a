package mesh

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
)

// Data is a field attached to a mesh. Storage is a dense buffer of
// length |vertices| * Dimensions laid out vertex-major, plus an optional
// gradient matrix of shape (spaceDim * (Dimensions * |vertices|)).
type Data struct {
	ID core.DataID
	Name string
	Dimensions int // 1 = scalar, n = vector (n = space dimension)
	HasGradient bool
	spaceDim int

	values []float64
	gradient []float64 // column-blockwise, len = spaceDim * Dimensions * |vertices|
}

// NewData creates an unallocated data field. Call AddData on a mesh (or
// AllocateDataValues directly for tests) to size its buffers.
func NewData(id core.DataID, name string, dimensions int, hasGradient bool, spaceDim int) *Data {
	return &Data{ID: id, Name: name, Dimensions: dimensions, HasGradient: hasGradient, spaceDim: spaceDim}
}

func (d *Data) growToVertexCount(n int) {
	need := n * d.Dimensions
	if len(d.values) < need {
		grown := make([]float64, need)
		copy(grown, d.values)
		d.values = grown
	} else {
		d.values = d.values[:need]
	}
	if d.HasGradient {
		needGrad := d.spaceDim * d.Dimensions * n
		if len(d.gradient) < needGrad {
			grown := make([]float64, needGrad)
			copy(grown, d.gradient)
			d.gradient = grown
		} else {
			d.gradient = d.gradient[:needGrad]
		}
	}
}

func (d *Data) reset() {
	d.values = nil
	d.gradient = nil
}

// AllocateDataValues re-sizes the buffer to match n*Dimensions exactly.
func (d *Data) AllocateDataValues(n int) {
	d.values = make([]float64, n*d.Dimensions)
	if d.HasGradient {
		d.gradient = make([]float64, d.spaceDim*d.Dimensions*n)
	}
}

// Values returns the live value buffer (vertex-major).
func (d *Data) Values() []float64 { return d.values }

// ValuesPtr returns a pointer to the value-buffer slice header, for a
// CouplingData to wrap by reference. growToVertexCount may reassign
// d.values to a new backing array on resize, so callers that need to see
// later growth (rather than a one-time snapshot) must dereference through
// this pointer instead of caching the slice returned by Values.
func (d *Data) ValuesPtr() *[]float64 { return &d.values }

// SetValues overwrites the value buffer. len(v) must equal len(d.values).
func (d *Data) SetValues(v []float64) error {
	if len(v) != len(d.values) {
		return fmt.Errorf("data %q: expected %d values, got %d: %w", d.Name, len(d.values), len(v), core.ErrInvalidArgument.Error())
	}
	copy(d.values, v)
	return nil
}

// SetVertexValue writes dataDim values at vertex index i (a block write,
// matching the per-vertex data writer API).
func (d *Data) SetVertexValue(i int, v []float64) error {
	if len(v) != d.Dimensions {
		return fmt.Errorf("data %q: expected %d components, got %d: %w", d.Name, d.Dimensions, len(v), core.ErrInvalidArgument.Error())
	}
	off := i * d.Dimensions
	if off+d.Dimensions > len(d.values) {
		return fmt.Errorf("data %q: vertex index %d out of range: %w", d.Name, i, core.ErrInvalidArgument.Error())
	}
	copy(d.values[off:off+d.Dimensions], v)
	return nil
}

// VertexValue reads dataDim values at vertex index i.
func (d *Data) VertexValue(i int) []float64 {
	off := i * d.Dimensions
	return d.values[off : off+d.Dimensions]
}

// Gradient returns the live gradient buffer, or nil if gradients are not
// tracked for this data.
func (d *Data) Gradient() []float64 { return d.gradient }

// SetVertexGradient writes the spaceDim x dataDim gradient block for vertex
// i, stored column-blockwise. No-op (and
// returns an error) unless HasGradient is set; callers are expected to have
// already checked requiresGradientDataFor before calling.
func (d *Data) SetVertexGradient(i int, block []float64) error {
	if !d.HasGradient {
		return fmt.Errorf("data %q does not require gradients: %w", d.Name, core.ErrWrongState.Error())
	}
	want := d.spaceDim * d.Dimensions
	if len(block) != want {
		return fmt.Errorf("data %q: expected %d gradient components, got %d: %w", d.Name, want, len(block), core.ErrInvalidArgument.Error())
	}
	blockSize := d.Dimensions
	nVerts := len(d.values) / d.Dimensions
	for row := 0; row < d.spaceDim; row++ {
		dst := row*blockSize*nVerts + i*blockSize
		src := row * blockSize
		copy(d.gradient[dst:dst+blockSize], block[src:src+blockSize])
	}
	return nil
}

// GlobalData is a field not attached to any mesh, carrying a single value
// (scalar or vector). Transported without a mesh id.
type GlobalData struct {
	ID core.DataID
	Name string
	Dimensions int
	values []float64
}

// NewGlobalData creates a global data field with its single value
// initialized to zero.
func NewGlobalData(id core.DataID, name string, dimensions int) *GlobalData {
	return &GlobalData{ID: id, Name: name, Dimensions: dimensions, values: make([]float64, dimensions)}
}

// Values returns the live single-value buffer.
func (g *GlobalData) Values() []float64 { return g.values }

// ValuesPtr returns a pointer to the value-buffer slice header, for a
// CouplingData to wrap by reference.
func (g *GlobalData) ValuesPtr() *[]float64 { return &g.values }

// SetValues overwrites the single-value buffer.
func (g *GlobalData) SetValues(v []float64) error {
	if len(v) != g.Dimensions {
		return fmt.Errorf("global data %q: expected %d values, got %d: %w", g.Name, g.Dimensions, len(v), core.ErrInvalidArgument.Error())
	}
	copy(g.values, v)
	return nil
}
