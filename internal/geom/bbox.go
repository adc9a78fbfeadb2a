// Package geom holds the geometry primitives consumed by mesh and partition:
// coordinates, bounding boxes, and the convex-quad decomposition oracle used
// when a solver hands the library a quadrilateral.
//
// Full geometry kernels (robust convex tests, RBF stencils, ...) are not
// implemented here; this package covers only the primitives the core needs
// to drive partitioning and mesh storage.
package geom

import (
	"fmt"
	"math"

	"github.com/opencoupler/core/internal/core"
)

// Coord is a point in 2 or 3 dimensional space. Unused trailing components
// for a 2D configuration are left at zero.
type Coord [core.MaxSpaceDimensions]float64

// Sub returns a-b component-wise.
func (a Coord) Sub(b Coord) Coord {
	var r Coord
	for i := range a {
		r[i] = a[i] - b[i]
	}
	return r
}

// Norm returns the Euclidean length of c.
func (c Coord) Norm() float64 {
	var sum float64
	for _, v := range c {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Dist returns the Euclidean distance between a and b.
func Dist(a, b Coord) float64 {
	return a.Sub(b).Norm()
}

// BoundingBox is an axis-aligned box over `dims` dimensions. Invariant:
// Min[d] <= Max[d] for d < dims once the box is non-empty.
type BoundingBox struct {
	dims int
	Min Coord
	Max Coord
	// empty marks a box that has never been expanded by a point; Contains
	// always returns false and Union with an empty box is a no-op.
	empty bool
}

// NewEmptyBoundingBox returns an empty bounding box for the given
// dimensionality (2 or 3).
func NewEmptyBoundingBox(dims int) BoundingBox {
	b := BoundingBox{dims: dims, empty: true}
	for i := 0; i < dims; i++ {
		b.Min[i] = math.Inf(1)
		b.Max[i] = math.Inf(-1)
	}
	return b
}

// NewBoundingBox builds a box directly from min/max coordinates, validating
// the invariant min[d] <= max[d]. Returns core.ErrIllDefinedBoundingBox if
// violated.
func NewBoundingBox(dims int, min, max Coord) (BoundingBox, error) {
	for d := 0; d < dims; d++ {
		if min[d] > max[d] {
			return BoundingBox{}, fmt.Errorf("bounding box dimension %d: min %v > max %v: %w", d, min[d], max[d], core.ErrIllDefinedBoundingBox.Error())
		}
	}
	return BoundingBox{dims: dims, Min: min, Max: max}, nil
}

// Dims reports the dimensionality of the box.
func (b BoundingBox) Dims() int { return b.dims }

// IsEmpty reports whether the box has never absorbed a point.
func (b BoundingBox) IsEmpty() bool { return b.empty }

// ExpandPoint grows the box, if needed, to include p.
func (b *BoundingBox) ExpandPoint(p Coord) {
	b.empty = false
	for d := 0; d < b.dims; d++ {
		if p[d] < b.Min[d] {
			b.Min[d] = p[d]
		}
		if p[d] > b.Max[d] {
			b.Max[d] = p[d]
		}
	}
}

// Expand unions other into the receiver in place.
func (b *BoundingBox) Expand(other BoundingBox) {
	if other.empty {
		return
	}
	b.empty = false
	for d := 0; d < b.dims; d++ {
		if other.Min[d] < b.Min[d] {
			b.Min[d] = other.Min[d]
		}
		if other.Max[d] > b.Max[d] {
			b.Max[d] = other.Max[d]
		}
	}
}

// Inflate grows the box symmetrically: each side moves outward by the
// safety factor times that dimension's full extent.
func (b *BoundingBox) Inflate(safetyFactor float64) {
	if b.empty {
		return
	}
	for d := 0; d < b.dims; d++ {
		extent := b.Max[d] - b.Min[d]
		pad := extent * safetyFactor
		b.Min[d] -= pad
		b.Max[d] += pad
	}
}

// Intersects reports whether the two boxes overlap (or touch) in every
// dimension. An empty box never intersects anything.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	if b.empty || other.empty {
		return false
	}
	for d := 0; d < b.dims; d++ {
		if b.Max[d] < other.Min[d] || other.Max[d] < b.Min[d] {
			return false
		}
	}
	return true
}

// Contains reports whether p falls within the box (inclusive bounds).
func (b BoundingBox) Contains(p Coord) bool {
	if b.empty {
		return false
	}
	for d := 0; d < b.dims; d++ {
		if p[d] < b.Min[d] || p[d] > b.Max[d] {
			return false
		}
	}
	return true
}

// StrictlySmallerThan reports whether the receiver is strictly contained in
// other in at least one dimension and never exceeds it — used to reject an
// access region that would silently clip the owned mesh.
func (b BoundingBox) StrictlySmallerThan(other BoundingBox) bool {
	if b.empty || other.empty {
		return false
	}
	smaller := false
	for d := 0; d < b.dims; d++ {
		if b.Min[d] > other.Min[d] || b.Max[d] < other.Max[d] {
			smaller = true
		}
		if b.Min[d] < other.Min[d] || b.Max[d] > other.Max[d] {
			return false
		}
	}
	return smaller
}
