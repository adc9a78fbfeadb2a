package mapping

import (
	"fmt"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

// NearestNeighbor is a minimal Mapping implementation; more advanced
// nearest-projection and RBF kernels are not implemented here. The precice
// facade builds this kernel for every configured mapping, whatever kind the
// configuration names.
type NearestNeighbor struct {
	dataDim int
	fromCoord []geom.Coord
	toCoord []geom.Coord
	stencil []int // stencil[i] = index into fromCoord nearest to toCoord[i]
}

// NewNearestNeighbor builds an uncomputed nearest-neighbor mapping from one
// vertex set to another.
func NewNearestNeighbor(dataDim int, from, to []geom.Coord) *NearestNeighbor {
	return &NearestNeighbor{dataDim: dataDim, fromCoord: from, toCoord: to}
}

// Compute builds the nearest-neighbor stencil. The constraint is accepted
// but unused: nearest-neighbor is constraint-agnostic.
func (n *NearestNeighbor) Compute(_ Constraint) error {
	if len(n.fromCoord) == 0 {
		return fmt.Errorf("nearest-neighbor mapping: source mesh has no vertices: %w", core.ErrInvalidState.Error())
	}
	n.stencil = make([]int, len(n.toCoord))
	for i, to := range n.toCoord {
		best, bestDist := 0, geom.Dist(to, n.fromCoord[0])
		for j := 1; j < len(n.fromCoord); j++ {
			if d := geom.Dist(to, n.fromCoord[j]); d < bestDist {
				best, bestDist = j, d
			}
		}
		n.stencil[i] = best
	}
	return nil
}

// HasComputedMapping implements Mapping.
func (n *NearestNeighbor) HasComputedMapping() bool { return n.stencil != nil }

// Map implements Mapping.
func (n *NearestNeighbor) Map(input []float64) ([]float64, error) {
	if n.stencil == nil {
		return nil, fmt.Errorf("nearest-neighbor mapping not computed: %w", core.ErrInvalidState.Error())
	}
	if len(input) != len(n.fromCoord)*n.dataDim {
		return nil, fmt.Errorf("nearest-neighbor mapping: expected %d input values, got %d: %w", len(n.fromCoord)*n.dataDim, len(input), core.ErrInvalidArgument.Error())
	}
	out := make([]float64, len(n.toCoord)*n.dataDim)
	for i, src := range n.stencil {
		copy(out[i*n.dataDim:(i+1)*n.dataDim], input[src*n.dataDim:(src+1)*n.dataDim])
	}
	return out, nil
}
