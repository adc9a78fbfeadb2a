package geom

// ConvexOrder is the result of the (externally supplied) convexity oracle:
// whether four coplanar vertices form a convex quad, and if so, their
// canonical cyclic order [v0,v1,v2,v3]. The convexity test itself is out of
// scope here; this package only consumes its result to decide the diagonal
// split.
type ConvexOrder struct {
	Convex bool
	Order [4]int // indices into the caller's vertex slice, canonical cyclic order
}

// SplitDiagonal picks which diagonal of a convex quad to split along, given
// the four coplanar corner coordinates in canonical order v0..v3:
//
//	d02 = |v0-v2|, d13 = |v1-v3|
//	split along (v0,v2) if d02 <= d13, else along (v1,v3).
//
// The tie-break on equality is deterministic: split along (v0,v2).
//
// Returns the pair of canonical-order indices (0-3) naming the diagonal, and
// the two triangles it produces as canonical-order index triples.
func SplitDiagonal(v0, v1, v2, v3 Coord) (diagonal [2]int, triA, triB [3]int) {
	d02 := Dist(v0, v2)
	d13 := Dist(v1, v3)
	if d02 <= d13 {
		// split along (v0,v2): triangles (v0,v1,v2) and (v0,v2,v3)
		return [2]int{0, 2}, [3]int{0, 1, 2}, [3]int{0, 2, 3}
	}
	// split along (v1,v3): triangles (v0,v1,v3) and (v1,v2,v3)
	return [2]int{1, 3}, [3]int{0, 1, 3}, [3]int{1, 2, 3}
}
