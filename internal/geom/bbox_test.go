package geom

import "testing"

func TestNewBoundingBoxRejectsInverted(t *testing.T) {
	if _, err := NewBoundingBox(2, Coord{1, 0}, Coord{0, 1}); err == nil {
		t.Errorf("expected error for min > max in dimension 0")
	}
}

func TestIntersectsOverlappingAndDisjointBoxes(t *testing.T) {
	provider := NewEmptyBoundingBox(2)
	for _, p := range []Coord{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		provider.ExpandPoint(p)
	}
	receiver, _ := NewBoundingBox(2, Coord{0.5, 0.5}, Coord{1.5, 1.5})
	if !provider.Intersects(receiver) {
		t.Fatalf("expected provider and receiver boxes to intersect")
	}
	far, _ := NewBoundingBox(2, Coord{5, 5}, Coord{6, 6})
	if provider.Intersects(far) {
		t.Errorf("expected far box not to intersect provider")
	}
}

func TestContainsOnlyAboveThreshold(t *testing.T) {
	region, _ := NewBoundingBox(2, Coord{0.5, 0.5}, Coord{1.5, 1.5})
	if region.Contains(Coord{0.4, 0.9}) {
		t.Errorf("point below threshold in x should not be contained")
	}
	if !region.Contains(Coord{0.5, 1.5}) {
		t.Errorf("boundary point should be contained (inclusive bounds)")
	}
}

func TestSplitDiagonalTieBreak(t *testing.T) {
	// Unit square: both diagonals have equal length, expect split along (v0,v2).
	diag, triA, triB := SplitDiagonal(Coord{0, 0}, Coord{1, 0}, Coord{1, 1}, Coord{0, 1})
	if diag != [2]int{0, 2} {
		t.Errorf("diag = %v, want {0,2}", diag)
	}
	if triA != [3]int{0, 1, 2} || triB != [3]int{0, 2, 3} {
		t.Errorf("unexpected triangle split: %v / %v", triA, triB)
	}
}

func TestSplitDiagonalPicksShorter(t *testing.T) {
	// d02 = 10, d13 = 2: expect split along (v1,v3).
	diag, triA, triB := SplitDiagonal(Coord{0, 0}, Coord{5, -1}, Coord{10, 0}, Coord{5, 1})
	if diag != [2]int{1, 3} {
		t.Errorf("diag = %v, want {1,3}", diag)
	}
	if triA != [3]int{0, 1, 3} || triB != [3]int{1, 2, 3} {
		t.Errorf("unexpected triangle split: %v / %v", triA, triB)
	}
}
