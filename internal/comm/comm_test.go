package comm

import (
	"testing"

	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
)

func TestMemPrimaryChannelHandshakeAndScalar(t *testing.T) {
	a, b := NewMemPrimaryPair()
	defer a.Close()
	defer b.Close()

	done := make(chan string, 1)
	go func() {
		id, err := b.Handshake("B")
		if err != nil {
			t.Error(err)
		}
		done <- id
	}()
	id, err := a.Handshake("A")
	if err != nil {
		t.Fatal(err)
	}
	if id != "B" {
		t.Errorf("a received handshake id %q, want B", id)
	}
	if got := <-done; got != "A" {
		t.Errorf("b received handshake id %q, want A", got)
	}

	go func() { _ = a.SendScalar(3.14) }()
	v, err := b.ReceiveScalar()
	if err != nil {
		t.Fatal(err)
	}
	if v != 3.14 {
		t.Errorf("ReceiveScalar() = %v, want 3.14", v)
	}
}

func TestMemDistributedChannelMeshBuffer(t *testing.T) {
	a, b := NewMemDistributedPair()
	defer a.Close()
	defer b.Close()

	want := []float64{1, 2, 3, 4, 5}
	go func() { _ = a.SendMeshBuffer(core.MeshID(7), 1, want) }()
	got, err := b.ReceiveMeshBuffer(core.MeshID(7), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReceiveMeshBufferRejectsWrongMesh(t *testing.T) {
	a, b := NewMemDistributedPair()
	defer a.Close()
	defer b.Close()

	go func() { _ = a.SendMeshBuffer(core.MeshID(1), 1, []float64{1}) }()
	if _, err := b.ReceiveMeshBuffer(core.MeshID(2), 1); err == nil {
		t.Errorf("expected error receiving buffer tagged for a different mesh")
	}
}

func TestBoundingBoxWireRoundTrip(t *testing.T) {
	box, err := geom.NewBoundingBox(2, geom.Coord{0.5, 0.5}, geom.Coord{1.5, 1.5})
	if err != nil {
		t.Fatal(err)
	}
	msg := EncodeBoundingBox(core.RankID(2), box)
	if len(msg.Bounds) != 4 {
		t.Fatalf("len(Bounds) = %d, want 4", len(msg.Bounds))
	}
	decoded, err := DecodeBoundingBox(msg)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Min != box.Min || decoded.Max != box.Max {
		t.Errorf("round trip mismatch: got min=%v max=%v, want min=%v max=%v", decoded.Min, decoded.Max, box.Min, box.Max)
	}
}
