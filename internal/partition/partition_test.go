package partition

import (
	"testing"

	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/core"
	"github.com/opencoupler/core/internal/geom"
	"github.com/opencoupler/core/internal/mesh"
)

func TestProvidedAndReceivedPartitionFilterByAccessRegion(t *testing.T) {
	// Grounded on scenario 5: provider has a 2D mesh in [0,1]^2,
	// receiver sets access region [0.5,1.5]x[0.5,1.5] and should only see
	// vertices with both coordinates >= 0.5.
	providerMesh := mesh.New(core.MeshID(0), "Provided", 2)
	providerMesh.SetVertices([]geom.Coord{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0.75, 0.75}})

	receiverMesh := mesh.New(core.MeshID(0), "Received", 2)
	region, err := geom.NewBoundingBox(2, geom.Coord{0.5, 0.5}, geom.Coord{1.5, 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if err := receiverMesh.SetAccessRegion(region); err != nil {
		t.Fatal(err)
	}

	providerSide, receiverSide := comm.NewMemDistributedPair()
	defer providerSide.Close()
	defer receiverSide.Close()

	provided := NewProvidedPartition(providerMesh, core.MeshRequirementVertex)
	provided.AddReceiver(core.RankID(1), providerSide, nil)

	received := NewReceivedPartition(receiverMesh, core.MeshRequirementVertex, 0.0, true)
	received.AttachChannel(receiverSide)
	received.SetOwnedBoundingBox(geom.NewEmptyBoundingBox(2)) // no other owned interface points

	done := make(chan error, 1)
	go func() { done <- provided.Communicate() }()
	if err := received.Communicate(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if err := received.Filter(); err != nil {
		t.Fatal(err)
	}

	if got := received.LocalSize(); got != 2 {
		t.Fatalf("LocalSize() = %d, want 2 (only (1,1) and (0.75,0.75) lie inside the access region)", got)
	}
	for _, v := range receiverMesh.Vertices {
		if v.Index[0] < 0.5 || v.Index[1] < 0.5 {
			t.Errorf("kept vertex %v has a coordinate below 0.5", v.Index)
		}
	}
}

func TestReceivedPartitionEmptyBoxIsNotAnError(t *testing.T) {
	providerMesh := mesh.New(core.MeshID(0), "Provided", 2)
	providerMesh.SetVertices([]geom.Coord{{10, 10}})

	receiverMesh := mesh.New(core.MeshID(0), "Received", 2)

	providerSide, receiverSide := comm.NewMemDistributedPair()
	defer providerSide.Close()
	defer receiverSide.Close()

	provided := NewProvidedPartition(providerMesh, core.MeshRequirementVertex)
	provided.AddReceiver(core.RankID(1), providerSide, nil)

	received := NewReceivedPartition(receiverMesh, core.MeshRequirementVertex, 0.0, false)
	received.AttachChannel(receiverSide)
	received.SetOwnedBoundingBox(geom.NewEmptyBoundingBox(2)) // empty: this rank owns nothing here

	done := make(chan error, 1)
	go func() { done <- provided.Communicate() }()
	if err := received.Communicate(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := received.Filter(); err != nil {
		t.Fatal(err)
	}
	if got := received.LocalSize(); got != 0 {
		t.Errorf("LocalSize() = %d, want 0 for an empty filter box", got)
	}
}

func TestAddReceiverRequirementTakesMax(t *testing.T) {
	m := mesh.New(core.MeshID(0), "M", 2)
	p := NewProvidedPartition(m, core.MeshRequirementVertex)
	p.AddReceiverRequirement(core.MeshRequirementFull)
	if p.Requirement() != core.MeshRequirementFull {
		t.Errorf("Requirement() = %v, want Full", p.Requirement())
	}
}
