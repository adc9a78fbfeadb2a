package precice

import (
	"fmt"
	"sync"
	"testing"

	"github.com/opencoupler/core/internal/config"
	"github.com/opencoupler/core/internal/core"
)

// vectorDataDoc builds a two-participant serial-explicit document over a
// vector ("Velocity", dims components per vertex) data field, exercising
// the mesh connectivity writers and the block/time-sampled data API that
// solverinterface_test.go's scalar round trip does not reach.
func vectorDataDoc() *config.Document {
	return &config.Document{
		Dimensions: 2,
		Data:       []config.DataDecl{{Name: "Velocity", Vector: true}},
		Meshes:     []config.MeshDecl{{Name: "MeshA", UseData: []string{"Velocity"}}},
		Participants: []config.ParticipantDecl{
			{
				Name:        "A",
				ProvideMesh: []string{"MeshA"},
				WriteData:   []config.DataRef{{Name: "Velocity", Mesh: "MeshA"}},
			},
			{
				Name:        "B",
				ReceiveMesh: []config.ReceiveMeshDecl{{Name: "MeshA", From: "A"}},
				ReadData:    []config.DataRef{{Name: "Velocity", Mesh: "MeshA"}},
			},
		},
		Schemes: []config.SchemeDecl{
			{
				Kind:              "serial-explicit",
				MaxTime:           config.UndefinedMaxTime,
				MaxTimeWindows:    1,
				TimeWindowSize:    1,
				WindowMethod:      "fixed",
				FirstParticipant:  "A",
				SecondParticipant: "B",
				Exchanges: []config.ExchangeDecl{
					{Data: "Velocity", Mesh: "MeshA", From: "A", To: "B"},
				},
			},
		},
	}
}

// TestMeshConnectivityWriters checks the triangle/quad builders assign
// indices and accept the shared vertices they were handed.
func TestMeshConnectivityWriters(t *testing.T) {
	doc := vectorDataDoc()
	commA, _ := memPeers(core.MeshID(0))
	a, err := NewSolverInterface(doc, BuildConfig{
		ParticipantName: "A",
		Peers:           map[string]Peer{"B": commA},
	})
	if err != nil {
		t.Fatalf("NewSolverInterface(A): %v", err)
	}

	ids, err := a.SetMeshVertices("MeshA", []float64{
		0, 0,
		1, 0,
		1, 1,
		0, 1,
	})
	if err != nil {
		t.Fatalf("SetMeshVertices: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("expected 4 vertex ids, got %d", len(ids))
	}

	if _, err := a.SetMeshTriangle("MeshA", ids[0], ids[1], ids[2]); err != nil {
		t.Fatalf("SetMeshTriangle: %v", err)
	}
	if _, err := a.SetMeshQuad("MeshA", [4]core.VertexID{ids[0], ids[1], ids[2], ids[3]}); err != nil {
		t.Fatalf("SetMeshQuad: %v", err)
	}

	n, err := a.GetMeshVertexSize("MeshA")
	if err != nil {
		t.Fatalf("GetMeshVertexSize: %v", err)
	}
	if n != 4 {
		t.Fatalf("GetMeshVertexSize = %d, want 4", n)
	}
}

// TestBlockDataAndReadAtTime writes a full window's worth of vector data in
// one block call, advances both participants, and checks both the plain
// ReadBlockData view and a time-sampled read land on the value A sent.
func TestBlockDataAndReadAtTime(t *testing.T) {
	doc := vectorDataDoc()
	const meshID = core.MeshID(0)
	commA, commB := memPeers(meshID)

	a, err := NewSolverInterface(doc, BuildConfig{
		ParticipantName: "A",
		Peers:           map[string]Peer{"B": commA},
	})
	if err != nil {
		t.Fatalf("NewSolverInterface(A): %v", err)
	}
	b, err := NewSolverInterface(doc, BuildConfig{
		ParticipantName: "B",
		Peers:           map[string]Peer{"A": commB},
	})
	if err != nil {
		t.Fatalf("NewSolverInterface(B): %v", err)
	}

	ids, err := a.SetMeshVertices("MeshA", []float64{0, 0, 1, 0})
	if err != nil {
		t.Fatalf("SetMeshVertices(A): %v", err)
	}

	// B's Initialize blocks until A's own first Advance has sent, so the two
	// participants' lifecycles must run on separate goroutines.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	var got, sampled []float64
	want := []float64{1, 2, 3, 4}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.Initialize(); err != nil {
			errs <- fmt.Errorf("a.Initialize: %w", err)
			return
		}
		if err := a.WriteBlockData("Velocity", "MeshA", ids, want); err != nil {
			errs <- fmt.Errorf("a.WriteBlockData: %w", err)
			return
		}
		if _, err := a.Advance(1); err != nil {
			errs <- fmt.Errorf("a.Advance: %w", err)
			return
		}
	}()
	go func() {
		defer wg.Done()
		if err := b.Initialize(); err != nil {
			errs <- fmt.Errorf("b.Initialize: %w", err)
			return
		}
		if _, err := b.Advance(1); err != nil {
			errs <- fmt.Errorf("b.Advance: %w", err)
			return
		}

		bIDs, err := b.GetMeshVertexSize("MeshA")
		if err != nil {
			errs <- fmt.Errorf("b.GetMeshVertexSize: %w", err)
			return
		}
		localIDs := make([]core.VertexID, bIDs)
		for i := range localIDs {
			localIDs[i] = core.VertexID(i)
		}

		got, err = b.ReadBlockData("Velocity", "MeshA", localIDs)
		if err != nil {
			errs <- fmt.Errorf("b.ReadBlockData: %w", err)
			return
		}
		sampled, err = b.ReadDataAtTime("Velocity", "MeshA", 1)
		if err != nil {
			errs <- fmt.Errorf("b.ReadDataAtTime: %w", err)
			return
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("%v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("ReadBlockData = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadBlockData[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(sampled) != len(want) || sampled[0] != want[0] {
		t.Fatalf("ReadDataAtTime(1) = %v, want the same values held at the window boundary (%v)", sampled, want)
	}
}
