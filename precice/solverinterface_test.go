package precice

import (
	"fmt"
	"sync"
	"testing"

	"github.com/opencoupler/core/internal/comm"
	"github.com/opencoupler/core/internal/config"
	"github.com/opencoupler/core/internal/core"
)

// twoParticipantDoc builds a minimal serial-explicit document: A provides
// MeshA and writes Temperature on it, B receives MeshA and reads
// Temperature.
func twoParticipantDoc() *config.Document {
	return &config.Document{
		Dimensions: 2,
		Data:       []config.DataDecl{{Name: "Temperature"}},
		Meshes:     []config.MeshDecl{{Name: "MeshA", UseData: []string{"Temperature"}}},
		Participants: []config.ParticipantDecl{
			{
				Name:        "A",
				ProvideMesh: []string{"MeshA"},
				WriteData:   []config.DataRef{{Name: "Temperature", Mesh: "MeshA"}},
			},
			{
				Name:        "B",
				ReceiveMesh: []config.ReceiveMeshDecl{{Name: "MeshA", From: "A"}},
				ReadData:    []config.DataRef{{Name: "Temperature", Mesh: "MeshA"}},
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
					{Data: "Temperature", Mesh: "MeshA", From: "A", To: "B"},
				},
			},
		},
	}
}

// memPeers builds the two Communications a pair of SolverInterfaces need,
// connected by in-memory pipes with one distributed channel already
// configured for meshID.
func memPeers(meshID core.MeshID) (a, b *comm.MemCommunication) {
	pa, pb := comm.NewMemPrimaryPair()
	a = comm.NewMemCommunication(pa)
	b = comm.NewMemCommunication(pb)
	da, db := comm.NewMemDistributedPair()
	a.ConfigurePartitions(meshID, da)
	b.ConfigurePartitions(meshID, db)
	return a, b
}

// TestSolverInterfaceRoundTrip builds both participants from the same
// document, exchanges one vertex's worth of Temperature over a single
// explicit window, and checks B receives the value A wrote.
func TestSolverInterfaceRoundTrip(t *testing.T) {
	doc := twoParticipantDoc()
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

	if _, err := a.SetMeshVertex("MeshA", []float64{1, 2}); err != nil {
		t.Fatalf("SetMeshVertex(A): %v", err)
	}

	// B's Initialize blocks in ReceiveResultOfFirstAdvance until A's own
	// first Advance has sent, so the two participants' lifecycles must run
	// on separate goroutines rather than one after another.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	var got []float64
	var bWindowComplete bool

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.Initialize(); err != nil {
			errs <- fmt.Errorf("a.Initialize: %w", err)
			return
		}
		if err := a.WriteData("Temperature", "MeshA", 0, []float64{42}); err != nil {
			errs <- fmt.Errorf("a.WriteData: %w", err)
			return
		}
		if _, err := a.Advance(1); err != nil {
			errs <- fmt.Errorf("a.Advance: %w", err)
			return
		}
		if !a.IsTimeWindowComplete() {
			errs <- fmt.Errorf("a: expected the single time window complete")
			return
		}
		if a.RequiresWritingCheckpoint() {
			a.MarkActionFulfilled(core.ActionWriteCheckpoint)
		}
		if err := a.Finalize(); err != nil {
			errs <- fmt.Errorf("a.Finalize: %w", err)
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
		v, err := b.ReadData("Temperature", "MeshA", 0)
		if err != nil {
			errs <- fmt.Errorf("b.ReadData: %w", err)
			return
		}
		got = v
		bWindowComplete = b.IsTimeWindowComplete()
		if b.RequiresWritingCheckpoint() {
			b.MarkActionFulfilled(core.ActionWriteCheckpoint)
		}
		if err := b.Finalize(); err != nil {
			errs <- fmt.Errorf("b.Finalize: %w", err)
			return
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("%v", err)
	}

	if len(got) != 1 || got[0] != 42 {
		t.Fatalf("ReadData(Temperature) = %v, want [42]", got)
	}
	if !bWindowComplete {
		t.Fatalf("expected b to report the single time window complete")
	}
}

// TestSolverInterfaceRejectsUnknownParticipant checks construction fails
// cleanly when BuildConfig names a participant absent from the document.
func TestSolverInterfaceRejectsUnknownParticipant(t *testing.T) {
	doc := twoParticipantDoc()
	_, err := NewSolverInterface(doc, BuildConfig{ParticipantName: "C"})
	if err == nil {
		t.Fatalf("expected an error for an unknown participant")
	}
	if kind, ok := core.AsError(err); !ok || kind != core.ErrUnknownParticipant {
		t.Fatalf("expected ErrUnknownParticipant, got %v", err)
	}
}

// TestAdvanceBeforeInitializeFails checks the lifecycle guard on Advance.
func TestAdvanceBeforeInitializeFails(t *testing.T) {
	doc := twoParticipantDoc()
	commA, _ := memPeers(core.MeshID(0))
	a, err := NewSolverInterface(doc, BuildConfig{
		ParticipantName: "A",
		Peers:           map[string]Peer{"B": commA},
	})
	if err != nil {
		t.Fatalf("NewSolverInterface: %v", err)
	}
	if _, err := a.Advance(1); err == nil {
		t.Fatalf("expected an error calling Advance before Initialize")
	}
}
