package config

import (
	"strings"
	"testing"

	"github.com/opencoupler/core/internal/core"
)

func TestParseMinimalSerialExplicit(t *testing.T) {
	doc, err := Parse(strings.NewReader(`
<solver-interface dimensions="2" experimental="false">
  <data:scalar name="Temperature"/>
  <mesh name="FluidMesh">
    <use-data name="Temperature"/>
  </mesh>
  <participant name="Fluid">
    <provide-mesh name="FluidMesh"/>
    <write-data name="Temperature" mesh="FluidMesh"/>
  </participant>
  <participant name="Solid">
    <receive-mesh name="FluidMesh" from="Fluid"/>
    <read-data name="Temperature" mesh="FluidMesh"/>
  </participant>
  <m2n:sockets from="Fluid" to="Solid"/>
  <coupling-scheme:serial-explicit>
    <max-time value="10"/>
    <time-window-size value="0.1" method="fixed"/>
    <participants first="Fluid" second="Solid"/>
    <exchange data="Temperature" mesh="FluidMesh" from="Fluid" to="Solid"/>
  </coupling-scheme:serial-explicit>
</solver-interface>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Dimensions != 2 {
		t.Errorf("Dimensions = %d, want 2", doc.Dimensions)
	}
	if len(doc.Data) != 1 || doc.Data[0].Name != "Temperature" || doc.Data[0].Vector {
		t.Fatalf("Data = %+v", doc.Data)
	}
	if len(doc.Meshes) != 1 || doc.Meshes[0].Name != "FluidMesh" || len(doc.Meshes[0].UseData) != 1 {
		t.Fatalf("Meshes = %+v", doc.Meshes)
	}
	if len(doc.Participants) != 2 {
		t.Fatalf("Participants = %+v", doc.Participants)
	}
	fluid, solid := doc.Participants[0], doc.Participants[1]
	if fluid.Name != "Fluid" || len(fluid.ProvideMesh) != 1 || fluid.ProvideMesh[0] != "FluidMesh" {
		t.Errorf("Fluid = %+v", fluid)
	}
	if solid.Name != "Solid" || len(solid.ReceiveMesh) != 1 || solid.ReceiveMesh[0].From != "Fluid" {
		t.Errorf("Solid = %+v", solid)
	}
	if len(doc.M2Ns) != 1 || doc.M2Ns[0].Kind != "sockets" {
		t.Fatalf("M2Ns = %+v", doc.M2Ns)
	}
	if len(doc.Schemes) != 1 {
		t.Fatalf("Schemes = %+v", doc.Schemes)
	}
	s := doc.Schemes[0]
	if s.Kind != "serial-explicit" {
		t.Errorf("Kind = %q, want serial-explicit", s.Kind)
	}
	if s.MaxTime != 10 || s.TimeWindowSize != 0.1 || s.WindowMethod != "fixed" {
		t.Errorf("scheme timing = %+v", s)
	}
	if s.FirstParticipant != "Fluid" || s.SecondParticipant != "Solid" {
		t.Errorf("scheme participants = %+v", s)
	}
	if len(s.Exchanges) != 1 || s.Exchanges[0].Data != "Temperature" {
		t.Fatalf("Exchanges = %+v", s.Exchanges)
	}
}

func TestParseImplicitWithConvergenceMeasureAndAcceleration(t *testing.T) {
	doc, err := Parse(strings.NewReader(`
<solver-interface dimensions="3">
  <data:vector name="Force"/>
  <data:vector name="Displacement"/>
  <mesh name="StructureMesh">
    <use-data name="Force"/>
    <use-data name="Displacement"/>
  </mesh>
  <participant name="Fluid">
    <provide-mesh name="StructureMesh"/>
    <read-data name="Displacement" mesh="StructureMesh"/>
    <write-data name="Force" mesh="StructureMesh"/>
  </participant>
  <participant name="Solid">
    <receive-mesh name="StructureMesh" from="Fluid"/>
    <write-data name="Displacement" mesh="StructureMesh"/>
    <read-data name="Force" mesh="StructureMesh"/>
  </participant>
  <coupling-scheme:serial-implicit>
    <max-time value="1"/>
    <time-window-size value="0.01"/>
    <participants first="Fluid" second="Solid"/>
    <exchange data="Force" mesh="StructureMesh" from="Fluid" to="Solid"/>
    <exchange data="Displacement" mesh="StructureMesh" from="Solid" to="Fluid"/>
    <max-iterations value="50"/>
    <convergence-measure data="Displacement" mesh="StructureMesh" limit="1e-5" suffices="true"/>
    <acceleration:IQN-ILS initial-relaxation="0.1" reused-time-windows="8"/>
  </coupling-scheme:serial-implicit>
</solver-interface>`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := doc.Schemes[0]
	if s.Kind != "serial-implicit" {
		t.Fatalf("Kind = %q", s.Kind)
	}
	if s.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", s.MaxIterations)
	}
	if len(s.ConvergenceMeasures) != 1 || !s.ConvergenceMeasures[0].Suffices {
		t.Fatalf("ConvergenceMeasures = %+v", s.ConvergenceMeasures)
	}
	if s.Acceleration == nil || s.Acceleration.Kind != "IQN-ILS" || s.Acceleration.ReusedTimeWindows != 8 {
		t.Fatalf("Acceleration = %+v", s.Acceleration)
	}
}

func TestParseRejectsFirstParticipantWithExtrapolation(t *testing.T) {
	_, err := Parse(strings.NewReader(`
<solver-interface dimensions="2">
  <mesh name="M"/>
  <participant name="A"><provide-mesh name="M"/></participant>
  <participant name="B"><receive-mesh name="M" from="A"/></participant>
  <coupling-scheme:serial-explicit>
    <max-time value="1"/>
    <time-window-size value="0.1" method="first-participant"/>
    <participants first="A" second="B"/>
    <extrapolation-order value="1"/>
  </coupling-scheme:serial-explicit>
</solver-interface>`))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if e, ok := core.AsError(err); !ok || e != core.ErrConfigSemantics {
		t.Fatalf("error = %v, want ErrConfigSemantics", err)
	}
}

func TestParseRejectsUnknownMeshReference(t *testing.T) {
	_, err := Parse(strings.NewReader(`
<solver-interface dimensions="2">
  <mesh name="M"/>
  <participant name="A"><provide-mesh name="M"/></participant>
  <participant name="B"><receive-mesh name="M" from="A"/></participant>
  <coupling-scheme:serial-explicit>
    <max-time value="1"/>
    <time-window-size value="0.1"/>
    <participants first="A" second="B"/>
    <exchange data="X" mesh="Bogus" from="A" to="B"/>
  </coupling-scheme:serial-explicit>
</solver-interface>`))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if e, ok := core.AsError(err); !ok || e != core.ErrConfigSemantics {
		t.Fatalf("error = %v, want ErrConfigSemantics", err)
	}
}

func TestParseRejectsMalformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader(`<solver-interface dimensions="2">`))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if e, ok := core.AsError(err); !ok || e != core.ErrConfigSyntax {
		t.Fatalf("error = %v, want ErrConfigSyntax", err)
	}
}

func TestParseRejectsBadDimensions(t *testing.T) {
	_, err := Parse(strings.NewReader(`<solver-interface dimensions="4"></solver-interface>`))
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	if e, ok := core.AsError(err); !ok || e != core.ErrConfigSemantics {
		t.Fatalf("error = %v, want ErrConfigSemantics", err)
	}
}
