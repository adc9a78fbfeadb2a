// Command preciceinspect loads a solver-interface configuration file and
// prints the parsed participant/mesh/scheme graph, the way blbcli's
// diagnostic subcommands print cluster state without driving the cluster
// itself.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/golang/glog"

	"github.com/opencoupler/core/internal/config"
)

var configFile = flag.String("config_file", "", "path to the <solver-interface> configuration file to inspect")

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()

	if *configFile == "" {
		log.Fatalf("preciceinspect: -config_file is required")
	}

	f, err := os.Open(*configFile)
	if err != nil {
		log.Fatalf("preciceinspect: opening %s: %v", *configFile, err)
	}
	defer f.Close()

	doc, err := config.Parse(f)
	if err != nil {
		log.Fatalf("preciceinspect: parsing %s: %v", *configFile, err)
	}
	if err := config.Validate(doc); err != nil {
		log.Fatalf("preciceinspect: %s failed validation: %v", *configFile, err)
	}

	printGraph(doc)
}

func printGraph(doc *config.Document) {
	fmt.Printf("dimensions: %d\n", doc.Dimensions)

	fmt.Printf("data (%d):\n", len(doc.Data))
	for _, d := range doc.Data {
		kind := "scalar"
		if d.Vector {
			kind = "vector"
		}
		scope := "local"
		if d.Global {
			scope = "global"
		}
		fmt.Printf("  %s: %s, %s\n", d.Name, kind, scope)
	}

	fmt.Printf("meshes (%d):\n", len(doc.Meshes))
	for _, m := range doc.Meshes {
		fmt.Printf("  %s: uses [%s]\n", m.Name, strings.Join(m.UseData, ", "))
	}

	fmt.Printf("participants (%d):\n", len(doc.Participants))
	for _, p := range doc.Participants {
		fmt.Printf("  %s:\n", p.Name)
		if len(p.ProvideMesh) > 0 {
			fmt.Printf("    provides: %s\n", strings.Join(p.ProvideMesh, ", "))
		}
		for _, rm := range p.ReceiveMesh {
			fmt.Printf("    receives: %s from %s\n", rm.Name, rm.From)
		}
		for _, ref := range p.WriteData {
			fmt.Printf("    writes: %s on %s\n", ref.Name, ref.Mesh)
		}
		for _, ref := range p.ReadData {
			fmt.Printf("    reads: %s on %s\n", ref.Name, ref.Mesh)
		}
		for _, md := range p.Mappings {
			fmt.Printf("    mapping: %s %s->%s (%s)\n", md.Kind, md.From, md.To, md.Constraint)
		}
	}

	fmt.Printf("coupling schemes (%d):\n", len(doc.Schemes))
	for _, s := range doc.Schemes {
		switch s.Kind {
		case "multi":
			fmt.Printf("  multi: participants [%s]\n", strings.Join(s.Participants, ", "))
		case "compositional":
			fmt.Printf("  compositional\n")
		default:
			fmt.Printf("  %s: %s <-> %s\n", s.Kind, s.FirstParticipant, s.SecondParticipant)
		}
		fmt.Printf("    max-time-windows=%d window-size=%v method=%s\n", s.MaxTimeWindows, s.TimeWindowSize, s.WindowMethod)
		for _, ex := range s.Exchanges {
			fmt.Printf("    exchange: %s on %s, %s -> %s\n", ex.Data, ex.Mesh, ex.From, ex.To)
		}
		if s.Acceleration != nil {
			fmt.Printf("    acceleration: %s\n", s.Acceleration.Kind)
		}
	}
}
