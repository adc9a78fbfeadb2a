// Package config parses the solver-interface configuration file into a
// declarative Document: meshes, data fields, participants and their
// provide/receive/read/write/mapping declarations, and coupling-scheme
// bodies. It performs no runtime wiring: building meshes, communications
// and CouplingScheme instances from a Document is the precice package's
// job, the way blb's internal/master/config.go only holds defaults and
// struct shapes while master.go does the actual wiring.
//
// The file format borrows XML's namespace-prefix convention for element
// names (coupling-scheme:serial-implicit, mapping:nearest-neighbor, ...)
// without requiring callers to declare real XML namespaces, so parsing
// walks raw tokens instead of leaning on encoding/xml's struct-tag
// unmarshaling, which only resolves prefixes declared via xmlns.
package config

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opencoupler/core/internal/core"
)

// DataDecl is a <data:scalar|vector> or <global-data:scalar|vector>
// declaration.
type DataDecl struct {
	Name   string
	Vector bool
	Global bool
}

// MeshDecl is a <mesh> declaration with its attached data fields.
type MeshDecl struct {
	Name    string
	UseData []string
}

// MappingDecl is a <mapping:...> declaration attached to a participant.
type MappingDecl struct {
	Kind       string // the mapping:<kind> suffix, e.g. "nearest-neighbor"
	Constraint string // consistent | conservative
	From, To   string
	Timing     string // initial | onadvance
}

// DataRef names one <read-data>/<write-data> declaration.
type DataRef struct {
	Name string
	Mesh string
}

// ParticipantDecl is a <participant> declaration.
type ParticipantDecl struct {
	Name         string
	ProvideMesh  []string
	ReceiveMesh  []ReceiveMeshDecl
	ReadData     []DataRef
	WriteData    []DataRef
	Mappings     []MappingDecl
}

// ReceiveMeshDecl is a <receive-mesh> declaration.
type ReceiveMeshDecl struct {
	Name string
	From string
}

// M2NDecl is an <m2n:...> transport declaration between two participants.
type M2NDecl struct {
	Kind     string // the m2n:<kind> suffix, e.g. "sockets" or "memory"
	From, To string
}

// ExchangeDecl is an <exchange> inside a coupling-scheme body.
type ExchangeDecl struct {
	Data       string
	Mesh       string
	From       string
	To         string
	Initialize bool
}

// ConvergenceMeasureDecl is a <convergence-measure> inside an implicit
// coupling-scheme body.
type ConvergenceMeasureDecl struct {
	Data     string
	Mesh     string
	Limit    float64
	Relative bool
	Suffices bool
	Strict   bool
	Logging  bool
}

// AccelerationDecl is an <acceleration:...> declaration.
type AccelerationDecl struct {
	Kind              string // constant-relaxation | aitken | IQN-ILS
	RelaxationFactor  float64
	ReusedTimeWindows int
}

// UndefinedMaxTime marks a <coupling-scheme> with no <max-time> element.
const UndefinedMaxTime = -1.0

// UndefinedMaxTimeWindows marks a <coupling-scheme> with no
// <max-time-windows> element.
const UndefinedMaxTimeWindows = -1

// SchemeDecl is one <coupling-scheme:...> body.
type SchemeDecl struct {
	Kind string // serial-explicit | serial-implicit | parallel-explicit | parallel-implicit | multi | compositional

	MaxTime        float64
	MaxTimeWindows int
	TimeWindowSize float64
	WindowMethod   string // fixed | first-participant

	FirstParticipant  string
	SecondParticipant string
	Participants      []string // for the multi variant

	Exchanges           []ExchangeDecl
	ConvergenceMeasures []ConvergenceMeasureDecl

	ExtrapolationOrder int
	MaxIterations      int
	Acceleration       *AccelerationDecl
}

// Document is the parsed <solver-interface> tree.
type Document struct {
	Dimensions   int
	Experimental bool
	Data         []DataDecl
	Meshes       []MeshDecl
	Participants []ParticipantDecl
	M2Ns         []M2NDecl
	Schemes      []SchemeDecl
}

// localName strips any namespace-style prefix from an XML element name.
// Go's encoding/xml records an undeclared "prefix:local" element with
// Space="prefix", Local="local"; this normalizes that (and the degenerate
// case of a literal colon surviving into Local) to just the local part.
func localName(n xml.Name) string {
	if i := strings.LastIndexByte(n.Local, ':'); i >= 0 {
		return n.Local[i+1:]
	}
	return n.Local
}

// prefix returns the namespace-style prefix of an XML element name, e.g.
// "coupling-scheme" for a "coupling-scheme:serial-implicit" element.
func prefix(n xml.Name) string {
	if n.Space != "" {
		return n.Space
	}
	if i := strings.LastIndexByte(n.Local, ':'); i >= 0 {
		return n.Local[:i]
	}
	return ""
}

func attr(se xml.StartElement, name string) (string, bool) {
	for _, a := range se.Attr {
		if localName(a.Name) == name {
			return a.Value, true
		}
	}
	return "", false
}

func attrBool(se xml.StartElement, name string, def bool) (bool, error) {
	v, ok := attr(se, name)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("attribute %q: %q is not a bool: %w", name, v, core.ErrConfigSyntax.Error())
	}
	return b, nil
}

func attrFloat(se xml.StartElement, name string, def float64) (float64, error) {
	v, ok := attr(se, name)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %q is not a number: %w", name, v, core.ErrConfigSyntax.Error())
	}
	return f, nil
}

func attrInt(se xml.StartElement, name string, def int) (int, error) {
	v, ok := attr(se, name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %q is not an integer: %w", name, v, core.ErrConfigSyntax.Error())
	}
	return n, nil
}

// Parse reads a <solver-interface> document from r.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	doc := &Document{}
	sawRoot := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("config: malformed XML: %w", core.ErrConfigSyntax.Error())
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := localName(se.Name)
		if !sawRoot {
			if name != "solver-interface" {
				return nil, fmt.Errorf("config: expected root <solver-interface>, found <%s>: %w", name, core.ErrConfigSyntax.Error())
			}
			sawRoot = true
			dims, err := attrInt(se, "dimensions", 0)
			if err != nil {
				return nil, err
			}
			if dims != 2 && dims != 3 {
				return nil, fmt.Errorf("config: dimensions must be 2 or 3, got %d: %w", dims, core.ErrConfigSemantics.Error())
			}
			doc.Dimensions = dims
			doc.Experimental, err = attrBool(se, "experimental", false)
			if err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case prefix(se.Name) == "data" || prefix(se.Name) == "global-data":
			d, err := parseDataDecl(se)
			if err != nil {
				return nil, err
			}
			doc.Data = append(doc.Data, d)
		case name == "mesh":
			m, err := parseMeshDecl(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Meshes = append(doc.Meshes, m)
		case name == "participant":
			p, err := parseParticipantDecl(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Participants = append(doc.Participants, p)
		case prefix(se.Name) == "m2n":
			m, err := parseM2NDecl(se)
			if err != nil {
				return nil, err
			}
			doc.M2Ns = append(doc.M2Ns, m)
		case prefix(se.Name) == "coupling-scheme":
			s, err := parseSchemeDecl(dec, se)
			if err != nil {
				return nil, err
			}
			doc.Schemes = append(doc.Schemes, s)
		default:
			if err := skipElement(dec); err != nil {
				return nil, err
			}
		}
	}

	if !sawRoot {
		return nil, fmt.Errorf("config: empty document, expected <solver-interface>: %w", core.ErrConfigSyntax.Error())
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseDataDecl(se xml.StartElement) (DataDecl, error) {
	name, ok := attr(se, "name")
	if !ok {
		return DataDecl{}, fmt.Errorf("config: <%s> missing name attribute: %w", localName(se.Name), core.ErrConfigSyntax.Error())
	}
	return DataDecl{
		Name:   name,
		Vector: localName(se.Name) == "vector",
		Global: prefix(se.Name) == "global-data",
	}, nil
}

// skipElement consumes tokens until the matching end of the just-opened
// element, discarding any content. Used for elements this parser does not
// model (e.g. a future extension).
func skipElement(dec *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("config: malformed XML: %w", core.ErrConfigSyntax.Error())
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func parseMeshDecl(dec *xml.Decoder, root xml.StartElement) (MeshDecl, error) {
	name, ok := attr(root, "name")
	if !ok {
		return MeshDecl{}, fmt.Errorf("config: <mesh> missing name attribute: %w", core.ErrConfigSyntax.Error())
	}
	m := MeshDecl{Name: name}
	for {
		tok, err := dec.Token()
		if err != nil {
			return MeshDecl{}, fmt.Errorf("config: malformed XML inside <mesh>: %w", core.ErrConfigSyntax.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if localName(t.Name) == "use-data" {
				dn, ok := attr(t, "name")
				if !ok {
					return MeshDecl{}, fmt.Errorf("config: <use-data> missing name attribute: %w", core.ErrConfigSyntax.Error())
				}
				m.UseData = append(m.UseData, dn)
			}
			if err := skipElement(dec); err != nil {
				return MeshDecl{}, err
			}
		case xml.EndElement:
			return m, nil
		}
	}
}

func parseParticipantDecl(dec *xml.Decoder, root xml.StartElement) (ParticipantDecl, error) {
	name, ok := attr(root, "name")
	if !ok {
		return ParticipantDecl{}, fmt.Errorf("config: <participant> missing name attribute: %w", core.ErrConfigSyntax.Error())
	}
	p := ParticipantDecl{Name: name}
	for {
		tok, err := dec.Token()
		if err != nil {
			return ParticipantDecl{}, fmt.Errorf("config: malformed XML inside <participant>: %w", core.ErrConfigSyntax.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case localName(t.Name) == "provide-mesh":
				mn, _ := attr(t, "name")
				p.ProvideMesh = append(p.ProvideMesh, mn)
			case localName(t.Name) == "receive-mesh":
				mn, _ := attr(t, "name")
				from, _ := attr(t, "from")
				p.ReceiveMesh = append(p.ReceiveMesh, ReceiveMeshDecl{Name: mn, From: from})
			case localName(t.Name) == "read-data":
				dn, _ := attr(t, "name")
				mn, _ := attr(t, "mesh")
				p.ReadData = append(p.ReadData, DataRef{Name: dn, Mesh: mn})
			case localName(t.Name) == "write-data":
				dn, _ := attr(t, "name")
				mn, _ := attr(t, "mesh")
				p.WriteData = append(p.WriteData, DataRef{Name: dn, Mesh: mn})
			case prefix(t.Name) == "mapping":
				constraint, _ := attr(t, "constraint")
				from, _ := attr(t, "from")
				to, _ := attr(t, "to")
				timing, _ := attr(t, "timing")
				p.Mappings = append(p.Mappings, MappingDecl{
					Kind: localName(t.Name), Constraint: constraint, From: from, To: to, Timing: timing,
				})
			}
			if err := skipElement(dec); err != nil {
				return ParticipantDecl{}, err
			}
		case xml.EndElement:
			return p, nil
		}
	}
}

func parseM2NDecl(se xml.StartElement) (M2NDecl, error) {
	from, _ := attr(se, "from")
	to, _ := attr(se, "to")
	if from == "" || to == "" {
		return M2NDecl{}, fmt.Errorf("config: <%s:%s> requires from/to attributes: %w", prefix(se.Name), localName(se.Name), core.ErrConfigSyntax.Error())
	}
	return M2NDecl{Kind: localName(se.Name), From: from, To: to}, nil
}

func parseSchemeDecl(dec *xml.Decoder, root xml.StartElement) (SchemeDecl, error) {
	s := SchemeDecl{Kind: localName(root.Name), MaxTime: UndefinedMaxTime, MaxTimeWindows: UndefinedMaxTimeWindows}
	for {
		tok, err := dec.Token()
		if err != nil {
			return SchemeDecl{}, fmt.Errorf("config: malformed XML inside <coupling-scheme:%s>: %w", s.Kind, core.ErrConfigSyntax.Error())
		}
		t, ok := tok.(xml.StartElement)
		if !ok {
			if _, isEnd := tok.(xml.EndElement); isEnd {
				return s, nil
			}
			continue
		}
		name := localName(t.Name)
		switch name {
		case "max-time":
			s.MaxTime, err = attrFloat(t, "value", s.MaxTime)
		case "max-time-windows":
			s.MaxTimeWindows, err = attrInt(t, "value", s.MaxTimeWindows)
		case "time-window-size":
			s.TimeWindowSize, err = attrFloat(t, "value", s.TimeWindowSize)
			if err == nil {
				s.WindowMethod, _ = attr(t, "method")
				if s.WindowMethod == "" {
					s.WindowMethod = "fixed"
				}
			}
		case "participants":
			s.FirstParticipant, _ = attr(t, "first")
			s.SecondParticipant, _ = attr(t, "second")
		case "participant":
			pn, _ := attr(t, "name")
			s.Participants = append(s.Participants, pn)
		case "exchange":
			ex := ExchangeDecl{}
			ex.Data, _ = attr(t, "data")
			ex.Mesh, _ = attr(t, "mesh")
			ex.From, _ = attr(t, "from")
			ex.To, _ = attr(t, "to")
			ex.Initialize, err = attrBool(t, "initialize", false)
			s.Exchanges = append(s.Exchanges, ex)
		case "convergence-measure":
			cm := ConvergenceMeasureDecl{}
			cm.Data, _ = attr(t, "data")
			cm.Mesh, _ = attr(t, "mesh")
			cm.Limit, err = attrFloat(t, "limit", 0)
			if err == nil {
				cm.Relative, err = attrBool(t, "relative", true)
			}
			if err == nil {
				cm.Suffices, err = attrBool(t, "suffices", false)
			}
			if err == nil {
				cm.Strict, err = attrBool(t, "strict", false)
			}
			if err == nil {
				cm.Logging, err = attrBool(t, "logging", false)
			}
			s.ConvergenceMeasures = append(s.ConvergenceMeasures, cm)
		case "extrapolation-order":
			s.ExtrapolationOrder, err = attrInt(t, "value", 0)
		case "max-iterations":
			s.MaxIterations, err = attrInt(t, "value", 0)
		default:
			if prefix(t.Name) == "acceleration" {
				accel := &AccelerationDecl{Kind: name}
				accel.RelaxationFactor, err = attrFloat(t, "initial-relaxation", 1.0)
				if err == nil {
					accel.ReusedTimeWindows, err = attrInt(t, "reused-time-windows", 0)
				}
				s.Acceleration = accel
			}
		}
		if err != nil {
			return SchemeDecl{}, err
		}
		if err := skipElement(dec); err != nil {
			return SchemeDecl{}, err
		}
	}
}

// Validate checks cross-element semantics that can only be caught once the
// whole document is assembled: unknown mesh/participant/data references,
// and the first-participant time-window method combined with a non-zero
// extrapolation order.
func Validate(doc *Document) error {
	meshes := map[string]bool{}
	for _, m := range doc.Meshes {
		meshes[m.Name] = true
	}
	participants := map[string]bool{}
	for _, p := range doc.Participants {
		participants[p.Name] = true
	}

	for _, s := range doc.Schemes {
		firstParticipantMethod := s.WindowMethod == "first-participant"
		if firstParticipantMethod && s.ExtrapolationOrder > 0 {
			// A participant announcing the time-window size on the fly
			// cannot also promise a fixed window length up front, which a
			// non-zero extrapolation order implicitly relies on to predict
			// sub-window samples ahead of the measured result. Reject this
			// combination while the configuration is still being built
			// instead of failing confusingly on the first out-of-range
			// sample read.
			return fmt.Errorf("coupling-scheme %s: method=first-participant cannot be combined with extrapolation-order > 0: %w", s.Kind, core.ErrConfigSemantics.Error())
		}
		for _, ex := range s.Exchanges {
			if ex.Mesh != "" && !meshes[ex.Mesh] {
				return fmt.Errorf("coupling-scheme %s: exchange references unknown mesh %q: %w", s.Kind, ex.Mesh, core.ErrConfigSemantics.Error())
			}
			if ex.From != "" && !participants[ex.From] {
				return fmt.Errorf("coupling-scheme %s: exchange references unknown participant %q: %w", s.Kind, ex.From, core.ErrConfigSemantics.Error())
			}
			if ex.To != "" && !participants[ex.To] {
				return fmt.Errorf("coupling-scheme %s: exchange references unknown participant %q: %w", s.Kind, ex.To, core.ErrConfigSemantics.Error())
			}
		}
	}
	return nil
}
