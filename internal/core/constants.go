package core

// Global constants that several components need to agree on are defined
// here. If a constant is only needed by a single component, it should not be
// placed here.
const (
	// MaxSpaceDimensions bounds the dimensionality of a configuration.
	MaxSpaceDimensions = 3

	// MinSpaceDimensions bounds the dimensionality of a configuration.
	MinSpaceDimensions = 2

	// DefaultValidDigits is the number of significant digits used to derive
	// the epsilon for time-window-size comparisons.
	DefaultValidDigits = 10

	// MaxExtrapolationOrder is the highest supported extrapolation-predictor
	// order.
	MaxExtrapolationOrder = 1
)

// MeshRequirement orders the connectivity a participant needs from a mesh.
// The ordering VERTEX < FULL lets ProvidedPartition take the
// maximum requirement across all receivers.
type MeshRequirement int

const (
	// MeshRequirementUndefined means no requirement has been declared yet.
	MeshRequirementUndefined MeshRequirement = iota
	// MeshRequirementVertex means only vertex positions are required.
	MeshRequirementVertex
	// MeshRequirementFull means full connectivity (edges/triangles/...) is
	// required.
	MeshRequirementFull
)

// Max returns the stronger of two mesh requirements.
func (r MeshRequirement) Max(other MeshRequirement) MeshRequirement {
	if other > r {
		return other
	}
	return r
}

// MeshDirection records whether a participant provides or receives a mesh.
type MeshDirection int

const (
	// DirectionProvide means this participant owns and broadcasts the mesh.
	DirectionProvide MeshDirection = iota
	// DirectionReceive means this participant receives the mesh from a peer.
	DirectionReceive
)

// Action is a named obligation the coupling scheme places on the solver.
type Action int

const (
	// ActionWriteCheckpoint asks the solver to persist its state.
	ActionWriteCheckpoint Action = iota
	// ActionReadCheckpoint asks the solver to roll back to the last
	// checkpoint (on a non-convergent implicit iteration).
	ActionReadCheckpoint
	// ActionInitializeData asks the solver to provide initial values before
	// the first exchange.
	ActionInitializeData
)

func (a Action) String() string {
	switch a {
	case ActionWriteCheckpoint:
		return "write-checkpoint"
	case ActionReadCheckpoint:
		return "read-checkpoint"
	case ActionInitializeData:
		return "initialize-data"
	default:
		return "unknown-action"
	}
}
