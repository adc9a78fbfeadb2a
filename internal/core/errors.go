// Package core defines shared identifiers, constants and the error-kind
// enum used across the coupling orchestration core.
package core

import (
	"errors"

	log "github.com/golang/glog"
)

// Error is our own error type for coupling-core failures. It is transported
// across package boundaries as a plain Go error via Error(), but callers that
// need to branch on kind can recover the underlying core.Error with AsError.
type Error int

const (
	// NoError means no error.
	NoError = Error(iota)

	//------ UserError: misuse by solver code or configuration ------//

	// ErrWrongState is returned when a public operation is called while the
	// solver interface or coupling scheme is not in a state that permits it.
	ErrWrongState

	// ErrInvalidArgument is returned for out-of-range ids, dt <= 0,
	// scalar/vector dimension mismatches, and similarly malformed arguments.
	ErrInvalidArgument

	// ErrIllDefinedBoundingBox is returned when a bounding box violates
	// min[d] <= max[d] in some dimension.
	ErrIllDefinedBoundingBox

	// ErrUnknownParticipant is returned when a configured participant name
	// cannot be resolved.
	ErrUnknownParticipant

	// ErrDuplicateData is returned when a data name is registered twice for
	// the same mesh or configuration.
	ErrDuplicateData

	// ErrUnfulfilledAction is returned when a scheme-required action
	// (WriteCheckpoint, ReadCheckpoint, InitializeData) was not queried and
	// fulfilled before the phase that required it ended.
	ErrUnfulfilledAction

	// ErrTimestepMismatch is returned when ranks of one participant disagree
	// on the timestep length passed to advance().
	ErrTimestepMismatch

	// ErrInvalidState is returned when in-memory state is internally
	// inconsistent as observed from outside (e.g. resetMesh followed by an
	// exchange attempt without re-initialization).
	ErrInvalidState

	//------ ConfigurationError: static XML issues ------//

	// ErrConfigSyntax is returned for malformed XML.
	ErrConfigSyntax

	// ErrConfigSemantics is returned for well-formed XML that fails semantic
	// validation (unknown mesh reference, bad mapping direction,...).
	ErrConfigSemantics

	//------ ProtocolError: peer violated wire ordering/layout ------//

	// ErrProtocolOrder is returned when a received message does not match
	// the scheme's expected ordering.
	ErrProtocolOrder

	// ErrProtocolPayload is returned when a received payload has the wrong
	// length or shape for the expected message kind.
	ErrProtocolPayload

	//------ TransportError: lower-level I/O failure ------//

	// ErrTransport is returned when a Communication channel fails to send or
	// receive.
	ErrTransport

	// ErrTransportClosed is returned for operations on a closed channel.
	ErrTransportClosed

	//------ Meta ------//

	// ErrNotYetImplemented marks an operation deliberately left unimplemented.
	ErrNotYetImplemented
)

var description = map[Error]string{
	NoError: "no error",

	ErrWrongState: "operation not permitted in the current lifecycle state",
	ErrInvalidArgument: "invalid argument",
	ErrIllDefinedBoundingBox: "bounding box has min > max in some dimension",
	ErrUnknownParticipant: "unknown participant",
	ErrDuplicateData: "duplicate data name",
	ErrUnfulfilledAction: "required action was not fulfilled before phase end",
	ErrTimestepMismatch: "ranks disagree on timestep length",
	ErrInvalidState: "invalid state",

	ErrConfigSyntax: "malformed configuration",
	ErrConfigSemantics: "invalid configuration",

	ErrProtocolOrder: "peer violated expected message ordering",
	ErrProtocolPayload: "received payload has unexpected shape",

	ErrTransport: "transport I/O failure",
	ErrTransportClosed: "operation on closed channel",

	ErrNotYetImplemented: "not yet implemented",
}

// Kind classifies an Error into one of the broad categories below.
type Kind int

const (
	// KindUser covers misuse of the public API or configuration.
	KindUser Kind = iota
	// KindConfiguration covers static XML configuration issues.
	KindConfiguration
	// KindProtocol covers peer ordering/payload violations.
	KindProtocol
	// KindTransport covers lower-level channel I/O failures.
	KindTransport
	// KindInternal covers broken programming invariants.
	KindInternal
)

var kindOf = map[Error]Kind{
	ErrWrongState: KindUser,
	ErrInvalidArgument: KindUser,
	ErrIllDefinedBoundingBox: KindUser,
	ErrUnknownParticipant: KindUser,
	ErrDuplicateData: KindUser,
	ErrUnfulfilledAction: KindUser,
	ErrTimestepMismatch: KindUser,
	ErrInvalidState: KindUser,

	ErrConfigSyntax: KindConfiguration,
	ErrConfigSemantics: KindConfiguration,

	ErrProtocolOrder: KindProtocol,
	ErrProtocolPayload: KindProtocol,

	ErrTransport: KindTransport,
	ErrTransportClosed: KindTransport,

	ErrNotYetImplemented: KindUser,
}

// String returns a human readable error message.
func (e Error) String() string {
	if s, ok := description[e]; ok {
		return s
	}
	return "NO DESCRIPTION FOR ERROR FIX THIS"
}

// Kind classifies the receiver.
func (e Error) Kind() Kind {
	if k, ok := kindOf[e]; ok {
		return k
	}
	return KindInternal
}

// Error returns a Go error wrapping the receiver, or nil for NoError.
func (e Error) Error() error {
	if e == NoError {
		return nil
	}
	return goError(e)
}

// Is checks whether the generic Go error g is actually the receiver
// underneath, so that errors.Is(err, core.ErrWrongState.Error()) works.
func (e Error) Is(g error) bool {
	b, ok := g.(goError)
	return ok && Error(b) == e
}

// goError is a wrapper type to make Error act like Go's built-in error.
type goError Error

// Error implements the error interface.
func (g goError) Error() string {
	return Error(g).String()
}

// AsError recovers the underlying core.Error from a Go error, if any.
func AsError(err error) (Error, bool) {
	var g goError
	if errors.As(err, &g) {
		return Error(g), true
	}
	return NoError, false
}

// Fatalf reports a broken internal invariant: a programming bug in the
// core, never a UserError, and is intentionally abort-only.
func Fatalf(format string, args...interface{}) {
	log.Fatalf(format, args...)
}
