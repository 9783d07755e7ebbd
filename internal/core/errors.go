package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Call/internal/domain"
)

var (
	// ErrChannelUnavailable: signaling transport is down. In-flight sends are dropped.
	ErrChannelUnavailable = errors.New("signaling channel unavailable")
	// ErrDeviceUnavailable: capture denied or missing. Surfaced to the user, never retried.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrNegotiationStale: duplicate, late or glare-losing message. Ignored silently.
	ErrNegotiationStale = errors.New("negotiation message stale")
	// ErrNegotiationFailed: description or ICE failure beyond the single retry.
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrClosed            = errors.New("closed")
)

// Error binds one of the sentinel kinds above to the operation and
// participant it happened on, keeping the underlying cause.
type Error struct {
	Op          string
	Participant domain.ParticipantID
	Kind        error
	Cause       error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Participant != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Participant)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", msg, e.Kind)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func NewError(op string, kind error) *Error {
	return &Error{Op: op, Kind: kind}
}

func WrapError(op string, kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

func PeerError(op string, p domain.ParticipantID, kind, cause error) *Error {
	return &Error{Op: op, Participant: p, Kind: kind, Cause: cause}
}
