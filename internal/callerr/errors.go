package callerr

import (
	"errors"
	"fmt"
)

var (
	ErrConnection         = errors.New("connection error")
	ErrMalformedEnvelope  = errors.New("malformed envelope")
	ErrNegotiationFailure = errors.New("negotiation failure")
	ErrStaleSession       = errors.New("stale session")
	ErrNotConnected       = errors.New("not connected")
	ErrClosed             = errors.New("closed")
	ErrNoPeer             = errors.New("no peer to call")
	ErrBusy               = errors.New("call already in progress")
)

// Error decorates one of the sentinel errors with the operation that failed
// and, when known, the remote peer it concerns.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// Connection wraps cause as a ConnectionError for op.
func Connection(op string, cause error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", ErrConnection, cause)}
}

// Negotiation wraps cause as a NegotiationFailure concerning peer.
func Negotiation(op, peer string, cause error) error {
	return &Error{Op: op, Peer: peer, Err: fmt.Errorf("%w: %w", ErrNegotiationFailure, cause)}
}
