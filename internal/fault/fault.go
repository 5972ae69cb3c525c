// Package fault defines the error taxonomy shared by nodekeeper's components.
//
// Every failure that crosses a package boundary is a *Error tagged with the
// domain it came from. Callers branch on the Kind (via Is) instead of
// matching error strings, and the original cause stays reachable through
// errors.Unwrap.
package fault

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the failure domain of an Error.
type Kind int

const (
	// Transport covers connectivity problems: refused connections,
	// timeouts, unreadable or malformed response bodies, non-2xx statuses.
	Transport Kind = iota + 1
	// Decode covers payloads that arrived intact but are semantically wrong.
	Decode
	// Application covers structured errors returned by a remote call.
	Application
	// Internal covers state machines observed in an impossible state.
	Internal
	// Launch covers processes that could not be spawned.
	Launch
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Decode:
		return "decode"
	case Application:
		return "application"
	case Internal:
		return "internal"
	case Launch:
		return "launch"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with its Kind.
type Error struct {
	// Err is the underlying cause, if any.
	Err error
	// Op names the operation that failed, e.g. "jsonrpc parity_enode".
	Op string
	// Payload is the remote error object, verbatim. Application only.
	Payload json.RawMessage
	// Kind is the failure domain.
	Kind Kind
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if len(e.Payload) > 0 {
		msg += " " + string(e.Payload)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err, or any error it wraps, is a *Error of kind k.
func Is(err error, k Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == k
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// PayloadOf returns the application payload carried by err, if any.
func PayloadOf(err error) (json.RawMessage, bool) {
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != Application {
		return nil, false
	}
	return fe.Payload, true
}

// NewTransport wraps err as a Transport failure of op.
func NewTransport(op string, err error) error {
	return &Error{Kind: Transport, Op: op, Err: err}
}

// NewDecode wraps err as a Decode failure of op.
func NewDecode(op string, err error) error {
	return &Error{Kind: Decode, Op: op, Err: err}
}

// NewApplication records a remote error object returned to op.
func NewApplication(op string, payload json.RawMessage) error {
	return &Error{Kind: Application, Op: op, Payload: payload}
}

// NewInternal reports that op observed state current while it expected
// state expected.
func NewInternal(op, current, expected string) error {
	return &Error{
		Kind: Internal,
		Op:   op,
		Err:  fmt.Errorf("invalid state transfer, current: %s, expected: %s", current, expected),
	}
}

// NewLaunch wraps err as a Launch failure of op.
func NewLaunch(op string, err error) error {
	return &Error{Kind: Launch, Op: op, Err: err}
}
