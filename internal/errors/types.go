package errors

import (
	"errors"
	"fmt"
)

// Kind classifies where an error originated.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransport covers socket accept, read and write failures.
	KindTransport
	// KindProtocol covers lines that could not be decoded.
	KindProtocol
	// KindProcess covers agent binary resolution, spawn and exit failures.
	KindProcess
	// KindPersistence covers session file reads and writes.
	KindPersistence
	// KindStartup is the only fatal kind: the companion cannot run at all.
	KindStartup
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindProcess:
		return "process"
	case KindPersistence:
		return "persistence"
	case KindStartup:
		return "startup"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transport(op string, err error) error   { return wrap(KindTransport, op, err) }
func Protocol(op string, err error) error    { return wrap(KindProtocol, op, err) }
func Process(op string, err error) error     { return wrap(KindProcess, op, err) }
func Persistence(op string, err error) error { return wrap(KindPersistence, op, err) }
func Startup(op string, err error) error     { return wrap(KindStartup, op, err) }

// KindOf returns the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err should terminate the companion.
func IsFatal(err error) bool {
	return KindOf(err) == KindStartup
}

// ErrNotConnected is returned when a session has no live agent connection.
var ErrNotConnected = errors.New("agent not connected")
