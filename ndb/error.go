// Package ndb declares the core types shared by the client packages: the
// Call state machine, the error taxonomy, and connection configuration.
package ndb

import (
	"errors"
	"fmt"
)

// Kind identifies one of the distinct error taxonomies a Call or a
// connection operation can fail with.
type Kind int

const (
	// KindConfiguration is returned when a connection string is rejected
	// before any I/O takes place.
	KindConfiguration Kind = iota
	// KindAuthentication is returned synchronously from a connection's
	// open/login exchange.
	KindAuthentication
	// KindConnection covers socket closure and read/write failures; every
	// in-flight Call on the affected connection completes with this kind.
	KindConnection
	// KindProtocol covers unparseable frames, unknown versions, unknown
	// type tags, and impossible lengths. The owning connection enters the
	// Failed state.
	KindProtocol
	// KindTimeout is a client-side deadline expiring before a reply
	// arrived.
	KindTimeout
	// KindAbort is a client-initiated cancellation.
	KindAbort
	// KindServer is a non-ok status reported by the procedure itself; it
	// carries the server's status code and message verbatim.
	KindServer
	// KindCast is a Table access requesting a type incompatible with the
	// column's declared type. Never the result of I/O.
	KindCast
	// KindEncoding is a parameter that could not be encoded (unsupported
	// type, value too large). Always reported synchronously from submit.
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	case KindAbort:
		return "abort"
	case KindServer:
		return "server"
	case KindCast:
		return "cast"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by every package in this module.
// ServerCode and ServerMessage are only populated for KindServer.
type Error struct {
	Kind          Kind
	Message       string
	Cause         error
	ServerCode    int32
	ServerMessage string
}

func (e *Error) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("%s: %s (server code %d: %s)", e.Kind, e.Message, e.ServerCode, e.ServerMessage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so callers can
// use errors.Is(err, ndb.New(ndb.KindTimeout, "")) as a sentinel-free check.
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

// New builds an *Error of the given kind with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// ServerError builds a KindServer error carrying the verbatim server status
// code and message.
func ServerError(code int32, message string) *Error {
	return &Error{Kind: KindServer, Message: "procedure reported a non-ok status", ServerCode: code, ServerMessage: message}
}

// Sentinels usable with errors.Is(err, ndb.ErrTimeout), etc. These carry no
// message or cause of their own; only Kind is compared via Error.Is.
var (
	ErrConfiguration  = New(KindConfiguration, "")
	ErrAuthentication = New(KindAuthentication, "")
	ErrConnection     = New(KindConnection, "")
	ErrProtocol       = New(KindProtocol, "")
	ErrTimeout        = New(KindTimeout, "")
	ErrAbort          = New(KindAbort, "")
	ErrServer         = New(KindServer, "")
	ErrCast           = New(KindCast, "")
	ErrEncoding       = New(KindEncoding, "")
)

// vim: set tw=78 sw=4 sw=4 noexpandtab :
