package common

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind classifies every failure the client can surface. The set is
// closed: server error codes that do not map to one of these kinds are
// reported as ExtensionError with the raw code preserved.
type ErrorKind int

const (
	// ResponseError means the server generated an invalid or unexpected response.
	ResponseError ErrorKind = iota
	// AuthenticationFailed means the AUTH handshake was rejected.
	AuthenticationFailed
	// TypeError means an operation failed because of a type mismatch.
	TypeError
	// ExecAbortError means a transaction or script execution was aborted.
	ExecAbortError
	// BusyLoadingError means the server cannot respond because it is loading a dump.
	BusyLoadingError
	// NoScriptError means a requested script does not exist on the server.
	NoScriptError
	// InvalidClientConfig means the parameters given to the client were wrong.
	InvalidClientConfig
	// Moved is raised if a key moved to a different cluster node.
	Moved
	// Ask is raised if a key moved to a different node but we need to ask.
	Ask
	// TryAgain is raised if a request needs to be retried.
	TryAgain
	// ClusterDown is raised if the cluster is down.
	ClusterDown
	// CrossSlot means a request spans multiple hash slots.
	CrossSlot
	// MasterDown means a cluster master is unavailable.
	MasterDown
	// TransportError wraps a socket-level failure (timeout, reset, broken pipe).
	TransportError
	// ClientError is an error identified on the client before execution.
	ClientError
	// ExtensionError is a server error code not natively understood by the library.
	ExtensionError
	// ReadOnly means a write was attempted against a read-only replica.
	ReadOnly
)

// IoKind is the transport sub-kind carried by TransportError values.
type IoKind int

const (
	IoOther IoKind = iota
	IoTimedOut
	IoWouldBlock
	IoBrokenPipe
	IoConnReset
	IoConnRefused
	IoUnexpectedEOF
	IoClosed
)

func (k IoKind) String() string {
	switch k {
	case IoTimedOut:
		return "timed out"
	case IoWouldBlock:
		return "operation would block"
	case IoBrokenPipe:
		return "broken pipe"
	case IoConnReset:
		return "connection reset"
	case IoConnRefused:
		return "connection refused"
	case IoUnexpectedEOF:
		return "unexpected end of file"
	case IoClosed:
		return "connection closed"
	default:
		return "other error"
	}
}

// RedisError is the error type used for everything in this library.
// Equality between two errors compares the kind (and for extension
// errors the raw code), never the message text.
type RedisError struct {
	kind   ErrorKind
	desc   string
	detail string
	// extCode is the raw server code for ExtensionError values.
	extCode string
	// ioKind is only meaningful for TransportError values.
	ioKind IoKind
}

func NewError(kind ErrorKind, desc string) *RedisError {
	return &RedisError{kind: kind, desc: desc}
}

func NewErrorDetail(kind ErrorKind, desc, detail string) *RedisError {
	return &RedisError{kind: kind, desc: desc, detail: detail}
}

func NewExtensionError(code, detail string) *RedisError {
	if detail == "" {
		detail = "Unknown extension error encountered"
	}
	return &RedisError{kind: ExtensionError, extCode: code, desc: code, detail: detail}
}

func NewTransportError(ioKind IoKind, text string) *RedisError {
	return &RedisError{kind: TransportError, ioKind: ioKind, desc: text}
}

// WrapIOError converts any socket-level error into a TransportError,
// classifying its sub-kind from the underlying cause chain.
func WrapIOError(err error) *RedisError {
	if err == nil {
		return nil
	}
	var re *RedisError
	if errors.As(err, &re) {
		return re
	}
	return NewTransportError(ClassifyIOError(err), err.Error())
}

func (e *RedisError) Error() string {
	switch {
	case e.kind == TransportError && e.detail != "":
		return e.desc + ": " + e.detail
	case e.kind == TransportError:
		return fmt.Sprintf("%s: %s", e.ioKind, e.desc)
	case e.extCode != "":
		return e.extCode + ": " + e.detail
	case e.detail != "":
		return e.desc + ": " + e.detail
	default:
		return e.desc
	}
}

func (e *RedisError) Kind() ErrorKind { return e.kind }

// Detail returns the server-supplied detail text, if any.
func (e *RedisError) Detail() string { return e.detail }

// IoKind returns the transport sub-kind. Only meaningful when Kind is
// TransportError.
func (e *RedisError) IoKind() IoKind { return e.ioKind }

// Equal compares only the error kind, and for extension errors the raw
// server code. Message text never participates.
func (e *RedisError) Equal(other *RedisError) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.kind != other.kind {
		return false
	}
	if e.kind == ExtensionError {
		return e.extCode == other.extCode
	}
	return true
}

// Code returns the canonical server code for the error kind, or the
// raw extension code when the kind has no fixed one.
func (e *RedisError) Code() string {
	switch e.kind {
	case ResponseError:
		return "ERR"
	case ExecAbortError:
		return "EXECABORT"
	case BusyLoadingError:
		return "LOADING"
	case NoScriptError:
		return "NOSCRIPT"
	case Moved:
		return "MOVED"
	case Ask:
		return "ASK"
	case TryAgain:
		return "TRYAGAIN"
	case ClusterDown:
		return "CLUSTERDOWN"
	case CrossSlot:
		return "CROSSSLOT"
	case MasterDown:
		return "MASTERDOWN"
	case ReadOnly:
		return "READONLY"
	default:
		return e.extCode
	}
}

// Category returns the name of the error category for display purposes.
func (e *RedisError) Category() string {
	switch e.kind {
	case ResponseError:
		return "response error"
	case AuthenticationFailed:
		return "authentication failed"
	case TypeError:
		return "type error"
	case ExecAbortError:
		return "script execution aborted"
	case BusyLoadingError:
		return "busy loading"
	case NoScriptError:
		return "no script"
	case InvalidClientConfig:
		return "invalid client config"
	case Moved:
		return "key moved"
	case Ask:
		return "key moved (ask)"
	case TryAgain:
		return "try again"
	case ClusterDown:
		return "cluster down"
	case CrossSlot:
		return "cross-slot"
	case MasterDown:
		return "master down"
	case TransportError:
		return "I/O error"
	case ExtensionError:
		return "extension error"
	case ClientError:
		return "client error"
	case ReadOnly:
		return "read-only"
	default:
		return "unknown"
	}
}

func (e *RedisError) IsIOError() bool {
	return e.kind == TransportError
}

func (e *RedisError) IsClusterError() bool {
	switch e.kind {
	case Moved, Ask, TryAgain, ClusterDown:
		return true
	default:
		return false
	}
}

// IsConnectionRefusal reports whether the remote refused the connection.
// Mostly useful in tests that probe for a local server.
func (e *RedisError) IsConnectionRefusal() bool {
	return e.kind == TransportError && e.ioKind == IoConnRefused
}

// IsTimeout reports whether the error was caused by an I/O timeout.
func (e *RedisError) IsTimeout() bool {
	return e.kind == TransportError &&
		(e.ioKind == IoTimedOut || e.ioKind == IoWouldBlock)
}

// IsConnectionDropped reports whether the peer dropped the connection.
// A timeout alone never counts as dropped.
func (e *RedisError) IsConnectionDropped() bool {
	return e.kind == TransportError &&
		(e.ioKind == IoBrokenPipe || e.ioKind == IoConnReset)
}

// IsUnexpectedEOF reports that the stream ended in the middle of a frame.
func (e *RedisError) IsUnexpectedEOF() bool {
	return e.kind == TransportError && e.ioKind == IoUnexpectedEOF
}

// RedirectNode extracts `(addr, slot)` from the detail text of a MOVED
// or ASK error ("<slot> <host:port>").
func (e *RedisError) RedirectNode() (string, uint16, bool) {
	switch e.kind {
	case Moved, Ask:
	default:
		return "", 0, false
	}
	fields := strings.Fields(e.detail)
	if len(fields) < 2 {
		return "", 0, false
	}
	slot, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return "", 0, false
	}
	return fields[1], uint16(slot), true
}

var serverErrorKinds = map[string]ErrorKind{
	"ERR":         ResponseError,
	"WRONGTYPE":   TypeError,
	"EXECABORT":   ExecAbortError,
	"LOADING":     BusyLoadingError,
	"NOSCRIPT":    NoScriptError,
	"MOVED":       Moved,
	"ASK":         Ask,
	"TRYAGAIN":    TryAgain,
	"CLUSTERDOWN": ClusterDown,
	"CROSSSLOT":   CrossSlot,
	"MASTERDOWN":  MasterDown,
	"READONLY":    ReadOnly,
}

// ServerError translates a raw RESP error line (without the '-' marker)
// into a RedisError. The first whitespace-delimited token is treated as
// the server error code; unknown codes become extension errors so that
// new server versions keep working.
func ServerError(line string) *RedisError {
	code := line
	detail := ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		code = line[:idx]
		detail = strings.TrimSpace(line[idx+1:])
	}
	if kind, ok := serverErrorKinds[code]; ok {
		return NewErrorDetail(kind, "An error was signalled by the server", detail)
	}
	return NewExtensionError(code, detail)
}
