package common

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// ClassifyIOError maps an arbitrary socket-level error onto the closed
// IoKind set used by TransportError values.
func ClassifyIOError(err error) IoKind {
	if err == nil {
		return IoOther
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return IoUnexpectedEOF
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return IoClosed
	}
	switch {
	case errors.Is(err, syscall.EPIPE):
		return IoBrokenPipe
	case errors.Is(err, syscall.ECONNRESET):
		return IoConnReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return IoConnRefused
	case errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK):
		// EAGAIN satisfies net.Error with Timeout() true, so it has to be
		// picked off before the generic timeout check.
		return IoWouldBlock
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return IoTimedOut
	}
	// Some platforms only surface the condition in the error text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "broken pipe"):
		return IoBrokenPipe
	case strings.Contains(msg, "connection reset by peer"):
		return IoConnReset
	case strings.Contains(msg, "connection refused"):
		return IoConnRefused
	case strings.Contains(msg, "use of closed network connection"):
		return IoClosed
	}
	return IoOther
}

// IsConnDropped reports whether err means the peer dropped or reset the
// connection, the condition that permanently flips a transport to
// not-open. Timeouts deliberately do not count.
func IsConnDropped(err error) bool {
	if err == nil {
		return false
	}
	var re *RedisError
	if errors.As(err, &re) {
		return re.IsConnectionDropped() || re.IsUnexpectedEOF()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		errMsg := opErr.Err.Error()
		return strings.Contains(errMsg, "use of closed network connection") ||
			strings.Contains(errMsg, "connection reset by peer") ||
			strings.Contains(errMsg, "broken pipe")
	}
	var syscallErr *os.SyscallError
	if errors.As(err, &syscallErr) {
		return errors.Is(syscallErr.Err, syscall.ECONNRESET) ||
			errors.Is(syscallErr.Err, syscall.EPIPE)
	}
	return false
}
