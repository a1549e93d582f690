package conn

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/nverba/redwire/pkg/common"
)

var logger = common.InitLogger().WithName("conn")

// Transport owns exactly one socket and performs framed byte I/O with
// per-direction timeouts. The open flag flips to false the first time a
// write or read observes a dropped or reset connection; there is no
// automatic reconnection.
type Transport struct {
	conn         net.Conn
	open         bool
	readTimeout  time.Duration // 0 means block indefinitely
	writeTimeout time.Duration
}

// Dial connects to addr. A zero timeout blocks indefinitely on the
// connection attempt. With a timeout, every resolved candidate address
// is attempted in order and the first success wins.
func Dial(addr Address, timeout time.Duration) (*Transport, error) {
	if !addr.IsSupported() {
		return nil, configError("Cannot connect to unix sockets on this platform")
	}
	switch addr.Kind {
	case AddrTCP:
		conn, err := dialTCP(addr, timeout)
		if err != nil {
			return nil, err
		}
		logger.V(1).Info("Transport connected", "addr", addr.String())
		return &Transport{conn: conn, open: true}, nil
	case AddrTCPTLS:
		conn, err := dialTLS(addr, timeout)
		if err != nil {
			return nil, err
		}
		return &Transport{conn: conn, open: true}, nil
	case AddrUnix:
		conn, err := net.DialTimeout("unix", addr.Path, timeout)
		if err != nil {
			return nil, common.WrapIOError(err)
		}
		return &Transport{conn: conn, open: true}, nil
	default:
		return nil, configError("unknown address kind")
	}
}

func dialTCP(addr Address, timeout time.Duration) (net.Conn, error) {
	target := net.JoinHostPort(addr.Host, strconv.Itoa(addr.Port))
	if timeout == 0 {
		conn, err := net.Dial("tcp", target)
		if err != nil {
			return nil, common.WrapIOError(err)
		}
		return conn, nil
	}

	hosts, err := net.LookupHost(addr.Host)
	if err != nil {
		return nil, common.WrapIOError(err)
	}
	var lastErr error
	for _, host := range hosts {
		conn, dialErr := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(addr.Port)), timeout)
		if dialErr == nil {
			return conn, nil
		}
		lastErr = dialErr
	}
	if lastErr != nil {
		return nil, common.WrapIOError(lastErr)
	}
	return nil, configError("could not resolve to any addresses")
}

func dialTLS(addr Address, timeout time.Duration) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: timeout}
	tlsCfg := &tls.Config{
		ServerName:         addr.Host,
		InsecureSkipVerify: addr.Insecure,
	}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(addr.Host, strconv.Itoa(addr.Port)), tlsCfg)
	if err != nil {
		if _, ok := err.(net.Error); ok {
			return nil, common.WrapIOError(err)
		}
		// Certificate or protocol failure during the handshake, reported
		// distinctly from plain socket I/O failures.
		return nil, common.NewErrorDetail(common.TransportError, "TLS handshake error", err.Error())
	}
	return conn, nil
}

// Write sends raw bytes, honoring the write timeout.
func (t *Transport) Write(p []byte) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}
	if _, err := t.conn.Write(p); err != nil {
		t.observeError(err)
		return common.WrapIOError(err)
	}
	return nil
}

// beforeRead applies the read timeout to the next read on the socket.
func (t *Transport) beforeRead() {
	if t.readTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
}

// observeError flips the liveness flag when err is a dropped/reset
// condition or a mid-frame EOF. Timeouts leave the transport open.
func (t *Transport) observeError(err error) {
	if common.IsConnDropped(err) {
		t.open = false
	}
}

// SetReadTimeout bounds how long a single read may block. A zero
// duration is rejected; use ClearReadTimeout to block indefinitely.
func (t *Transport) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return configError("timeout duration must be positive")
	}
	t.readTimeout = d
	return nil
}

// SetWriteTimeout bounds how long a single write may block. A zero
// duration is rejected; use ClearWriteTimeout to block indefinitely.
func (t *Transport) SetWriteTimeout(d time.Duration) error {
	if d <= 0 {
		return configError("timeout duration must be positive")
	}
	t.writeTimeout = d
	return nil
}

func (t *Transport) ClearReadTimeout()  { t.readTimeout = 0 }
func (t *Transport) ClearWriteTimeout() { t.writeTimeout = 0 }

func (t *Transport) IsOpen() bool {
	return t.open
}

// Clone duplicates the transport descriptor around the shared socket.
// The liveness flag is re-derived independently on first use.
func (t *Transport) Clone() *Transport {
	return &Transport{
		conn:         t.conn,
		open:         true,
		readTimeout:  t.readTimeout,
		writeTimeout: t.writeTimeout,
	}
}

func (t *Transport) RemoteAddr() net.Addr {
	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}

func (t *Transport) Close() error {
	t.open = false
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
