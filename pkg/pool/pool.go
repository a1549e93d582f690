package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/buraksezer/consistent"
	"github.com/cenkalti/backoff/v5"
	"github.com/cespare/xxhash/v2"
	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/conn"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/multierr"
)

var logger = common.InitLogger().WithName("pool")

const (
	DefaultSize     = 8
	dialMaxTries    = 3
	defaultDialWait = 5 * time.Second
)

type member struct {
	key string
}

func (m member) String() string {
	return m.key
}

type memberHash struct{}

func (h memberHash) Sum64(key []byte) uint64 {
	return xxhash.Sum64(key)
}

var consistentCfg = consistent.Config{
	PartitionCount: 256,
	Load:           1.25,
	Hasher:         memberHash{},
}

type Config struct {
	Size        int
	Info        *conn.ConnectionInfo
	DialTimeout time.Duration
}

type pooledConn struct {
	conn   *conn.Connection
	leased atomic.Bool
}

// Pool keeps a fixed set of ready connections. Checkout hands over
// exclusive ownership (connections are single-owner); GetByKey routes
// the same key to the same connection via consistent hashing, so
// repeated WATCH rounds on one key stay on one socket.
type Pool struct {
	cfg     *Config
	onLines *xsync.MapOf[string, *pooledConn]
	cHasher *consistent.Consistent
	closed  atomic.Bool
}

func New(ctx context.Context, cfg *Config) (*Pool, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialWait
	}
	p := &Pool{
		cfg:     cfg,
		onLines: xsync.NewMapOf[string, *pooledConn](),
		cHasher: consistent.New(nil, consistentCfg),
	}
	for i := 0; i < cfg.Size; i++ {
		c, err := p.dial(ctx)
		if err != nil {
			closeErr := p.Close()
			return nil, multierr.Append(err, closeErr)
		}
		p.add(c)
	}
	return p, nil
}

func (p *Pool) dial(ctx context.Context) (*conn.Connection, error) {
	operation := func() (*conn.Connection, error) {
		return conn.Connect(p.cfg.Info, p.cfg.DialTimeout)
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(dialMaxTries))
}

func (p *Pool) add(c *conn.Connection) {
	p.onLines.Store(c.Id, &pooledConn{conn: c})
	p.cHasher.Add(member{key: c.Id})
}

func (p *Pool) remove(pc *pooledConn) {
	p.onLines.Delete(pc.conn.Id)
	p.cHasher.Remove(pc.conn.Id)
	if err := pc.conn.Close(); err != nil {
		logger.V(1).Info("Pool close of broken connection failed", "error", err)
	}
}

func (p *Pool) Size() int {
	return p.onLines.Size()
}

var errExhausted = common.NewError(common.ClientError, "connection pool exhausted")
var errClosed = common.NewError(common.ClientError, "connection pool is closed")

// Get checks out any idle connection.
func (p *Pool) Get() (*conn.Connection, error) {
	if p.closed.Load() {
		return nil, errClosed
	}
	var out *conn.Connection
	p.onLines.Range(func(_ string, pc *pooledConn) bool {
		if pc.leased.CompareAndSwap(false, true) {
			out = pc.conn
			return false
		}
		return true
	})
	if out == nil {
		return nil, errExhausted
	}
	return out, nil
}

// GetByKey checks out the connection the key hashes to, falling back to
// any idle connection when it is already leased.
func (p *Pool) GetByKey(key []byte) (*conn.Connection, error) {
	if p.closed.Load() {
		return nil, errClosed
	}
	m := p.cHasher.LocateKey(key)
	if m != nil {
		if pc, ok := p.onLines.Load(m.String()); ok {
			if pc.leased.CompareAndSwap(false, true) {
				return pc.conn, nil
			}
		}
	}
	return p.Get()
}

// Put returns a checked-out connection. A connection whose transport
// went dead is discarded and replaced in the background.
func (p *Pool) Put(ctx context.Context, c *conn.Connection) {
	pc, ok := p.onLines.Load(c.Id)
	if !ok {
		_ = c.Close()
		return
	}
	if !c.IsOpen() {
		p.remove(pc)
		go p.replace(ctx)
		return
	}
	pc.leased.Store(false)
}

func (p *Pool) replace(ctx context.Context) {
	if p.closed.Load() {
		return
	}
	c, err := p.dial(ctx)
	if err != nil {
		logger.Error(err, "Pool failed to replace broken connection")
		return
	}
	p.adopt(c)
}

// adopt registers a freshly dialed connection. Registration happens
// before the closed re-check so a Close racing with it either sees the
// connection in the map or the back-out below closes it; no connection
// outlives the pool either way.
func (p *Pool) adopt(c *conn.Connection) {
	p.add(c)
	if p.closed.Load() {
		p.onLines.Delete(c.Id)
		p.cHasher.Remove(c.Id)
		_ = c.Close()
	}
}

// CheckIdle probes every idle connection with PING and discards the
// ones that fail, replacing them up to the configured size.
func (p *Pool) CheckIdle(ctx context.Context) {
	var broken []*pooledConn
	p.onLines.Range(func(_ string, pc *pooledConn) bool {
		if !pc.leased.CompareAndSwap(false, true) {
			return true
		}
		if pc.conn.Check() {
			pc.leased.Store(false)
			return true
		}
		broken = append(broken, pc)
		return true
	})
	for _, pc := range broken {
		p.remove(pc)
		go p.replace(ctx)
	}
}

func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	var err error
	p.onLines.Range(func(_ string, pc *pooledConn) bool {
		err = multierr.Append(err, pc.conn.Close())
		return true
	})
	p.onLines.Clear()
	return err
}
