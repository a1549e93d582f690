package client

import (
	"context"
	"time"

	"github.com/nverba/redwire/pkg/common"
	"github.com/nverba/redwire/pkg/conn"
	"github.com/nverba/redwire/pkg/pool"
	"github.com/nverba/redwire/pkg/pubsub"
)

// Client is the entry point: it holds the parsed target and default
// timeouts and mints connections, pub/sub sessions and pools from them.
// The client itself holds no sockets and is safe to share.
type Client struct {
	info         *conn.ConnectionInfo
	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	poolSize     int
}

const defaultDialTimeout = 5 * time.Second

// Open parses a connection URL (redis, rediss, unix or redis+unix
// scheme) and returns a client with default timeouts.
func Open(rawURL string) (*Client, error) {
	info, err := conn.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		info:        info,
		dialTimeout: defaultDialTimeout,
		poolSize:    pool.DefaultSize,
	}, nil
}

// FromEnv builds a client from REDWIRE_* environment variables, reading
// ".env.local" first when present.
func FromEnv(ctx context.Context) (*Client, error) {
	cfg, err := common.LoadClientConfig(ctx)
	if err != nil {
		return nil, err
	}
	c, err := Open(cfg.URL)
	if err != nil {
		return nil, err
	}
	c.dialTimeout = cfg.DialTimeout
	c.readTimeout = cfg.ReadTimeout
	c.writeTimeout = cfg.WriteTimeout
	if cfg.PoolSize > 0 {
		c.poolSize = cfg.PoolSize
	}
	return c, nil
}

// WithDialTimeout sets the dial timeout for future connections. Zero
// blocks indefinitely.
func (c *Client) WithDialTimeout(d time.Duration) *Client {
	c.dialTimeout = d
	return c
}

// WithReadTimeout sets the read timeout applied to future connections.
// Zero leaves reads unbounded.
func (c *Client) WithReadTimeout(d time.Duration) *Client {
	c.readTimeout = d
	return c
}

// WithWriteTimeout sets the write timeout applied to future connections.
// Zero leaves writes unbounded.
func (c *Client) WithWriteTimeout(d time.Duration) *Client {
	c.writeTimeout = d
	return c
}

// GetConnection dials a fresh connection with the client's default dial
// timeout.
func (c *Client) GetConnection() (*conn.Connection, error) {
	return c.GetConnectionTimeout(c.dialTimeout)
}

// GetConnectionTimeout dials a fresh connection, bounding the dial by
// timeout. Zero blocks indefinitely.
func (c *Client) GetConnectionTimeout(timeout time.Duration) (*conn.Connection, error) {
	cn, err := conn.Connect(c.info, timeout)
	if err != nil {
		return nil, err
	}
	if c.readTimeout > 0 {
		if err := cn.SetReadTimeout(c.readTimeout); err != nil {
			_ = cn.Close()
			return nil, err
		}
	}
	if c.writeTimeout > 0 {
		if err := cn.SetWriteTimeout(c.writeTimeout); err != nil {
			_ = cn.Close()
			return nil, err
		}
	}
	return cn, nil
}

// GetPubSub dials a fresh connection and wraps it in a pub/sub session.
// The connection is dedicated to the session until Exit.
func (c *Client) GetPubSub() (*pubsub.Session, error) {
	cn, err := c.GetConnection()
	if err != nil {
		return nil, err
	}
	return pubsub.New(cn), nil
}

// GetPool dials a fixed-size connection pool sized by the client's pool
// size setting.
func (c *Client) GetPool(ctx context.Context) (*pool.Pool, error) {
	return pool.New(ctx, &pool.Config{
		Size:        c.poolSize,
		Info:        c.info,
		DialTimeout: c.dialTimeout,
	})
}
