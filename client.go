package sqlkit

import (
	"context"
	"fmt"
)

// Client is the default entry point: each call borrows a pooled Conn for
// its duration.
type Client struct {
	pool *Pool
}

// Open validates cfg, builds the pool and pings the database once. Config
// problems are reported before any connection attempt.
func Open(ctx context.Context, drv Driver, cfg Config, opts ...Option) (*Client, error) {
	pool, err := NewPool(drv, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		_ = pool.Close(context.Background())
		if KindOf(err) == KindPoolExhausted {
			return nil, err
		}
		return nil, newError(KindConnection, fmt.Sprintf("sqlkit: initial ping failed (driver=%s)", pool.env.dialect.Name), err)
	}
	return &Client{pool: pool}, nil
}

// NewClient wraps an existing pool. It does not ping.
func NewClient(pool *Pool) *Client {
	return &Client{pool: pool}
}

// Pool returns the underlying pool.
func (c *Client) Pool() *Pool { return c.pool }

func (c *Client) Query(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.run(ctx, stmt, modeObjects)
	return res, err
}

func (c *Client) Raw(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.run(ctx, stmt, modeRaw)
	return res, err
}

func (c *Client) Values(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.run(ctx, stmt, modeArrays)
	return res, err
}

func (c *Client) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.run(ctx, stmt, modeExec)
	return res, err
}

// Stream holds its lease until the stream ends, fails or is canceled.
func (c *Client) Stream(ctx context.Context, stmt Statement) (*Stream, error) {
	_, s, err := c.run(ctx, stmt, modeStream)
	return s, err
}

// run compiles first so statement errors never cost a lease.
func (c *Client) run(ctx context.Context, stmt Statement, mode runMode) (*Result, *Stream, error) {
	q, em, err := c.pool.env.compile(stmt)
	if err != nil {
		return nil, nil, err
	}
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn.run(ctx, q, em, mode, conn.Release)
}

// Reserve leases a dedicated Conn. The caller must Release it.
func (c *Client) Reserve(ctx context.Context) (*Conn, error) {
	return c.pool.Acquire(ctx)
}

// WithTx runs fn in a transaction on one leased Conn. If fn returns an
// error or panics the transaction is rolled back and the error (or panic)
// is passed through unchanged; otherwise it is committed. The Conn is
// released after the outermost scope ends.
func (c *Client) WithTx(ctx context.Context, fn func(*Tx) error) error {
	return c.WithTxOptions(ctx, TxOptions{}, fn)
}

// WithTxOptions is WithTx with an explicit BEGIN mode.
func (c *Client) WithTxOptions(ctx context.Context, opts TxOptions, fn func(*Tx) error) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return runTx(ctx, conn, opts, fn)
}

// Compile renders stmt with the client's dialect and query-name transform.
func (c *Client) Compile(stmt Statement) (CompiledQuery, error) {
	q, _, err := c.pool.env.compile(stmt)
	return q, err
}

func (c *Client) Ping(ctx context.Context) error { return c.pool.Ping(ctx) }

func (c *Client) Stat() Stat { return c.pool.Stat() }

func (c *Client) Stats() StatsSnapshot { return c.pool.Stats() }

// Close shuts the pool down. See Pool.Close.
func (c *Client) Close(ctx context.Context) error { return c.pool.Close(ctx) }
