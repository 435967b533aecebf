package sqlkit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type runMode uint8

const (
	modeObjects runMode = iota
	modeRaw
	modeArrays
	modeStream
	modeExec
)

func (m runMode) transformKeys() bool { return m != modeRaw }
func (m runMode) positional() bool    { return m == modeArrays }

// Conn is an exclusive lease on one link. Operations on a Conn run one at a
// time; a second caller waits until the first finishes.
type Conn struct {
	link Link
	env  *settings

	sem    chan struct{}
	broken atomic.Bool

	mu       sync.Mutex
	busy     bool
	released bool
	returned bool
	giveBack func(broken bool)
}

func newConn(link Link, env *settings, giveBack func(broken bool)) *Conn {
	return &Conn{
		link:     link,
		env:      env,
		sem:      make(chan struct{}, 1),
		giveBack: giveBack,
	}
}

// Query returns rows as records with result-name transformed keys.
func (c *Conn) Query(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.runStatement(ctx, stmt, modeObjects)
	return res, err
}

// Raw returns rows as records keyed by the column names the database sent.
func (c *Conn) Raw(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.runStatement(ctx, stmt, modeRaw)
	return res, err
}

// Values returns rows as positional arrays in Result.Values.
func (c *Conn) Values(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.runStatement(ctx, stmt, modeArrays)
	return res, err
}

// Exec runs a statement that returns no rows.
func (c *Conn) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	res, _, err := c.runStatement(ctx, stmt, modeExec)
	return res, err
}

// Stream opens a row stream. The Conn stays busy until the stream ends,
// fails or is canceled.
func (c *Conn) Stream(ctx context.Context, stmt Statement) (*Stream, error) {
	_, s, err := c.runStatement(ctx, stmt, modeStream)
	return s, err
}

func (c *Conn) runStatement(ctx context.Context, stmt Statement, mode runMode) (*Result, *Stream, error) {
	q, em, err := c.env.compile(stmt)
	if err != nil {
		return nil, nil, err
	}
	return c.run(ctx, q, em, mode, nil)
}

// Ping checks the link.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.acquireSlot(ctx); err != nil {
		return err
	}
	defer c.releaseSlot()
	if err := c.link.Ping(ctx); err != nil {
		c.checkLink()
		return newError(KindConnection, "sqlkit: ping failed", err)
	}
	return nil
}

// WithTx runs fn inside a transaction on this Conn. See Client.WithTx.
func (c *Conn) WithTx(ctx context.Context, fn func(*Tx) error) error {
	return c.WithTxOptions(ctx, TxOptions{}, fn)
}

// WithTxOptions is WithTx with an explicit BEGIN mode.
func (c *Conn) WithTxOptions(ctx context.Context, opts TxOptions, fn func(*Tx) error) error {
	return runTx(ctx, c, opts, fn)
}

// Release returns the Conn to its pool. Calling it more than once is a
// no-op. If an operation is still in flight (a stream, usually) the link is
// returned when that operation finishes.
func (c *Conn) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	back := !c.busy && !c.returned
	if back {
		c.returned = true
	}
	c.mu.Unlock()
	if back {
		c.giveBack(c.broken.Load())
	}
}

// run is the single execution primitive. done, when set, is called once the
// link is free again: right away for buffered modes, when the producer exits
// for streams, and also when run fails before starting.
func (c *Conn) run(ctx context.Context, q CompiledQuery, execMode ExecMode, mode runMode, done func()) (res *Result, stream *Stream, err error) {
	started := false
	defer func() {
		if !started && done != nil {
			done()
		}
	}()

	if err := c.acquireSlot(ctx); err != nil {
		return nil, nil, err
	}

	start := time.Now()

	switch mode {
	case modeExec:
		er, err := c.link.Exec(ctx, q.Text, q.Params, execMode)
		c.env.observe(ctx, q.Text, true, start, err)
		if err != nil {
			err = c.queryFailed(q.Text, err)
		}
		c.releaseSlot()
		if err != nil {
			return nil, nil, err
		}
		return &Result{RowsAffected: er.RowsAffected, Command: er.Command}, nil, nil

	case modeStream:
		sctx, cancel := context.WithCancel(ctx)
		cur, err := c.link.Query(sctx, q.Text, q.Params, execMode)
		if err != nil {
			cancel()
			c.env.observe(ctx, q.Text, false, start, err)
			err = c.queryFailed(q.Text, err)
			c.releaseSlot()
			return nil, nil, err
		}
		started = true
		s := newStream(cur, cancel, q.Text, c.env.names.resultColumns(cur.Columns()), c.env.streamBuffer, func(serr error) {
			c.env.observe(ctx, q.Text, false, start, serr)
			if serr != nil {
				c.checkLink()
			}
			c.releaseSlot()
			if done != nil {
				done()
			}
		})
		return nil, s, nil

	default:
		cur, err := c.link.Query(ctx, q.Text, q.Params, execMode)
		if err == nil {
			res, err = collect(cur, mode, c.env.names)
			if cerr := cur.Close(); err == nil {
				err = cerr
			}
		}
		c.env.observe(ctx, q.Text, false, start, err)
		if err != nil {
			err = c.queryFailed(q.Text, err)
		}
		c.releaseSlot()
		if err != nil {
			return nil, nil, err
		}
		return res, nil, nil
	}
}

func collect(cur Cursor, mode runMode, names Transform) (*Result, error) {
	cols := cur.Columns()
	if mode.transformKeys() {
		cols = names.resultColumns(cols)
	}
	res := &Result{Columns: cols}
	if mode.positional() {
		res.Values = [][]any{}
	} else {
		res.Rows = []Row{}
	}
	for cur.Next() {
		vals, err := cur.Values()
		if err != nil {
			return nil, err
		}
		if mode.positional() {
			res.Values = append(res.Values, vals)
			continue
		}
		res.Rows = append(res.Rows, makeRow(cols, vals))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func makeRow(cols []string, vals []any) Row {
	row := make(Row, len(cols))
	for i, col := range cols {
		if i < len(vals) {
			row[col] = vals[i]
		}
	}
	return row
}

func (c *Conn) queryFailed(query string, err error) error {
	c.checkLink()
	return queryError(query, err)
}

// checkLink marks the Conn broken when the transport went away, so the
// link is destroyed on release rather than reused.
func (c *Conn) checkLink() {
	if c.link.IsClosed() {
		c.broken.Store(true)
	}
}

func (c *Conn) markBroken() { c.broken.Store(true) }

func (c *Conn) acquireSlot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return newError(KindConnection, "sqlkit: connection wait canceled", err)
	}
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return newError(KindConnection, "sqlkit: connection wait canceled", ctx.Err())
	}
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		<-c.sem
		return newError(KindConnection, ErrConnReleased.Error(), ErrConnReleased)
	}
	c.busy = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) releaseSlot() {
	c.mu.Lock()
	c.busy = false
	back := c.released && !c.returned
	if back {
		c.returned = true
	}
	c.mu.Unlock()
	<-c.sem
	if back {
		c.giveBack(c.broken.Load())
	}
}
