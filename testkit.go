package sqlkit

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

// ErrNotMocked is returned when a TestLink method is called without a
// corresponding Func field set.
var ErrNotMocked = errors.New("sqlkit.TestLink: method not mocked; set the corresponding Func field")

// TestDriver is an in-memory Driver for unit tests. Each Connect returns a
// fresh TestLink wired to the driver's Func fields.
type TestDriver struct {
	// ConnectFunc replaces the default link factory.
	ConnectFunc func(ctx context.Context) (Link, error)

	QueryFunc func(ctx context.Context, sql string, args []any, mode ExecMode) (Cursor, error)
	ExecFunc  func(ctx context.Context, sql string, args []any, mode ExecMode) (ExecResult, error)
	PingFunc  func(ctx context.Context) error

	// SQLDialect defaults to Postgres.
	SQLDialect Dialect

	mu    sync.Mutex
	links []*TestLink
}

var _ Driver = (*TestDriver)(nil)

func (d *TestDriver) Connect(ctx context.Context) (Link, error) {
	if d.ConnectFunc != nil {
		return d.ConnectFunc(ctx)
	}
	l := &TestLink{QueryFunc: d.QueryFunc, ExecFunc: d.ExecFunc, PingFunc: d.PingFunc}
	d.mu.Lock()
	d.links = append(d.links, l)
	d.mu.Unlock()
	return l, nil
}

func (d *TestDriver) Dialect() Dialect {
	if d.SQLDialect.Placeholder == nil {
		return Postgres
	}
	return d.SQLDialect
}

// Links returns every link created by Connect, oldest first.
func (d *TestDriver) Links() []*TestLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.links)
}

// Call is one statement received by a TestLink.
type Call struct {
	Method string
	SQL    string
	Args   []any
	Mode   ExecMode
}

// TestLink is a mock Link. Unset Query and Exec return ErrNotMocked; an
// unset Ping succeeds.
type TestLink struct {
	QueryFunc func(ctx context.Context, sql string, args []any, mode ExecMode) (Cursor, error)
	ExecFunc  func(ctx context.Context, sql string, args []any, mode ExecMode) (ExecResult, error)
	PingFunc  func(ctx context.Context) error
	CloseFunc func(ctx context.Context) error

	mu     sync.Mutex
	calls  []Call
	closes int
	closed atomic.Bool
}

var _ Link = (*TestLink)(nil)

func (l *TestLink) record(method, sql string, args []any, mode ExecMode) {
	l.mu.Lock()
	l.calls = append(l.calls, Call{Method: method, SQL: sql, Args: slices.Clone(args), Mode: mode})
	l.mu.Unlock()
}

func (l *TestLink) Query(ctx context.Context, sql string, args []any, mode ExecMode) (Cursor, error) {
	l.record("Query", sql, args, mode)
	if l.QueryFunc != nil {
		return l.QueryFunc(ctx, sql, args, mode)
	}
	return nil, ErrNotMocked
}

func (l *TestLink) Exec(ctx context.Context, sql string, args []any, mode ExecMode) (ExecResult, error) {
	l.record("Exec", sql, args, mode)
	if l.ExecFunc != nil {
		return l.ExecFunc(ctx, sql, args, mode)
	}
	return ExecResult{}, ErrNotMocked
}

func (l *TestLink) Ping(ctx context.Context) error {
	if l.PingFunc != nil {
		return l.PingFunc(ctx)
	}
	return nil
}

func (l *TestLink) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	l.closed.Store(true)
	if l.CloseFunc != nil {
		return l.CloseFunc(ctx)
	}
	return nil
}

func (l *TestLink) IsClosed() bool { return l.closed.Load() }

// Break simulates a lost transport: IsClosed reports true from now on.
func (l *TestLink) Break() { l.closed.Store(true) }

// Closes returns how many times Close was called.
func (l *TestLink) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Calls returns the statements received so far.
func (l *TestLink) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

// SQL returns the text of every statement received so far.
func (l *TestLink) SQL() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.SQL
	}
	return out
}

// RowsBuilder builds in-memory cursors.
type RowsBuilder struct {
	columns []string
	rows    [][]any
	err     error
}

// NewRows creates a new RowsBuilder.
func NewRows(columns []string) *RowsBuilder {
	return &RowsBuilder{columns: columns}
}

// AddRow appends a row. It panics on arity mismatch.
func (b *RowsBuilder) AddRow(values ...any) *RowsBuilder {
	if len(values) != len(b.columns) {
		panic("sqlkit.RowsBuilder: column count mismatch")
	}
	b.rows = append(b.rows, values)
	return b
}

// FailWith makes the cursor report err after the last row.
func (b *RowsBuilder) FailWith(err error) *RowsBuilder {
	b.err = err
	return b
}

// Build returns a cursor over the builder data.
func (b *RowsBuilder) Build() *TestCursor {
	return &TestCursor{columns: b.columns, data: b.rows, err: b.err, idx: -1}
}

// BuildBlocking returns a cursor that, after its last row, blocks in Next
// until ctx is canceled, like a query still waiting on the server.
func (b *RowsBuilder) BuildBlocking(ctx context.Context) *TestCursor {
	c := b.Build()
	c.hold = ctx
	return c
}

// TestCursor is an in-memory Cursor. Its counters are safe to read while
// another goroutine iterates it.
type TestCursor struct {
	columns []string
	data    [][]any
	err     error
	hold    context.Context

	idx     int
	cur     []any
	fetched atomic.Int32
	closes  atomic.Int32
}

var _ Cursor = (*TestCursor)(nil)

func (c *TestCursor) Columns() []string { return c.columns }

func (c *TestCursor) Next() bool {
	if c.closes.Load() > 0 {
		return false
	}
	c.idx++
	if c.idx < len(c.data) {
		c.cur = c.data[c.idx]
		c.fetched.Add(1)
		return true
	}
	c.cur = nil
	if c.hold != nil && c.err == nil {
		<-c.hold.Done()
		c.err = c.hold.Err()
	}
	return false
}

func (c *TestCursor) Values() ([]any, error) {
	if c.cur == nil {
		return nil, errors.New("sqlkit.TestCursor: Values called without a current row")
	}
	return slices.Clone(c.cur), nil
}

// Err reports the FailWith error once every row has been read.
func (c *TestCursor) Err() error {
	if c.idx < len(c.data) {
		return nil
	}
	return c.err
}

func (c *TestCursor) Close() error {
	c.closes.Add(1)
	return nil
}

// Fetched returns how many rows Next has produced.
func (c *TestCursor) Fetched() int { return int(c.fetched.Load()) }

// Closes returns how many times Close was called.
func (c *TestCursor) Closes() int { return int(c.closes.Load()) }
