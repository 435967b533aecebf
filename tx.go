package sqlkit

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

const defaultRollbackTimeout = 5 * time.Second

// TxOptions configures the outermost BEGIN.
type TxOptions struct {
	// Mode is appended to BEGIN verbatim, for example
	// "ISOLATION LEVEL SERIALIZABLE" or "READ ONLY". Never build it from
	// user input.
	Mode string
}

// Tx is a transaction scope bound to one Conn. Nested scopes opened with
// WithTx share the Conn and are backed by savepoints.
type Tx struct {
	conn  *Conn
	seq   *atomic.Int64
	depth int
	name  string
	done  atomic.Bool
}

// runTx issues BEGIN on c, runs fn and ends the transaction with exactly one
// COMMIT or ROLLBACK.
func runTx(ctx context.Context, c *Conn, opts TxOptions, fn func(*Tx) error) error {
	begin := "BEGIN"
	if opts.Mode != "" {
		begin += " " + opts.Mode
	}
	if _, err := c.Exec(ctx, SQL(begin).Simple()); err != nil {
		return err
	}
	tx := &Tx{conn: c, seq: new(atomic.Int64)}
	return tx.scope(ctx, fn, "COMMIT", "ROLLBACK")
}

// WithTx runs fn in a nested scope: SAVEPOINT before, RELEASE SAVEPOINT on
// success, ROLLBACK TO SAVEPOINT on failure or panic. The enclosing
// transaction is left intact either way.
func (t *Tx) WithTx(ctx context.Context, fn func(*Tx) error) error {
	if err := t.check(); err != nil {
		return err
	}
	name := "s" + strconv.FormatInt(t.seq.Add(1), 10)
	if _, err := t.conn.Exec(ctx, SQL("SAVEPOINT "+name).Simple()); err != nil {
		return err
	}
	child := &Tx{conn: t.conn, seq: t.seq, depth: t.depth + 1, name: name}
	return child.scope(ctx, fn, "RELEASE SAVEPOINT "+name, "ROLLBACK TO SAVEPOINT "+name)
}

func (t *Tx) scope(ctx context.Context, fn func(*Tx) error, commitSQL, rollbackSQL string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			t.rollback(rollbackSQL)
			panic(p)
		}
		if err != nil {
			t.rollback(rollbackSQL)
		}
	}()

	if err = fn(t); err != nil {
		return err
	}
	if _, err = t.conn.Exec(ctx, SQL(commitSQL).Simple()); err != nil {
		return err
	}
	t.done.Store(true)
	return nil
}

// rollback runs on a detached context so a canceled caller still gets its
// transaction rolled back. A failure never replaces the original error.
func (t *Tx) rollback(rollbackSQL string) {
	t.done.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), defaultRollbackTimeout)
	defer cancel()
	if _, err := t.conn.Exec(ctx, SQL(rollbackSQL).Simple()); err != nil {
		t.conn.env.logger.LogAttrs(ctx, slog.LevelWarn, "sqlkit: rollback failed",
			slog.Int("depth", t.depth),
			slog.Any("error", err),
		)
		if t.depth == 0 {
			t.conn.markBroken()
		}
	}
}

func (t *Tx) check() error {
	if t.done.Load() {
		return newError(KindStatement, ErrTxDone.Error(), ErrTxDone)
	}
	return nil
}

// Depth is 0 for the outermost scope and grows by one per nested WithTx.
func (t *Tx) Depth() int { return t.depth }

// Savepoint returns the savepoint backing a nested scope, or "".
func (t *Tx) Savepoint() string { return t.name }

func (t *Tx) Query(ctx context.Context, stmt Statement) (*Result, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.conn.Query(ctx, stmt)
}

func (t *Tx) Raw(ctx context.Context, stmt Statement) (*Result, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.conn.Raw(ctx, stmt)
}

func (t *Tx) Values(ctx context.Context, stmt Statement) (*Result, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.conn.Values(ctx, stmt)
}

func (t *Tx) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.conn.Exec(ctx, stmt)
}

// Stream opens a row stream inside the transaction. Finish or cancel it
// before the scope returns; COMMIT waits for the Conn.
func (t *Tx) Stream(ctx context.Context, stmt Statement) (*Stream, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return t.conn.Stream(ctx, stmt)
}
