package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	sqlkit "github.com/vango-go/vango-sqlkit"
)

type link struct {
	conn   *sql.Conn
	broken atomic.Bool
	closed atomic.Bool
}

var _ sqlkit.Link = (*link)(nil)

func (l *link) Query(ctx context.Context, query string, args []any, mode sqlkit.ExecMode) (sqlkit.Cursor, error) {
	if mode == sqlkit.ExecSimple {
		rows, err := l.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, l.fail(err)
		}
		return l.newCursor(rows, nil)
	}

	stmt, err := l.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, l.fail(err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		_ = stmt.Close()
		return nil, l.fail(err)
	}
	return l.newCursor(rows, stmt)
}

func (l *link) Exec(ctx context.Context, query string, args []any, mode sqlkit.ExecMode) (sqlkit.ExecResult, error) {
	var (
		res sql.Result
		err error
	)
	if mode == sqlkit.ExecSimple {
		res, err = l.conn.ExecContext(ctx, query, args...)
	} else {
		var stmt *sql.Stmt
		stmt, err = l.conn.PrepareContext(ctx, query)
		if err == nil {
			res, err = stmt.ExecContext(ctx, args...)
			_ = stmt.Close()
		}
	}
	if err != nil {
		return sqlkit.ExecResult{}, l.fail(err)
	}
	// Some drivers cannot report affected rows; zero is the honest answer.
	n, _ := res.RowsAffected()
	return sqlkit.ExecResult{RowsAffected: n, Command: command(query)}, nil
}

func (l *link) Ping(ctx context.Context) error {
	if err := l.conn.PingContext(ctx); err != nil {
		return l.fail(err)
	}
	return nil
}

func (l *link) Close(context.Context) error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

func (l *link) IsClosed() bool { return l.closed.Load() || l.broken.Load() }

// fail records transport failures and returns err with its SQLSTATE
// exposed.
func (l *link) fail(err error) error {
	if isBroken(err) {
		l.broken.Store(true)
	}
	return classify(err)
}

func isBroken(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Fatal()
}

// stateError attaches a SQLSTATE code to a driver error.
type stateError struct {
	err   error
	state string
}

func (e *stateError) Error() string    { return e.err.Error() }
func (e *stateError) Unwrap() error    { return e.err }
func (e *stateError) SQLState() string { return e.state }

func classify(err error) error {
	if state := sqlState(err); state != "" {
		return &stateError{err: err, state: state}
	}
	return err
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.SQLState != [5]byte{} {
		return string(myErr.SQLState[:])
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return sqliteState(liteErr.Code())
	}
	return ""
}

// sqliteState maps constraint result codes to SQLSTATE class 23. Other
// codes have no portable equivalent.
func sqliteState(code int) string {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return "23505"
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return "23502"
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return "23503"
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return "23514"
	case sqlite3.SQLITE_CONSTRAINT:
		return "23000"
	default:
		return ""
	}
}

func command(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

type cursor struct {
	link    *link
	rows    *sql.Rows
	stmt    *sql.Stmt
	columns []string
	text    []bool
	err     error
}

func (l *link) newCursor(rows *sql.Rows, stmt *sql.Stmt) (sqlkit.Cursor, error) {
	c := &cursor{link: l, rows: rows, stmt: stmt}
	types, err := rows.ColumnTypes()
	if err != nil {
		_ = c.Close()
		return nil, l.fail(err)
	}
	c.columns = make([]string, len(types))
	c.text = make([]bool, len(types))
	for i, t := range types {
		c.columns[i] = t.Name()
		c.text[i] = isTextType(t.DatabaseTypeName())
	}
	return c, nil
}

// isTextType reports column types whose values some drivers hand back as
// []byte although they hold text.
func isTextType(name string) bool {
	switch strings.ToUpper(name) {
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET",
		"BPCHAR", "NAME", "CITEXT", "UUID", "JSON", "JSONB", "DECIMAL", "NUMERIC":
		return true
	default:
		return false
	}
}

func (c *cursor) Columns() []string { return c.columns }

func (c *cursor) Next() bool { return c.rows.Next() }

func (c *cursor) Values() ([]any, error) {
	vals := make([]any, len(c.columns))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		return nil, c.link.fail(err)
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && c.text[i] {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	if err := c.rows.Err(); err != nil {
		c.err = c.link.fail(err)
	}
	return c.err
}

func (c *cursor) Close() error {
	err := c.rows.Close()
	if c.stmt != nil {
		if serr := c.stmt.Close(); err == nil {
			err = serr
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return c.link.fail(err)
	}
	return nil
}
