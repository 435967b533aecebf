package sqlkit

import "context"

// ExecMode selects the driver entry point for a statement.
type ExecMode uint8

const (
	// ExecPrepared sends the statement through the extended (prepared)
	// protocol or an explicit prepare step.
	ExecPrepared ExecMode = iota
	// ExecSimple sends the statement ad hoc. Statement.Simple selects it.
	ExecSimple
)

func (m ExecMode) String() string {
	if m == ExecSimple {
		return "simple"
	}
	return "prepared"
}

// ExecResult describes a statement that returned no rows.
type ExecResult struct {
	RowsAffected int64
	Command      string
}

// Driver opens physical links to one database. Implementations live in the
// pgxdriver and sqldriver packages.
type Driver interface {
	Connect(ctx context.Context) (Link, error)
	Dialect() Dialect
}

// Link is one physical database connection. A Link is used by one goroutine
// at a time; Conn enforces that.
type Link interface {
	// Query opens a cursor. The cursor stops fetching when ctx is canceled.
	Query(ctx context.Context, sql string, args []any, mode ExecMode) (Cursor, error)
	Exec(ctx context.Context, sql string, args []any, mode ExecMode) (ExecResult, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	// IsClosed reports whether the transport is unusable. A closed link is
	// destroyed instead of being returned to the pool.
	IsClosed() bool
}

// Cursor iterates the rows of one query. Rows are pulled on demand, so not
// calling Next pauses the cursor. Close destroys it.
type Cursor interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}
