package sqlkit

import "context"

// Querier is the execution contract shared by Client, Conn and Tx.
//
// All methods require context.Context. Cancellation propagates to the
// in-flight statement and, for Client, to the wait for a pooled connection.
//
// Depend on Querier in service constructors rather than on *Client so the
// same code runs inside and outside a transaction and can be exercised with
// TestDriver.
type Querier interface {
	// Query returns rows as records keyed by result-name transformed columns.
	Query(ctx context.Context, stmt Statement) (*Result, error)

	// Raw returns rows as records keyed by the columns the database sent.
	Raw(ctx context.Context, stmt Statement) (*Result, error)

	// Values returns rows as positional arrays.
	Values(ctx context.Context, stmt Statement) (*Result, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt Statement) (*Result, error)

	// Stream returns rows one at a time as they are fetched. The caller
	// must drain or cancel the stream.
	Stream(ctx context.Context, stmt Statement) (*Stream, error)
}

var (
	_ Querier = (*Client)(nil)
	_ Querier = (*Conn)(nil)
	_ Querier = (*Tx)(nil)
)

// Row is one result record.
type Row map[string]any

// Result is a buffered query result. Query and Raw fill Rows, Values fills
// Values, Exec fills RowsAffected and Command.
type Result struct {
	Columns      []string
	Rows         []Row
	Values       [][]any
	RowsAffected int64
	Command      string
}

// Len returns the number of rows held by r.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	if r.Values != nil {
		return len(r.Values)
	}
	return len(r.Rows)
}

// First returns the first row, or nil when there is none.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}
