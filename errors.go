package sqlkit

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes reported by this package.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfig reports malformed or missing configuration. It is returned
	// before any connection attempt.
	KindConfig
	// KindPoolExhausted reports that no connection became available within the
	// pool's acquire policy.
	KindPoolExhausted
	// KindConnection reports a transport-level failure acquiring or holding a link.
	KindConnection
	// KindQuery reports a statement rejected or failed by the driver.
	KindQuery
	// KindEmptyIn reports an IN helper built from zero values.
	KindEmptyIn
	// KindStream reports a cursor failure in the middle of a stream.
	KindStream
	// KindStatement reports any other builder or compiler misuse.
	KindStatement
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPoolExhausted:
		return "pool exhausted"
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	case KindEmptyIn:
		return "empty in"
	case KindStream:
		return "stream"
	case KindStatement:
		return "statement"
	default:
		return "unknown"
	}
}

// Error is the single failure type crossing this package's boundary.
//
// For every kind except KindQuery and KindStream the message is safe for
// default production logging: it never contains connection strings or
// passwords. The wrapped cause may still contain sensitive detail.
type Error struct {
	Kind Kind

	// Query is the compiled SQL text of the failing statement, when known.
	// Parameter values are never recorded.
	Query string

	msg      string
	cause    error
	sentinel bool
}

func (e *Error) Error() string {
	if e.sentinel {
		return "sqlkit: " + e.Kind.String()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches kind sentinels such as ErrQuery.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind
}

// SQLState returns the SQLSTATE code of the driver error behind e, or "".
func (e *Error) SQLState() string {
	var s sqlStateError
	if errors.As(e.cause, &s) {
		return s.SQLState()
	}
	return ""
}

type sqlStateError interface {
	SQLState() string
}

// Kind sentinels, matched by errors.Is against any *Error of the same kind.
var (
	ErrConfig        = &Error{Kind: KindConfig, sentinel: true}
	ErrPoolExhausted = &Error{Kind: KindPoolExhausted, sentinel: true}
	ErrConnection    = &Error{Kind: KindConnection, sentinel: true}
	ErrQuery         = &Error{Kind: KindQuery, sentinel: true}
	ErrEmptyIn       = &Error{Kind: KindEmptyIn, sentinel: true}
	ErrStream        = &Error{Kind: KindStream, sentinel: true}
	ErrStatement     = &Error{Kind: KindStatement, sentinel: true}
)

var (
	// ErrPoolClosed is the cause of every Acquire after Close.
	ErrPoolClosed = errors.New("sqlkit: pool closed")
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("sqlkit: transaction has already been committed or rolled back")
	// ErrConnReleased is returned when a released Conn is used.
	ErrConnReleased = errors.New("sqlkit: connection already released")
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, msg: "sqlkit: " + fmt.Sprintf(format, args...)}
}

func statementError(format string, args ...any) *Error {
	return &Error{Kind: KindStatement, msg: "sqlkit: " + fmt.Sprintf(format, args...)}
}

func queryError(query string, cause error) *Error {
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	return &Error{
		Kind:  KindQuery,
		Query: query,
		msg:   "sqlkit: query failed: " + cause.Error(),
		cause: cause,
	}
}

// NewError builds an *Error for driver adapters. For every kind except
// KindQuery and KindStream, msg must be safe to log: no DSNs, no passwords.
func NewError(kind Kind, msg string, cause error) *Error {
	return newError(kind, msg, cause)
}
