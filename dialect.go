package sqlkit

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect holds the syntactic rules the compiler needs for one database.
// Every function must be pure.
type Dialect struct {
	Name string

	// Placeholder returns the marker for the 1-based parameter position n.
	Placeholder func(n int) string

	// EscapeIdent quotes a single identifier part.
	EscapeIdent func(name string) string

	// ArrayLiteral renders an array parameter from the already rendered
	// element placeholders. Nil means the dialect has no array literals.
	ArrayLiteral func(elems []string) string

	// DefaultValue renders the text used in place of the Default sentinel.
	DefaultValue func() string
}

func dollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

func questionPlaceholder(int) string { return "?" }

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var (
	// Postgres renders $1 placeholders, double-quoted identifiers and
	// ARRAY[...] literals.
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: dollarPlaceholder,
		EscapeIdent: func(name string) string { return pgx.Identifier{name}.Sanitize() },
		ArrayLiteral: func(elems []string) string {
			if len(elems) == 0 {
				return "'{}'"
			}
			return "ARRAY[" + strings.Join(elems, ", ") + "]"
		},
		DefaultValue: func() string { return "DEFAULT" },
	}

	// MySQL renders ? placeholders and backtick identifiers.
	MySQL = Dialect{
		Name:         "mysql",
		Placeholder:  questionPlaceholder,
		EscapeIdent:  backtick,
		DefaultValue: func() string { return "DEFAULT" },
	}

	// SQLite renders ? placeholders and double-quoted identifiers. SQLite has
	// no DEFAULT keyword inside VALUES, so the Default sentinel becomes NULL.
	SQLite = Dialect{
		Name:         "sqlite",
		Placeholder:  questionPlaceholder,
		EscapeIdent:  doubleQuote,
		DefaultValue: func() string { return "NULL" },
	}

	// Question is a generic ? dialect with ANSI identifier quoting.
	Question = Dialect{
		Name:         "question",
		Placeholder:  questionPlaceholder,
		EscapeIdent:  doubleQuote,
		DefaultValue: func() string { return "DEFAULT" },
	}
)

func (d Dialect) validate() error {
	if d.Placeholder == nil || d.EscapeIdent == nil {
		return statementError("dialect %q requires Placeholder and EscapeIdent", d.Name)
	}
	return nil
}

func (d Dialect) defaultValue() string {
	if d.DefaultValue == nil {
		return "DEFAULT"
	}
	return d.DefaultValue()
}
