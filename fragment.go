package sqlkit

import (
	"reflect"
	"slices"
)

// FragmentKind tags the variant held by a Fragment.
type FragmentKind uint8

const (
	FragLiteral FragmentKind = iota + 1
	FragParam
	FragIdent
	FragList
	FragNested
	FragHelper
)

// HelperKind selects the expansion performed by a helper fragment.
type HelperKind uint8

const (
	HelperInsert HelperKind = iota + 1
	HelperUpdate
	HelperValues
	HelperIn
)

// Fragment is one immutable node of a SQL statement tree. The zero value is
// an empty literal.
type Fragment struct {
	kind   FragmentKind
	text   string
	value  any
	parts  []string
	items  []Fragment
	nested *Statement
	helper HelperKind
	rows   []Record
	cols   []string
	err    error
}

// Kind reports which variant f holds.
func (f Fragment) Kind() FragmentKind {
	if f.kind == 0 {
		return FragLiteral
	}
	return f.kind
}

// Lit is literal SQL text appended verbatim. Never build it from user input.
func Lit(text string) Fragment {
	return Fragment{kind: FragLiteral, text: text}
}

// Param binds v as one parameter, rendered as a dialect placeholder.
// Slices other than []byte are array parameters.
func Param(v any) Fragment {
	return Fragment{kind: FragParam, value: v}
}

// Ident is an escaped identifier. Multiple parts are qualified with dots:
// Ident("public", "users") renders "public"."users" in Postgres.
func Ident(parts ...string) Fragment {
	return Fragment{kind: FragIdent, parts: slices.Clone(parts)}
}

// Idents is a comma separated list of single-part identifiers.
func Idents(names ...string) Fragment {
	items := make([]Fragment, len(names))
	for i, n := range names {
		items[i] = Ident(n)
	}
	return Fragment{kind: FragList, text: ", ", items: items}
}

// List joins the given fragments with sep.
func List(sep string, items ...Fragment) Fragment {
	return Fragment{kind: FragList, text: sep, items: slices.Clone(items)}
}

// Nest embeds s. Its placeholders continue the enclosing numbering.
func Nest(s Statement) Fragment {
	c := s.clone()
	return Fragment{kind: FragNested, nested: &c}
}

type defaultValue struct{}

// Default, used as a parameter value, renders the dialect's default-value
// keyword instead of a placeholder.
var Default any = defaultValue{}

// In expands to one parenthesized group with a placeholder per value. A
// single slice argument (other than []byte) is expanded into its elements.
// Compiling an In with zero values fails with an ErrEmptyIn error.
func In(values ...any) Fragment {
	if len(values) == 1 {
		if elems, ok := arrayElems(values[0]); ok {
			values = elems
		}
	}
	f := Fragment{kind: FragHelper, helper: HelperIn, items: make([]Fragment, len(values))}
	for i, v := range values {
		f.items[i] = Param(v)
	}
	if len(values) == 0 {
		f.err = &Error{Kind: KindEmptyIn, msg: "sqlkit: IN helper requires at least one value"}
	}
	return f
}

// Insert expands to (c1, c2) VALUES ($1, $2) for one record, or to one
// VALUES group per record when records is a slice. Columns default to the
// first record's fields in declaration order.
func Insert(records any, columns ...string) Fragment {
	return helperFragment(HelperInsert, records, columns)
}

// Update expands to c1 = $1, c2 = $2 for a single record.
func Update(record any, columns ...string) Fragment {
	return helperFragment(HelperUpdate, record, columns)
}

// Values expands to ($1, $2), ($3, $4) with one group per record.
func Values(records any, columns ...string) Fragment {
	return helperFragment(HelperValues, records, columns)
}

func helperFragment(kind HelperKind, records any, columns []string) Fragment {
	f := Fragment{kind: FragHelper, helper: kind}
	rows, err := toRecords(records)
	if err != nil {
		f.err = err
		return f
	}
	if len(rows) == 0 {
		f.err = statementError("%s helper requires at least one record", kind)
		return f
	}
	if kind == HelperUpdate && len(rows) > 1 {
		f.err = statementError("update helper accepts a single record, got %d", len(rows))
		return f
	}
	cols := slices.Clone(columns)
	if len(cols) == 0 {
		cols = rows[0].Names()
	}
	if len(cols) == 0 {
		f.err = statementError("%s helper record has no fields", kind)
		return f
	}
	f.rows = rows
	f.cols = cols
	return f
}

func (k HelperKind) String() string {
	switch k {
	case HelperInsert:
		return "insert"
	case HelperUpdate:
		return "update"
	case HelperValues:
		return "values"
	case HelperIn:
		return "in"
	default:
		return "unknown"
	}
}

// Statement is an ordered sequence of fragments forming one SQL command.
// Statements are values; every method returns a new Statement.
type Statement struct {
	frags  []Fragment
	simple bool
}

// SQL builds a statement from parts: a string is literal text, a Fragment
// is used as is, a Statement is nested, and any other value is a parameter.
// Pass string values through Param.
//
//	sqlkit.SQL("SELECT * FROM people WHERE id IN ", sqlkit.In(1, 2, 3))
func SQL(parts ...any) Statement {
	return Statement{}.Append(parts...)
}

// Append returns s followed by parts, interpreted as in SQL. Like Concat,
// the result is simple if s or any appended Statement is.
func (s Statement) Append(parts ...any) Statement {
	out := s.clone()
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			out.frags = append(out.frags, Lit(p))
		case Fragment:
			out.frags = append(out.frags, p)
		case Statement:
			out.frags = append(out.frags, Nest(p))
			out.simple = out.simple || p.simple
		case *Statement:
			out.frags = append(out.frags, Nest(*p))
			out.simple = out.simple || p.simple
		default:
			out.frags = append(out.frags, Param(p))
		}
	}
	return out
}

// Concat joins statements in order. The result is simple if any input is.
func Concat(stmts ...Statement) Statement {
	var out Statement
	for _, s := range stmts {
		out.frags = append(out.frags, s.frags...)
		out.simple = out.simple || s.simple
	}
	return out
}

// Simple marks s for ad hoc (unprepared) execution.
func (s Statement) Simple() Statement {
	out := s.clone()
	out.simple = true
	return out
}

// IsSimple reports whether s executes unprepared.
func (s Statement) IsSimple() bool { return s.simple }

// Fragments returns a copy of the fragment sequence.
func (s Statement) Fragments() []Fragment { return slices.Clone(s.frags) }

func (s Statement) clone() Statement {
	return Statement{frags: slices.Clone(s.frags), simple: s.simple}
}

// arrayElems reports whether v is an array parameter and returns its
// elements. []byte and json.RawMessage style byte slices are scalars.
func arrayElems(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if elems, ok := v.([]any); ok {
		return elems, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
