package sqlkit

import (
	"database/sql/driver"
	"reflect"
	"strings"
	"time"
)

// CompiledQuery is a rendered statement. Params[i] binds to the i-th
// placeholder in Text, left to right.
type CompiledQuery struct {
	Text   string
	Params []any
}

// CompileOption configures Compile.
type CompileOption func(*compiler)

// WithNames applies t.ToQueryName to every identifier.
func WithNames(t Transform) CompileOption {
	return func(c *compiler) {
		c.names = t
	}
}

type compiler struct {
	dialect Dialect
	names   Transform
	buf     strings.Builder
	params  []any
}

// Compile renders s for dialect d. It performs no I/O and is deterministic:
// identical inputs always produce identical output.
func Compile(s Statement, d Dialect, opts ...CompileOption) (CompiledQuery, error) {
	if err := d.validate(); err != nil {
		return CompiledQuery{}, err
	}
	c := &compiler{dialect: d}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if err := c.statement(s); err != nil {
		return CompiledQuery{}, err
	}
	return CompiledQuery{Text: c.buf.String(), Params: c.params}, nil
}

func (c *compiler) statement(s Statement) error {
	for _, f := range s.frags {
		if err := c.fragment(f); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) fragment(f Fragment) error {
	switch f.Kind() {
	case FragLiteral:
		c.buf.WriteString(f.text)
	case FragParam:
		return c.param(f.value)
	case FragIdent:
		return c.ident(f.parts)
	case FragList:
		for i, item := range f.items {
			if i > 0 {
				c.buf.WriteString(f.text)
			}
			if err := c.fragment(item); err != nil {
				return err
			}
		}
	case FragNested:
		if f.nested != nil {
			return c.statement(*f.nested)
		}
	case FragHelper:
		return c.helper(f)
	default:
		return statementError("unknown fragment kind %d", f.kind)
	}
	return nil
}

func (c *compiler) ident(parts []string) error {
	if len(parts) == 0 {
		return statementError("identifier requires at least one part")
	}
	for i, p := range parts {
		if p == "" {
			return statementError("identifier part %d is empty", i)
		}
		if i > 0 {
			c.buf.WriteByte('.')
		}
		c.buf.WriteString(c.dialect.EscapeIdent(c.names.queryName(p)))
	}
	return nil
}

func (c *compiler) param(v any) error {
	if _, ok := v.(defaultValue); ok {
		c.buf.WriteString(c.dialect.defaultValue())
		return nil
	}
	if _, ok := v.(driver.Valuer); !ok {
		if elems, ok := arrayElems(v); ok {
			return c.array(elems)
		}
	}
	nv, err := normalizeParam(v)
	if err != nil {
		return err
	}
	c.buf.WriteString(c.bind(nv))
	return nil
}

func (c *compiler) array(elems []any) error {
	if c.dialect.ArrayLiteral == nil {
		return statementError("dialect %q has no array literal; expand the values with In", c.dialect.Name)
	}
	marks := make([]string, len(elems))
	for i, e := range elems {
		nv, err := normalizeParam(e)
		if err != nil {
			return err
		}
		marks[i] = c.bind(nv)
	}
	c.buf.WriteString(c.dialect.ArrayLiteral(marks))
	return nil
}

func (c *compiler) bind(v any) string {
	c.params = append(c.params, v)
	return c.dialect.Placeholder(len(c.params))
}

func (c *compiler) helper(f Fragment) error {
	if f.err != nil {
		return f.err
	}
	switch f.helper {
	case HelperIn:
		c.buf.WriteByte('(')
		for i, item := range f.items {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.param(item.value); err != nil {
				return err
			}
		}
		c.buf.WriteByte(')')
	case HelperInsert:
		if err := c.columns(f.cols); err != nil {
			return err
		}
		c.buf.WriteString(" VALUES ")
		return c.groups(f.rows, f.cols)
	case HelperValues:
		return c.groups(f.rows, f.cols)
	case HelperUpdate:
		for i, col := range f.cols {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			if err := c.ident([]string{col}); err != nil {
				return err
			}
			c.buf.WriteString(" = ")
			v, ok := f.rows[0].Get(col)
			if !ok {
				return statementError("update record has no field %q", col)
			}
			if err := c.param(v); err != nil {
				return err
			}
		}
	default:
		return statementError("unknown helper kind %d", f.helper)
	}
	return nil
}

func (c *compiler) columns(cols []string) error {
	c.buf.WriteByte('(')
	for i, col := range cols {
		if i > 0 {
			c.buf.WriteString(", ")
		}
		if err := c.ident([]string{col}); err != nil {
			return err
		}
	}
	c.buf.WriteByte(')')
	return nil
}

func (c *compiler) groups(rows []Record, cols []string) error {
	for r, rec := range rows {
		if r > 0 {
			c.buf.WriteString(", ")
		}
		c.buf.WriteByte('(')
		for i, col := range cols {
			if i > 0 {
				c.buf.WriteString(", ")
			}
			v, ok := rec.Get(col)
			if !ok {
				return statementError("record %d has no field %q", r, col)
			}
			if err := c.param(v); err != nil {
				return err
			}
		}
		c.buf.WriteByte(')')
	}
	return nil
}

// normalizeParam reduces v to the primitive set: nil, bool, integers,
// floats, string, []byte and time.Time.
func normalizeParam(v any) (any, error) {
	if vr, ok := v.(driver.Valuer); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return nil, nil
		}
		dv, err := vr.Value()
		if err != nil {
			return nil, newError(KindStatement, "sqlkit: parameter valuer failed", err)
		}
		v = dv
	}

	switch v.(type) {
	case nil, bool, string, []byte, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeParam(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	case reflect.Struct:
		if rv.Type().ConvertibleTo(timeType) {
			return rv.Convert(timeType).Interface(), nil
		}
	}
	return nil, statementError("unsupported parameter type %T", v)
}
