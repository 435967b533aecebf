package sqlkit

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered field-to-value mapping used by the insert, update
// and values helpers.
type Record []Field

// Rec builds a Record from alternating names and values. It panics on an odd
// argument count or a non-string name.
func Rec(pairs ...any) Record {
	if len(pairs)%2 != 0 {
		panic("sqlkit.Rec: odd number of arguments")
	}
	r := make(Record, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("sqlkit.Rec: name at position %d is %T, want string", i, pairs[i]))
		}
		r = append(r, Field{Name: name, Value: pairs[i+1]})
	}
	return r
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

var timeType = reflect.TypeOf(time.Time{})

// toRecords accepts a Record, a map[string]any, a struct (or pointer to
// one), or a slice of any of those.
func toRecords(v any) ([]Record, error) {
	switch v := v.(type) {
	case nil:
		return nil, statementError("helper record is nil")
	case Record:
		return []Record{v}, nil
	case []Field:
		return []Record{Record(v)}, nil
	case []Record:
		return v, nil
	case map[string]any:
		return []Record{mapRecord(v)}, nil
	case []map[string]any:
		out := make([]Record, len(v))
		for i, m := range v {
			out[i] = mapRecord(m)
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, statementError("helper record is a nil %s", rv.Type())
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		r, err := structRecord(rv)
		if err != nil {
			return nil, err
		}
		return []Record{r}, nil
	case reflect.Slice, reflect.Array:
		out := make([]Record, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			rs, err := toRecords(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, rs...)
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, statementError("helper record map key must be a string, got %s", rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return []Record{mapRecord(m)}, nil
	default:
		return nil, statementError("unsupported helper record type %T", v)
	}
}

// mapRecord orders map keys lexically so compilation stays deterministic.
func mapRecord(m map[string]any) Record {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	r := make(Record, len(names))
	for i, n := range names {
		r[i] = Field{Name: n, Value: m[n]}
	}
	return r
}

func structRecord(rv reflect.Value) (Record, error) {
	var r Record
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		embeddedStruct := sf.Anonymous && indirectType(sf.Type).Kind() == reflect.Struct && indirectType(sf.Type) != timeType
		// Unexported embedded structs still promote their exported fields.
		if !sf.IsExported() && !embeddedStruct {
			continue
		}
		tag := sf.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)
		if embeddedStruct && name == "" {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			embedded, err := structRecord(fv)
			if err != nil {
				return nil, err
			}
			r = append(r, embedded...)
			continue
		}
		if name == "" {
			name = sf.Name
		}
		r = append(r, Field{Name: name, Value: fv.Interface()})
	}
	return r, nil
}

func indirectType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
