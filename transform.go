package sqlkit

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// Transform is a pair of identifier-casing functions. ToQueryName is applied
// to identifiers at compile time, ToResultName to result-row keys at fetch
// time. A nil function is the identity.
//
// The pair is not required to be inverse; no round-trip guarantee is made.
type Transform struct {
	ToQueryName  func(string) string
	ToResultName func(string) string
}

var (
	// Camel maps camelCase code names to snake_case columns and back.
	Camel = Transform{ToQueryName: inflect.Underscore, ToResultName: inflect.CamelizeDownFirst}

	// Pascal maps PascalCase code names to snake_case columns and back.
	Pascal = Transform{ToQueryName: inflect.Underscore, ToResultName: inflect.Camelize}

	// Kebab maps snake_case columns to kebab-case keys and back.
	Kebab = Transform{ToQueryName: inflect.Underscore, ToResultName: inflect.Dasherize}
)

func (t Transform) queryName(s string) string {
	if t.ToQueryName == nil {
		return s
	}
	return t.ToQueryName(s)
}

func (t Transform) resultName(s string) string {
	if t.ToResultName == nil || s == "" {
		return s
	}
	return t.ToResultName(s)
}

func (t Transform) hasResult() bool { return t.ToResultName != nil }

// resultColumns maps every column through ToResultName, preserving order.
func (t Transform) resultColumns(cols []string) []string {
	if !t.hasResult() {
		return cols
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = t.resultName(c)
	}
	return out
}

// ParseCase resolves a configured casing name to a single direction
// function. toQuery selects the compile-time direction.
//
// Recognized names: "", "none", "snake", "camel", "pascal", "kebab".
func ParseCase(name string, toQuery bool) (func(string) string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "snake":
		return inflect.Underscore, nil
	case "camel":
		if toQuery {
			return Camel.ToQueryName, nil
		}
		return Camel.ToResultName, nil
	case "pascal":
		if toQuery {
			return Pascal.ToQueryName, nil
		}
		return Pascal.ToResultName, nil
	case "kebab":
		if toQuery {
			return Kebab.ToQueryName, nil
		}
		return Kebab.ToResultName, nil
	default:
		return nil, configError("unknown name transform %q (want none, snake, camel, pascal or kebab)", name)
	}
}
