package sqlkit

import (
	"reflect"
	"testing"
)

func TestRec_BuildsOrderedRecord(t *testing.T) {
	t.Parallel()

	r := Rec("b", 2, "a", 1)
	if got := r.Names(); !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("names=%v, want [b a]", got)
	}
	if v, ok := r.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a)=%v,%v, want 1,true", v, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("Get(missing) should report false")
	}
}

func TestRec_PanicsOnMisuse(t *testing.T) {
	t.Parallel()

	for name, args := range map[string][]any{
		"odd":        {"a"},
		"non-string": {1, 2},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s: expected panic", name)
				}
			}()
			Rec(args...)
		}()
	}
}

type embeddedPtr struct {
	*account
	Extra int `db:"extra,omitempty"`
}

func TestToRecords_Shapes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		in    any
		names [][]string
	}{
		{"record", Rec("x", 1), [][]string{{"x"}}},
		{"fields", []Field{{Name: "y", Value: 2}}, [][]string{{"y"}}},
		{"map", map[string]any{"b": 1, "a": 2}, [][]string{{"a", "b"}}},
		{"typed map", map[string]int{"d": 1, "c": 2}, [][]string{{"c", "d"}}},
		{"struct pointer", &account{ID: 1}, [][]string{{"id", "user_name", "CreatedAt"}}},
		{"nil embedded pointer", embeddedPtr{Extra: 1}, [][]string{{"extra"}}},
		{"embedded pointer", embeddedPtr{account: &account{}}, [][]string{{"id", "user_name", "CreatedAt", "extra"}}},
		{"slice of maps", []map[string]any{{"a": 1}, {"b": 2}}, [][]string{{"a"}, {"b"}}},
		{"array of records", [2]Record{Rec("a", 1), Rec("b", 2)}, [][]string{{"a"}, {"b"}}},
	}
	for _, tc := range cases {
		recs, err := toRecords(tc.in)
		if err != nil {
			t.Fatalf("%s: toRecords() error = %v", tc.name, err)
		}
		got := make([][]string, len(recs))
		for i, r := range recs {
			got[i] = r.Names()
		}
		if !reflect.DeepEqual(got, tc.names) {
			t.Fatalf("%s: names=%v, want %v", tc.name, got, tc.names)
		}
	}
}

func TestToRecords_RejectsNilPointer(t *testing.T) {
	t.Parallel()

	var a *account
	_, err := toRecords(a)
	assertKind(t, err, KindStatement)
}
