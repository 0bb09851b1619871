package transform

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestBuiltinUppercase(t *testing.T) {
	reg := NewRegistry()
	fn, ok := reg.Lookup("uppercase")
	if !ok {
		t.Fatal("uppercase not registered")
	}
	if got := fn("ada", nil, "db.users"); got != "ADA" {
		t.Errorf("got %v, want ADA", got)
	}
}

func TestBuiltinLowercase(t *testing.T) {
	reg := NewRegistry()
	fn, _ := reg.Lookup("lowercase")
	if got := fn("ADA", nil, "db.users"); got != "ada" {
		t.Errorf("got %v, want ada", got)
	}
}

func TestBuiltinTrim(t *testing.T) {
	reg := NewRegistry()
	fn, _ := reg.Lookup("trim")
	if got := fn("  ada  ", nil, "db.users"); got != "ada" {
		t.Errorf("got %q, want %q", got, "ada")
	}
}

func TestBuiltinLength(t *testing.T) {
	reg := NewRegistry()
	fn, _ := reg.Lookup("length")
	if got := fn("ada", nil, "db.users"); got != 3 {
		t.Errorf("got %v, want 3", got)
	}
}

func TestBuiltinLengthOfNullIsZero(t *testing.T) {
	reg := NewRegistry()
	fn, _ := reg.Lookup("length")
	if got := fn(nil, nil, "db.users"); got != 0 {
		t.Errorf("length(NULL) = %v, want 0", got)
	}
}

func TestBuiltinJSONStripNulls(t *testing.T) {
	reg := NewRegistry()
	fn, ok := reg.Lookup("json_strip_nulls")
	if !ok {
		t.Fatal("json_strip_nulls not registered")
	}
	got := fn(`{"a":1,"b":null,"c":"keep"}`, nil, "db.events")
	s, ok := got.(string)
	if !ok || !gjson.Valid(s) {
		t.Fatalf("expected valid JSON string, got %v", got)
	}
	if gjson.Get(s, "b").Exists() {
		t.Errorf("expected key b to be stripped, got %s", s)
	}
	if gjson.Get(s, "a").Int() != 1 || gjson.Get(s, "c").String() != "keep" {
		t.Errorf("non-null keys should survive, got %s", s)
	}
}

func TestBuiltinJSONStripNullsPassesThroughNonJSON(t *testing.T) {
	reg := NewRegistry()
	fn, _ := reg.Lookup("json_strip_nulls")
	if got := fn("not json", nil, "db.events"); got != "not json" {
		t.Errorf("non-JSON input should pass through unchanged, got %v", got)
	}
	if got := fn(42, nil, "db.events"); got != 42 {
		t.Errorf("non-string input should pass through unchanged, got %v", got)
	}
}

func TestBuiltinsPassThroughNonString(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"uppercase", "lowercase", "trim"} {
		fn, _ := reg.Lookup(name)
		if got := fn(42, nil, "db.users"); got != 42 {
			t.Errorf("%s(42) = %v, want 42 (non-string passthrough)", name, got)
		}
		if got := fn(nil, nil, "db.users"); got != nil {
			t.Errorf("%s(NULL) = %v, want NULL passthrough", name, got)
		}
	}
}

func TestApplyStaticBeatsEverything(t *testing.T) {
	reg := NewRegistry()
	entries := []ColumnEntry{
		{SourceColumn: "name", Map: ColumnMap{Column: "name", Transform: "uppercase", Static: "fixed", HasStatic: true}},
	}
	row := Apply(entries, map[string]any{"name": "ada"}, "db.users", reg, nopLogger())
	v, _ := row.Get("name")
	if v != "fixed" {
		t.Errorf("static should win over transform, got %v", v)
	}
}

func TestApplyTransformResolution(t *testing.T) {
	reg := NewRegistry()
	entries := []ColumnEntry{
		{SourceColumn: "name", Map: ColumnMap{Column: "name", Transform: "uppercase"}},
	}
	row := Apply(entries, map[string]any{"name": "ada"}, "db.users", reg, nopLogger())
	v, _ := row.Get("name")
	if v != "ADA" {
		t.Errorf("got %v, want ADA", v)
	}
}

func TestApplyPassthroughWhenNoMapping(t *testing.T) {
	reg := NewRegistry()
	entries := []ColumnEntry{
		{SourceColumn: "email", Map: ColumnMap{Column: "email"}},
	}
	row := Apply(entries, map[string]any{"email": "a@b.com"}, "db.users", reg, nopLogger())
	v, _ := row.Get("email")
	if v != "a@b.com" {
		t.Errorf("got %v, want a@b.com", v)
	}
}

func TestApplyUnknownTransformDegradesToOriginal(t *testing.T) {
	reg := NewRegistry()
	entries := []ColumnEntry{
		{SourceColumn: "name", Map: ColumnMap{Column: "name", Transform: "does_not_exist"}},
	}
	row := Apply(entries, map[string]any{"name": "ada"}, "db.users", reg, nopLogger())
	v, _ := row.Get("name")
	if v != "ada" {
		t.Errorf("unknown transform should degrade to original value, got %v", v)
	}
}

func TestApplyPanickingTransformDegradesToOriginal(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", func(v any, row map[string]any, table string) any {
		panic("transform exploded")
	})
	entries := []ColumnEntry{
		{SourceColumn: "name", Map: ColumnMap{Column: "name", Transform: "boom"}},
	}
	row := Apply(entries, map[string]any{"name": "ada"}, "db.users", reg, nopLogger())
	v, _ := row.Get("name")
	if v != "ada" {
		t.Errorf("panicking transform should degrade to original value, got %v", v)
	}
}

// scenario S2: uppercase transform plus a static column, preserving
// declared column order in the resulting row.
func TestApplyScenarioS2(t *testing.T) {
	reg := NewRegistry()
	entries := []ColumnEntry{
		{SourceColumn: "id", Map: ColumnMap{Column: "id", PrimaryKey: true}},
		{SourceColumn: "name", Map: ColumnMap{Column: "name", Transform: "uppercase"}},
		{SourceColumn: "name", Map: ColumnMap{Column: "source_system", Static: "legacy", HasStatic: true}},
	}
	row := Apply(entries, map[string]any{"id": 7, "name": "ada"}, "db.users", reg, nopLogger())
	wantCols := []string{"id", "name", "source_system"}
	if len(row.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", row.Columns, wantCols)
	}
	for i, c := range wantCols {
		if row.Columns[i] != c {
			t.Errorf("column[%d] = %s, want %s", i, row.Columns[i], c)
		}
	}
	if v, _ := row.Get("name"); v != "ADA" {
		t.Errorf("name = %v, want ADA", v)
	}
	if v, _ := row.Get("source_system"); v != "legacy" {
		t.Errorf("source_system = %v, want legacy", v)
	}
}
