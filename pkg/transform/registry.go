package transform

import (
	"fmt"
	"plugin"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Func is a user-supplied or built-in transform. It receives the raw
// source value, the whole source row (for cross-column computation), and
// the qualified source table ("schema.table") the row came from.
type Func func(value any, row map[string]any, qualifiedSourceTable string) any

// Registry holds every transform function reachable by name. It is
// populated once at startup (built-ins plus an optional external module)
// and is read-only afterwards, so concurrent workers may call Lookup
// without additional synchronization beyond the embedded RWMutex guarding
// the lookup itself. The registry is never a package-level global: the
// supervisor constructs one and passes it to every target worker.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry pre-populated with the required built-in
// transforms: uppercase, lowercase, trim, length, json_strip_nulls.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("uppercase", builtinUppercase)
	r.Register("lowercase", builtinLowercase)
	r.Register("trim", builtinTrim)
	r.Register("length", builtinLength)
	r.Register("json_strip_nulls", builtinJSONStripNulls)
	return r
}

// Register adds or replaces a named transform function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Lookup returns the function registered under name, if any.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// LoadPlugin loads a compiled Go plugin (.so) exporting a
//
//	func Transforms() map[string]func(any, map[string]any, string) any
//
// and merges its functions into the registry. This is the Go-native
// substitute for the original's dynamic Python module import: compiled
// languages have no equivalent to importlib, so external transforms are
// shipped as plugins instead of source files.
func (r *Registry) LoadPlugin(path string) error {
	if !strings.HasSuffix(path, ".so") {
		return fmt.Errorf("transform: plugin path must end in .so: %s", path)
	}
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("transform: failed to load plugin %s: %w", path, err)
	}
	sym, err := p.Lookup("Transforms")
	if err != nil {
		return fmt.Errorf("transform: plugin %s does not export Transforms: %w", path, err)
	}
	fn, ok := sym.(func() map[string]func(any, map[string]any, string) any)
	if !ok {
		return fmt.Errorf("transform: plugin %s Transforms has the wrong signature", path)
	}
	for name, f := range fn() {
		r.Register(name, Func(f))
	}
	return nil
}

func builtinUppercase(v any, _ map[string]any, _ string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.ToUpper(s)
}

func builtinLowercase(v any, _ map[string]any, _ string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.ToLower(s)
}

func builtinTrim(v any, _ map[string]any, _ string) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.TrimSpace(s)
}

func builtinLength(v any, _ map[string]any, _ string) any {
	if v == nil {
		return 0
	}
	if s, ok := v.(string); ok {
		return len(s)
	}
	return len(fmt.Sprint(v))
}

// builtinJSONStripNulls drops every top-level key whose value is JSON
// null, so a source column that emits sparse "field": null noise doesn't
// carry it into the target's JSON column. Non-JSON or non-object values
// pass through unchanged.
func builtinJSONStripNulls(v any, _ map[string]any, _ string) any {
	s, ok := v.(string)
	if !ok || !gjson.Valid(s) {
		return v
	}
	result := s
	gjson.Parse(s).ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Null {
			if stripped, err := sjson.Delete(result, key.String()); err == nil {
				result = stripped
			}
		}
		return true
	})
	return result
}
