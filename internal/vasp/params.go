// Package vasp configures and drives VASP calculations: preset loading,
// automatic k-point generation, the INCAR copilot rule set, and input
// file handling.
package vasp

import (
	"fmt"
	"sort"
	"strings"
)

// Parameters is a single tagged mapping from lower-case INCAR-style
// parameter names to values. Supported value kinds are int, float64,
// bool, string, []int, []float64 and map[string]interface{}. Typed
// getters return the zero value and false on a missing key or a kind
// mismatch.
type Parameters map[string]interface{}

// Set stores a value under a lower-cased key. A nil value removes the
// key, mirroring how override maps drop parameters.
func (p Parameters) Set(key string, value interface{}) {
	key = strings.ToLower(key)
	if value == nil {
		delete(p, key)
		return
	}
	p[key] = normalizeValue(value)
}

// Has reports whether the key is present.
func (p Parameters) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Delete removes a key if present.
func (p Parameters) Delete(key string) {
	delete(p, strings.ToLower(key))
}

// Get returns the raw value.
func (p Parameters) Get(key string) (interface{}, bool) {
	v, ok := p[strings.ToLower(key)]
	return v, ok
}

// Int returns an integer parameter. Whole-valued floats are accepted
// since YAML decoding does not distinguish 2 from 2.0 reliably.
func (p Parameters) Int(key string) (int, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	}
	return 0, false
}

// IntOr returns the parameter or def when absent.
func (p Parameters) IntOr(key string, def int) int {
	if v, ok := p.Int(key); ok {
		return v
	}
	return def
}

// Float returns a float parameter, accepting ints.
func (p Parameters) Float(key string) (float64, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// Bool returns a bool parameter.
func (p Parameters) Bool(key string) (bool, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// BoolOr returns the parameter or def when absent.
func (p Parameters) BoolOr(key string, def bool) bool {
	if v, ok := p.Bool(key); ok {
		return v
	}
	return def
}

// String returns a string parameter.
func (p Parameters) String(key string) (string, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Map returns a mapping parameter such as ldau_luj.
func (p Parameters) Map(key string) (map[string]interface{}, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

// Floats returns a numeric slice parameter.
func (p Parameters) Floats(key string) ([]float64, bool) {
	v, ok := p[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []float64:
		return t, true
	case []int:
		out := make([]float64, len(t))
		for i, n := range t {
			out[i] = float64(n)
		}
		return out, true
	case []interface{}:
		out := make([]float64, len(t))
		for i, e := range t {
			switch n := e.(type) {
			case float64:
				out[i] = n
			case int:
				out[i] = float64(n)
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

// Ints returns an integer slice parameter.
func (p Parameters) Ints(key string) ([]int, bool) {
	fs, ok := p.Floats(key)
	if !ok {
		return nil, false
	}
	out := make([]int, len(fs))
	for i, f := range fs {
		if f != float64(int(f)) {
			return nil, false
		}
		out[i] = int(f)
	}
	return out, true
}

// Merge overlays other on top of p, with nil values in other removing
// keys. p itself is modified.
func (p Parameters) Merge(other Parameters) {
	keys := make([]string, 0, len(other))
	for k := range other {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Set(k, other[k])
	}
}

// Copy returns a one-level-deep copy with nested maps and slices cloned.
func (p Parameters) Copy() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = copyValue(v)
	}
	return out
}

// Keys returns the parameter names in sorted order. All INCAR rendering
// iterates through this so output is deterministic.
func (p Parameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// numberValue coerces an int or float value. Nested maps such as
// elemental_magmoms and ldau_luj keep their original keys (element
// symbols are case-sensitive), so their values are read with this
// instead of the lower-casing Parameters getters.
func numberValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// normalizeValue rebuilds nested YAML values into string-keyed maps and
// plain slices without touching key spelling.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []int:
		return append([]int(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	default:
		return v
	}
}

// formatValue renders a parameter value in INCAR syntax.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case bool:
		if t {
			return ".TRUE."
		}
		return ".FALSE."
	case int:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	case string:
		return t
	case []int:
		parts := make([]string, len(t))
		for i, n := range t {
			parts[i] = fmt.Sprintf("%d", n)
		}
		return strings.Join(parts, " ")
	case []float64:
		parts := make([]string, len(t))
		for i, f := range t {
			parts[i] = fmt.Sprintf("%g", f)
		}
		return strings.Join(parts, " ")
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = formatValue(e)
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", t)
	}
}
