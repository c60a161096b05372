package bundle

import (
	"fmt"
	"strconv"
	"strings"
)

// keyDelimiter joins composite key components into a single comparable string.
const keyDelimiter = "|"

// SplitKeyPaths splits a comma-separated key path list into its components.
// Returns nil for an empty spec.
func SplitKeyPaths(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	parts := strings.Split(spec, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValueAt returns the value at a dotted path within a row, without array
// wildcards. The second return is false when any path segment is absent.
func ValueAt(row Row, path string) (any, bool) {
	var current any = map[string]any(row)
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ExtractPath returns every value reachable along a dotted path. A segment
// suffixed with "[]" flattens an array field before descending, so
// "Stages[].StoreItemId" yields the StoreItemId of every stage. Missing
// segments and nil values yield no results.
func ExtractPath(value any, path string) []any {
	if path == "" {
		if value == nil {
			return nil
		}
		return []any{value}
	}

	seg := path
	rest := ""
	if i := strings.Index(path, "."); i >= 0 {
		seg, rest = path[:i], path[i+1:]
	}

	flatten := strings.HasSuffix(seg, "[]")
	name := strings.TrimSuffix(seg, "[]")

	m, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	next, ok := m[name]
	if !ok || next == nil {
		return nil
	}

	if flatten {
		arr, ok := next.([]any)
		if !ok {
			return nil
		}
		var out []any
		for _, el := range arr {
			out = append(out, ExtractPath(el, rest)...)
		}
		return out
	}

	return ExtractPath(next, rest)
}

// FormatKeyValue renders one key component as its canonical string form.
// Integral floats print without a fractional part so that JSON-decoded
// numbers compare equal to their integer counterparts.
func FormatKeyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// CompositeKey joins key components into one delimiter-separated string.
func CompositeKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = FormatKeyValue(v)
	}
	return strings.Join(parts, keyDelimiter)
}

// RowKey extracts the composite primary-key string for a row. The second
// return is false when any key component is missing or nil.
func RowKey(row Row, keyPaths []string) (string, bool) {
	if len(keyPaths) == 0 {
		return "", false
	}
	values := make([]any, 0, len(keyPaths))
	for _, p := range keyPaths {
		v, ok := ValueAt(row, p)
		if !ok || v == nil {
			return "", false
		}
		values = append(values, v)
	}
	return CompositeKey(values), true
}
