package schema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/playforge/liveops/pkg/bundle"
)

// jsonScan decodes a TEXT/BLOB column into out.
func jsonScan(value any, out any) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported column type %T for JSON value", value)
	}
	return json.Unmarshal(bytes, out)
}

// jsonValue encodes v as a JSON string for storage.
func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

func (s *JSONStringSlice) Scan(value any) error { return jsonScan(value, s) }

func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return jsonValue(s)
}

// JSONStringMap is a custom GORM type for map[string]string stored as JSON.
type JSONStringMap map[string]string

func (m *JSONStringMap) Scan(value any) error { return jsonScan(value, m) }

func (m JSONStringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return jsonValue(m)
}

// JSONAny is a custom GORM type for map[string]any stored as JSON.
type JSONAny map[string]any

func (m *JSONAny) Scan(value any) error { return jsonScan(value, m) }

func (m JSONAny) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return jsonValue(m)
}

// JSONAnyList is a custom GORM type for []any stored as JSON.
type JSONAnyList []any

func (l *JSONAnyList) Scan(value any) error { return jsonScan(value, l) }

func (l JSONAnyList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return jsonValue(l)
}

// JSONValue is a custom GORM type for an arbitrary JSON value.
type JSONValue struct {
	V any
}

func (j *JSONValue) Scan(value any) error { return jsonScan(value, &j.V) }

func (j JSONValue) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	return jsonValue(j.V)
}

// MarshalJSON emits the wrapped value directly.
func (j JSONValue) MarshalJSON() ([]byte, error) { return json.Marshal(j.V) }

// UnmarshalJSON stores the raw value.
func (j *JSONValue) UnmarshalJSON(data []byte) error { return json.Unmarshal(data, &j.V) }

// JSONFieldList is a custom GORM type for []bundle.Field stored as JSON.
type JSONFieldList []bundle.Field

func (l *JSONFieldList) Scan(value any) error { return jsonScan(value, l) }

func (l JSONFieldList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return jsonValue(l)
}

// JSONConstraints is a custom GORM type for a field's constraints.
type JSONConstraints struct {
	C *bundle.Constraints
}

func (c *JSONConstraints) Scan(value any) error {
	if value == nil {
		c.C = nil
		return nil
	}
	c.C = &bundle.Constraints{}
	return jsonScan(value, c.C)
}

func (c JSONConstraints) Value() (driver.Value, error) {
	if c.C == nil {
		return nil, nil
	}
	return jsonValue(c.C)
}

// JSONRows is a custom GORM type for a row set stored as JSON.
type JSONRows []map[string]any

func (r *JSONRows) Scan(value any) error { return jsonScan(value, r) }

func (r JSONRows) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return jsonValue(r)
}

// Rows converts the stored representation to bundle rows.
func (r JSONRows) Rows() []bundle.Row {
	rows := make([]bundle.Row, len(r))
	for i, m := range r {
		rows[i] = bundle.Row(m)
	}
	return rows
}
