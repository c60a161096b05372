package bundle

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// ValidateRows checks a candidate row set against a template's field schema:
// required-ness, declared types, value constraints, and primary-key
// uniqueness. All findings are accumulated; nothing fails fast.
func ValidateRows(tpl Template, raw any) Result {
	rows, topIssue := normalizeRows(tpl.Name, raw)
	if topIssue != nil {
		return Result{OK: false, Issues: []Issue{*topIssue}}
	}

	var issues []Issue
	fieldsByName := make(map[string]Field, len(tpl.Fields))
	for _, f := range tpl.Fields {
		fieldsByName[f.Name] = f
	}

	seenKeys := make(map[string]bool)
	for i, row := range rows {
		rowRef := strconv.Itoa(i)
		keyComplete := false

		if len(tpl.PrimaryKey) > 0 {
			if key, ok := RowKey(row, tpl.PrimaryKey); ok {
				rowRef = key
				keyComplete = true
			} else {
				for _, comp := range tpl.PrimaryKey {
					if v, ok := ValueAt(row, comp); !ok || v == nil {
						issues = append(issues, Issue{
							Severity: SeverityError,
							Template: tpl.Name,
							RowRef:   rowRef,
							Path:     comp,
							Message:  fmt.Sprintf("missing primary key component %q", comp),
						})
					}
				}
			}
		}

		for _, f := range tpl.Fields {
			value, present := row[f.Name]
			if !present || value == nil {
				if f.Required {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Template: tpl.Name,
						RowRef:   rowRef,
						Path:     f.Name,
						Message:  fmt.Sprintf("missing required field %q", f.Name),
					})
				}
				continue
			}

			if !valueMatchesType(f.Type, value) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Template: tpl.Name,
					RowRef:   rowRef,
					Path:     f.Name,
					Message:  fmt.Sprintf("type mismatch: expected %s, got %s", f.Type, kindOf(value)),
				})
				continue
			}

			issues = append(issues, checkConstraints(tpl.Name, rowRef, f, value)...)
		}

		for name := range row {
			if _, known := fieldsByName[name]; !known {
				issues = append(issues, Issue{
					Severity: SeverityWarn,
					Template: tpl.Name,
					RowRef:   rowRef,
					Path:     name,
					Message:  fmt.Sprintf("unknown field %q is not declared in the schema", name),
				})
			}
		}

		if keyComplete {
			if seenKeys[rowRef] {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Template: tpl.Name,
					RowRef:   rowRef,
					Path:     strings.Join(tpl.PrimaryKey, ","),
					Message:  fmt.Sprintf("duplicate primary key %q", rowRef),
				})
			}
			seenKeys[rowRef] = true
		}
	}

	return Result{OK: !HasErrors(issues), Issues: issues}
}

// normalizeRows coerces the raw input into an ordered row slice. Any shape
// other than an ordered sequence of objects is a top-level error.
func normalizeRows(template string, raw any) ([]Row, *Issue) {
	shapeIssue := &Issue{
		Severity: SeverityError,
		Template: template,
		Message:  "rows must be an ordered list of row objects",
	}

	switch t := raw.(type) {
	case nil:
		return nil, shapeIssue
	case []Row:
		return t, nil
	case []any:
		rows := make([]Row, 0, len(t))
		for _, el := range t {
			m, ok := el.(map[string]any)
			if !ok {
				return nil, shapeIssue
			}
			rows = append(rows, m)
		}
		return rows, nil
	default:
		return nil, shapeIssue
	}
}

// valueMatchesType reports whether a decoded JSON value satisfies the
// declared field type.
func valueMatchesType(ft FieldType, v any) bool {
	switch ft {
	case FieldString:
		_, ok := v.(string)
		return ok
	case FieldInt:
		n, ok := asFloat(v)
		return ok && n == float64(int64(n))
	case FieldFloat:
		_, ok := asFloat(v)
		return ok
	case FieldBool:
		_, ok := v.(bool)
		return ok
	case FieldJSON:
		switch v.(type) {
		case map[string]any, []any:
			return true
		}
		return false
	case FieldList:
		_, ok := v.([]any)
		return ok
	case FieldRef:
		// Foreign-key values are scalar key components.
		switch v.(type) {
		case string:
			return true
		}
		_, ok := asFloat(v)
		return ok
	default:
		return false
	}
}

// checkConstraints evaluates the field's constraints against a type-correct
// value. An invalid regex pattern is itself a warning, not a hard failure.
func checkConstraints(template, rowRef string, f Field, value any) []Issue {
	c := f.Constraints
	if c == nil {
		return nil
	}

	var issues []Issue

	if len(c.Enum) > 0 && !enumContains(c.Enum, value) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Template: template,
			RowRef:   rowRef,
			Path:     f.Name,
			Message:  fmt.Sprintf("value %v is not a member of the enum constraint", value),
		})
	}

	if n, ok := asFloat(value); ok {
		if c.Min != nil && n < *c.Min {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Template: template,
				RowRef:   rowRef,
				Path:     f.Name,
				Message:  fmt.Sprintf("value %v is below the minimum %v", value, *c.Min),
			})
		}
		if c.Max != nil && n > *c.Max {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Template: template,
				RowRef:   rowRef,
				Path:     f.Name,
				Message:  fmt.Sprintf("value %v is above the maximum %v", value, *c.Max),
			})
		}
	}

	if s, ok := value.(string); ok {
		if c.MaxLength != nil && len(s) > *c.MaxLength {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Template: template,
				RowRef:   rowRef,
				Path:     f.Name,
				Message:  fmt.Sprintf("string exceeds maximum length %d", *c.MaxLength),
			})
		}
		if c.Regex != "" {
			re, err := regexp.Compile(c.Regex)
			if err != nil {
				issues = append(issues, Issue{
					Severity: SeverityWarn,
					Template: template,
					RowRef:   rowRef,
					Path:     f.Name,
					Message:  fmt.Sprintf("invalid regex constraint %q ignored: %v", c.Regex, err),
				})
			} else if !re.MatchString(s) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Template: template,
					RowRef:   rowRef,
					Path:     f.Name,
					Message:  fmt.Sprintf("value %q does not match pattern %q", s, c.Regex),
				})
			}
		}
	}

	return issues
}

// enumContains checks enum membership by deep equality, treating numerically
// equal values as members regardless of their decoded Go type.
func enumContains(members []any, value any) bool {
	for _, m := range members {
		if reflect.DeepEqual(m, value) {
			return true
		}
		mf, mok := asFloat(m)
		vf, vok := asFloat(value)
		if mok && vok && mf == vf {
			return true
		}
	}
	return false
}

// asFloat widens any numeric value to float64.
func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

// kindOf names the JSON kind of a decoded value for error messages.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32, int, int8, int16, int32, int64, uint, uint64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return reflect.TypeOf(v).String()
	}
}
