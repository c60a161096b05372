// Package bundle implements schema-driven validation and deterministic
// compilation of tabular configuration data: typed row validation against a
// template's field schema, cross-table referential-integrity checks, and
// content-addressed artifact compilation.
package bundle

// Row is a single configuration row as decoded from JSON.
type Row = map[string]any

// FieldType enumerates the supported field value types.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldFloat  FieldType = "float"
	FieldBool   FieldType = "bool"
	FieldJSON   FieldType = "json"
	FieldList   FieldType = "list"
	FieldRef    FieldType = "ref"
)

// SectionType controls how a template's rows are rendered in the compiled
// artifact: "array" emits the row list, "object" emits the first row as a
// single object.
type SectionType string

const (
	SectionArray  SectionType = "array"
	SectionObject SectionType = "object"
)

// Constraints holds the optional value constraints of a field.
type Constraints struct {
	// Enum restricts the value to one of the listed members (deep equality).
	Enum []any `json:"enum,omitempty"`

	// Min and Max bound numeric values (inclusive).
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// MaxLength bounds the length of string values.
	MaxLength *int `json:"maxLength,omitempty"`

	// Regex is a pattern string values must match. An invalid pattern is
	// reported as a warning and otherwise ignored.
	Regex string `json:"regex,omitempty"`
}

// Field is one column definition of a template.
type Field struct {
	Name         string       `json:"name"`
	Type         FieldType    `json:"type"`
	Required     bool         `json:"required,omitempty"`
	DefaultValue any          `json:"defaultValue,omitempty"`
	Constraints  *Constraints `json:"constraints,omitempty"`

	// RefTemplate and RefPath apply to ref-typed fields only. RefPath
	// defaults to the referenced template's primary key.
	RefTemplate string `json:"refTemplate,omitempty"`
	RefPath     string `json:"refPath,omitempty"`
}

// Template is the typed schema of one configuration table.
type Template struct {
	Name        string      `json:"name"`
	SectionType SectionType `json:"sectionType"`
	PrimaryKey  []string    `json:"primaryKey,omitempty"`
	Fields      []Field     `json:"fields"`
}

// Severity classifies a validation issue. Error-severity issues block
// freezing and compilation; warnings are reported but do not block.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Relation is a cross-table reference check. Explicitly declared relations
// and implicit relations derived from ref-typed fields share this one shape
// so the relation validator has a single code path.
type Relation struct {
	FromTemplate string   `json:"fromTemplate"`
	FromPath     string   `json:"fromPath"`
	ToTemplate   string   `json:"toTemplate"`
	ToPath       string   `json:"toPath,omitempty"`
	Mode         Severity `json:"mode,omitempty"`

	// Implicit marks relations derived from ref fields at compile time.
	Implicit bool `json:"implicit,omitempty"`
}

// Issue is a single validation finding tied back to a template row.
type Issue struct {
	Severity Severity `json:"severity"`
	Template string   `json:"template"`

	// RowRef identifies the offending row: the composite primary-key value
	// when available, otherwise the row's positional index.
	RowRef  string `json:"rowRef,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Result is the outcome of a validation pass. Issues are reported in order;
// validation never fails fast so operators can fix everything in one pass.
type Result struct {
	OK     bool    `json:"ok"`
	Issues []Issue `json:"issues"`
}

// HasErrors reports whether any issue carries error severity.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}
