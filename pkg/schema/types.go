package schema

import (
	"fmt"

	"github.com/playforge/liveops/pkg/bundle"
)

// ConstraintsInput is the wire shape of a field's constraints. Enum accepts
// either an inline value list or the name of an enum declared on the same
// revision; named enums are resolved to their values at creation time.
type ConstraintsInput struct {
	Enum      any      `json:"enum,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Regex     string   `json:"regex,omitempty"`
}

// FieldInput is the wire shape of one template or structure field.
type FieldInput struct {
	Name         string            `json:"name"`
	Type         bundle.FieldType  `json:"type"`
	Required     bool              `json:"required,omitempty"`
	DefaultValue any               `json:"defaultValue,omitempty"`
	Constraints  *ConstraintsInput `json:"constraints,omitempty"`
	RefTemplate  string            `json:"refTemplate,omitempty"`
	RefPath      string            `json:"refPath,omitempty"`
}

// EnumInput declares a named value set.
type EnumInput struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// StructureInput declares a reusable field group.
type StructureInput struct {
	Name   string       `json:"name"`
	Fields []FieldInput `json:"fields"`
}

// TemplateInput is the wire shape of one configuration table.
type TemplateInput struct {
	Name        string             `json:"name"`
	SectionType bundle.SectionType `json:"sectionType,omitempty"`
	PrimaryKey  []string           `json:"primaryKey,omitempty"`
	Fields      []FieldInput       `json:"fields"`
}

// RelationInput declares an explicit cross-table dependency.
type RelationInput struct {
	FromTemplate string          `json:"fromTemplate"`
	FromPath     string          `json:"fromPath"`
	ToTemplate   string          `json:"toTemplate"`
	ToPath       string          `json:"toPath,omitempty"`
	Mode         bundle.Severity `json:"mode,omitempty"`
}

// RevisionInput is the create/overwrite payload for a schema revision.
type RevisionInput struct {
	GameID     string           `json:"gameId"`
	Name       string           `json:"name"`
	Enums      []EnumInput      `json:"enums,omitempty"`
	Structures []StructureInput `json:"structures,omitempty"`
	Tables     []TemplateInput  `json:"tables"`
	Relations  []RelationInput  `json:"relations,omitempty"`

	// ForceDeleteChannels destroys bound channels on overwrite instead of
	// failing with a conflict. Equivalent to the ?force=true query flag.
	ForceDeleteChannels bool `json:"forceDeleteChannels,omitempty"`
}

// enumIndex maps the input's enum names to their value lists.
func (in *RevisionInput) enumIndex() map[string][]any {
	idx := make(map[string][]any, len(in.Enums))
	for _, e := range in.Enums {
		idx[e.Name] = e.Values
	}
	return idx
}

// resolveConstraints converts input constraints to the stored form,
// inlining named enums. A string enum constraint must name a declared enum.
func resolveConstraints(in *ConstraintsInput, enums map[string][]any) (*bundle.Constraints, error) {
	if in == nil {
		return nil, nil
	}
	out := &bundle.Constraints{
		Min:       in.Min,
		Max:       in.Max,
		MaxLength: in.MaxLength,
		Regex:     in.Regex,
	}
	switch e := in.Enum.(type) {
	case nil:
	case []any:
		out.Enum = e
	case string:
		values, ok := enums[e]
		if !ok {
			return nil, invalidRevision("UNKNOWN_ENUM", "constraint references undeclared enum %q", e)
		}
		out.Enum = values
	default:
		return nil, invalidRevision("INVALID_ENUM", "enum constraint must be a value list or an enum name, got %T", in.Enum)
	}
	return out, nil
}

// resolveFields converts input fields to the stored form.
func resolveFields(inputs []FieldInput, enums map[string][]any) ([]bundle.Field, error) {
	fields := make([]bundle.Field, 0, len(inputs))
	for _, f := range inputs {
		if f.Name == "" {
			return nil, invalidRevision("MISSING_FIELD_NAME", "field with empty name")
		}
		constraints, err := resolveConstraints(f.Constraints, enums)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		ft := f.Type
		if ft == "" {
			ft = bundle.FieldString
		}
		fields = append(fields, bundle.Field{
			Name:         f.Name,
			Type:         ft,
			Required:     f.Required,
			DefaultValue: f.DefaultValue,
			Constraints:  constraints,
			RefTemplate:  f.RefTemplate,
			RefPath:      f.RefPath,
		})
	}
	return fields, nil
}
