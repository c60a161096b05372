// Package schema implements the schema registry: immutable schema revisions
// owning enums, reusable structures, table templates with typed fields, and
// cross-table relations. Revisions are never edited in place; "overwrite"
// destructively replaces all owned children while preserving identity.
package schema

import (
	"time"

	"github.com/playforge/liveops/pkg/bundle"
)

// SchemaRevisionRecord is the root row of one schema revision.
type SchemaRevisionRecord struct {
	ID        string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	GameID    string    `gorm:"column:game_id;index:idx_schema_game;not null"`
	Name      string    `gorm:"column:name;not null"`
	CreatedBy string    `gorm:"column:created_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (SchemaRevisionRecord) TableName() string { return "schema_revisions" }

// EnumRecord is a named value set owned by a revision. Field constraints may
// reference an enum by name; the values are inlined at revision creation.
type EnumRecord struct {
	ID         string      `gorm:"primaryKey;column:id;type:varchar(36)"`
	RevisionID string      `gorm:"column:revision_id;index:idx_enum_revision;not null"`
	Name       string      `gorm:"column:name;not null"`
	Values     JSONAnyList `gorm:"column:values;type:text"`
	Position   int         `gorm:"column:position"`
}

// TableName returns the GORM table name.
func (EnumRecord) TableName() string { return "schema_enums" }

// StructureRecord is a reusable field group owned by a revision.
type StructureRecord struct {
	ID         string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	RevisionID string        `gorm:"column:revision_id;index:idx_struct_revision;not null"`
	Name       string        `gorm:"column:name;not null"`
	Fields     JSONFieldList `gorm:"column:fields;type:text"`
	Position   int           `gorm:"column:position"`
}

// TableName returns the GORM table name.
func (StructureRecord) TableName() string { return "schema_structures" }

// TemplateRecord is one configuration table schema owned by a revision.
type TemplateRecord struct {
	ID          string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	RevisionID  string          `gorm:"column:revision_id;uniqueIndex:idx_template_rev_name,priority:1;not null"`
	Name        string          `gorm:"column:name;uniqueIndex:idx_template_rev_name,priority:2;not null"`
	SectionType string          `gorm:"column:section_type;default:array;not null"`
	PrimaryKey  JSONStringSlice `gorm:"column:primary_key;type:text"`
	Position    int             `gorm:"column:position"`
}

// TableName returns the GORM table name.
func (TemplateRecord) TableName() string { return "schema_templates" }

// FieldRecord is one ordered column definition of a template.
type FieldRecord struct {
	ID           string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	TemplateID   string          `gorm:"column:template_id;index:idx_field_template;not null"`
	Name         string          `gorm:"column:name;not null"`
	Type         string          `gorm:"column:type;not null"`
	Required     bool            `gorm:"column:required"`
	DefaultValue JSONValue       `gorm:"column:default_value;type:text"`
	Constraints  JSONConstraints `gorm:"column:constraints;type:text"`
	RefTemplate  string          `gorm:"column:ref_template"`
	RefPath      string          `gorm:"column:ref_path"`
	Position     int             `gorm:"column:position"`
}

// TableName returns the GORM table name.
func (FieldRecord) TableName() string { return "schema_fields" }

// RelationRecord is an explicitly declared cross-table dependency.
type RelationRecord struct {
	ID           string `gorm:"primaryKey;column:id;type:varchar(36)"`
	RevisionID   string `gorm:"column:revision_id;index:idx_relation_revision;not null"`
	FromTemplate string `gorm:"column:from_template;not null"`
	FromPath     string `gorm:"column:from_path;not null"`
	ToTemplate   string `gorm:"column:to_template;not null"`
	ToPath       string `gorm:"column:to_path"`
	Mode         string `gorm:"column:mode;default:error;not null"`
	Position     int    `gorm:"column:position"`
}

// TableName returns the GORM table name.
func (RelationRecord) TableName() string { return "schema_relations" }

// Enum is the assembled API shape of an enum.
type Enum struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Structure is the assembled API shape of a reusable structure.
type Structure struct {
	Name   string         `json:"name"`
	Fields []bundle.Field `json:"fields"`
}

// SchemaRevision is the fully assembled revision aggregate.
type SchemaRevision struct {
	ID         string            `json:"id"`
	GameID     string            `json:"gameId"`
	Name       string            `json:"name"`
	CreatedBy  string            `json:"createdBy"`
	CreatedAt  time.Time         `json:"createdAt"`
	Enums      []Enum            `json:"enums,omitempty"`
	Structures []Structure       `json:"structures,omitempty"`
	Templates  []bundle.Template `json:"tables"`
	Relations  []bundle.Relation `json:"relations,omitempty"`
}

// Template returns the named template, or false if the revision has none.
func (r *SchemaRevision) Template(name string) (bundle.Template, bool) {
	for _, t := range r.Templates {
		if t.Name == name {
			return t, true
		}
	}
	return bundle.Template{}, false
}

// TemplateMap returns the revision's templates keyed by name.
func (r *SchemaRevision) TemplateMap() map[string]bundle.Template {
	m := make(map[string]bundle.Template, len(r.Templates))
	for _, t := range r.Templates {
		m[t.Name] = t
	}
	return m
}

// PrimaryKeys returns each template's primary-key spec keyed by table name.
func (r *SchemaRevision) PrimaryKeys() map[string][]string {
	m := make(map[string][]string, len(r.Templates))
	for _, t := range r.Templates {
		m[t.Name] = t.PrimaryKey
	}
	return m
}

// SectionTypes returns each template's section type keyed by table name.
func (r *SchemaRevision) SectionTypes() map[string]bundle.SectionType {
	m := make(map[string]bundle.SectionType, len(r.Templates))
	for _, t := range r.Templates {
		m[t.Name] = t.SectionType
	}
	return m
}

// AllRelations returns the explicit relations plus the implicit relations
// derived from ref-typed fields, ready for compile-time validation.
func (r *SchemaRevision) AllRelations() []bundle.Relation {
	rels := make([]bundle.Relation, 0, len(r.Relations))
	rels = append(rels, r.Relations...)
	rels = append(rels, bundle.DeriveImplicitRelations(r.Templates)...)
	return rels
}
