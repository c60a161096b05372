package schema

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playforge/liveops/pkg/bundle"
)

// ChannelGuard reports and tears down channels bound to a schema revision.
// The channel package implements it; the server wires the two together to
// keep the dependency one-way.
type ChannelGuard interface {
	// BoundChannels lists the channels currently bound to the revision.
	BoundChannels(revisionID string) ([]ChannelRef, error)
	// DestroyChannels removes every channel bound to the revision along
	// with all of its drafts, versions, releases, and deployments.
	DestroyChannels(revisionID string) error
}

// Store provides CRUD operations for schema revisions.
type Store struct {
	db    *gorm.DB
	guard ChannelGuard
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SetChannelGuard installs the channel guard used to protect destructive
// operations. Without a guard, overwrite and delete skip the binding check.
func (s *Store) SetChannelGuard(guard ChannelGuard) {
	s.guard = guard
}

// AutoMigrate creates or updates the schema registry tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{
		&SchemaRevisionRecord{},
		&EnumRecord{},
		&StructureRecord{},
		&TemplateRecord{},
		&FieldRecord{},
		&RelationRecord{},
	} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate schema registry: %w", err)
		}
	}
	return nil
}

// revisionChildren holds the owned records built from a validated input,
// ready to insert inside a transaction.
type revisionChildren struct {
	enums      []EnumRecord
	structures []StructureRecord
	templates  []TemplateRecord
	fields     []FieldRecord
	relations  []RelationRecord
}

// buildChildren validates the input and materializes the owned records.
// Named enum constraints are resolved to inline value lists here, so the
// stored templates are self-contained.
func buildChildren(revisionID string, in *RevisionInput) (*revisionChildren, error) {
	if len(in.Tables) == 0 {
		return nil, invalidRevision("MISSING_TABLES", "a schema revision needs at least one table")
	}

	enums := in.enumIndex()
	tableNames := make(map[string]bool, len(in.Tables))
	for _, t := range in.Tables {
		if t.Name == "" {
			return nil, invalidRevision("MISSING_TABLE_NAME", "table with empty name")
		}
		if tableNames[t.Name] {
			return nil, invalidRevision("DUPLICATE_TABLE", "duplicate table %q", t.Name)
		}
		tableNames[t.Name] = true
	}

	children := &revisionChildren{}

	for i, e := range in.Enums {
		children.enums = append(children.enums, EnumRecord{
			ID:         uuid.New().String(),
			RevisionID: revisionID,
			Name:       e.Name,
			Values:     JSONAnyList(e.Values),
			Position:   i,
		})
	}

	for i, st := range in.Structures {
		fields, err := resolveFields(st.Fields, enums)
		if err != nil {
			return nil, fmt.Errorf("structure %q: %w", st.Name, err)
		}
		children.structures = append(children.structures, StructureRecord{
			ID:         uuid.New().String(),
			RevisionID: revisionID,
			Name:       st.Name,
			Fields:     JSONFieldList(fields),
			Position:   i,
		})
	}

	for i, t := range in.Tables {
		sectionType := t.SectionType
		if sectionType == "" {
			sectionType = "array"
		}
		templateID := uuid.New().String()
		children.templates = append(children.templates, TemplateRecord{
			ID:          templateID,
			RevisionID:  revisionID,
			Name:        t.Name,
			SectionType: string(sectionType),
			PrimaryKey:  JSONStringSlice(t.PrimaryKey),
			Position:    i,
		})

		fields, err := resolveFields(t.Fields, enums)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		for j, f := range fields {
			if f.Type == bundle.FieldRef {
				if f.RefTemplate == "" {
					return nil, invalidRevision("MISSING_REF_TARGET", "table %q field %q: ref field needs a refTemplate", t.Name, f.Name)
				}
				if !tableNames[f.RefTemplate] {
					return nil, invalidRevision("UNKNOWN_REF_TARGET", "table %q field %q references unknown table %q", t.Name, f.Name, f.RefTemplate)
				}
			}
			children.fields = append(children.fields, FieldRecord{
				ID:           uuid.New().String(),
				TemplateID:   templateID,
				Name:         f.Name,
				Type:         string(f.Type),
				Required:     f.Required,
				DefaultValue: JSONValue{V: f.DefaultValue},
				Constraints:  JSONConstraints{C: f.Constraints},
				RefTemplate:  f.RefTemplate,
				RefPath:      f.RefPath,
				Position:     j,
			})
		}
	}

	for i, rel := range in.Relations {
		if !tableNames[rel.FromTemplate] {
			return nil, invalidRevision("UNKNOWN_REF_TARGET", "relation %d: unknown source table %q", i, rel.FromTemplate)
		}
		if !tableNames[rel.ToTemplate] {
			return nil, invalidRevision("UNKNOWN_REF_TARGET", "relation %d: unknown target table %q", i, rel.ToTemplate)
		}
		mode := rel.Mode
		if mode == "" {
			mode = "error"
		}
		children.relations = append(children.relations, RelationRecord{
			ID:           uuid.New().String(),
			RevisionID:   revisionID,
			FromTemplate: rel.FromTemplate,
			FromPath:     rel.FromPath,
			ToTemplate:   rel.ToTemplate,
			ToPath:       rel.ToPath,
			Mode:         string(mode),
			Position:     i,
		})
	}

	return children, nil
}

// insertChildren persists the owned records inside tx.
func insertChildren(tx *gorm.DB, children *revisionChildren) error {
	if len(children.enums) > 0 {
		if err := tx.Create(&children.enums).Error; err != nil {
			return fmt.Errorf("create enums: %w", err)
		}
	}
	if len(children.structures) > 0 {
		if err := tx.Create(&children.structures).Error; err != nil {
			return fmt.Errorf("create structures: %w", err)
		}
	}
	if err := tx.Create(&children.templates).Error; err != nil {
		return fmt.Errorf("create templates: %w", err)
	}
	if len(children.fields) > 0 {
		if err := tx.Create(&children.fields).Error; err != nil {
			return fmt.Errorf("create fields: %w", err)
		}
	}
	if len(children.relations) > 0 {
		if err := tx.Create(&children.relations).Error; err != nil {
			return fmt.Errorf("create relations: %w", err)
		}
	}
	return nil
}

// deleteChildren removes every record owned by the revision inside tx.
func deleteChildren(tx *gorm.DB, revisionID string) error {
	var templateIDs []string
	if err := tx.Model(&TemplateRecord{}).Where("revision_id = ?", revisionID).Pluck("id", &templateIDs).Error; err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	if len(templateIDs) > 0 {
		if err := tx.Where("template_id IN ?", templateIDs).Delete(&FieldRecord{}).Error; err != nil {
			return fmt.Errorf("delete fields: %w", err)
		}
	}
	for _, model := range []any{&TemplateRecord{}, &EnumRecord{}, &StructureRecord{}, &RelationRecord{}} {
		if err := tx.Where("revision_id = ?", revisionID).Delete(model).Error; err != nil {
			return fmt.Errorf("delete revision children: %w", err)
		}
	}
	return nil
}

// CreateRevision validates the input and persists a new revision with all of
// its owned children in one transaction.
func (s *Store) CreateRevision(actor string, in *RevisionInput) (*SchemaRevision, error) {
	if in.GameID == "" {
		return nil, invalidRevision("MISSING_GAME_ID", "gameId is required")
	}
	if in.Name == "" {
		return nil, invalidRevision("MISSING_NAME", "name is required")
	}

	root := &SchemaRevisionRecord{
		ID:        uuid.New().String(),
		GameID:    in.GameID,
		Name:      in.Name,
		CreatedBy: actor,
	}
	children, err := buildChildren(root.ID, in)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(root).Error; err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		return insertChildren(tx, children)
	})
	if err != nil {
		return nil, err
	}

	return s.GetRevision(root.ID)
}

// GetRevision assembles the full revision aggregate.
// Returns nil, nil if the revision does not exist.
func (s *Store) GetRevision(id string) (*SchemaRevision, error) {
	var root SchemaRevisionRecord
	if err := s.db.Where("id = ?", id).First(&root).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}
	return s.assemble(&root)
}

func (s *Store) assemble(root *SchemaRevisionRecord) (*SchemaRevision, error) {
	rev := &SchemaRevision{
		ID:        root.ID,
		GameID:    root.GameID,
		Name:      root.Name,
		CreatedBy: root.CreatedBy,
		CreatedAt: root.CreatedAt,
	}

	var enums []EnumRecord
	if err := s.db.Where("revision_id = ?", root.ID).Order("position ASC").Find(&enums).Error; err != nil {
		return nil, fmt.Errorf("load enums: %w", err)
	}
	for _, e := range enums {
		rev.Enums = append(rev.Enums, Enum{Name: e.Name, Values: e.Values})
	}

	var structures []StructureRecord
	if err := s.db.Where("revision_id = ?", root.ID).Order("position ASC").Find(&structures).Error; err != nil {
		return nil, fmt.Errorf("load structures: %w", err)
	}
	for _, st := range structures {
		rev.Structures = append(rev.Structures, Structure{Name: st.Name, Fields: st.Fields})
	}

	var templates []TemplateRecord
	if err := s.db.Where("revision_id = ?", root.ID).Order("position ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	for _, t := range templates {
		var fields []FieldRecord
		if err := s.db.Where("template_id = ?", t.ID).Order("position ASC").Find(&fields).Error; err != nil {
			return nil, fmt.Errorf("load fields: %w", err)
		}
		tpl := bundleTemplate(t, fields)
		rev.Templates = append(rev.Templates, tpl)
	}

	var relations []RelationRecord
	if err := s.db.Where("revision_id = ?", root.ID).Order("position ASC").Find(&relations).Error; err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	for _, rel := range relations {
		rev.Relations = append(rev.Relations, bundleRelation(rel))
	}

	return rev, nil
}

// ListRevisions returns the revision roots for a game, newest first.
// An empty gameID lists every revision.
func (s *Store) ListRevisions(gameID string) ([]SchemaRevision, error) {
	query := s.db.Order("created_at DESC, id DESC")
	if gameID != "" {
		query = query.Where("game_id = ?", gameID)
	}

	var roots []SchemaRevisionRecord
	if err := query.Find(&roots).Error; err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}

	revisions := make([]SchemaRevision, 0, len(roots))
	for i := range roots {
		revisions = append(revisions, SchemaRevision{
			ID:        roots[i].ID,
			GameID:    roots[i].GameID,
			Name:      roots[i].Name,
			CreatedBy: roots[i].CreatedBy,
			CreatedAt: roots[i].CreatedAt,
		})
	}
	return revisions, nil
}

// OverwriteRevision destructively replaces the revision's owned children
// while preserving its identity. If channels are bound to the revision the
// call fails with SCHEMA_IN_USE unless force is set, in which case the bound
// channels are destroyed first.
func (s *Store) OverwriteRevision(id string, in *RevisionInput, force bool) (*SchemaRevision, error) {
	var root SchemaRevisionRecord
	if err := s.db.Where("id = ?", id).First(&root).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}
	if in.GameID != "" && in.GameID != root.GameID {
		return nil, invalidRevision("GAME_MISMATCH", "revision belongs to game %q, not %q", root.GameID, in.GameID)
	}
	in.GameID = root.GameID

	children, err := buildChildren(root.ID, in)
	if err != nil {
		return nil, err
	}

	if err := s.guardBindings(id, force); err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, root.ID); err != nil {
			return err
		}
		if in.Name != "" && in.Name != root.Name {
			if err := tx.Model(&SchemaRevisionRecord{}).Where("id = ?", root.ID).Update("name", in.Name).Error; err != nil {
				return fmt.Errorf("rename revision: %w", err)
			}
		}
		return insertChildren(tx, children)
	})
	if err != nil {
		return nil, err
	}

	return s.GetRevision(root.ID)
}

// DeleteRevision removes the revision and everything it owns. A non-empty
// gameID must match the revision's game. Bound channels block the delete
// with SCHEMA_IN_USE unless force is set. Returns the channels that were
// destroyed alongside the revision.
func (s *Store) DeleteRevision(id, gameID string, force bool) ([]ChannelRef, error) {
	var root SchemaRevisionRecord
	if err := s.db.Where("id = ?", id).First(&root).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get revision: %w", err)
	}
	if gameID != "" && gameID != root.GameID {
		return nil, invalidRevision("GAME_MISMATCH", "revision belongs to game %q, not %q", root.GameID, gameID)
	}

	var bound []ChannelRef
	if s.guard != nil {
		var err error
		bound, err = s.guard.BoundChannels(id)
		if err != nil {
			return nil, fmt.Errorf("check channel bindings: %w", err)
		}
		if len(bound) > 0 && !force {
			return nil, newInUseError(id, bound)
		}
		if len(bound) > 0 {
			if err := s.guard.DestroyChannels(id); err != nil {
				return nil, fmt.Errorf("destroy bound channels: %w", err)
			}
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, root.ID); err != nil {
			return err
		}
		if err := tx.Delete(&SchemaRevisionRecord{}, "id = ?", root.ID).Error; err != nil {
			return fmt.Errorf("delete revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// guardBindings enforces the SCHEMA_IN_USE conflict and, with force, tears
// the bound channels down.
func (s *Store) guardBindings(revisionID string, force bool) error {
	if s.guard == nil {
		return nil
	}
	bound, err := s.guard.BoundChannels(revisionID)
	if err != nil {
		return fmt.Errorf("check channel bindings: %w", err)
	}
	if len(bound) == 0 {
		return nil
	}
	if !force {
		return newInUseError(revisionID, bound)
	}
	if err := s.guard.DestroyChannels(revisionID); err != nil {
		return fmt.Errorf("destroy bound channels: %w", err)
	}
	return nil
}

// bundleTemplate converts stored template and field records to the
// validation-layer shape.
func bundleTemplate(t TemplateRecord, fields []FieldRecord) bundle.Template {
	tpl := bundle.Template{
		Name:        t.Name,
		SectionType: bundle.SectionType(t.SectionType),
		PrimaryKey:  t.PrimaryKey,
	}
	for _, f := range fields {
		tpl.Fields = append(tpl.Fields, bundle.Field{
			Name:         f.Name,
			Type:         bundle.FieldType(f.Type),
			Required:     f.Required,
			DefaultValue: f.DefaultValue.V,
			Constraints:  f.Constraints.C,
			RefTemplate:  f.RefTemplate,
			RefPath:      f.RefPath,
		})
	}
	return tpl
}

func bundleRelation(rel RelationRecord) bundle.Relation {
	return bundle.Relation{
		FromTemplate: rel.FromTemplate,
		FromPath:     rel.FromPath,
		ToTemplate:   rel.ToTemplate,
		ToPath:       rel.ToPath,
		Mode:         bundle.Severity(rel.Mode),
	}
}
