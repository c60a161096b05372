package channel

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playforge/liveops/pkg/bundle"
	"github.com/playforge/liveops/pkg/schema"
)

// editableChannel loads a channel and its schema revision, enforcing that
// the channel exists and accepts content edits.
func (s *Store) editableChannel(channelID string) (*Channel, *schema.SchemaRevision, error) {
	ch, err := s.Get(channelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		return nil, nil, workflowError("CHANNEL_NOT_FOUND", "channel %q not found", channelID)
	}
	if !ch.ToolEnvironment.Editable() {
		return nil, nil, workflowError("WRONG_ENVIRONMENT", "content edits are only allowed in development channels, %s is %s", channelID, ch.ToolEnvironment)
	}
	rev, err := s.schemas.GetRevision(ch.SchemaRevisionID)
	if err != nil {
		return nil, nil, err
	}
	if rev == nil {
		return nil, nil, workflowError("SCHEMA_NOT_FOUND", "schema revision %q not found", ch.SchemaRevisionID)
	}
	return ch, rev, nil
}

// GetDraft retrieves one table's draft. Returns nil, nil if no draft has
// been written yet.
func (s *Store) GetDraft(channelID, templateName string) (*SectionDraft, error) {
	var rec SectionDraftRecord
	err := s.db.Where("channel_id = ? AND template_name = ?", channelID, templateName).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return draftToAPI(&rec), nil
}

// siblingDrafts loads every other draft of the channel as row sets, used
// to validate cross-table references before anything is frozen.
func (s *Store) siblingDrafts(channelID, exclude string) (map[string][]bundle.Row, error) {
	var recs []SectionDraftRecord
	if err := s.db.Where("channel_id = ?", channelID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load sibling drafts: %w", err)
	}
	siblings := make(map[string][]bundle.Row, len(recs))
	for _, rec := range recs {
		if rec.TemplateName == exclude {
			continue
		}
		siblings[rec.TemplateName] = rec.Rows.Rows()
	}
	return siblings, nil
}

// validateSection runs the row checks and the cross-draft reference check
// for one table. Upsert and freeze share this routine so the same invariant
// is enforced at both checkpoints.
func (s *Store) validateSection(rev *schema.SchemaRevision, channelID string, tpl bundle.Template, rows []bundle.Row, raw any) ([]bundle.Issue, error) {
	result := bundle.ValidateRows(tpl, raw)
	issues := result.Issues

	// Reference checks only make sense once the rows themselves parse.
	if result.OK {
		siblings, err := s.siblingDrafts(channelID, tpl.Name)
		if err != nil {
			return nil, err
		}
		issues = append(issues, bundle.ValidateDraftRefs(tpl, rows, siblings, rev.TemplateMap())...)
	}
	return issues, nil
}

// UpsertDraft replaces one table's draft rows in a development channel.
// The rows are validated first and any error-severity issue rejects the
// write entirely; warnings are returned alongside the saved draft.
func (s *Store) UpsertDraft(channelID, templateName string, raw any, actor string) (*SectionDraft, []bundle.Issue, error) {
	_, rev, err := s.editableChannel(channelID)
	if err != nil {
		return nil, nil, err
	}
	tpl, ok := rev.Template(templateName)
	if !ok {
		return nil, nil, workflowError("TEMPLATE_NOT_FOUND", "schema revision has no table %q", templateName)
	}

	rows := rowsFromRaw(raw)
	issues, err := s.validateSection(rev, channelID, tpl, rows, raw)
	if err != nil {
		return nil, nil, err
	}
	if bundle.HasErrors(issues) {
		return nil, issues, validationError(fmt.Sprintf("draft for %q failed validation", templateName), issues)
	}

	stored := make([]map[string]any, len(rows))
	for i, row := range rows {
		stored[i] = row
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing SectionDraftRecord
		err := tx.Where("channel_id = ? AND template_name = ?", channelID, templateName).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&SectionDraftRecord{
				ID:           uuid.New().String(),
				ChannelID:    channelID,
				TemplateName: templateName,
				Rows:         schema.JSONRows(stored),
				UpdatedBy:    actor,
			}).Error
		}
		if err != nil {
			return fmt.Errorf("load draft: %w", err)
		}
		return tx.Model(&existing).Updates(map[string]any{
			"rows":       schema.JSONRows(stored),
			"updated_by": actor,
		}).Error
	})
	if err != nil {
		return nil, nil, err
	}

	draft, err := s.GetDraft(channelID, templateName)
	if err != nil {
		return nil, nil, err
	}
	return draft, issues, nil
}

// Freeze re-validates the current draft and snapshots it as a new immutable
// section version. Version numbers are monotonic per channel and table,
// starting at 1. The draft itself is left unchanged; freezing twice
// produces two successive snapshots.
func (s *Store) Freeze(channelID, templateName, label, actor string) (*SectionVersion, []bundle.Issue, error) {
	_, rev, err := s.editableChannel(channelID)
	if err != nil {
		return nil, nil, err
	}
	tpl, ok := rev.Template(templateName)
	if !ok {
		return nil, nil, workflowError("TEMPLATE_NOT_FOUND", "schema revision has no table %q", templateName)
	}

	draft, err := s.GetDraft(channelID, templateName)
	if err != nil {
		return nil, nil, err
	}
	if draft == nil {
		return nil, nil, workflowError("DRAFT_NOT_FOUND", "no draft for table %q", templateName)
	}

	// Guard against schema drift since the last edit.
	rows := make([]bundle.Row, len(draft.Rows))
	rawRows := make([]any, len(draft.Rows))
	for i, row := range draft.Rows {
		rows[i] = row
		rawRows[i] = map[string]any(row)
	}
	issues, err := s.validateSection(rev, channelID, tpl, rows, rawRows)
	if err != nil {
		return nil, nil, err
	}
	if bundle.HasErrors(issues) {
		return nil, issues, validationError(fmt.Sprintf("draft for %q failed validation", templateName), issues)
	}

	rec := &SectionVersionRecord{
		ID:           uuid.New().String(),
		ChannelID:    channelID,
		TemplateName: templateName,
		Rows:         schema.JSONRows(draft.Rows),
		CreatedBy:    actor,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var latest int
		err := tx.Model(&SectionVersionRecord{}).
			Where("channel_id = ? AND template_name = ?", channelID, templateName).
			Select("COALESCE(MAX(version_number), 0)").Scan(&latest).Error
		if err != nil {
			return fmt.Errorf("max version number: %w", err)
		}
		rec.VersionNumber = latest + 1
		rec.Label = label
		if rec.Label == "" {
			rec.Label = fmt.Sprintf("v%d", rec.VersionNumber)
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return versionToAPI(rec), issues, nil
}

// GetVersion retrieves one frozen section version by id.
// Returns nil, nil if absent.
func (s *Store) GetVersion(id string) (*SectionVersion, error) {
	var rec SectionVersionRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get section version: %w", err)
	}
	return versionToAPI(&rec), nil
}

// ListVersions returns a channel's frozen versions, optionally filtered by
// table, newest first.
func (s *Store) ListVersions(channelID, templateName string) ([]SectionVersion, error) {
	query := s.db.Where("channel_id = ?", channelID).
		Order("template_name ASC, version_number DESC")
	if templateName != "" {
		query = query.Where("template_name = ?", templateName)
	}

	var recs []SectionVersionRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list section versions: %w", err)
	}
	versions := make([]SectionVersion, 0, len(recs))
	for i := range recs {
		versions = append(versions, *versionToAPI(&recs[i]))
	}
	return versions, nil
}

// DeleteVersion removes a frozen section version from a development
// channel. If the channel's bundle draft currently selects it, that single
// selection entry is cleared; the rest of the selection is untouched.
func (s *Store) DeleteVersion(channelID, versionID string) error {
	ch, err := s.Get(channelID)
	if err != nil {
		return err
	}
	if ch == nil {
		return workflowError("CHANNEL_NOT_FOUND", "channel %q not found", channelID)
	}
	if !ch.ToolEnvironment.Editable() {
		return workflowError("WRONG_ENVIRONMENT", "versions can only be deleted in development channels, %s is %s", channelID, ch.ToolEnvironment)
	}

	version, err := s.GetVersion(versionID)
	if err != nil {
		return err
	}
	if version == nil || version.ChannelID != channelID {
		return workflowError("VERSION_NOT_FOUND", "section version %q not found in channel %q", versionID, channelID)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&SectionVersionRecord{}, "id = ?", versionID).Error; err != nil {
			return fmt.Errorf("delete section version: %w", err)
		}

		var draft BundleDraftRecord
		err := tx.Where("channel_id = ?", channelID).First(&draft).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load bundle draft: %w", err)
		}
		if draft.Selection[version.TemplateName] != versionID {
			return nil
		}
		delete(draft.Selection, version.TemplateName)
		return tx.Model(&draft).Update("selection", draft.Selection).Error
	})
}

// GetBundleDraft retrieves the channel's release candidate selection.
func (s *Store) GetBundleDraft(channelID string) (*BundleDraft, error) {
	var rec BundleDraftRecord
	if err := s.db.Where("channel_id = ?", channelID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get bundle draft: %w", err)
	}
	return bundleDraftToAPI(&rec), nil
}

// UpdateBundleDraft replaces the channel's selection map. Every referenced
// section version must belong to this channel and to the table it is
// selected for.
func (s *Store) UpdateBundleDraft(channelID string, selection map[string]string, actor string) (*BundleDraft, error) {
	_, rev, err := s.editableChannel(channelID)
	if err != nil {
		return nil, err
	}

	for table, versionID := range selection {
		if _, ok := rev.Template(table); !ok {
			return nil, workflowError("TEMPLATE_NOT_FOUND", "schema revision has no table %q", table)
		}
		version, err := s.GetVersion(versionID)
		if err != nil {
			return nil, err
		}
		if version == nil || version.ChannelID != channelID {
			return nil, workflowError("SELECTION_INVALID", "section version %q does not belong to channel %q", versionID, channelID)
		}
		if version.TemplateName != table {
			return nil, workflowError("SELECTION_INVALID", "section version %q belongs to table %q, selected for %q", versionID, version.TemplateName, table)
		}
	}

	err = s.db.Model(&BundleDraftRecord{}).Where("channel_id = ?", channelID).Updates(map[string]any{
		"selection":  schema.JSONStringMap(selection),
		"updated_by": actor,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update bundle draft: %w", err)
	}
	return s.GetBundleDraft(channelID)
}

// rowsFromRaw converts a decoded JSON row payload to typed rows. Shape
// errors are caught by validation, which sees the original value.
func rowsFromRaw(raw any) []bundle.Row {
	switch v := raw.(type) {
	case []bundle.Row:
		return v
	case []map[string]any:
		rows := make([]bundle.Row, len(v))
		for i, m := range v {
			rows[i] = m
		}
		return rows
	case []any:
		rows := make([]bundle.Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	}
	return nil
}
