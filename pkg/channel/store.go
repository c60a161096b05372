package channel

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playforge/liveops/pkg/schema"
)

// Store provides CRUD and lifecycle operations for channels and their
// owned drafts, versions, releases, and deployment records.
type Store struct {
	db      *gorm.DB
	schemas *schema.Store
}

// NewStore creates a new Store backed by the given database and schema
// registry.
func NewStore(db *gorm.DB, schemas *schema.Store) *Store {
	return &Store{db: db, schemas: schemas}
}

// DB exposes the underlying handle for the deployer, which shares the
// store's transaction boundary.
func (s *Store) DB() *gorm.DB { return s.db }

// Schemas exposes the schema registry the store validates against.
func (s *Store) Schemas() *schema.Store { return s.schemas }

// AutoMigrate creates or updates the channel tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{
		&ChannelRecord{},
		&ChannelStateRecord{},
		&SectionDraftRecord{},
		&SectionVersionRecord{},
		&BundleDraftRecord{},
		&BundleReleaseRecord{},
		&DeploymentRecord{},
	} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate channels: %w", err)
		}
	}
	return nil
}

// CreateInput is the create-channel payload.
type CreateInput struct {
	GameID           string `json:"gameId"`
	ToolEnvironment  string `json:"toolEnvironment"`
	EnvName          string `json:"envName"`
	SchemaRevisionID string `json:"schemaRevisionId"`
}

// Create binds a new channel to an existing schema revision. The revision's
// gameId must match the channel's. The channel starts with a zeroed state
// and an empty bundle draft, created in the same transaction.
func (s *Store) Create(actor string, in *CreateInput) (*Channel, error) {
	env, err := ParseToolEnv(in.ToolEnvironment)
	if err != nil {
		return nil, workflowError("INVALID_ENVIRONMENT", "%v", err)
	}
	if in.GameID == "" || in.EnvName == "" {
		return nil, workflowError("MISSING_FIELD", "gameId and envName are required")
	}

	rev, err := s.schemas.GetRevision(in.SchemaRevisionID)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, workflowError("SCHEMA_NOT_FOUND", "schema revision %q not found", in.SchemaRevisionID)
	}
	if rev.GameID != in.GameID {
		return nil, workflowError("GAME_MISMATCH", "schema revision belongs to game %q, not %q", rev.GameID, in.GameID)
	}

	existing, err := s.GetByKey(in.GameID, env, in.EnvName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, workflowError("CHANNEL_EXISTS", "channel %s/%s/%s already exists", in.GameID, env, in.EnvName)
	}

	rec := &ChannelRecord{
		ID:               uuid.New().String(),
		GameID:           in.GameID,
		ToolEnvironment:  string(env),
		EnvName:          in.EnvName,
		SchemaRevisionID: in.SchemaRevisionID,
		CreatedBy:        actor,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return createChannelTx(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(rec.ID)
}

// createChannelTx inserts the channel with its zeroed state and empty
// bundle draft inside tx.
func createChannelTx(tx *gorm.DB, rec *ChannelRecord) error {
	if err := tx.Create(rec).Error; err != nil {
		return fmt.Errorf("create channel: %w", err)
	}
	if err := tx.Create(&ChannelStateRecord{ChannelID: rec.ID}).Error; err != nil {
		return fmt.Errorf("create channel state: %w", err)
	}
	if err := tx.Create(&BundleDraftRecord{ChannelID: rec.ID, Selection: schema.JSONStringMap{}}).Error; err != nil {
		return fmt.Errorf("create bundle draft: %w", err)
	}
	return nil
}

// Get retrieves a channel with its state by id. Returns nil, nil if the
// channel does not exist.
func (s *Store) Get(id string) (*Channel, error) {
	var rec ChannelRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	state, err := s.loadState(rec.ID)
	if err != nil {
		return nil, err
	}
	return channelToAPI(&rec, state), nil
}

// GetByKey retrieves a channel by its unique key.
// Returns nil, nil if no such channel exists.
func (s *Store) GetByKey(gameID string, env ToolEnv, envName string) (*Channel, error) {
	var rec ChannelRecord
	err := s.db.Where(
		"game_id = ? AND tool_environment = ? AND env_name = ?",
		gameID, string(env), envName,
	).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel by key: %w", err)
	}
	state, err := s.loadState(rec.ID)
	if err != nil {
		return nil, err
	}
	return channelToAPI(&rec, state), nil
}

func (s *Store) loadState(channelID string) (*ChannelStateRecord, error) {
	var state ChannelStateRecord
	err := s.db.Where("channel_id = ?", channelID).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load channel state: %w", err)
	}
	return &state, nil
}

// List returns channels for a game, optionally filtered by tool
// environment, ordered by environment then name.
func (s *Store) List(gameID, toolEnv string) ([]Channel, error) {
	query := s.db.Order("tool_environment ASC, env_name ASC")
	if gameID != "" {
		query = query.Where("game_id = ?", gameID)
	}
	if toolEnv != "" {
		query = query.Where("tool_environment = ?", toolEnv)
	}

	var recs []ChannelRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	channels := make([]Channel, 0, len(recs))
	for i := range recs {
		state, err := s.loadState(recs[i].ID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *channelToAPI(&recs[i], state))
	}
	return channels, nil
}

// teardownTx removes every row owned by the channel inside tx: drafts,
// versions, releases, deployments, bundle draft, and state. The channel
// row itself is removed only when includeChannel is set.
func teardownTx(tx *gorm.DB, channelID string, includeChannel bool) error {
	for _, model := range []any{
		&SectionDraftRecord{},
		&SectionVersionRecord{},
		&BundleReleaseRecord{},
		&DeploymentRecord{},
	} {
		if err := tx.Where("channel_id = ?", channelID).Delete(model).Error; err != nil {
			return fmt.Errorf("teardown channel rows: %w", err)
		}
	}
	if includeChannel {
		if err := tx.Where("channel_id = ?", channelID).Delete(&BundleDraftRecord{}).Error; err != nil {
			return fmt.Errorf("teardown bundle draft: %w", err)
		}
		if err := tx.Where("channel_id = ?", channelID).Delete(&ChannelStateRecord{}).Error; err != nil {
			return fmt.Errorf("teardown channel state: %w", err)
		}
		if err := tx.Delete(&ChannelRecord{}, "id = ?", channelID).Error; err != nil {
			return fmt.Errorf("delete channel: %w", err)
		}
		return nil
	}

	// Reset keeps the channel but zeroes its pointers.
	if err := tx.Model(&BundleDraftRecord{}).Where("channel_id = ?", channelID).
		Update("selection", schema.JSONStringMap{}).Error; err != nil {
		return fmt.Errorf("clear bundle draft: %w", err)
	}
	if err := tx.Model(&ChannelStateRecord{}).Where("channel_id = ?", channelID).
		Updates(map[string]any{"current_version": 0, "current_release_id": ""}).Error; err != nil {
		return fmt.Errorf("zero channel state: %w", err)
	}
	return nil
}

// Delete tears down a development channel and everything it owns.
func (s *Store) Delete(id string) error {
	ch, err := s.Get(id)
	if err != nil {
		return err
	}
	if ch == nil {
		return workflowError("CHANNEL_NOT_FOUND", "channel %q not found", id)
	}
	if !ch.ToolEnvironment.Editable() {
		return workflowError("WRONG_ENVIRONMENT", "only development channels can be deleted, %s is %s", id, ch.ToolEnvironment)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return teardownTx(tx, id, true)
	})
}

// Reset clears all drafts, frozen versions, releases, and deployment
// history of a development channel and zeroes its state. A non-empty
// newRevisionID rebinds the channel to another revision of the same game.
func (s *Store) Reset(id, newRevisionID string) (*Channel, error) {
	ch, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "channel %q not found", id)
	}
	if !ch.ToolEnvironment.Editable() {
		return nil, workflowError("WRONG_ENVIRONMENT", "only development channels can be reset, %s is %s", id, ch.ToolEnvironment)
	}

	if newRevisionID != "" && newRevisionID != ch.SchemaRevisionID {
		rev, err := s.schemas.GetRevision(newRevisionID)
		if err != nil {
			return nil, err
		}
		if rev == nil {
			return nil, workflowError("SCHEMA_NOT_FOUND", "schema revision %q not found", newRevisionID)
		}
		if rev.GameID != ch.GameID {
			return nil, workflowError("GAME_MISMATCH", "schema revision belongs to game %q, not %q", rev.GameID, ch.GameID)
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := teardownTx(tx, id, false); err != nil {
			return err
		}
		if newRevisionID != "" && newRevisionID != ch.SchemaRevisionID {
			if err := tx.Model(&ChannelRecord{}).Where("id = ?", id).
				Update("schema_revision_id", newRevisionID).Error; err != nil {
				return fmt.Errorf("rebind schema revision: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// PullSummary reports the outcome of a pull-from-staging.
type PullSummary struct {
	ChannelID       string            `json:"channelId"`
	SourceChannelID string            `json:"sourceChannelId"`
	SourceReleaseID string            `json:"sourceReleaseId"`
	CompiledHash    string            `json:"compiledHash"`
	Selection       map[string]string `json:"selection"`
}

// PullFromStaging replaces a development channel's working content with the
// currently active compiled release of its staging sibling: a fresh draft,
// an initial frozen version, and a bundle-draft selection per table. The
// sibling is matched by envName and must share the schema revision. This is
// a full replacement, not a merge.
func (s *Store) PullFromStaging(id, actor string) (*PullSummary, error) {
	ch, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "channel %q not found", id)
	}
	if !ch.ToolEnvironment.Editable() {
		return nil, workflowError("WRONG_ENVIRONMENT", "pull-from-staging only applies to development channels, %s is %s", id, ch.ToolEnvironment)
	}

	staging, err := s.GetByKey(ch.GameID, EnvStaging, ch.EnvName)
	if err != nil {
		return nil, err
	}
	if staging == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "no staging channel %s/%s", ch.GameID, ch.EnvName)
	}
	if staging.SchemaRevisionID != ch.SchemaRevisionID {
		return nil, workflowError("SCHEMA_MISMATCH", "staging channel is bound to a different schema revision")
	}
	if staging.State.CurrentReleaseID == "" {
		return nil, workflowError("NO_ACTIVE_RELEASE", "staging channel %s/%s has no active release", ch.GameID, ch.EnvName)
	}

	release, err := s.GetRelease(staging.State.CurrentReleaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, workflowError("RELEASE_NOT_FOUND", "release %q not found", staging.State.CurrentReleaseID)
	}

	summary := &PullSummary{
		ChannelID:       ch.ID,
		SourceChannelID: staging.ID,
		SourceReleaseID: release.ID,
		CompiledHash:    release.CompiledHash,
		Selection:       map[string]string{},
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&SectionDraftRecord{}, &SectionVersionRecord{}} {
			if err := tx.Where("channel_id = ?", ch.ID).Delete(model).Error; err != nil {
				return fmt.Errorf("clear working content: %w", err)
			}
		}

		for _, table := range sortedKeys(release.Configs) {
			rows := configRows(release.Configs[table])
			draft := &SectionDraftRecord{
				ID:           uuid.New().String(),
				ChannelID:    ch.ID,
				TemplateName: table,
				Rows:         schema.JSONRows(rows),
				UpdatedBy:    actor,
			}
			if err := tx.Create(draft).Error; err != nil {
				return fmt.Errorf("create pulled draft: %w", err)
			}

			version := &SectionVersionRecord{
				ID:            uuid.New().String(),
				ChannelID:     ch.ID,
				TemplateName:  table,
				VersionNumber: 1,
				Label:         "pulled from staging",
				Rows:          schema.JSONRows(rows),
				CreatedBy:     actor,
			}
			if err := tx.Create(version).Error; err != nil {
				return fmt.Errorf("create pulled version: %w", err)
			}
			summary.Selection[table] = version.ID
		}

		if err := tx.Model(&BundleDraftRecord{}).Where("channel_id = ?", ch.ID).Updates(map[string]any{
			"selection":  schema.JSONStringMap(summary.Selection),
			"updated_by": actor,
		}).Error; err != nil {
			return fmt.Errorf("update bundle draft: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// configRows normalizes one compiled section back into editable rows.
// Object sections become a single row.
func configRows(value any) []map[string]any {
	switch v := value.(type) {
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		return rows
	case map[string]any:
		return []map[string]any{v}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetRelease retrieves one release by id. Returns nil, nil if absent.
func (s *Store) GetRelease(id string) (*BundleRelease, error) {
	var rec BundleReleaseRecord
	if err := s.db.Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get release: %w", err)
	}
	return releaseToAPI(&rec), nil
}

// ListReleases returns a channel's releases, newest first.
func (s *Store) ListReleases(channelID string) ([]BundleRelease, error) {
	var recs []BundleReleaseRecord
	err := s.db.Where("channel_id = ?", channelID).
		Order("version DESC, created_at DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	releases := make([]BundleRelease, 0, len(recs))
	for i := range recs {
		releases = append(releases, *releaseToAPI(&recs[i]))
	}
	return releases, nil
}

// ListDeployments returns a channel's audit trail, newest first.
func (s *Store) ListDeployments(channelID string) ([]Deployment, error) {
	var recs []DeploymentRecord
	err := s.db.Where("channel_id = ?", channelID).
		Order("to_version DESC, created_at DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	deployments := make([]Deployment, 0, len(recs))
	for i := range recs {
		deployments = append(deployments, *deploymentToAPI(&recs[i]))
	}
	return deployments, nil
}

// BoundChannels lists the channels bound to a schema revision.
// Implements the schema registry's channel guard.
func (s *Store) BoundChannels(revisionID string) ([]schema.ChannelRef, error) {
	var recs []ChannelRecord
	err := s.db.Where("schema_revision_id = ?", revisionID).
		Order("tool_environment ASC, env_name ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list bound channels: %w", err)
	}
	refs := make([]schema.ChannelRef, 0, len(recs))
	for _, rec := range recs {
		refs = append(refs, schema.ChannelRef{
			ID:              rec.ID,
			GameID:          rec.GameID,
			ToolEnvironment: rec.ToolEnvironment,
			EnvName:         rec.EnvName,
		})
	}
	return refs, nil
}

// DestroyChannels tears down every channel bound to a schema revision,
// regardless of tool environment. Only the schema registry calls this,
// after an explicit force confirmation.
func (s *Store) DestroyChannels(revisionID string) error {
	refs, err := s.BoundChannels(revisionID)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, ref := range refs {
			if err := teardownTx(tx, ref.ID, true); err != nil {
				return err
			}
		}
		return nil
	})
}
