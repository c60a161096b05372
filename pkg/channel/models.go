package channel

import (
	"time"

	"github.com/playforge/liveops/pkg/schema"
)

// ChannelRecord is the root row of one channel.
type ChannelRecord struct {
	ID               string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	GameID           string    `gorm:"column:game_id;uniqueIndex:idx_channel_key,priority:1;not null"`
	ToolEnvironment  string    `gorm:"column:tool_environment;uniqueIndex:idx_channel_key,priority:2;not null"`
	EnvName          string    `gorm:"column:env_name;uniqueIndex:idx_channel_key,priority:3;not null"`
	SchemaRevisionID string    `gorm:"column:schema_revision_id;index:idx_channel_schema;not null"`
	CreatedBy        string    `gorm:"column:created_by"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (ChannelRecord) TableName() string { return "channels" }

// ChannelStateRecord is the mutable deployment pointer, one row per channel.
// CurrentVersion only ever advances through the conditional update in the
// deployer, which is the optimistic concurrency guard for racing promotions.
type ChannelStateRecord struct {
	ChannelID        string    `gorm:"primaryKey;column:channel_id;type:varchar(36)"`
	CurrentVersion   int       `gorm:"column:current_version;not null"`
	CurrentReleaseID string    `gorm:"column:current_release_id"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (ChannelStateRecord) TableName() string { return "channel_states" }

// SectionDraftRecord is one table's mutable working copy, one row per
// channel and template.
type SectionDraftRecord struct {
	ID           string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	ChannelID    string          `gorm:"column:channel_id;uniqueIndex:idx_draft_key,priority:1;not null"`
	TemplateName string          `gorm:"column:template_name;uniqueIndex:idx_draft_key,priority:2;not null"`
	Rows         schema.JSONRows `gorm:"column:rows;type:text"`
	UpdatedBy    string          `gorm:"column:updated_by"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (SectionDraftRecord) TableName() string { return "section_drafts" }

// SectionVersionRecord is an immutable frozen snapshot of a draft.
// Rows are never updated after creation.
type SectionVersionRecord struct {
	ID            string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	ChannelID     string          `gorm:"column:channel_id;uniqueIndex:idx_version_key,priority:1;not null"`
	TemplateName  string          `gorm:"column:template_name;uniqueIndex:idx_version_key,priority:2;not null"`
	VersionNumber int             `gorm:"column:version_number;uniqueIndex:idx_version_key,priority:3;not null"`
	Label         string          `gorm:"column:label"`
	Rows          schema.JSONRows `gorm:"column:rows;type:text"`
	CreatedBy     string          `gorm:"column:created_by"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (SectionVersionRecord) TableName() string { return "section_versions" }

// BundleDraftRecord is the channel's release candidate selection, one row
// per channel, created empty alongside the channel.
type BundleDraftRecord struct {
	ChannelID string               `gorm:"primaryKey;column:channel_id;type:varchar(36)"`
	Selection schema.JSONStringMap `gorm:"column:selection;type:text"`
	UpdatedBy string               `gorm:"column:updated_by"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (BundleDraftRecord) TableName() string { return "bundle_drafts" }

// BundleReleaseRecord is an immutable compiled artifact. Only the publish
// tracking columns are ever updated after creation.
type BundleReleaseRecord struct {
	ID           string               `gorm:"primaryKey;column:id;type:varchar(36)"`
	ChannelID    string               `gorm:"column:channel_id;index:idx_release_channel;not null"`
	Version      int                  `gorm:"column:version;not null"`
	Selection    schema.JSONStringMap `gorm:"column:selection;type:text"`
	Configs      schema.JSONAny       `gorm:"column:configs;type:text"`
	CompiledHash string               `gorm:"column:compiled_hash;index:idx_release_hash;not null"`
	CreatedBy    string               `gorm:"column:created_by"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
	PublishedAt  *time.Time           `gorm:"column:published_at"`
	PublishError string               `gorm:"column:publish_error"`
}

// TableName returns the GORM table name.
func (BundleReleaseRecord) TableName() string { return "bundle_releases" }

// DeploymentRecord is one append-only promotion audit row.
type DeploymentRecord struct {
	ID            string         `gorm:"primaryKey;column:id;type:varchar(36)"`
	ChannelID     string         `gorm:"column:channel_id;index:idx_deployment_channel;not null"`
	Action        string         `gorm:"column:action;not null"`
	FromReleaseID string         `gorm:"column:from_release_id"`
	ToReleaseID   string         `gorm:"column:to_release_id;not null"`
	FromVersion   int            `gorm:"column:from_version"`
	ToVersion     int            `gorm:"column:to_version"`
	CreatedBy     string         `gorm:"column:created_by"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	Snapshot      schema.JSONAny `gorm:"column:snapshot;type:text"`
}

// TableName returns the GORM table name.
func (DeploymentRecord) TableName() string { return "deployments" }

func channelToAPI(rec *ChannelRecord, state *ChannelStateRecord) *Channel {
	ch := &Channel{
		ID:               rec.ID,
		GameID:           rec.GameID,
		ToolEnvironment:  ToolEnv(rec.ToolEnvironment),
		EnvName:          rec.EnvName,
		SchemaRevisionID: rec.SchemaRevisionID,
		CreatedBy:        rec.CreatedBy,
		CreatedAt:        rec.CreatedAt,
	}
	if state != nil {
		ch.State = ChannelState{
			CurrentVersion:   state.CurrentVersion,
			CurrentReleaseID: state.CurrentReleaseID,
			UpdatedAt:        state.UpdatedAt,
		}
	}
	return ch
}

func draftToAPI(rec *SectionDraftRecord) *SectionDraft {
	return &SectionDraft{
		ChannelID:    rec.ChannelID,
		TemplateName: rec.TemplateName,
		Rows:         rec.Rows,
		UpdatedBy:    rec.UpdatedBy,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func versionToAPI(rec *SectionVersionRecord) *SectionVersion {
	return &SectionVersion{
		ID:            rec.ID,
		ChannelID:     rec.ChannelID,
		TemplateName:  rec.TemplateName,
		VersionNumber: rec.VersionNumber,
		Label:         rec.Label,
		Rows:          rec.Rows,
		CreatedBy:     rec.CreatedBy,
		CreatedAt:     rec.CreatedAt,
	}
}

func bundleDraftToAPI(rec *BundleDraftRecord) *BundleDraft {
	draft := &BundleDraft{
		ChannelID: rec.ChannelID,
		Selection: rec.Selection,
		UpdatedBy: rec.UpdatedBy,
		UpdatedAt: rec.UpdatedAt,
	}
	if draft.Selection == nil {
		draft.Selection = map[string]string{}
	}
	return draft
}

func releaseToAPI(rec *BundleReleaseRecord) *BundleRelease {
	return &BundleRelease{
		ID:           rec.ID,
		ChannelID:    rec.ChannelID,
		Version:      rec.Version,
		Selection:    rec.Selection,
		Configs:      rec.Configs,
		CompiledHash: rec.CompiledHash,
		CreatedBy:    rec.CreatedBy,
		CreatedAt:    rec.CreatedAt,
		PublishedAt:  rec.PublishedAt,
		PublishError: rec.PublishError,
	}
}

func deploymentToAPI(rec *DeploymentRecord) *Deployment {
	return &Deployment{
		ID:            rec.ID,
		ChannelID:     rec.ChannelID,
		Action:        rec.Action,
		FromReleaseID: rec.FromReleaseID,
		ToReleaseID:   rec.ToReleaseID,
		FromVersion:   rec.FromVersion,
		ToVersion:     rec.ToVersion,
		CreatedBy:     rec.CreatedBy,
		CreatedAt:     rec.CreatedAt,
		Snapshot:      rec.Snapshot,
	}
}
