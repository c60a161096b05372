package channel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/playforge/liveops/pkg/bundle"
	"github.com/playforge/liveops/pkg/metrics"
	"github.com/playforge/liveops/pkg/publisher"
	"github.com/playforge/liveops/pkg/schema"
)

// Deployer runs the promotion state machine: compiling bundles from
// development drafts, republishing staging releases to production, and
// rolling channels back to historical releases. Every state transition
// advances the channel version by exactly one inside a single transaction.
type Deployer struct {
	store     *Store
	publisher publisher.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cache     ReleaseCacheInvalidator
}

// ReleaseCacheInvalidator drops cached public responses for a game
// environment after its active production release changes.
type ReleaseCacheInvalidator interface {
	InvalidateChannel(gameID, envName string)
}

// NewDeployer creates a Deployer. The publisher may be nil, in which case
// artifacts are not written anywhere; metrics may be nil to skip counters.
func NewDeployer(store *Store, pub publisher.Publisher, m *metrics.Metrics, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{store: store, publisher: pub, metrics: m, logger: logger}
}

// SetReleaseCache wires a response cache to invalidate when a production
// channel's active release changes. A nil invalidator disables invalidation.
func (d *Deployer) SetReleaseCache(inv ReleaseCacheInvalidator) {
	d.cache = inv
}

// invalidateCache drops the public cache entries of a production channel.
// Only production content is publicly served, so other environments never
// populate the cache.
func (d *Deployer) invalidateCache(ch *Channel) {
	if d.cache != nil && ch.ToolEnvironment == EnvProduction {
		d.cache.InvalidateChannel(ch.GameID, ch.EnvName)
	}
}

// DeployInput identifies the promotion to run.
type DeployInput struct {
	GameID  string `json:"gameId"`
	EnvName string `json:"envName"`
	From    string `json:"fromToolEnvironment"`
	To      string `json:"toToolEnvironment"`
}

// DeployResult reports a committed promotion. PublishError is set when the
// deployment committed but the artifact write failed; the deploy itself is
// still successful and the publish can be retried.
type DeployResult struct {
	Channel          *Channel       `json:"channel"`
	ReleaseID        string         `json:"releaseId"`
	NewVersion       int            `json:"newVersion"`
	CompiledHash     string         `json:"compiledHash"`
	Issues           []bundle.Issue `json:"issues,omitempty"`
	PublishLocations []string       `json:"publishLocations,omitempty"`
	PublishError     string         `json:"publishError,omitempty"`
}

// Deploy promotes a channel's content one step toward production. The
// direction is validated before anything else; illegal directions never
// touch the database.
func (d *Deployer) Deploy(ctx context.Context, actor string, in *DeployInput) (result *DeployResult, err error) {
	if d.metrics != nil {
		defer func() { d.metrics.ObserveDeploy("deploy", err) }()
	}

	from, perr := ParseToolEnv(in.From)
	if perr != nil {
		return nil, workflowError("INVALID_ENVIRONMENT", "%v", perr)
	}
	to, perr := ParseToolEnv(in.To)
	if perr != nil {
		return nil, workflowError("INVALID_ENVIRONMENT", "%v", perr)
	}
	if err := ValidateDeploy(from, to); err != nil {
		return nil, err
	}

	source, err := d.store.GetByKey(in.GameID, from, in.EnvName)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "no %s channel %s/%s", from, in.GameID, in.EnvName)
	}

	var (
		configs   map[string]any
		hash      string
		selection map[string]string
		issues    []bundle.Issue
	)
	if from == EnvDevelopment {
		configs, hash, selection, issues, err = d.compileFromDraft(source)
	} else {
		configs, hash, selection, err = d.activeReleaseContent(source)
	}
	if err != nil {
		return nil, err
	}

	release, target, err := d.commit(source, to, actor, "deploy", configs, hash, selection)
	if err != nil {
		return nil, err
	}
	d.invalidateCache(target)

	result = &DeployResult{
		Channel:      target,
		ReleaseID:    release.ID,
		NewVersion:   target.State.CurrentVersion,
		CompiledHash: hash,
		Issues:       issues,
	}
	result.PublishLocations, result.PublishError = d.publish(ctx, target, release, target.State.CurrentVersion)
	return result, nil
}

// compileFromDraft builds the bundle live from the channel's bundle draft
// selection, validating every relation. Error-severity issues abort the
// deploy with the issue list attached.
func (d *Deployer) compileFromDraft(source *Channel) (map[string]any, string, map[string]string, []bundle.Issue, error) {
	rev, err := d.store.Schemas().GetRevision(source.SchemaRevisionID)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if rev == nil {
		return nil, "", nil, nil, workflowError("SCHEMA_NOT_FOUND", "schema revision %q not found", source.SchemaRevisionID)
	}

	draft, err := d.store.GetBundleDraft(source.ID)
	if err != nil {
		return nil, "", nil, nil, err
	}
	if draft == nil || len(draft.Selection) == 0 {
		return nil, "", nil, nil, workflowError("EMPTY_SELECTION", "channel %q has no bundle draft selection to deploy", source.ID)
	}

	tables := make(map[string][]bundle.Row, len(draft.Selection))
	for table, versionID := range draft.Selection {
		version, err := d.store.GetVersion(versionID)
		if err != nil {
			return nil, "", nil, nil, err
		}
		if version == nil || version.ChannelID != source.ID || version.TemplateName != table {
			return nil, "", nil, nil, workflowError("SELECTION_INVALID", "section version %q is not a frozen %q snapshot of this channel", versionID, table)
		}
		rows := make([]bundle.Row, len(version.Rows))
		for i, row := range version.Rows {
			rows[i] = row
		}
		tables[table] = rows
	}

	compiled, issues, err := bundle.Compile(tables, rev.SectionTypes(), rev.AllRelations(), rev.PrimaryKeys())
	if err != nil {
		return nil, "", nil, nil, validationError("bundle compilation failed", issues)
	}
	return compiled.Configs, compiled.Hash, draft.Selection, issues, nil
}

// activeReleaseContent carries a staging channel's currently active release
// forward verbatim: same configs, same selection, same hash.
func (d *Deployer) activeReleaseContent(source *Channel) (map[string]any, string, map[string]string, error) {
	if source.State.CurrentReleaseID == "" {
		return nil, "", nil, workflowError("NO_ACTIVE_RELEASE", "channel %s/%s/%s has no active release to promote", source.GameID, source.ToolEnvironment, source.EnvName)
	}
	release, err := d.store.GetRelease(source.State.CurrentReleaseID)
	if err != nil {
		return nil, "", nil, err
	}
	if release == nil {
		return nil, "", nil, workflowError("RELEASE_NOT_FOUND", "release %q not found", source.State.CurrentReleaseID)
	}
	return release.Configs, release.CompiledHash, release.Selection, nil
}

// commit resolves the target channel (creating it on first deploy), writes
// the release, advances the version pointer under an optimistic
// concurrency guard, and appends the audit record, all in one transaction.
func (d *Deployer) commit(source *Channel, to ToolEnv, actor, action string, configs map[string]any, hash string, selection map[string]string) (*BundleRelease, *Channel, error) {
	target, err := d.store.GetByKey(source.GameID, to, source.EnvName)
	if err != nil {
		return nil, nil, err
	}
	if target != nil && target.SchemaRevisionID != source.SchemaRevisionID {
		return nil, nil, workflowError("SCHEMA_MISMATCH", "target channel %s/%s/%s is bound to a different schema revision", source.GameID, to, source.EnvName)
	}

	release := &BundleReleaseRecord{
		ID:           uuid.New().String(),
		Version:      0, // set once the target version is known
		Selection:    schema.JSONStringMap(selection),
		Configs:      schema.JSONAny(configs),
		CompiledHash: hash,
		CreatedBy:    actor,
	}

	var targetID string
	err = d.store.DB().Transaction(func(tx *gorm.DB) error {
		if target == nil {
			rec := &ChannelRecord{
				ID:               uuid.New().String(),
				GameID:           source.GameID,
				ToolEnvironment:  string(to),
				EnvName:          source.EnvName,
				SchemaRevisionID: source.SchemaRevisionID,
				CreatedBy:        actor,
			}
			if err := createChannelTx(tx, rec); err != nil {
				return err
			}
			targetID = rec.ID
			target = channelToAPI(rec, &ChannelStateRecord{ChannelID: rec.ID})
		} else {
			targetID = target.ID
		}

		prevVersion := target.State.CurrentVersion
		newVersion := prevVersion + 1

		release.ChannelID = targetID
		release.Version = newVersion
		if err := tx.Create(release).Error; err != nil {
			return fmt.Errorf("create release: %w", err)
		}

		return d.advanceState(tx, targetID, prevVersion, newVersion, release.ID, target.State.CurrentReleaseID, actor, action, map[string]any{
			"selection":       selection,
			"compiledHash":    hash,
			"sourceChannelId": source.ID,
			"from":            string(source.ToolEnvironment),
			"to":              string(to),
		})
	})
	if err != nil {
		return nil, nil, err
	}

	refreshed, err := d.store.Get(targetID)
	if err != nil {
		return nil, nil, err
	}
	return releaseToAPI(release), refreshed, nil
}

// advanceState performs the conditional version bump and appends the audit
// record inside tx. A concurrent promotion that already advanced the
// version makes the conditional update match zero rows, which surfaces as
// VERSION_CONFLICT and rolls the whole transaction back.
func (d *Deployer) advanceState(tx *gorm.DB, channelID string, prevVersion, newVersion int, releaseID, fromReleaseID, actor, action string, snapshot map[string]any) error {
	res := tx.Model(&ChannelStateRecord{}).
		Where("channel_id = ? AND current_version = ?", channelID, prevVersion).
		Updates(map[string]any{
			"current_version":    newVersion,
			"current_release_id": releaseID,
		})
	if res.Error != nil {
		return fmt.Errorf("advance channel state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return workflowError("VERSION_CONFLICT", "channel %q version moved past %d, retry the operation", channelID, prevVersion)
	}

	record := &DeploymentRecord{
		ID:            uuid.New().String(),
		ChannelID:     channelID,
		Action:        action,
		FromReleaseID: fromReleaseID,
		ToReleaseID:   releaseID,
		FromVersion:   prevVersion,
		ToVersion:     newVersion,
		CreatedBy:     actor,
		Snapshot:      schema.JSONAny(snapshot),
	}
	if err := tx.Create(record).Error; err != nil {
		return fmt.Errorf("append deployment record: %w", err)
	}
	return nil
}

// RollbackInput identifies the historical release to repoint a channel at.
type RollbackInput struct {
	GameID          string `json:"gameId"`
	EnvName         string `json:"envName"`
	ToolEnvironment string `json:"toolEnvironment"`
	ToReleaseID     string `json:"toReleaseId"`
}

// Rollback repoints a staging or production channel at one of its own
// historical releases. No new release row is created, but the version
// counter still advances by one so every transition, forward or backward,
// consumes exactly one version number.
func (d *Deployer) Rollback(ctx context.Context, actor string, in *RollbackInput) (result *DeployResult, err error) {
	if d.metrics != nil {
		defer func() { d.metrics.ObserveDeploy("rollback", err) }()
	}

	env, perr := ParseToolEnv(in.ToolEnvironment)
	if perr != nil {
		return nil, workflowError("INVALID_ENVIRONMENT", "%v", perr)
	}
	if !env.Rollbackable() {
		return nil, workflowError("WRONG_ENVIRONMENT", "rollback applies to staging and production channels, not %s", env)
	}

	ch, err := d.store.GetByKey(in.GameID, env, in.EnvName)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "no %s channel %s/%s", env, in.GameID, in.EnvName)
	}

	release, err := d.store.GetRelease(in.ToReleaseID)
	if err != nil {
		return nil, err
	}
	if release == nil || release.ChannelID != ch.ID {
		return nil, workflowError("RELEASE_NOT_FOUND", "release %q does not belong to channel %s/%s/%s", in.ToReleaseID, in.GameID, env, in.EnvName)
	}

	prevVersion := ch.State.CurrentVersion
	newVersion := prevVersion + 1
	err = d.store.DB().Transaction(func(tx *gorm.DB) error {
		return d.advanceState(tx, ch.ID, prevVersion, newVersion, release.ID, ch.State.CurrentReleaseID, actor, "rollback", map[string]any{
			"selection":    release.Selection,
			"compiledHash": release.CompiledHash,
		})
	})
	if err != nil {
		return nil, err
	}

	refreshed, err := d.store.Get(ch.ID)
	if err != nil {
		return nil, err
	}
	d.invalidateCache(refreshed)
	result = &DeployResult{
		Channel:      refreshed,
		ReleaseID:    release.ID,
		NewVersion:   newVersion,
		CompiledHash: release.CompiledHash,
	}
	result.PublishLocations, result.PublishError = d.publish(ctx, refreshed, release, newVersion)
	return result, nil
}

// RetryPublish re-runs the artifact write for a channel's currently active
// release, for deployments whose publish failed after commit.
func (d *Deployer) RetryPublish(ctx context.Context, releaseID string) (*BundleRelease, error) {
	release, err := d.store.GetRelease(releaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, workflowError("RELEASE_NOT_FOUND", "release %q not found", releaseID)
	}

	ch, err := d.store.Get(release.ChannelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "channel %q not found", release.ChannelID)
	}
	if ch.State.CurrentReleaseID != release.ID {
		return nil, workflowError("RELEASE_NOT_ACTIVE", "release %q is not the channel's active release", releaseID)
	}

	d.publish(ctx, ch, release, ch.State.CurrentVersion)
	d.invalidateCache(ch)
	return d.store.GetRelease(releaseID)
}

// publish hands the compiled artifact to the publisher and records the
// outcome on the release. The deployment is already committed; a publish
// failure is logged and stored for retry, never propagated as an error.
func (d *Deployer) publish(ctx context.Context, ch *Channel, release *BundleRelease, version int) ([]string, string) {
	if d.publisher == nil {
		return nil, ""
	}

	artifact := &publisher.Artifact{
		GameID:          ch.GameID,
		ToolEnvironment: string(ch.ToolEnvironment),
		EnvName:         ch.EnvName,
		Version:         version,
		CompiledHash:    release.CompiledHash,
		Configs:         release.Configs,
	}
	locations, err := d.publisher.Publish(ctx, artifact)
	if err != nil {
		d.logger.Error("artifact publish failed",
			"channel", ch.ID,
			"release", release.ID,
			"version", version,
			"error", err)
		if d.metrics != nil {
			d.metrics.PublishFailures.Inc()
		}
		if dbErr := d.store.db.Model(&BundleReleaseRecord{}).Where("id = ?", release.ID).Updates(map[string]any{
			"published_at":  nil,
			"publish_error": err.Error(),
		}).Error; dbErr != nil {
			d.logger.Error("failed to record publish failure",
				"release", release.ID,
				"error", dbErr)
		}
		return nil, err.Error()
	}

	now := time.Now()
	if dbErr := d.store.db.Model(&BundleReleaseRecord{}).Where("id = ?", release.ID).Updates(map[string]any{
		"published_at":  &now,
		"publish_error": "",
	}).Error; dbErr != nil {
		d.logger.Error("failed to record publish status",
			"release", release.ID,
			"error", dbErr)
	}

	d.logger.Info("artifact published",
		"channel", ch.ID,
		"release", release.ID,
		"version", version,
		"hash", release.CompiledHash,
		"locations", locations)
	return locations, ""
}
