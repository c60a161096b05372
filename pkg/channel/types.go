// Package channel implements the channel lifecycle, the draft and freeze
// engine, and the deployment pipeline. A channel is the deployable unit,
// keyed by game, tool environment, and environment name, bound to exactly
// one immutable schema revision. Content is edited only in development,
// frozen into immutable section versions, compiled into releases, and
// promoted one step at a time toward production.
package channel

import (
	"fmt"
	"time"
)

// ToolEnv is the promotion stage of a channel. It is distinct from the
// channel's envName, which is a game-defined logical environment such as
// "live" or "beta".
type ToolEnv string

const (
	EnvDevelopment ToolEnv = "development"
	EnvStaging     ToolEnv = "staging"
	EnvProduction  ToolEnv = "production"
)

// ParseToolEnv validates a tool environment string.
func ParseToolEnv(s string) (ToolEnv, error) {
	switch ToolEnv(s) {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return ToolEnv(s), nil
	}
	return "", fmt.Errorf("unknown tool environment %q", s)
}

// Editable reports whether channel content may be modified in this stage.
// Only development channels accept draft edits, freezes, and resets.
func (e ToolEnv) Editable() bool { return e == EnvDevelopment }

// PromotesTo returns the next stage in the promotion graph.
// The graph is strictly linear: development to staging to production.
func (e ToolEnv) PromotesTo() (ToolEnv, bool) {
	switch e {
	case EnvDevelopment:
		return EnvStaging, true
	case EnvStaging:
		return EnvProduction, true
	}
	return "", false
}

// Rollbackable reports whether the stage accepts rollbacks. Development
// channels recompile from drafts instead of rolling back.
func (e ToolEnv) Rollbackable() bool {
	return e == EnvStaging || e == EnvProduction
}

// ValidateDeploy checks that from->to is a legal promotion.
// Returns nil if allowed, a TransitionError with a machine-readable code
// if not. Checked before any persistence happens.
func ValidateDeploy(from, to ToolEnv) error {
	next, ok := from.PromotesTo()
	if ok && next == to {
		return nil
	}
	return &TransitionError{
		Code:    "ILLEGAL_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("deploy from %s to %s is not allowed; promotions run development to staging to production", from, to),
	}
}

// ChannelState is the mutable deployment pointer of a channel.
type ChannelState struct {
	CurrentVersion   int       `json:"currentVersion"`
	CurrentReleaseID string    `json:"currentReleaseId,omitempty"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Channel is the API shape of a channel with its state.
type Channel struct {
	ID               string       `json:"id"`
	GameID           string       `json:"gameId"`
	ToolEnvironment  ToolEnv      `json:"toolEnvironment"`
	EnvName          string       `json:"envName"`
	SchemaRevisionID string       `json:"schemaRevisionId"`
	CreatedBy        string       `json:"createdBy"`
	CreatedAt        time.Time    `json:"createdAt"`
	State            ChannelState `json:"state"`
}

// SectionDraft is the API shape of one table's mutable working copy.
type SectionDraft struct {
	ChannelID    string           `json:"channelId"`
	TemplateName string           `json:"templateName"`
	Rows         []map[string]any `json:"rows"`
	UpdatedBy    string           `json:"updatedBy,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// SectionVersion is the API shape of an immutable frozen snapshot.
type SectionVersion struct {
	ID            string           `json:"id"`
	ChannelID     string           `json:"channelId"`
	TemplateName  string           `json:"templateName"`
	VersionNumber int              `json:"versionNumber"`
	Label         string           `json:"label"`
	Rows          []map[string]any `json:"rows"`
	CreatedBy     string           `json:"createdBy,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// BundleDraft is the API shape of a channel's release candidate selection,
// mapping table names to frozen section version ids.
type BundleDraft struct {
	ChannelID string            `json:"channelId"`
	Selection map[string]string `json:"selection"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// BundleRelease is the API shape of an immutable compiled artifact.
// PublishedAt and PublishError track the durable write separately from the
// deployment itself, which commits regardless of publish outcome.
type BundleRelease struct {
	ID           string            `json:"id"`
	ChannelID    string            `json:"channelId"`
	Version      int               `json:"version"`
	Selection    map[string]string `json:"selection,omitempty"`
	Configs      map[string]any    `json:"compiledConfigs,omitempty"`
	CompiledHash string            `json:"compiledHash"`
	CreatedBy    string            `json:"createdBy,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	PublishedAt  *time.Time        `json:"publishedAt,omitempty"`
	PublishError string            `json:"publishError,omitempty"`
}

// Deployment is the API shape of one append-only audit record.
type Deployment struct {
	ID            string         `json:"id"`
	ChannelID     string         `json:"channelId"`
	Action        string         `json:"action"`
	FromReleaseID string         `json:"fromReleaseId,omitempty"`
	ToReleaseID   string         `json:"toReleaseId"`
	FromVersion   int            `json:"fromVersion"`
	ToVersion     int            `json:"toVersion"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	Snapshot      map[string]any `json:"snapshot,omitempty"`
}
