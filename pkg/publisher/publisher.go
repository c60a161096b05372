// Package publisher persists compiled configuration artifacts for public
// retrieval. For each channel it writes two payloads: a small version
// descriptor that clients poll cheaply, and the full compiled configuration
// object fetched only when the version changes.
package publisher

import "context"

// Artifact is one compiled bundle ready for durable publication.
type Artifact struct {
	GameID          string         `json:"gameId"`
	ToolEnvironment string         `json:"toolEnvironment"`
	EnvName         string         `json:"envName"`
	Version         int            `json:"version"`
	CompiledHash    string         `json:"compiledHash"`
	Configs         map[string]any `json:"configs"`
}

// Descriptor is the small version payload clients poll before fetching the
// full configuration object.
type Descriptor struct {
	Version int    `json:"version"`
	Env     string `json:"env"`
}

// Publisher durably persists compiled artifacts. Publication is
// at-least-once best-effort: the deployment commits regardless of the
// outcome here, and failed publishes are retried out of band.
type Publisher interface {
	// Publish writes the artifact and returns the locations written.
	Publish(ctx context.Context, artifact *Artifact) ([]string, error)
}
