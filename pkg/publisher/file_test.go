package publisher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		GameID:          "dragon-saga",
		ToolEnvironment: "production",
		EnvName:         "live",
		Version:         3,
		CompiledHash:    "abc123",
		Configs:         map[string]any{"Items": []any{map[string]any{"ID": "sword"}}},
	}
}

func TestFilePublisher_WritesBothPayloads(t *testing.T) {
	root := t.TempDir()
	p := NewFilePublisher(root)

	locations, err := p.Publish(context.Background(), sampleArtifact())
	require.NoError(t, err)
	require.Len(t, locations, 2)

	dir := filepath.Join(root, "dragon-saga", "production", "live")

	configsData, err := os.ReadFile(filepath.Join(dir, "configs.json"))
	require.NoError(t, err)
	var configs map[string]any
	require.NoError(t, json.Unmarshal(configsData, &configs))
	assert.Contains(t, configs, "Items")

	versionData, err := os.ReadFile(filepath.Join(dir, "version.json"))
	require.NoError(t, err)
	var descriptor Descriptor
	require.NoError(t, json.Unmarshal(versionData, &descriptor))
	assert.Equal(t, 3, descriptor.Version)
	assert.Equal(t, "live", descriptor.Env)
}

func TestFilePublisher_OverwritesOnRepublish(t *testing.T) {
	root := t.TempDir()
	p := NewFilePublisher(root)

	artifact := sampleArtifact()
	_, err := p.Publish(context.Background(), artifact)
	require.NoError(t, err)

	artifact.Version = 4
	_, err = p.Publish(context.Background(), artifact)
	require.NoError(t, err)

	versionData, err := os.ReadFile(filepath.Join(root, "dragon-saga", "production", "live", "version.json"))
	require.NoError(t, err)
	var descriptor Descriptor
	require.NoError(t, json.Unmarshal(versionData, &descriptor))
	assert.Equal(t, 4, descriptor.Version)
}

func TestFilePublisher_RejectsTraversalKeys(t *testing.T) {
	p := NewFilePublisher(t.TempDir())

	for _, bad := range []string{"..", "a/b", `a\b`, ""} {
		artifact := sampleArtifact()
		artifact.GameID = bad
		_, err := p.Publish(context.Background(), artifact)
		assert.ErrorIs(t, err, ErrInvalidKey, "gameId %q must be rejected", bad)
	}
}

func TestFilePublisher_NoTempFilesLeftBehind(t *testing.T) {
	root := t.TempDir()
	p := NewFilePublisher(root)

	_, err := p.Publish(context.Background(), sampleArtifact())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "dragon-saga", "production", "live"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestMemoryPublisher_FailureInjection(t *testing.T) {
	p := NewMemoryPublisher()

	_, err := p.Publish(context.Background(), sampleArtifact())
	require.NoError(t, err)
	require.NotNil(t, p.Get("dragon-saga", "production", "live"))

	p.FailWith(os.ErrPermission)
	_, err = p.Publish(context.Background(), sampleArtifact())
	assert.ErrorIs(t, err, os.ErrPermission)
}
