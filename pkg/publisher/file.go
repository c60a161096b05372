package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configsFileName = "configs.json"
	versionFileName = "version.json"
)

// ErrInvalidKey is returned when an artifact key component would escape the
// publisher root or produce an unusable path.
var ErrInvalidKey = errors.New("artifact key contains invalid path characters")

// FilePublisher writes artifacts under a root directory, keyed by
// game/toolEnvironment/envName. Both payloads are written atomically
// (temp file, fsync, rename); the configs object lands before the version
// descriptor so a poller never sees a version whose payload is missing.
type FilePublisher struct {
	root string
}

// NewFilePublisher creates a FilePublisher rooted at dir.
func NewFilePublisher(dir string) *FilePublisher {
	return &FilePublisher{root: dir}
}

// Publish implements Publisher.
func (p *FilePublisher) Publish(ctx context.Context, artifact *Artifact) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, part := range []string{artifact.GameID, artifact.ToolEnvironment, artifact.EnvName} {
		if err := validateKeyPart(part); err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(p.root, artifact.GameID, artifact.ToolEnvironment, artifact.EnvName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("publisher: create artifact dir: %w", err)
	}

	configsPath := filepath.Join(dir, configsFileName)
	if err := writeJSONAtomic(configsPath, artifact.Configs); err != nil {
		return nil, err
	}

	versionPath := filepath.Join(dir, versionFileName)
	descriptor := Descriptor{Version: artifact.Version, Env: artifact.EnvName}
	if err := writeJSONAtomic(versionPath, descriptor); err != nil {
		return nil, err
	}

	return []string{configsPath, versionPath}, nil
}

// validateKeyPart rejects empty components and anything that would change
// the directory layout.
func validateKeyPart(part string) error {
	if part == "" || part == "." || part == ".." {
		return ErrInvalidKey
	}
	if strings.ContainsAny(part, "/\\") {
		return ErrInvalidKey
	}
	return nil
}

// writeJSONAtomic marshals v and writes it with temp-file-then-rename
// semantics so readers never observe a partial payload.
func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("publisher: marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("publisher: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publisher: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("publisher: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publisher: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publisher: rename temp file: %w", err)
	}
	tmpName = "" // prevent deferred Remove

	return nil
}
