package publisher

import (
	"context"
	"fmt"
	"sync"
)

// MemoryPublisher keeps published artifacts in memory. Used in tests and as
// a stand-in sink when no durable root is configured.
type MemoryPublisher struct {
	mu        sync.Mutex
	artifacts map[string]*Artifact
	failWith  error
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{artifacts: make(map[string]*Artifact)}
}

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (p *MemoryPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(ctx context.Context, artifact *Artifact) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return nil, p.failWith
	}
	key := artifactKey(artifact.GameID, artifact.ToolEnvironment, artifact.EnvName)
	p.artifacts[key] = artifact
	return []string{"memory://" + key}, nil
}

// Get returns the last artifact published for the key, or nil.
func (p *MemoryPublisher) Get(gameID, toolEnv, envName string) *Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifacts[artifactKey(gameID, toolEnv, envName)]
}

func artifactKey(gameID, toolEnv, envName string) string {
	return fmt.Sprintf("%s/%s/%s", gameID, toolEnv, envName)
}
