// Package server wires the schema registry, channel pipeline, and
// publisher into one HTTP service.
package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from YAML with unknown keys
// rejected so typos surface at startup instead of silently defaulting.
type Config struct {
	Listen    string          `yaml:"listen"`
	Database  DatabaseConfig  `yaml:"database"`
	Publisher PublisherConfig `yaml:"publisher"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	Cache     CacheConfig     `yaml:"cache"`
}

// CacheConfig controls the response cache on the public polling endpoints.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	TTLSeconds int  `yaml:"ttlSeconds"`
	// MaxChannels bounds how many game environments hold cached payloads
	// at once; the least recently polled one is evicted past the limit.
	MaxChannels int `yaml:"maxChannels"`
}

// DatabaseConfig selects the backing relational store.
type DatabaseConfig struct {
	// Type is one of sqlite, postgres, mysql.
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// PublisherConfig configures the artifact sink. An empty root disables
// durable publication.
type PublisherConfig struct {
	Root string `yaml:"root"`
}

// AuthConfig selects how the acting principal is resolved.
type AuthConfig struct {
	// Mode is "header" (trusted proxy headers) or "jwt".
	Mode string    `yaml:"mode"`
	JWT  JWTConfig `yaml:"jwt"`
}

// JWTConfig configures Bearer token parsing for actor extraction.
type JWTConfig struct {
	// PublicKeyPath is a PEM-encoded RSA public key for RS256
	// verification. If empty, tokens are parsed but not verified
	// (trusted proxy mode).
	PublicKeyPath string `yaml:"publicKeyPath"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	// PrincipalClaim is the claim carrying the actor name. Default "sub".
	PrincipalClaim string `yaml:"principalClaim"`
}

// CORSConfig configures cross-origin access for the tool UI.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8080",
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "liveops.db",
		},
		Auth: AuthConfig{Mode: "header"},
		CORS: CORSConfig{
			AllowedOrigins: []string{"https://*", "http://*"},
		},
		Cache: CacheConfig{
			Enabled:     true,
			TTLSeconds:  10,
			MaxChannels: 256,
		},
	}
}

// LoadConfig reads and validates a YAML config file. Fields not set in the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes config bytes, rejecting unknown fields.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for startup-blocking mistakes.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn is required")
	}
	switch c.Auth.Mode {
	case "", "header", "jwt":
	default:
		return fmt.Errorf("config: unsupported auth mode %q", c.Auth.Mode)
	}
	return nil
}

// WatchConfig watches the config file and invokes onChange with freshly
// parsed contents on every modification. Invalid edits are logged and
// skipped so a typo cannot take the service down. Blocks until ctx is done.
func WatchConfig(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files by rename, which drops
	// a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
