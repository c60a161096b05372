// Package cache holds the short-TTL response cache in front of the public
// polling endpoints game clients hit at high rate.
package cache

import (
	"bytes"
	"net/http"
	"strings"
	"sync"
	"time"
)

// payloadKind distinguishes the two responses a channel exposes publicly.
type payloadKind int

const (
	kindVersion payloadKind = iota
	kindConfigs
)

// payload is one cached response body.
type payload struct {
	body      []byte
	expiresAt time.Time
}

// channelEntry holds the cached version descriptor and compiled-configs
// payload of one game environment. touched tracks the last poll so cold
// channels are the first to go when the cache is full.
type channelEntry struct {
	version *payload
	configs *payload
	touched time.Time
}

// Config controls the public response cache.
type Config struct {
	Enabled     bool
	TTL         time.Duration
	MaxChannels int
}

// DefaultConfig returns the cache settings used when none are configured.
// The TTL is deliberately short: it bounds request amplification during
// polling spikes without delaying a promoted bundle noticeably.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		TTL:         10 * time.Second,
		MaxChannels: 256,
	}
}

// PublicCache caches the public version descriptor and compiled-configs
// responses per game environment. Deploys, rollbacks, and publish retries
// invalidate the affected channel so clients never poll a stale bundle past
// the TTL.
type PublicCache struct {
	mu          sync.Mutex
	channels    map[string]*channelEntry
	basePath    string
	ttl         time.Duration
	maxChannels int
}

// NewPublicCache creates a PublicCache for responses served under basePath.
// Returns nil when the cache is disabled; a nil PublicCache is safe to use
// and never caches.
func NewPublicCache(cfg Config, basePath string) *PublicCache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxChannels < 1 {
		cfg.MaxChannels = DefaultConfig().MaxChannels
	}
	return &PublicCache{
		channels:    make(map[string]*channelEntry),
		basePath:    strings.TrimSuffix(basePath, "/"),
		ttl:         cfg.TTL,
		maxChannels: cfg.MaxChannels,
	}
}

// InvalidateChannel drops the cached version descriptor and configs payload
// of one game environment.
func (pc *PublicCache) InvalidateChannel(gameID, envName string) {
	if pc == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.channels, gameID+"/"+envName)
}

// InvalidateAll clears the whole cache.
func (pc *PublicCache) InvalidateAll() {
	if pc == nil {
		return
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.channels = make(map[string]*channelEntry)
}

// Len reports how many game environments currently have cached payloads.
func (pc *PublicCache) Len() int {
	if pc == nil {
		return 0
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return len(pc.channels)
}

// Middleware returns middleware that serves the public polling endpoints
// from the cache, or a pass-through when the cache is disabled. Only GET
// requests for recognized channel paths are cached, and only 200 responses;
// everything else reaches the handler untouched. Responses carry an
// X-Cache HIT or MISS header.
func (pc *PublicCache) Middleware() func(http.Handler) http.Handler {
	if pc == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gameID, envName, kind, ok := pc.splitPath(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if body, ok := pc.lookup(gameID, envName, kind); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}

			rec := &recordedResponse{ResponseWriter: w, status: http.StatusOK}
			rec.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				pc.store(gameID, envName, kind, rec.buf.Bytes())
			}
		})
	}
}

// splitPath extracts the channel coordinates from a public polling request.
// The path must be exactly basePath/{gameId}/{envName}/version or /configs;
// anything else, including non-GET methods and query strings, is not cached.
func (pc *PublicCache) splitPath(r *http.Request) (gameID, envName string, kind payloadKind, ok bool) {
	if r.Method != http.MethodGet || r.URL.RawQuery != "" {
		return "", "", 0, false
	}
	rest, found := strings.CutPrefix(r.URL.Path, pc.basePath+"/")
	if !found {
		return "", "", 0, false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", 0, false
	}
	switch parts[2] {
	case "version":
		kind = kindVersion
	case "configs":
		kind = kindConfigs
	default:
		return "", "", 0, false
	}
	return parts[0], parts[1], kind, true
}

// lookup returns the cached payload for a channel, expiring it lazily.
func (pc *PublicCache) lookup(gameID, envName string, kind payloadKind) ([]byte, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	key := gameID + "/" + envName
	ch, ok := pc.channels[key]
	if !ok {
		return nil, false
	}

	p := ch.version
	if kind == kindConfigs {
		p = ch.configs
	}
	if p == nil {
		return nil, false
	}

	now := time.Now()
	if now.After(p.expiresAt) {
		if kind == kindConfigs {
			ch.configs = nil
		} else {
			ch.version = nil
		}
		if ch.version == nil && ch.configs == nil {
			delete(pc.channels, key)
		}
		return nil, false
	}

	ch.touched = now
	return p.body, true
}

// store records a payload for a channel, evicting the least recently polled
// channel when the cache is full.
func (pc *PublicCache) store(gameID, envName string, kind payloadKind, body []byte) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	key := gameID + "/" + envName
	now := time.Now()

	ch, ok := pc.channels[key]
	if !ok {
		if len(pc.channels) >= pc.maxChannels {
			pc.evictColdest()
		}
		ch = &channelEntry{}
		pc.channels[key] = ch
	}
	ch.touched = now

	p := &payload{body: body, expiresAt: now.Add(pc.ttl)}
	if kind == kindConfigs {
		ch.configs = p
	} else {
		ch.version = p
	}
}

// evictColdest drops the channel with the oldest poll. Caller holds pc.mu.
func (pc *PublicCache) evictColdest() {
	var coldestKey string
	var coldest time.Time
	for key, ch := range pc.channels {
		if coldestKey == "" || ch.touched.Before(coldest) {
			coldestKey = key
			coldest = ch.touched
		}
	}
	if coldestKey != "" {
		delete(pc.channels, coldestKey)
	}
}

// recordedResponse captures the status and body so 200 responses can be
// stored after the handler runs.
type recordedResponse struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recordedResponse) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recordedResponse) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
