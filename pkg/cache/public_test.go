package cache

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Enabled: true, TTL: 5 * time.Second, MaxChannels: 100}
}

// pollHandler counts invocations and echoes the request path so tests can
// tell a cached body from a fresh one.
func pollHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"path":%q,"poll":%d}`, r.URL.Path, *calls)
	})
}

func poll(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPublicCache_DisabledReturnsNil(t *testing.T) {
	pc := NewPublicCache(Config{Enabled: false}, "/public/v1")
	require.Nil(t, pc)

	// A nil cache still yields a working pass-through middleware.
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	rec := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	assert.Equal(t, 2, calls)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestPublicCache_ServesRepeatPollsFromCache(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	first := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, calls, "cached poll must not reach the handler")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestPublicCache_VersionAndConfigsCachedIndependently(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	configs := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs")
	assert.Equal(t, "MISS", configs.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	// Both payloads live on one channel entry.
	assert.Equal(t, 1, pc.Len())
	cached := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs")
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))
	assert.Contains(t, cached.Body.String(), "/configs")
}

func TestPublicCache_OnlyGETRequestsCached(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	rec := poll(wrapped, http.MethodPost, "/public/v1/dragon-saga/live/version")
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 0, pc.Len())
}

func TestPublicCache_ErrorResponsesNotCached(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	missing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"no production channel"}`, http.StatusNotFound)
	})
	wrapped := pc.Middleware()(missing)

	// 404 until a production channel exists; every poll reaches the handler.
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs")
	rec := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, pc.Len())
}

func TestPublicCache_UnrecognizedPathsPassThrough(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	for _, path := range []string{
		"/public/v1/dragon-saga/live/manifest",
		"/public/v1/dragon-saga/live",
		"/healthz",
		"/public/v1/dragon-saga/live/version?foo=1",
	} {
		rec := poll(wrapped, http.MethodGet, path)
		assert.Empty(t, rec.Header().Get("X-Cache"), "path %s must not be cached", path)
	}
	assert.Equal(t, 0, pc.Len())
}

func TestPublicCache_EntriesExpire(t *testing.T) {
	pc := NewPublicCache(Config{Enabled: true, TTL: 10 * time.Millisecond, MaxChannels: 10}, "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	time.Sleep(20 * time.Millisecond)

	rec := poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestPublicCache_InvalidateChannelScopedToOneEnvironment(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs")
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/beta/version")
	require.Equal(t, 2, pc.Len())

	pc.InvalidateChannel("dragon-saga", "live")
	assert.Equal(t, 1, pc.Len())

	// Both payloads of the invalidated channel are gone.
	assert.Equal(t, "MISS", poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version").Header().Get("X-Cache"))
	assert.Equal(t, "MISS", poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/configs").Header().Get("X-Cache"))

	// The sibling environment survives.
	assert.Equal(t, "HIT", poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/beta/version").Header().Get("X-Cache"))
}

func TestPublicCache_EvictsLeastRecentlyPolledChannel(t *testing.T) {
	pc := NewPublicCache(Config{Enabled: true, TTL: 5 * time.Second, MaxChannels: 2}, "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/beta/version")

	// Touch live so beta is the coldest when a third channel arrives.
	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	poll(wrapped, http.MethodGet, "/public/v1/star-forge/live/version")

	require.Equal(t, 2, pc.Len())
	assert.Equal(t, "HIT", poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version").Header().Get("X-Cache"))
	assert.Equal(t, "MISS", poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/beta/version").Header().Get("X-Cache"))
}

func TestPublicCache_NilSafe(t *testing.T) {
	var pc *PublicCache
	pc.InvalidateChannel("dragon-saga", "live")
	pc.InvalidateAll()
	assert.Equal(t, 0, pc.Len())
	require.NotNil(t, pc.Middleware())
}

func TestPublicCache_InvalidateAll(t *testing.T) {
	pc := NewPublicCache(testConfig(), "/public/v1")
	calls := 0
	wrapped := pc.Middleware()(pollHandler(&calls))

	poll(wrapped, http.MethodGet, "/public/v1/dragon-saga/live/version")
	poll(wrapped, http.MethodGet, "/public/v1/star-forge/live/version")
	require.Equal(t, 2, pc.Len())

	pc.InvalidateAll()
	assert.Equal(t, 0, pc.Len())
}
