package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// createRevisionHandler returns a handler that creates a new schema revision.
func createRevisionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in RevisionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		rev, err := store.CreateRevision(extractActor(r), &in)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rev)
	}
}

// listRevisionsHandler returns a handler that lists revision roots,
// optionally filtered by gameId.
func listRevisionsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		revisions, err := store.ListRevisions(r.URL.Query().Get("gameId"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list schema revisions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schemas": revisions})
	}
}

// getRevisionHandler returns a handler that retrieves one full revision.
func getRevisionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rev, err := store.GetRevision(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get schema revision: %v", err))
			return
		}
		if rev == nil {
			writeError(w, http.StatusNotFound, "schema revision not found")
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}

// overwriteRevisionHandler returns a handler that destructively replaces a
// revision's contents. Bound channels block the overwrite unless forced via
// ?force=true or the forceDeleteChannels body flag.
func overwriteRevisionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in RevisionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		rev, err := store.OverwriteRevision(chi.URLParam(r, "id"), &in, forceParam(r) || in.ForceDeleteChannels)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}

// deleteRevisionHandler returns a handler that deletes a revision and
// reports which bound channels were destroyed with it. An optional ?gameId=
// guards against deleting another game's revision by mistake.
func deleteRevisionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		destroyed, err := store.DeleteRevision(chi.URLParam(r, "id"), r.URL.Query().Get("gameId"), forceParam(r))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if destroyed == nil {
			destroyed = []ChannelRef{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"destroyedChannels": destroyed})
	}
}

// forceParam reports whether the request carries ?force=true.
func forceParam(r *http.Request) bool {
	return r.URL.Query().Get("force") == "true"
}

// writeStoreError maps store errors to HTTP responses, preserving
// machine-readable codes for validation and conflict failures.
func writeStoreError(w http.ResponseWriter, err error) {
	var invalid *InvalidRevisionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": invalid.Message, "code": invalid.Code})
		return
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    conflict.Message,
			"code":     conflict.Code,
			"channels": conflict.Channels,
		})
		return
	}
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "schema revision not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// extractActor extracts the actor from the request headers.
// Prefers X-User-Principal over X-User-Role, falls back to "system".
func extractActor(r *http.Request) string {
	if principal := r.Header.Get("X-User-Principal"); principal != "" {
		return principal
	}
	if role := r.Header.Get("X-User-Role"); role != "" {
		return role
	}
	return "system"
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
