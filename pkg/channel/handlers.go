package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// notFoundCodes are the workflow error codes mapped to HTTP 404.
var notFoundCodes = map[string]bool{
	"CHANNEL_NOT_FOUND":  true,
	"SCHEMA_NOT_FOUND":   true,
	"TEMPLATE_NOT_FOUND": true,
	"DRAFT_NOT_FOUND":    true,
	"VERSION_NOT_FOUND":  true,
	"RELEASE_NOT_FOUND":  true,
	"NO_ACTIVE_RELEASE":  true,
}

// conflictCodes are the workflow error codes mapped to HTTP 409.
var conflictCodes = map[string]bool{
	"CHANNEL_EXISTS":   true,
	"VERSION_CONFLICT": true,
}

// writeOpError maps pipeline errors to HTTP responses. Validation failures
// return the full issue list so operators can fix everything in one pass.
func writeOpError(w http.ResponseWriter, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  validation.Message,
			"code":   validation.Code,
			"issues": validation.Issues,
		})
		return
	}
	var transition *TransitionError
	if errors.As(err, &transition) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": transition.Message,
			"code":  transition.Code,
			"from":  transition.From,
			"to":    transition.To,
		})
		return
	}
	var workflow *WorkflowError
	if errors.As(err, &workflow) {
		status := http.StatusBadRequest
		switch {
		case notFoundCodes[workflow.Code]:
			status = http.StatusNotFound
		case conflictCodes[workflow.Code]:
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": workflow.Message, "code": workflow.Code})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// createChannelHandler returns a handler that binds a new channel to a
// schema revision.
func createChannelHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in CreateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		ch, err := store.Create(extractActor(r), &in)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ch)
	}
}

// listChannelsHandler returns a handler that lists channels, optionally
// scoped by gameId and toolEnvironment.
func listChannelsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channels, err := store.List(r.URL.Query().Get("gameId"), r.URL.Query().Get("toolEnvironment"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list channels: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
	}
}

func getChannelHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := store.Get(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get channel: %v", err))
			return
		}
		if ch == nil {
			writeError(w, http.StatusNotFound, "channel not found")
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}

func deleteChannelHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(chi.URLParam(r, "id")); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// resetChannelHandler returns a handler that clears a development channel,
// optionally rebinding it to another schema revision.
func resetChannelHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SchemaRevisionID string `json:"schemaRevisionId"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}
		ch, err := store.Reset(chi.URLParam(r, "id"), body.SchemaRevisionID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}

func pullStagingHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := store.PullFromStaging(chi.URLParam(r, "id"), extractActor(r))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func getDraftHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := store.GetDraft(chi.URLParam(r, "id"), chi.URLParam(r, "template"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get draft: %v", err))
			return
		}
		if draft == nil {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

// upsertDraftHandler returns a handler that replaces one table's draft
// rows. Validation failures come back as HTTP 400 with the issue list and
// leave the stored draft untouched.
func upsertDraftHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Rows any `json:"rows"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		draft, issues, err := store.UpsertDraft(chi.URLParam(r, "id"), chi.URLParam(r, "template"), body.Rows, extractActor(r))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"draft": draft, "issues": issues})
	}
}

func freezeHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Label string `json:"label"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}

		version, issues, err := store.Freeze(chi.URLParam(r, "id"), chi.URLParam(r, "template"), body.Label, extractActor(r))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"version": version, "issues": issues})
	}
}

func listVersionsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := store.ListVersions(chi.URLParam(r, "id"), r.URL.Query().Get("template"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list versions: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
	}
}

func deleteVersionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteVersion(chi.URLParam(r, "id"), chi.URLParam(r, "versionId")); err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func getBundleDraftHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		draft, err := store.GetBundleDraft(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get bundle draft: %v", err))
			return
		}
		if draft == nil {
			writeError(w, http.StatusNotFound, "bundle draft not found")
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func updateBundleDraftHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Selection map[string]string `json:"selection"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		draft, err := store.UpdateBundleDraft(chi.URLParam(r, "id"), body.Selection, extractActor(r))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func listReleasesHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		releases, err := store.ListReleases(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list releases: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"releases": releases})
	}
}

func listDeploymentsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deployments, err := store.ListDeployments(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list deployments: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deployments": deployments})
	}
}

func deployHandler(deployer *Deployer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in DeployInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		result, err := deployer.Deploy(r.Context(), extractActor(r), &in)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func rollbackHandler(deployer *Deployer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in RollbackInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		result, err := deployer.Rollback(r.Context(), extractActor(r), &in)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func retryPublishHandler(deployer *Deployer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		release, err := deployer.RetryPublish(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, release)
	}
}

// publicVersionHandler serves the small version descriptor for the
// production channel of a game environment.
func publicVersionHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := activeProduction(store, r)
		if err != nil {
			writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version": ch.State.CurrentVersion,
			"env":     ch.EnvName,
		})
	}
}

// publicConfigsHandler serves the full compiled payload of the production
// channel's active release.
func publicConfigsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := activeProduction(store, r)
		if err != nil {
			writeOpError(w, err)
			return
		}
		release, err := store.GetRelease(ch.State.CurrentReleaseID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load release: %v", err))
			return
		}
		if release == nil {
			writeError(w, http.StatusNotFound, "no published configuration")
			return
		}
		writeJSON(w, http.StatusOK, release.Configs)
	}
}

// activeProduction resolves the production channel for the request's game
// and environment, requiring an active release.
func activeProduction(store *Store, r *http.Request) (*Channel, error) {
	gameID := chi.URLParam(r, "gameId")
	envName := chi.URLParam(r, "envName")

	ch, err := store.GetByKey(gameID, EnvProduction, envName)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, workflowError("CHANNEL_NOT_FOUND", "no production channel %s/%s", gameID, envName)
	}
	if ch.State.CurrentReleaseID == "" {
		return nil, workflowError("NO_ACTIVE_RELEASE", "no configuration deployed for %s/%s", gameID, envName)
	}
	return ch, nil
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
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
