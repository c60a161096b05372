package channel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playforge/liveops/pkg/bundle"
)

func TestUpsertDraft_ValidRows(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	draft, issues, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
		map[string]any{"ID": "shield", "Price": float64(8)},
	}, "alice")
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.NotNil(t, draft)
	assert.Len(t, draft.Rows, 2)
	assert.Equal(t, "alice", draft.UpdatedBy)
}

func TestUpsertDraft_DuplicateKeyRejectedWithoutWrite(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, issues, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "a", "Price": float64(10)},
		map[string]any{"ID": "a", "Price": float64(5)},
	}, "alice")

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, issues, 1)
	assert.Equal(t, "a", issues[0].RowRef)
	assert.Contains(t, issues[0].Message, "duplicate primary key")

	// The rejected write left no draft behind.
	draft, err := store.GetDraft(ch.ID, "Items")
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestUpsertDraft_ConstraintViolation(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, issues, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "a", "Price": float64(10)},
		map[string]any{"ID": "b", "Price": float64(-1)},
	}, "alice")

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, issues, 1)
	assert.Equal(t, "b", issues[0].RowRef)
	assert.Equal(t, "Price", issues[0].Path)
	assert.Contains(t, issues[0].Message, "below the minimum")
}

func TestUpsertDraft_CrossDraftReferenceCheck(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)

	// A dangling ref against the sibling draft cannot be saved.
	_, issues, err := store.UpsertDraft(ch.ID, "Offers", []any{
		map[string]any{"ID": "o1", "ItemID": "axe"},
	}, "alice")
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, issues, 1)
	assert.Equal(t, "o1", issues[0].RowRef)
	assert.Contains(t, issues[0].Message, `unresolved reference "axe"`)

	// Pointing at the drafted item works.
	_, issues, err = store.UpsertDraft(ch.ID, "Offers", []any{
		map[string]any{"ID": "o1", "ItemID": "sword"},
	}, "alice")
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestUpsertDraft_RejectsOutsideDevelopment(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")

	staging, err := store.Create("tester", &CreateInput{
		GameID:           "dragon-saga",
		ToolEnvironment:  string(EnvStaging),
		EnvName:          "live",
		SchemaRevisionID: rev.ID,
	})
	require.NoError(t, err)

	_, _, err = store.UpsertDraft(staging.ID, "Items", []any{}, "alice")
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "WRONG_ENVIRONMENT", workflow.Code)
}

func TestUpsertDraft_UnknownTemplate(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Ghost", []any{}, "alice")
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "TEMPLATE_NOT_FOUND", workflow.Code)
}

func TestFreeze_MonotonicVersionNumbers(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		version, issues, err := store.Freeze(ch.ID, "Items", "", "alice")
		require.NoError(t, err)
		assert.Empty(t, issues)
		assert.Equal(t, i, version.VersionNumber)
		assert.Equal(t, fmt.Sprintf("v%d", i), version.Label)
	}

	// The draft is untouched by freezing.
	draft, err := store.GetDraft(ch.ID, "Items")
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Len(t, draft.Rows, 1)
}

func TestFreeze_CustomLabel(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)

	version, _, err := store.Freeze(ch.ID, "Items", "summer event", "alice")
	require.NoError(t, err)
	assert.Equal(t, "summer event", version.Label)
}

func TestFreeze_RequiresDraft(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.Freeze(ch.ID, "Items", "", "alice")
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "DRAFT_NOT_FOUND", workflow.Code)
}

func TestDeleteVersion_ScrubsSelectionEntry(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)
	_, _, err = store.UpsertDraft(ch.ID, "Settings", []any{
		map[string]any{"MaxEnergy": float64(50)},
	}, "alice")
	require.NoError(t, err)

	itemsV1, _, err := store.Freeze(ch.ID, "Items", "", "alice")
	require.NoError(t, err)
	settingsV1, _, err := store.Freeze(ch.ID, "Settings", "", "alice")
	require.NoError(t, err)

	_, err = store.UpdateBundleDraft(ch.ID, map[string]string{
		"Items":    itemsV1.ID,
		"Settings": settingsV1.ID,
	}, "alice")
	require.NoError(t, err)

	require.NoError(t, store.DeleteVersion(ch.ID, itemsV1.ID))

	// Only the entry pointing at the deleted version is cleared.
	draft, err := store.GetBundleDraft(ch.ID)
	require.NoError(t, err)
	assert.NotContains(t, draft.Selection, "Items")
	assert.Equal(t, settingsV1.ID, draft.Selection["Settings"])

	version, err := store.GetVersion(itemsV1.ID)
	require.NoError(t, err)
	assert.Nil(t, version)
}

func TestUpdateBundleDraft_RejectsForeignVersions(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")
	other := devChannel(t, store, rev.ID, "dragon-saga", "beta")

	_, _, err := store.UpsertDraft(other.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)
	foreign, _, err := store.Freeze(other.ID, "Items", "", "alice")
	require.NoError(t, err)

	_, err = store.UpdateBundleDraft(ch.ID, map[string]string{"Items": foreign.ID}, "alice")
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "SELECTION_INVALID", workflow.Code)
}

func TestUpdateBundleDraft_RejectsTemplateMismatch(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "alice")
	require.NoError(t, err)
	itemsV1, _, err := store.Freeze(ch.ID, "Items", "", "alice")
	require.NoError(t, err)

	_, err = store.UpdateBundleDraft(ch.ID, map[string]string{"Settings": itemsV1.ID}, "alice")
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "SELECTION_INVALID", workflow.Code)
}

func TestValidateRowsThroughUpsert_ReportsAllIssuesInOrder(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, issues, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "a"},
		map[string]any{"ID": "b", "Price": "ten"},
	}, "alice")

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, issues, 2)
	assert.Equal(t, bundle.SeverityError, issues[0].Severity)
	assert.Equal(t, "a", issues[0].RowRef)
	assert.Equal(t, "b", issues[1].RowRef)
}
