package channel

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/playforge/liveops/pkg/bundle"
	"github.com/playforge/liveops/pkg/schema"
)

func setupStores(t *testing.T) (*schema.Store, *Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	schemas := schema.NewStore(db)
	require.NoError(t, schemas.AutoMigrate())

	store := NewStore(db, schemas)
	require.NoError(t, store.AutoMigrate())
	schemas.SetChannelGuard(store)
	return schemas, store
}

func floatPtr(f float64) *float64 { return &f }

// testRevision creates the game schema used across the channel tests:
// an Items table, an Offers table referencing it, and an object-shaped
// Settings section.
func testRevision(t *testing.T, schemas *schema.Store, gameID string) *schema.SchemaRevision {
	t.Helper()
	rev, err := schemas.CreateRevision("tester", &schema.RevisionInput{
		GameID: gameID,
		Name:   "base",
		Tables: []schema.TemplateInput{
			{
				Name:       "Items",
				PrimaryKey: []string{"ID"},
				Fields: []schema.FieldInput{
					{Name: "ID", Type: bundle.FieldString, Required: true},
					{Name: "Price", Type: bundle.FieldInt, Required: true, Constraints: &schema.ConstraintsInput{Min: floatPtr(0)}},
				},
			},
			{
				Name:       "Offers",
				PrimaryKey: []string{"ID"},
				Fields: []schema.FieldInput{
					{Name: "ID", Type: bundle.FieldString, Required: true},
					{Name: "ItemID", Type: bundle.FieldRef, Required: true, RefTemplate: "Items"},
				},
			},
			{
				Name:        "Settings",
				SectionType: bundle.SectionObject,
				Fields: []schema.FieldInput{
					{Name: "MaxEnergy", Type: bundle.FieldInt, Required: true},
				},
			},
		},
	})
	require.NoError(t, err)
	return rev
}

func devChannel(t *testing.T, store *Store, revID, gameID, envName string) *Channel {
	t.Helper()
	ch, err := store.Create("tester", &CreateInput{
		GameID:           gameID,
		ToolEnvironment:  string(EnvDevelopment),
		EnvName:          envName,
		SchemaRevisionID: revID,
	})
	require.NoError(t, err)
	return ch
}

func TestCreateChannel_InitializesStateAndBundleDraft(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")

	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	assert.Equal(t, EnvDevelopment, ch.ToolEnvironment)
	assert.Equal(t, 0, ch.State.CurrentVersion)
	assert.Empty(t, ch.State.CurrentReleaseID)

	draft, err := store.GetBundleDraft(ch.ID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Empty(t, draft.Selection)
}

func TestCreateChannel_RejectsDuplicateKey(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, err := store.Create("tester", &CreateInput{
		GameID:           "dragon-saga",
		ToolEnvironment:  string(EnvDevelopment),
		EnvName:          "live",
		SchemaRevisionID: rev.ID,
	})
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "CHANNEL_EXISTS", workflow.Code)
}

func TestCreateChannel_RejectsGameMismatch(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")

	_, err := store.Create("tester", &CreateInput{
		GameID:           "space-farm",
		ToolEnvironment:  string(EnvDevelopment),
		EnvName:          "live",
		SchemaRevisionID: rev.ID,
	})
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "GAME_MISMATCH", workflow.Code)
}

func TestCreateChannel_RejectsUnknownEnvironment(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")

	_, err := store.Create("tester", &CreateInput{
		GameID:           "dragon-saga",
		ToolEnvironment:  "qa",
		EnvName:          "live",
		SchemaRevisionID: rev.ID,
	})
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "INVALID_ENVIRONMENT", workflow.Code)
}

func TestDeleteChannel_DevelopmentOnly(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")

	staging, err := store.Create("tester", &CreateInput{
		GameID:           "dragon-saga",
		ToolEnvironment:  string(EnvStaging),
		EnvName:          "live",
		SchemaRevisionID: rev.ID,
	})
	require.NoError(t, err)

	err = store.Delete(staging.ID)
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "WRONG_ENVIRONMENT", workflow.Code)

	dev := devChannel(t, store, rev.ID, "dragon-saga", "beta")
	require.NoError(t, store.Delete(dev.ID))

	got, err := store.Get(dev.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResetChannel_ClearsWorkingContent(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	_, _, err := store.UpsertDraft(ch.ID, "Items", []any{
		map[string]any{"ID": "sword", "Price": float64(10)},
	}, "tester")
	require.NoError(t, err)
	_, _, err = store.Freeze(ch.ID, "Items", "", "tester")
	require.NoError(t, err)

	reset, err := store.Reset(ch.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 0, reset.State.CurrentVersion)

	draft, err := store.GetDraft(ch.ID, "Items")
	require.NoError(t, err)
	assert.Nil(t, draft)

	versions, err := store.ListVersions(ch.ID, "")
	require.NoError(t, err)
	assert.Empty(t, versions)

	bundleDraft, err := store.GetBundleDraft(ch.ID)
	require.NoError(t, err)
	require.NotNil(t, bundleDraft)
	assert.Empty(t, bundleDraft.Selection)
}

func TestResetChannel_RebindsSchemaRevision(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	ch := devChannel(t, store, rev.ID, "dragon-saga", "live")

	other, err := schemas.CreateRevision("tester", &schema.RevisionInput{
		GameID: "dragon-saga",
		Name:   "next",
		Tables: []schema.TemplateInput{
			{Name: "Heroes", PrimaryKey: []string{"ID"}, Fields: []schema.FieldInput{
				{Name: "ID", Type: bundle.FieldString, Required: true},
			}},
		},
	})
	require.NoError(t, err)

	reset, err := store.Reset(ch.ID, other.ID)
	require.NoError(t, err)
	assert.Equal(t, other.ID, reset.SchemaRevisionID)

	// Rebinding across games is rejected.
	foreign := testRevision(t, schemas, "space-farm")
	_, err = store.Reset(ch.ID, foreign.ID)
	var workflow *WorkflowError
	require.ErrorAs(t, err, &workflow)
	assert.Equal(t, "GAME_MISMATCH", workflow.Code)
}

func TestChannelGuard_BoundAndDestroy(t *testing.T) {
	schemas, store := setupStores(t)
	rev := testRevision(t, schemas, "dragon-saga")
	devChannel(t, store, rev.ID, "dragon-saga", "live")
	devChannel(t, store, rev.ID, "dragon-saga", "beta")

	bound, err := store.BoundChannels(rev.ID)
	require.NoError(t, err)
	assert.Len(t, bound, 2)

	// Overwriting a bound revision requires force, which destroys the
	// channels through the guard.
	_, err = schemas.OverwriteRevision(rev.ID, &schema.RevisionInput{
		Name: "rework",
		Tables: []schema.TemplateInput{
			{Name: "Items", PrimaryKey: []string{"ID"}, Fields: []schema.FieldInput{
				{Name: "ID", Type: bundle.FieldString, Required: true},
			}},
		},
	}, false)
	var conflict *schema.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "SCHEMA_IN_USE", conflict.Code)
	assert.Len(t, conflict.Channels, 2)

	_, err = schemas.OverwriteRevision(rev.ID, &schema.RevisionInput{
		Name: "rework",
		Tables: []schema.TemplateInput{
			{Name: "Items", PrimaryKey: []string{"ID"}, Fields: []schema.FieldInput{
				{Name: "ID", Type: bundle.FieldString, Required: true},
			}},
		},
	}, true)
	require.NoError(t, err)

	bound, err = store.BoundChannels(rev.ID)
	require.NoError(t, err)
	assert.Empty(t, bound)
}
