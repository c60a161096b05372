package schema

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/playforge/liveops/pkg/bundle"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := NewStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func sampleInput() *RevisionInput {
	return &RevisionInput{
		GameID: "dragon-saga",
		Name:   "base",
		Enums: []EnumInput{
			{Name: "Rarity", Values: []any{"common", "rare", "epic"}},
		},
		Structures: []StructureInput{
			{Name: "PriceTag", Fields: []FieldInput{
				{Name: "Currency", Type: bundle.FieldString, Required: true},
				{Name: "Amount", Type: bundle.FieldInt, Required: true},
			}},
		},
		Tables: []TemplateInput{
			{
				Name:       "Items",
				PrimaryKey: []string{"ID"},
				Fields: []FieldInput{
					{Name: "ID", Type: bundle.FieldString, Required: true},
					{Name: "Rarity", Type: bundle.FieldString, Constraints: &ConstraintsInput{Enum: "Rarity"}},
				},
			},
			{
				Name:        "Settings",
				SectionType: bundle.SectionObject,
				Fields: []FieldInput{
					{Name: "MaxEnergy", Type: bundle.FieldInt, Required: true},
				},
			},
			{
				Name:       "Offers",
				PrimaryKey: []string{"ID"},
				Fields: []FieldInput{
					{Name: "ID", Type: bundle.FieldString, Required: true},
					{Name: "ItemID", Type: bundle.FieldRef, Required: true, RefTemplate: "Items"},
				},
			},
		},
		Relations: []RelationInput{
			{FromTemplate: "Offers", FromPath: "ItemID", ToTemplate: "Items", ToPath: "ID", Mode: bundle.SeverityWarn},
		},
	}
}

func TestCreateRevision_AssemblesAggregate(t *testing.T) {
	store := setupStore(t)

	rev, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)
	require.NotNil(t, rev)

	assert.NotEmpty(t, rev.ID)
	assert.Equal(t, "dragon-saga", rev.GameID)
	assert.Equal(t, "base", rev.Name)
	assert.Equal(t, "alice", rev.CreatedBy)

	require.Len(t, rev.Templates, 3)
	assert.Equal(t, "Items", rev.Templates[0].Name)
	assert.Equal(t, bundle.SectionArray, rev.Templates[0].SectionType)
	assert.Equal(t, bundle.SectionObject, rev.Templates[1].SectionType)

	// Named enum constraints are inlined at creation time.
	rarity := rev.Templates[0].Fields[1]
	require.NotNil(t, rarity.Constraints)
	assert.Equal(t, []any{"common", "rare", "epic"}, rarity.Constraints.Enum)

	require.Len(t, rev.Structures, 1)
	assert.Len(t, rev.Structures[0].Fields, 2)

	require.Len(t, rev.Relations, 1)
	assert.Equal(t, bundle.SeverityWarn, rev.Relations[0].Mode)

	// Explicit plus one implicit relation from the ref field.
	assert.Len(t, rev.AllRelations(), 2)
}

func TestCreateRevision_MissingTables(t *testing.T) {
	store := setupStore(t)

	_, err := store.CreateRevision("alice", &RevisionInput{GameID: "g", Name: "empty"})
	require.Error(t, err)

	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "MISSING_TABLES", invalid.Code)
}

func TestCreateRevision_UnknownEnum(t *testing.T) {
	store := setupStore(t)

	in := sampleInput()
	in.Tables[0].Fields[1].Constraints = &ConstraintsInput{Enum: "Ghost"}

	_, err := store.CreateRevision("alice", in)
	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "UNKNOWN_ENUM", invalid.Code)
}

func TestCreateRevision_UnknownRefTarget(t *testing.T) {
	store := setupStore(t)

	in := sampleInput()
	in.Tables[2].Fields[1].RefTemplate = "Ghost"

	_, err := store.CreateRevision("alice", in)
	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "UNKNOWN_REF_TARGET", invalid.Code)
}

func TestCreateRevision_DuplicateTable(t *testing.T) {
	store := setupStore(t)

	in := sampleInput()
	in.Tables = append(in.Tables, in.Tables[0])

	_, err := store.CreateRevision("alice", in)
	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "DUPLICATE_TABLE", invalid.Code)
}

func TestGetRevision_NotFound(t *testing.T) {
	store := setupStore(t)

	rev, err := store.GetRevision("missing")
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestListRevisions_FiltersByGame(t *testing.T) {
	store := setupStore(t)

	_, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	other := sampleInput()
	other.GameID = "space-farm"
	_, err = store.CreateRevision("alice", other)
	require.NoError(t, err)

	all, err := store.ListRevisions("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := store.ListRevisions("space-farm")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "space-farm", filtered[0].GameID)
}

func TestOverwriteRevision_PreservesIdentity(t *testing.T) {
	store := setupStore(t)

	created, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	next := &RevisionInput{
		Name: "reworked",
		Tables: []TemplateInput{
			{Name: "Heroes", PrimaryKey: []string{"ID"}, Fields: []FieldInput{
				{Name: "ID", Type: bundle.FieldString, Required: true},
			}},
		},
	}

	rev, err := store.OverwriteRevision(created.ID, next, false)
	require.NoError(t, err)

	assert.Equal(t, created.ID, rev.ID)
	assert.Equal(t, "dragon-saga", rev.GameID)
	assert.Equal(t, "reworked", rev.Name)
	require.Len(t, rev.Templates, 1)
	assert.Equal(t, "Heroes", rev.Templates[0].Name)
	assert.Empty(t, rev.Enums)
	assert.Empty(t, rev.Relations)
}

func TestOverwriteRevision_GameMismatch(t *testing.T) {
	store := setupStore(t)

	created, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	in := sampleInput()
	in.GameID = "space-farm"
	_, err = store.OverwriteRevision(created.ID, in, false)

	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "GAME_MISMATCH", invalid.Code)
}

type fakeGuard struct {
	channels  []ChannelRef
	destroyed bool
}

func (g *fakeGuard) BoundChannels(revisionID string) ([]ChannelRef, error) {
	if g.destroyed {
		return nil, nil
	}
	return g.channels, nil
}

func (g *fakeGuard) DestroyChannels(revisionID string) error {
	g.destroyed = true
	return nil
}

func TestOverwriteRevision_BlockedWhenBound(t *testing.T) {
	store := setupStore(t)
	created, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	guard := &fakeGuard{channels: []ChannelRef{
		{ID: "ch-1", GameID: "dragon-saga", ToolEnvironment: "development", EnvName: "dev"},
	}}
	store.SetChannelGuard(guard)

	_, err = store.OverwriteRevision(created.ID, sampleInput(), false)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "SCHEMA_IN_USE", conflict.Code)
	require.Len(t, conflict.Channels, 1)
	assert.False(t, guard.destroyed)

	// force destroys the bound channels and proceeds.
	_, err = store.OverwriteRevision(created.ID, sampleInput(), true)
	require.NoError(t, err)
	assert.True(t, guard.destroyed)
}

func TestDeleteRevision_ReportsDestroyedChannels(t *testing.T) {
	store := setupStore(t)
	created, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	guard := &fakeGuard{channels: []ChannelRef{
		{ID: "ch-1", ToolEnvironment: "staging", EnvName: "qa"},
	}}
	store.SetChannelGuard(guard)

	_, err = store.DeleteRevision(created.ID, "", false)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	destroyed, err := store.DeleteRevision(created.ID, "", true)
	require.NoError(t, err)
	require.Len(t, destroyed, 1)
	assert.Equal(t, "ch-1", destroyed[0].ID)

	rev, err := store.GetRevision(created.ID)
	require.NoError(t, err)
	assert.Nil(t, rev)
}

func TestDeleteRevision_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.DeleteRevision("missing", "", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRevision_GameMismatch(t *testing.T) {
	store := setupStore(t)
	created, err := store.CreateRevision("alice", sampleInput())
	require.NoError(t, err)

	_, err = store.DeleteRevision(created.ID, "other-game", false)
	var invalid *InvalidRevisionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "GAME_MISMATCH", invalid.Code)

	// The revision survives a mismatched delete attempt.
	rev, err := store.GetRevision(created.ID)
	require.NoError(t, err)
	require.NotNil(t, rev)

	// A matching game id deletes as usual.
	_, err = store.DeleteRevision(created.ID, "dragon-saga", false)
	require.NoError(t, err)
}
