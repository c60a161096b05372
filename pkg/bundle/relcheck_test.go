package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeTables() map[string][]Row {
	return map[string][]Row{
		"Items": {
			{"ID": "sword", "Price": float64(10)},
			{"ID": "shield", "Price": float64(8)},
		},
		"Offers": {
			{"ID": "starter", "ItemID": "sword"},
			{"ID": "broken", "ItemID": "axe"},
		},
	}
}

func storePKs() map[string][]string {
	return map[string][]string{
		"Items":  {"ID"},
		"Offers": {"ID"},
	}
}

func TestValidateRelations_Resolved(t *testing.T) {
	rels := []Relation{{FromTemplate: "Offers", FromPath: "ItemID", ToTemplate: "Items", ToPath: "ID", Mode: SeverityError}}
	tables := storeTables()
	tables["Offers"] = tables["Offers"][:1] // only the resolvable row

	issues := ValidateRelations(rels, tables, storePKs())
	assert.Empty(t, issues)
}

func TestValidateRelations_Unresolved(t *testing.T) {
	rels := []Relation{{FromTemplate: "Offers", FromPath: "ItemID", ToTemplate: "Items", ToPath: "ID", Mode: SeverityError}}

	issues := ValidateRelations(rels, storeTables(), storePKs())
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, "broken", issues[0].RowRef)
	assert.Contains(t, issues[0].Message, `unresolved reference "axe"`)
}

func TestValidateRelations_WarnMode(t *testing.T) {
	rels := []Relation{{FromTemplate: "Offers", FromPath: "ItemID", ToTemplate: "Items", Mode: SeverityWarn}}

	// No explicit toPath: falls back to the target's primary key.
	issues := ValidateRelations(rels, storeTables(), storePKs())
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityWarn, issues[0].Severity)
	assert.False(t, HasErrors(issues))
}

func TestValidateRelations_ArrayWildcardPath(t *testing.T) {
	tables := map[string][]Row{
		"Items": {{"ID": "sword"}},
		"Quests": {
			{"ID": "q1", "Stages": []any{
				map[string]any{"StoreItemId": "sword"},
				map[string]any{"StoreItemId": "bow"},
			}},
		},
	}
	rels := []Relation{{FromTemplate: "Quests", FromPath: "Stages[].StoreItemId", ToTemplate: "Items", ToPath: "ID"}}

	issues := ValidateRelations(rels, tables, map[string][]string{"Items": {"ID"}, "Quests": {"ID"}})
	require.Len(t, issues, 1)
	assert.Equal(t, "q1", issues[0].RowRef)
	assert.Contains(t, issues[0].Message, `"bow"`)
}

func TestValidateRelations_CompositeTargetKey(t *testing.T) {
	tables := map[string][]Row{
		"Slots": {
			{"Region": "eu", "Slot": float64(1)},
		},
		"Bids": {
			{"ID": "b1", "Region": "eu", "Slot": float64(1)},
			{"ID": "b2", "Region": "us", "Slot": float64(1)},
		},
	}
	rels := []Relation{{
		FromTemplate: "Bids", FromPath: "Region,Slot",
		ToTemplate: "Slots", ToPath: "Region,Slot",
	}}

	issues := ValidateRelations(rels, tables, map[string][]string{"Bids": {"ID"}})
	require.Len(t, issues, 1)
	assert.Equal(t, "b2", issues[0].RowRef)
	assert.Contains(t, issues[0].Message, `"us|1"`)
}

func TestValidateRelations_MissingTargetTable(t *testing.T) {
	rels := []Relation{{FromTemplate: "Offers", FromPath: "ItemID", ToTemplate: "Ghost", ToPath: "ID"}}

	issues := ValidateRelations(rels, storeTables(), storePKs())
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, `"Ghost"`)
}

func TestDeriveImplicitRelations(t *testing.T) {
	templates := []Template{
		{Name: "Items", PrimaryKey: []string{"ID"}},
		{Name: "Offers", Fields: []Field{
			{Name: "ID", Type: FieldString},
			{Name: "ItemID", Type: FieldRef, RefTemplate: "Items"},
			{Name: "AltID", Type: FieldRef, RefTemplate: "Items", RefPath: "Code"},
		}},
	}

	rels := DeriveImplicitRelations(templates)
	require.Len(t, rels, 2)

	assert.Equal(t, "Offers", rels[0].FromTemplate)
	assert.Equal(t, "ItemID", rels[0].FromPath)
	assert.Equal(t, "ID", rels[0].ToPath, "refPath defaults to the target primary key")
	assert.True(t, rels[0].Implicit)
	assert.Equal(t, SeverityError, rels[0].Mode)

	assert.Equal(t, "Code", rels[1].ToPath)
}

func TestValidateDraftRefs(t *testing.T) {
	items := Template{Name: "Items", PrimaryKey: []string{"ID"}, Fields: []Field{{Name: "ID", Type: FieldString, Required: true}}}
	offers := Template{Name: "Offers", PrimaryKey: []string{"ID"}, Fields: []Field{
		{Name: "ID", Type: FieldString, Required: true},
		{Name: "ItemID", Type: FieldRef, RefTemplate: "Items"},
	}}
	templates := map[string]Template{"Items": items, "Offers": offers}

	siblings := map[string][]Row{"Items": {{"ID": "sword"}}}

	issues := ValidateDraftRefs(offers, []Row{{"ID": "o1", "ItemID": "sword"}}, siblings, templates)
	assert.Empty(t, issues)

	issues = ValidateDraftRefs(offers, []Row{{"ID": "o2", "ItemID": "axe"}}, siblings, templates)
	require.Len(t, issues, 1)
	assert.Equal(t, "o2", issues[0].RowRef)

	// Templates with no ref fields validate trivially.
	assert.Nil(t, ValidateDraftRefs(items, []Row{{"ID": "x"}}, nil, templates))
}
