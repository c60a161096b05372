package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func itemsTemplate() Template {
	return Template{
		Name:        "Items",
		SectionType: SectionArray,
		PrimaryKey:  []string{"ID"},
		Fields: []Field{
			{Name: "ID", Type: FieldString, Required: true},
			{Name: "Price", Type: FieldInt, Required: true, Constraints: &Constraints{Min: floatPtr(0)}},
			{Name: "Rarity", Type: FieldString, Constraints: &Constraints{Enum: []any{"common", "rare", "epic"}}},
		},
	}
}

func TestValidateRows_Valid(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword", "Price": float64(10), "Rarity": "rare"},
		map[string]any{"ID": "shield", "Price": float64(0)},
	})

	assert.True(t, res.OK)
	assert.Empty(t, res.Issues)
}

func TestValidateRows_TopLevelShape(t *testing.T) {
	for _, raw := range []any{nil, "rows", map[string]any{"ID": "a"}, []any{"not-an-object"}} {
		res := ValidateRows(itemsTemplate(), raw)
		require.False(t, res.OK)
		require.Len(t, res.Issues, 1)
		assert.Equal(t, SeverityError, res.Issues[0].Severity)
		assert.Contains(t, res.Issues[0].Message, "ordered list")
	}
}

func TestValidateRows_MissingRequired(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword"},
	})

	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "Price", res.Issues[0].Path)
	assert.Equal(t, "sword", res.Issues[0].RowRef)
	assert.Contains(t, res.Issues[0].Message, "missing required field")
}

func TestValidateRows_TypeMismatch(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword", "Price": "ten"},
	})

	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Contains(t, res.Issues[0].Message, "expected int, got string")
}

func TestValidateRows_IntRejectsFraction(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword", "Price": 9.5},
	})

	require.False(t, res.OK)
	assert.Contains(t, res.Issues[0].Message, "expected int")
}

func TestValidateRows_Constraints(t *testing.T) {
	tpl := Template{
		Name:       "Users",
		PrimaryKey: []string{"Name"},
		Fields: []Field{
			{Name: "Name", Type: FieldString, Required: true, Constraints: &Constraints{MaxLength: intPtr(5), Regex: "^[a-z]+$"}},
			{Name: "Level", Type: FieldInt, Constraints: &Constraints{Min: floatPtr(1), Max: floatPtr(100)}},
		},
	}

	res := ValidateRows(tpl, []any{
		map[string]any{"Name": "toolong", "Level": float64(0)},
		map[string]any{"Name": "UPPER", "Level": float64(101)},
	})

	require.False(t, res.OK)

	var messages []string
	for _, is := range res.Issues {
		messages = append(messages, is.Message)
	}
	assert.Len(t, res.Issues, 4)
	assert.Contains(t, messages[0], "maximum length")
	assert.Contains(t, messages[1], "below the minimum")
	assert.Contains(t, messages[2], "does not match pattern")
	assert.Contains(t, messages[3], "above the maximum")
}

func TestValidateRows_InvalidRegexIsWarning(t *testing.T) {
	tpl := Template{
		Name: "Things",
		Fields: []Field{
			{Name: "Code", Type: FieldString, Constraints: &Constraints{Regex: "("}},
		},
	}

	res := ValidateRows(tpl, []any{map[string]any{"Code": "x"}})

	assert.True(t, res.OK, "invalid regex must not fail validation")
	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityWarn, res.Issues[0].Severity)
	assert.Contains(t, res.Issues[0].Message, "invalid regex")
}

func TestValidateRows_EnumMembership(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword", "Price": float64(1), "Rarity": "legendary"},
	})

	require.False(t, res.OK)
	assert.Contains(t, res.Issues[0].Message, "enum")
}

func TestValidateRows_DuplicatePrimaryKey(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "a", "Price": float64(10)},
		map[string]any{"ID": "a", "Price": float64(5)},
	})

	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "a", res.Issues[0].RowRef)
	assert.Contains(t, res.Issues[0].Message, "duplicate primary key")
}

func TestValidateRows_CompositeKeyDuplicate(t *testing.T) {
	tpl := Template{
		Name:       "Slots",
		PrimaryKey: []string{"Region", "Slot"},
		Fields: []Field{
			{Name: "Region", Type: FieldString, Required: true},
			{Name: "Slot", Type: FieldInt, Required: true},
		},
	}

	res := ValidateRows(tpl, []any{
		map[string]any{"Region": "eu", "Slot": float64(1)},
		map[string]any{"Region": "eu", "Slot": float64(1)},
		map[string]any{"Region": "us", "Slot": float64(1)},
	})

	require.False(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "eu|1", res.Issues[0].RowRef)
}

func TestValidateRows_MissingKeyComponentUsesIndex(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"Price": float64(3)},
	})

	require.False(t, res.OK)
	// Both the key-component issue and the required-field issue point at row 0.
	for _, is := range res.Issues {
		assert.Equal(t, "0", is.RowRef)
	}
}

func TestValidateRows_UnknownFieldWarns(t *testing.T) {
	res := ValidateRows(itemsTemplate(), []any{
		map[string]any{"ID": "sword", "Price": float64(1), "Color": "red"},
	})

	assert.True(t, res.OK)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityWarn, res.Issues[0].Severity)
	assert.Equal(t, "Color", res.Issues[0].Path)
}
