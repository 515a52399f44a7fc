package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemTypeScopeTableIsExhaustive(t *testing.T) {
	for i := 0; i < NumItemTypes; i++ {
		typ := ItemType(i)
		scope := typ.Scope()
		assert.NotEqual(t, ScopeEverything, scope, "type %s must map to a concrete scope", typ)
		assert.True(t, scope.Valid())
		assert.Greater(t, typ.Boost(), 0.0, "type %s must have a boost", typ)
		assert.NotEmpty(t, itemTypeNames[typ])
	}
}

func TestItemTypeScopes(t *testing.T) {
	tests := []struct {
		typ   ItemType
		scope Scope
	}{
		{ItemFile, ScopeFiles},
		{ItemClass, ScopeTypes},
		{ItemInterface, ScopeTypes},
		{ItemEnum, ScopeTypes},
		{ItemFunction, ScopeSymbols},
		{ItemMethod, ScopeSymbols},
		{ItemVariable, ScopeSymbols},
		{ItemProperty, ScopeProperties},
		{ItemText, ScopeText},
		{ItemCommand, ScopeCommands},
		{ItemEndpoint, ScopeEndpoints},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.scope, tt.typ.Scope())
		})
	}
}

func TestItemTypeBoostOrdering(t *testing.T) {
	order := []ItemType{
		ItemClass, ItemInterface, ItemEndpoint, ItemMethod, ItemEnum,
		ItemProperty, ItemVariable, ItemCommand, ItemFile, ItemText,
	}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i-1].Boost(), order[i].Boost(), "%s should outrank %s", order[i-1], order[i])
	}
	assert.Equal(t, ItemMethod.Boost(), ItemFunction.Boost())
}

func TestItemTypeJSONRoundTrip(t *testing.T) {
	item := SearchableItem{ID: "x", Name: "UserService", Type: ItemClass, FilePath: "/a/b.ts", Line: 3}
	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"class"`)

	var decoded SearchableItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, item, decoded)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("Endpoints")
	require.NoError(t, err)
	assert.Equal(t, ScopeEndpoints, s)

	s, err = ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeEverything, s)

	_, err = ParseScope("nope")
	assert.Error(t, err)
}

func TestNewFileItem(t *testing.T) {
	item := NewFileItem("/repo/src/UserService.ts", "src/UserService.ts", 42)
	assert.Equal(t, "file:/repo/src/UserService.ts", item.ID)
	assert.Equal(t, "UserService.ts", item.Name)
	assert.Equal(t, "src", item.Detail)
	assert.Equal(t, ItemFile, item.Type)
	assert.EqualValues(t, 42, item.Size)

	root := NewFileItem("/repo/go.mod", "go.mod", 0)
	assert.Empty(t, root.Detail)
}
