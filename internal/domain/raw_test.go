package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawNodeNormalize(t *testing.T) {
	t.Run("Missing type defaults to Unknown", func(t *testing.T) {
		var raw RawNode
		require.NoError(t, json.Unmarshal([]byte(`{"name":"orphan"}`), &raw))

		node := raw.Normalize()
		assert.Equal(t, "orphan", node.Name)
		assert.Equal(t, DefaultNodeType, node.Type)
		assert.Empty(t, node.Measures)
		assert.NotNil(t, node.Measures, "Expected measures to be an empty slice, not nil")
	})

	t.Run("Null and empty type default to Unknown", func(t *testing.T) {
		for _, doc := range []string{`{"name":"a","type":null}`, `{"name":"a","type":"  "}`} {
			var raw RawNode
			require.NoError(t, json.Unmarshal([]byte(doc), &raw))
			assert.Equal(t, DefaultNodeType, raw.Normalize().Type, doc)
		}
	})

	t.Run("Missing name is reported as Unnamed", func(t *testing.T) {
		var raw RawNode
		require.NoError(t, json.Unmarshal([]byte(`{"type":"Fact"}`), &raw))
		assert.Equal(t, UnnamedNode, raw.Normalize().Name)
	})

	t.Run("Measures list is kept in order", func(t *testing.T) {
		var raw RawNode
		require.NoError(t, json.Unmarshal([]byte(`{"name":"f","measures":["revenue","units"]}`), &raw))
		assert.Equal(t, []string{"revenue", "units"}, raw.Normalize().Measures)
	})

	t.Run("Non-list measures are treated as empty", func(t *testing.T) {
		docs := []string{
			`{"name":"f","measures":null}`,
			`{"name":"f","measures":"revenue"}`,
			`{"name":"f","measures":3}`,
			`{"name":"f","measures":{"a":1}}`,
		}
		for _, doc := range docs {
			var raw RawNode
			require.NoError(t, json.Unmarshal([]byte(doc), &raw))
			assert.Empty(t, raw.Normalize().Measures, doc)
		}
	})

	t.Run("Non-string measure entries are stringified", func(t *testing.T) {
		var raw RawNode
		require.NoError(t, json.Unmarshal([]byte(`{"name":"f","measures":["a",2,true]}`), &raw))
		assert.Equal(t, []string{"a", "2", "true"}, raw.Normalize().Measures)
	})
}

func TestRawRelationshipNormalize(t *testing.T) {
	t.Run("rel_type wins over plain type", func(t *testing.T) {
		var raw RawRelationship
		require.NoError(t, json.Unmarshal([]byte(`{"from":"a","to":"b","rel_type":"HAS","type":"OTHER"}`), &raw))
		rel := raw.Normalize()
		assert.Equal(t, "HAS", rel.RelType)
		assert.Equal(t, "HAS", rel.Label())
	})

	t.Run("Label falls back to property type", func(t *testing.T) {
		var raw RawRelationship
		require.NoError(t, json.Unmarshal([]byte(`{"from":"a","to":"b","rel_type":null,"rel_property_type":"many_to_one"}`), &raw))
		rel := raw.Normalize()
		assert.Equal(t, "", rel.RelType)
		assert.Equal(t, "many_to_one", rel.Label())
	})
}

func TestNormalizeMeasures(t *testing.T) {
	assert.Equal(t, []string{"x", "y"}, NormalizeMeasures([]any{"x", "y"}))
	assert.Equal(t, []string{"x"}, NormalizeMeasures([]string{"x"}))
	assert.Empty(t, NormalizeMeasures(nil))
	assert.Empty(t, NormalizeMeasures("x"))
	assert.Empty(t, NormalizeMeasures(int64(4)))
}
