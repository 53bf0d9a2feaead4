package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemarag/internal/domain"
)

func TestDecodeChunk(t *testing.T) {
	t.Run("Normalizes loose documents", func(t *testing.T) {
		c, err := decodeChunk([]byte(`{"nodes":[{"name":"fact_sales","type":"Fact","measures":null}],"relationships":[{"from":"a","to":"b","rel_property_type":"FK"}]}`))
		require.NoError(t, err)
		assert.Equal(t, []domain.SchemaNode{{Name: "fact_sales", Type: "Fact", Measures: []string{}}}, c.Nodes)
		assert.Equal(t, "FK", c.Relationships[0].Label())
	})

	t.Run("Broken documents", func(t *testing.T) {
		_, err := decodeChunk([]byte(`{"nodes":`))
		assert.Error(t, err)
	})
}
