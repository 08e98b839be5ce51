package featureset

import (
	"testing"

	"github.com/reveald/esq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_QueryFilterFeature(t *testing.T) {
	pass := func(qb *esq.QueryBuilder) (*esq.Result, error) { return &esq.Result{}, nil }

	t.Run("adds query_string", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		_, err := NewQueryFilterFeature("red shoes", WithFields("title", "description")).Process(qb, pass)
		require.NoError(t, err)

		must := qb.RawQuery().Bool.Must
		require.Len(t, must, 1)
		require.NotNil(t, must[0].QueryString)
		assert.Equal(t, "red shoes", must[0].QueryString.Query)
		assert.Equal(t, []string{"title", "description"}, must[0].QueryString.Fields)
		require.NotNil(t, must[0].QueryString.Lenient)
		assert.True(t, *must[0].QueryString.Lenient)
	})

	t.Run("all fields", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		_, err := NewQueryFilterFeature("shoes").Process(qb, pass)
		require.NoError(t, err)
		assert.Empty(t, qb.RawQuery().Bool.Must[0].QueryString.Fields)
	})

	t.Run("empty text", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		_, err := NewQueryFilterFeature("").Process(qb, pass)
		require.NoError(t, err)
		assert.Empty(t, qb.RawQuery().Bool.Must)
	})
}
