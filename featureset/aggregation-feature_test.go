package featureset

import (
	"testing"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregationFeature(t *testing.T) {
	spec := &compiler.AggregationSpec{
		Terms:   &compiler.TermsBucket{Name: "category", Fields: []string{"category.keyword"}, Size: 100},
		Metrics: []compiler.Metric{{Name: "sum_amount", Kind: compiler.MetricSum, Field: "amount"}},
	}

	t.Run("buckets only", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		nextCalled := false
		_, err := NewAggregationFeature(spec).Process(qb, func(builder *esq.QueryBuilder) (*esq.Result, error) {
			nextCalled = true
			return &esq.Result{}, nil
		})
		require.NoError(t, err)
		assert.True(t, nextCalled)

		aggs := qb.Aggregations()
		require.Contains(t, aggs, "category")
		assert.Equal(t, "category.keyword", *aggs["category"].Terms.Field)
		assert.Contains(t, aggs["category"].Aggregations, "sum_amount")
		assert.Equal(t, 0, qb.Selection().PageSize())
	})

	t.Run("with documents", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		NewAggregationFeature(spec, WithDocuments()).build(qb)
		assert.Equal(t, 24, qb.Selection().PageSize())
	})

	t.Run("nil spec", func(t *testing.T) {
		qb := esq.NewQueryBuilder("sales")
		NewAggregationFeature(nil).build(qb)
		assert.Empty(t, qb.Aggregations())
	})
}
