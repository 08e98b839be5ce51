package featureset

import (
	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
)

// AggregationFeature adds a compiled aggregation tree to the query.
//
// Grouped queries read buckets only, so the feature requests no documents
// unless WithDocuments is given.
//
// Example:
//
//	spec, _ := c.Aggregation(dims, slots)
//	aggs := featureset.NewAggregationFeature(spec)
type AggregationFeature struct {
	spec      *compiler.AggregationSpec
	documents bool
}

type AggregationOption func(*AggregationFeature)

// WithDocuments keeps the page of matching documents next to the buckets.
func WithDocuments() AggregationOption {
	return func(af *AggregationFeature) {
		af.documents = true
	}
}

func NewAggregationFeature(spec *compiler.AggregationSpec, opts ...AggregationOption) *AggregationFeature {
	af := &AggregationFeature{spec: spec}
	for _, opt := range opts {
		opt(af)
	}
	return af
}

func (af *AggregationFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	af.build(builder)
	return next(builder)
}

func (af *AggregationFeature) build(builder *esq.QueryBuilder) {
	if af.spec == nil {
		return
	}
	for name, agg := range af.spec.Aggregations() {
		builder.Aggregation(name, agg)
	}
	if !af.documents {
		builder.Selection().Update(esq.WithPageSize(0))
	}
}
