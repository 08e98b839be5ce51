package featureset

import (
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
)

// FilterFeature applies a compiled predicate to the query.
//
// Every child of the predicate's top-level AND becomes a "must" clause;
// negated children become "must_not" clauses.
//
// Example:
//
//	p, _ := c.Where(expr.Gt(expr.Field("Price"), expr.Value(10)))
//	filter := featureset.NewFilterFeature(p.Clause)
type FilterFeature struct {
	clause   *compiler.Bool
	required []types.Query
}

// FilterOption is a functional option for configuring a FilterFeature.
type FilterOption func(*FilterFeature)

// WithRequiredProperty only matches documents that have a value for property.
func WithRequiredProperty(property string) FilterOption {
	return func(ff *FilterFeature) {
		ff.required = append(ff.required, types.Query{
			Exists: &types.ExistsQuery{Field: property},
		})
	}
}

// WithRequiredValue only matches documents where property equals value.
func WithRequiredValue(property string, value any) FilterOption {
	return func(ff *FilterFeature) {
		ff.required = append(ff.required, types.Query{
			Term: map[string]types.TermQuery{property: {Value: value}},
		})
	}
}

// NewFilterFeature returns a filter for a compiled predicate. A nil
// predicate matches every document.
func NewFilterFeature(clause *compiler.Bool, opts ...FilterOption) *FilterFeature {
	ff := &FilterFeature{clause: clause}
	for _, opt := range opts {
		opt(ff)
	}
	return ff
}

func (ff *FilterFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	ff.build(builder)
	return next(builder)
}

func (ff *FilterFeature) build(builder *esq.QueryBuilder) {
	for _, q := range ff.required {
		builder.With(q)
	}
	if ff.clause == nil {
		return
	}

	// The predicate is already an AND: splice it into the builder's bool query.
	if ff.clause.MustNot {
		for _, child := range ff.clause.Children {
			builder.Without(compiler.Query(child))
		}
		return
	}

	for _, child := range ff.clause.Children {
		if b, ok := child.(*compiler.Bool); ok && b.MustNot {
			for _, negated := range b.Children {
				builder.Without(compiler.Query(negated))
			}
			continue
		}
		builder.With(compiler.Query(child))
	}
}
