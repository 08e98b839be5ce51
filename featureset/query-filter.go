package featureset

import (
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/reveald/esq"
)

// QueryFilterFeature adds a full-text query_string filter.
//
// This complements compiled predicates, which only produce exact, range and
// wildcard clauses.
//
// Example:
//
//	// Search title and description for "red shoes"
//	queryFilter := featureset.NewQueryFilterFeature("red shoes",
//	    featureset.WithFields("title", "description"),
//	)
type QueryFilterFeature struct {
	query  string
	fields []string
}

// QueryFilterOption is a functional option for configuring a QueryFilterFeature.
type QueryFilterOption func(*QueryFilterFeature)

// WithFields specifies which fields to search in.
//
// If not specified, the query will search across all fields.
func WithFields(fields ...string) QueryFilterOption {
	return func(qff *QueryFilterFeature) {
		qff.fields = fields
	}
}

// NewQueryFilterFeature creates a query filter for the query text. An empty
// text adds no filter.
func NewQueryFilterFeature(query string, opts ...QueryFilterOption) *QueryFilterFeature {
	qff := &QueryFilterFeature{
		query:  query,
		fields: []string{},
	}

	for _, opt := range opts {
		opt(qff)
	}

	return qff
}

func (qff *QueryFilterFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	if qff.query == "" {
		return next(builder)
	}

	lenient := true
	queryStringQuery := types.Query{
		QueryString: &types.QueryStringQuery{
			Query:   qff.query,
			Lenient: &lenient,
		},
	}

	if len(qff.fields) > 0 {
		queryStringQuery.QueryString.Fields = qff.fields
	}

	builder.With(queryStringQuery)
	return next(builder)
}
