package esq

import (
	"maps"

	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// QueryBuilder accumulates the parts of one Elasticsearch request while
// the features of a call chain run. Compiled clauses land in a single bool
// query; aggregations are kept by name.
type QueryBuilder struct {
	indices        []string
	boolQuery      *types.BoolQuery
	aggregations   map[string]types.Aggregations
	selection      *DocumentSelector
	trackTotalHits bool
}

// NewQueryBuilder returns an empty query against a set of indices.
// Without any clause the query matches every document.
//
// Example:
//
//	// Query the base name of a period index family
//	builder := esq.NewQueryBuilder("orders")
func NewQueryBuilder(indices ...string) *QueryBuilder {
	return &QueryBuilder{
		indices:      indices,
		boolQuery:    &types.BoolQuery{},
		aggregations: make(map[string]types.Aggregations),
	}
}

// Indices returns the indices the request targets.
func (qb *QueryBuilder) Indices() []string {
	return qb.indices
}

// SetIndices replaces the indices the request targets.
func (qb *QueryBuilder) SetIndices(indices ...string) {
	qb.indices = indices
}

// With adds a query every matching document must satisfy.
//
// Example:
//
//	// Keep only paid orders
//	builder.With(types.Query{
//	    Term: map[string]types.TermQuery{
//	        "status": {Value: "paid"},
//	    },
//	})
func (qb *QueryBuilder) With(query types.Query) {
	qb.boolQuery.Must = append(qb.boolQuery.Must, query)
}

// Without adds a query no matching document may satisfy.
//
// Example:
//
//	// Drop orders over 100
//	limit := types.Float64(100)
//	builder.Without(types.Query{
//	    Range: map[string]types.RangeQuery{
//	        "total": &types.NumberRangeQuery{Gt: &limit},
//	    },
//	})
func (qb *QueryBuilder) Without(query types.Query) {
	qb.boolQuery.MustNot = append(qb.boolQuery.MustNot, query)
}

// Selection returns the document selector of the request, creating it
// on first use. It controls paging, sorting and the returned source fields.
func (qb *QueryBuilder) Selection() *DocumentSelector {
	if qb.selection == nil {
		qb.selection = NewDocumentSelector()
	}
	return qb.selection
}

// Aggregation adds a named top level aggregation, replacing any earlier
// aggregation with the same name.
func (qb *QueryBuilder) Aggregation(name string, agg types.Aggregations) {
	qb.aggregations[name] = agg
}

// Aggregations returns a copy of the aggregations added so far.
func (qb *QueryBuilder) Aggregations() map[string]types.Aggregations {
	return maps.Clone(qb.aggregations)
}

// TrackTotalHits asks Elasticsearch for an exact total hit count
// instead of the default lower bound of 10,000.
func (qb *QueryBuilder) TrackTotalHits() {
	qb.trackTotalHits = true
}

// RawQuery returns the accumulated bool query wrapped in a query.
// Count, update and delete requests send only this part.
func (qb *QueryBuilder) RawQuery() *types.Query {
	return &types.Query{
		Bool: qb.boolQuery,
	}
}

// BuildRequest assembles the search request the backend sends. Callers
// that only want to inspect a compiled query can marshal it to JSON.
//
// Example:
//
//	body, _ := json.Marshal(builder.BuildRequest())
//	fmt.Println(string(body))
func (qb *QueryBuilder) BuildRequest() *search.Request {
	request := &search.Request{
		Query: qb.RawQuery(),
	}

	if len(qb.aggregations) > 0 {
		request.Aggregations = qb.aggregations
	}

	selection := qb.Selection()
	size := selection.pageSize
	from := selection.offset
	request.Size = &size
	request.From = &from

	if selection.sort != nil {
		request.Sort = selection.sort
	}

	if len(selection.inclusions) > 0 || len(selection.exclusions) > 0 {
		request.Source_ = types.SourceFilter{
			Includes: selection.inclusions,
			Excludes: selection.exclusions,
		}
	}

	if qb.trackTotalHits {
		request.TrackTotalHits = true
	}

	return request
}
