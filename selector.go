package esq

import (
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
)

// DocumentSelector is a container for Elasticsearch data, which is not part of a document search.
//
// It includes information about page sizes, sorting, and field inclusion.
// The DocumentSelector is typically used with a QueryBuilder to control pagination,
// sorting, and field selection.
type DocumentSelector struct {
	inclusions []string
	exclusions []string
	offset     int
	pageSize   int
	sort       []types.SortCombinations
	sorted     []*ResultSortingOption
}

const (
	defaultPageSize = 24
)

// Selector is a functional option used when creating or updating a DocumentSelector.
//
// This allows for a flexible and readable way to configure document selection options.
type Selector func(*DocumentSelector)

// WithProperties defines a set of document fields to include in a document result.
//
// This is equivalent to the "_source.includes" parameter in Elasticsearch.
//
// Example:
//
//	// Include only id, name, and price fields
//	selector := esq.NewDocumentSelector(
//	    esq.WithProperties("id", "name", "price"),
//	)
func WithProperties(properties ...string) Selector {
	return func(s *DocumentSelector) {
		s.inclusions = append(s.inclusions, properties...)
	}
}

// WithoutProperties defines a set of document fields to leave out of a
// document result, the "_source.excludes" parameter in Elasticsearch.
func WithoutProperties(properties ...string) Selector {
	return func(s *DocumentSelector) {
		s.exclusions = append(s.exclusions, properties...)
	}
}

// WithPageSize defines a page size for a search.
//
// This controls how many documents are returned per page. A page size of
// zero returns aggregations and counts only.
//
// Example:
//
//	// Return 10 documents per page
//	selector := esq.NewDocumentSelector(
//	    esq.WithPageSize(10),
//	)
func WithPageSize(size int) Selector {
	return func(s *DocumentSelector) {
		s.pageSize = size
	}
}

// WithOffset defines the offset (starting document) for a search.
//
// This is used for pagination, to skip a certain number of documents.
//
// Example:
//
//	// Skip the first 20 documents (for page 3 with page size 10)
//	selector := esq.NewDocumentSelector(
//	    esq.WithPageSize(10),
//	    esq.WithOffset(20),
//	)
func WithOffset(offset int) Selector {
	return func(s *DocumentSelector) {
		s.offset = offset
	}
}

// WithSort defines a sort field and order for a search.
//
// Sorts accumulate: documents are ordered by the first sort, then the second, and so on.
//
// Example:
//
//	// Sort by price in descending order, then by name
//	selector := esq.NewDocumentSelector(
//	    esq.WithSort("price", sortorder.Desc),
//	    esq.WithSort("name", sortorder.Asc),
//	)
func WithSort(field string, order sortorder.SortOrder) Selector {
	return func(s *DocumentSelector) {
		s.sort = append(s.sort, types.SortOptions{
			SortOptions: map[string]types.FieldSort{
				field: {
					Order: &order,
				},
			},
		})
		s.sorted = append(s.sorted, &ResultSortingOption{
			Property:  field,
			Ascending: order == sortorder.Asc,
		})
	}
}

// NewDocumentSelector returns a new document selector instance.
//
// It is typically used with a query builder to specify which fields to include,
// as well as pagination settings.
//
// Example:
//
//	// Create a document selector with multiple options
//	selector := esq.NewDocumentSelector(
//	    esq.WithPageSize(10),
//	    esq.WithOffset(20),
//	    esq.WithSort("price", sortorder.Desc),
//	    esq.WithProperties("id", "name", "price"),
//	)
func NewDocumentSelector(selectors ...Selector) *DocumentSelector {
	s := &DocumentSelector{
		inclusions: []string{},
		offset:     0,
		pageSize:   defaultPageSize,
		sort:       nil,
	}

	for _, sel := range selectors {
		sel(s)
	}

	return s
}

// Update a DocumentSelector with new settings.
//
// This allows you to modify an existing DocumentSelector with new options.
//
// Example:
//
//	// Create a basic selector
//	selector := esq.NewDocumentSelector(
//	    esq.WithPageSize(10),
//	)
//
//	// Later, update it with additional options
//	selector.Update(
//	    esq.WithOffset(20),
//	    esq.WithSort("price", sortorder.Desc),
//	)
func (ds *DocumentSelector) Update(selectors ...Selector) {
	for _, selector := range selectors {
		selector(ds)
	}
}

// PageSize returns the number of documents requested.
func (ds *DocumentSelector) PageSize() int {
	return ds.pageSize
}

// Offset returns the number of documents skipped.
func (ds *DocumentSelector) Offset() int {
	return ds.offset
}

// Properties returns the source fields included in a document result.
func (ds *DocumentSelector) Properties() []string {
	return ds.inclusions
}

// ExcludedProperties returns the source fields left out of a document result.
func (ds *DocumentSelector) ExcludedProperties() []string {
	return ds.exclusions
}

// Sorting returns the applied sort options in order.
func (ds *DocumentSelector) Sorting() []*ResultSortingOption {
	return ds.sorted
}
