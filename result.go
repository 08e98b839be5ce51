package esq

import (
	"time"
)

// Result is a construct containing the search result, Elasticsearch aggregations, and metadata.
//
// It encapsulates all the information returned from an Elasticsearch call, including
// the matching documents, bucket and metric aggregation results, the scroll cursor,
// pagination information, and call duration.
//
// Example:
//
//	// Execute a query and get results
//	result, err := backend.Execute(ctx, builder)
//	if err != nil {
//	    // Handle error
//	}
//
//	// Access the results
//	fmt.Printf("Found %d documents\n", result.TotalHitCount)
//	for _, hit := range result.Hits {
//	    fmt.Printf("Document: %v\n", hit)
//	}
//
//	// Access bucket aggregations
//	for _, bucket := range result.Aggregations["category"] {
//	    fmt.Printf("Category: %v, Count: %d\n", bucket.Value, bucket.HitCount)
//	}
type Result struct {
	TotalHitCount int64
	Hits          []map[string]any
	Aggregations  map[string][]*ResultBucket
	Metrics       map[string]float64
	ScrollID      string
	Pagination    *ResultPagination
	Sorting       *ResultSorting
	Duration      time.Duration
}

// Metric returns the value of a top-level metric aggregation.
//
// A metric which is absent from the response, or whose value is null
// (for example the max of an empty set), reports ok as false.
func (r *Result) Metric(name string) (value float64, ok bool) {
	if r == nil || r.Metrics == nil {
		return 0, false
	}
	value, ok = r.Metrics[name]
	return value, ok
}

// ResultBucket is a container for aggregations.
//
// It represents a single bucket in an Elasticsearch aggregation result,
// containing the bucket key, document count, metric values, and any
// sub-aggregations.
//
// Example:
//
//	// Access aggregation buckets
//	for _, bucket := range result.Aggregations["createdAt_month"] {
//	    fmt.Printf("Month: %s, Count: %d\n", bucket.KeyAsString, bucket.HitCount)
//
//	    // Access sub-aggregations if any
//	    for _, sub := range bucket.SubResultBuckets["category"] {
//	        fmt.Printf("  Category: %v, Total: %v\n", sub.Value, sub.Metrics["sum_amount"])
//	    }
//	}
type ResultBucket struct {
	Value            any
	KeyAsString      string
	HitCount         int64
	Metrics          map[string]float64
	SubResultBuckets map[string][]*ResultBucket
}

// ResultPagination is a container for pagination information.
//
// It includes the current offset and page size used for the query.
type ResultPagination struct {
	Offset   int
	PageSize int
}

// ResultSorting is a container for the sort options applied to the request.
//
// Example:
//
//	// Access sorting information
//	if result.Sorting != nil {
//	    for _, option := range result.Sorting.Options {
//	        fmt.Printf("  %s (ascending: %t)\n", option.Property, option.Ascending)
//	    }
//	}
type ResultSorting struct {
	Options []*ResultSortingOption
}

// ResultSortingOption is a container for a sort option.
type ResultSortingOption struct {
	Property  string
	Ascending bool
}
