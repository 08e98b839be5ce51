package esq

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
)

// FeatureFunc is a type alias for the `next` feature
// to process a request/response stream
type FeatureFunc func(*QueryBuilder) (*Result, error)

// Feature is an interface which defines a
// search building block
type Feature interface {
	Process(*QueryBuilder, FeatureFunc) (*Result, error)
}

// Backend is an interface defining the backing
// search engine
type Backend interface {
	Execute(context.Context, *QueryBuilder) (*Result, error)
}

// Counter counts the documents matching a query.
type Counter interface {
	Count(context.Context, *QueryBuilder) (int64, error)
}

// Scroller iterates over every document matching a query with
// a server side cursor.
type Scroller interface {
	Scroll(ctx context.Context, builder *QueryBuilder, keepAlive time.Duration) (*Result, error)
	ScrollNext(ctx context.Context, scrollID string, keepAlive time.Duration) (*Result, error)
	ClearScroll(ctx context.Context, scrollID string) error
}

// IndexManager checks for and creates indices.
type IndexManager interface {
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, settings IndexSettings) error
}

// Writer changes documents.
type Writer interface {
	Index(ctx context.Context, index, id string, document any) error
	Bulk(ctx context.Context, index string, documents []Document) error
	DeleteByQuery(ctx context.Context, builder *QueryBuilder) (int64, error)
	UpdateByQuery(ctx context.Context, builder *QueryBuilder, script Script) (int64, error)
}

// Client is the complete set of calls the query provider makes
// against a search engine.
type Client interface {
	Backend
	Counter
	Scroller
	IndexManager
	Writer
}

// IndexSettings describes an index to create.
type IndexSettings struct {
	Aliases         []string
	Replicas        int
	Shards          int
	RefreshInterval string
	Properties      map[string]types.Property
}

// Document is a single document of a bulk write.
type Document struct {
	ID     string
	Source any
}

// Script is a painless script with parameters.
type Script struct {
	Source string
	Params map[string]any
}

// Endpoint defines an entry point for a specific search
// query type
type Endpoint struct {
	backend  Backend
	indices  []string
	features []Feature
}

// Indices is a type alias for a string slice
type Indices []string

// WithIndices defines an index collection that
// an Endpoint should query
func WithIndices(index ...string) Indices {
	var collection Indices
	collection = append(collection, index...)
	return collection
}

// NewEndpoint returns a new Endpoint for a specific
// search query type
func NewEndpoint(backend Backend, indices Indices) *Endpoint {
	return &Endpoint{
		backend: backend,
		indices: indices,
	}
}

// Register a new set of features used when building
// a search query
func (e *Endpoint) Register(features ...Feature) error {
	for _, f := range features {
		if f == nil {
			return fmt.Errorf("nil feature registered")
		}
	}
	e.features = append(e.features, features...)
	return nil
}

// Execute a search query
func (e *Endpoint) Execute(ctx context.Context) (*Result, error) {
	return e.Run(func(qb *QueryBuilder) (*Result, error) {
		return e.backend.Execute(ctx, qb)
	})
}

// Run the registered features around a custom terminal call,
// such as a count or a scroll, instead of a search
func (e *Endpoint) Run(terminal FeatureFunc) (*Result, error) {
	start := time.Now()
	builder := NewQueryBuilder(e.indices...)

	result, err := newCallchain(e.features...).exec(builder, terminal)
	if err != nil {
		return nil, fmt.Errorf("backend failed executing request: %w", err)
	}
	if result == nil {
		result = &Result{}
	}

	result.Duration = time.Since(start)
	return result, nil
}
