package linq

import (
	"context"

	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/featureset"
	"github.com/reveald/esq/materialize"
)

// terminal is the operation that executes a query.
type terminal int

const (
	terminalCount terminal = iota
	terminalAny
	terminalFirst
	terminalMax
	terminalMin
	terminalAverage
	terminalSum
	terminalPaged
	terminalScan
	terminalProject
	terminalRequest
	terminalUpdate
	terminalDelete
)

var terminalNames = map[terminal]string{
	terminalCount:   "Count",
	terminalAny:     "Any",
	terminalFirst:   "FirstOrDefault",
	terminalMax:     "Max",
	terminalMin:     "Min",
	terminalAverage: "Average",
	terminalSum:     "Sum",
	terminalPaged:   "Paged",
	terminalScan:    "All",
	terminalProject: "Project",
	terminalRequest: "Request",
	terminalUpdate:  "Update",
	terminalDelete:  "Delete",
}

func (t terminal) String() string {
	if name, ok := terminalNames[t]; ok {
		return name
	}
	return "terminal(unknown)"
}

// groupable reports whether the terminal reads grouped results.
func (t terminal) groupable() bool {
	return t == terminalProject || t == terminalRequest
}

// features returns the features a terminal runs with. Unknown terminals
// are rejected.
func (t terminal) features(p *plan, shape *projection) ([]esq.Feature, error) {
	switch t {
	case terminalCount, terminalUpdate, terminalDelete:
		return p.features(false), nil
	case terminalAny, terminalFirst:
		return append(p.features(true), featureset.NewPaginationFeature(featureset.WithPageSize(1))), nil
	case terminalMax, terminalMin, terminalAverage, terminalSum:
		metrics := p.predicate.Metrics
		spec := p.compiler.Metrics(metrics[len(metrics)-1:])
		return append(p.features(false), featureset.NewAggregationFeature(spec)), nil
	case terminalPaged, terminalScan:
		return p.features(true), nil
	case terminalProject, terminalRequest:
		features := p.features(!p.grouped())
		if shape != nil {
			features = append(features, shape.features()...)
		}
		return features, nil
	}
	return nil, esq.Unsupported("terminal %s", t)
}

var metricTerminals = map[terminal]func(expr.Node) *expr.CallNode{
	terminalMax:     expr.Max,
	terminalMin:     expr.Min,
	terminalAverage: expr.Average,
	terminalSum:     expr.Sum,
}

// run compiles and executes a terminal.
func (q *Queryable[T]) run(ctx context.Context, t terminal, extra []expr.Node, opts []esq.Feature, backend esq.FeatureFunc) (*plan, *esq.Result, error) {
	p, err := q.compile(t, extra...)
	if err != nil {
		return nil, nil, err
	}
	result, err := q.execute(ctx, t, p, nil, opts, backend)
	if err != nil {
		return nil, nil, err
	}
	return p, result, nil
}

// execute runs a compiled plan through the feature chain. backend performs
// the call and defaults to a search. A plan that can match nothing returns
// an empty result without a backend call.
func (q *Queryable[T]) execute(ctx context.Context, t terminal, p *plan, shape *projection, opts []esq.Feature, backend esq.FeatureFunc) (*esq.Result, error) {
	if p.predicate.Unsatisfiable {
		q.provider.logger.Debug("query matches no documents, skipping backend call",
			zap.String("index", q.index),
			zap.Stringer("terminal", t))
		return &esq.Result{}, nil
	}

	features, err := t.features(p, shape)
	if err != nil {
		return nil, err
	}
	e, err := q.provider.endpoint(q.index, append(features, opts...)...)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		backend = func(qb *esq.QueryBuilder) (*esq.Result, error) {
			return q.provider.client.Execute(ctx, qb)
		}
	}

	result, err := e.Run(backend)
	if err != nil {
		return nil, errors.Wrapf(err, "%s on %s", t, q.index)
	}
	return result, nil
}

// Count returns the number of matching documents.
func (q *Queryable[T]) Count(ctx context.Context) (int64, error) {
	_, result, err := q.run(ctx, terminalCount, nil, nil, func(qb *esq.QueryBuilder) (*esq.Result, error) {
		n, err := q.provider.client.Count(ctx, qb)
		if err != nil {
			return nil, err
		}
		return &esq.Result{TotalHitCount: n}, nil
	})
	if err != nil {
		return 0, err
	}
	return result.TotalHitCount, nil
}

// Any reports whether any document matches.
func (q *Queryable[T]) Any(ctx context.Context) (bool, error) {
	_, result, err := q.run(ctx, terminalAny, nil, nil, nil)
	if err != nil {
		return false, err
	}
	return result.TotalHitCount > 0 || len(result.Hits) > 0, nil
}

// FirstOrDefault returns the first matching document in sort order, or
// nil when none matches.
func (q *Queryable[T]) FirstOrDefault(ctx context.Context) (*T, error) {
	_, result, err := q.run(ctx, terminalFirst, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	if len(result.Hits) == 0 {
		return nil, nil
	}
	doc, err := materialize.Document[T](result.Hits[0])
	if err != nil {
		return nil, errors.Wrapf(err, "decode first document of %s", q.index)
	}
	return &doc, nil
}

// Max returns the largest value of a property over the matching documents.
// Like the other aggregates it is 0 when no document matches.
func (q *Queryable[T]) Max(ctx context.Context, field expr.Node) (float64, error) {
	return q.metric(ctx, terminalMax, field)
}

func (q *Queryable[T]) Min(ctx context.Context, field expr.Node) (float64, error) {
	return q.metric(ctx, terminalMin, field)
}

func (q *Queryable[T]) Average(ctx context.Context, field expr.Node) (float64, error) {
	return q.metric(ctx, terminalAverage, field)
}

func (q *Queryable[T]) Sum(ctx context.Context, field expr.Node) (float64, error) {
	return q.metric(ctx, terminalSum, field)
}

func (q *Queryable[T]) metric(ctx context.Context, t terminal, field expr.Node) (float64, error) {
	p, result, err := q.run(ctx, t, []expr.Node{metricTerminals[t](field)}, nil, nil)
	if err != nil {
		return 0, err
	}
	metrics := p.predicate.Metrics
	value, _ := result.Metric(metrics[len(metrics)-1].Name)
	return value, nil
}

// Page is one page of matching documents.
type Page[T any] struct {
	Items []T
	// Total is the number of matching documents across all pages.
	Total int64
	Page  int
	Size  int
}

// Paged returns the 1-based page of size documents, with the total hit count.
func (q *Queryable[T]) Paged(ctx context.Context, page, size int) (*Page[T], error) {
	if page < 1 {
		page = 1
	}
	pagination := featureset.NewPaginationFeature(
		featureset.WithPage(page, size),
		featureset.WithTotalHits())

	_, result, err := q.run(ctx, terminalPaged, nil, []esq.Feature{pagination}, nil)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(result.Hits))
	for _, hit := range result.Hits {
		doc, err := materialize.Document[T](hit)
		if err != nil {
			return nil, errors.Wrapf(err, "decode page %d of %s", page, q.index)
		}
		items = append(items, doc)
	}
	return &Page[T]{Items: items, Total: result.TotalHitCount, Page: page, Size: size}, nil
}

// Request compiles the query into the search request it would send,
// without contacting the cluster. A grouped query needs a Select stage.
func (q *Queryable[T]) Request() (*search.Request, error) {
	p, err := q.compile(terminalRequest)
	if err != nil {
		return nil, err
	}

	var shape *projection
	if p.grouped() || p.shape != nil {
		if shape, err = p.project(); err != nil {
			return nil, err
		}
	}
	features, err := terminalRequest.features(p, shape)
	if err != nil {
		return nil, err
	}
	e, err := q.provider.endpoint(q.index, features...)
	if err != nil {
		return nil, err
	}

	var req *search.Request
	_, err = e.Run(func(qb *esq.QueryBuilder) (*esq.Result, error) {
		req = qb.BuildRequest()
		return &esq.Result{}, nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
