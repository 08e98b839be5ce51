package linq

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/featureset"
	"github.com/reveald/esq/mapping"
)

type stageKind int

const (
	stageWhere stageKind = iota
	stageOrder
	stageGroup
	stageSelect
)

type stage struct {
	kind  stageKind
	nodes []expr.Node
}

// Queryable is a query over the documents of type T. Every builder method
// returns a new Queryable; the receiver is never changed, so a base query
// can be shared and extended.
type Queryable[T any] struct {
	provider *Provider
	index    string
	stages   []stage
	features []esq.Feature
	err      error
}

// From starts a query over the index T declares.
func From[T any](p *Provider) *Queryable[T] {
	ix, err := mapping.IndexOf[T]()
	return &Queryable[T]{provider: p, index: ix.Name, err: err}
}

// FromIndex starts a query over an explicitly named index, for types
// without index metadata such as map[string]any.
func FromIndex[T any](p *Provider, index string) *Queryable[T] {
	q := &Queryable[T]{provider: p, index: index}
	if index == "" {
		q.err = esq.MissingMetadata(reflect.TypeFor[T]().String())
	}
	return q
}

// Index returns the index the query reads.
func (q *Queryable[T]) Index() string {
	return q.index
}

func (q *Queryable[T]) with(kind stageKind, nodes ...expr.Node) *Queryable[T] {
	stages := make([]stage, len(q.stages), len(q.stages)+1)
	copy(stages, q.stages)
	return &Queryable[T]{
		provider: q.provider,
		index:    q.index,
		stages:   append(stages, stage{kind: kind, nodes: nodes}),
		features: q.features,
		err:      q.err,
	}
}

// Use adds request features that run after the compiled filter, such as a
// free text query. They apply to every terminal.
func (q *Queryable[T]) Use(features ...esq.Feature) *Queryable[T] {
	out := *q
	out.features = append(append([]esq.Feature(nil), q.features...), features...)
	return &out
}

// Where filters the query. Repeated calls combine with AND.
func (q *Queryable[T]) Where(predicates ...expr.Node) *Queryable[T] {
	return q.with(stageWhere, predicates...)
}

// OrderBy sorts ascending on a document property. Sorts apply in call order.
func (q *Queryable[T]) OrderBy(field expr.Node) *Queryable[T] {
	return q.with(stageOrder, expr.Call(expr.MethodOrderBy, nil, field))
}

func (q *Queryable[T]) OrderByDescending(field expr.Node) *Queryable[T] {
	return q.with(stageOrder, expr.Call(expr.MethodOrderByDescending, nil, field))
}

// GroupBy groups documents on a key selector: one property, or an
// expr.New of several.
func (q *Queryable[T]) GroupBy(key expr.Node) *Queryable[T] {
	return q.with(stageGroup, key)
}

// Select sets the result shape read by Project and ProjectFirst.
func (q *Queryable[T]) Select(shape expr.Node) *Queryable[T] {
	return q.with(stageSelect, shape)
}

// plan is a compiled query.
type plan struct {
	compiler  *compiler.Compiler
	predicate *compiler.Predicate
	group     expr.Node
	shape     expr.Node
	extra     []esq.Feature
}

func (p *plan) grouped() bool {
	return p.group != nil
}

// compile compiles every stage, plus extra nodes for the terminal, and
// checks that the terminal can run on the result.
func (q *Queryable[T]) compile(t terminal, extra ...expr.Node) (*plan, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.provider == nil {
		return nil, errors.New("query has no provider")
	}

	p := &plan{compiler: q.provider.compiler(reflect.TypeFor[T]()), extra: q.features}
	var nodes []expr.Node
	for _, s := range q.stages {
		switch s.kind {
		case stageWhere, stageOrder:
			nodes = append(nodes, s.nodes...)
		case stageGroup:
			if p.group != nil {
				return nil, esq.Unsupported("GroupBy of a grouped query")
			}
			p.group = s.nodes[0]
		case stageSelect:
			p.shape = s.nodes[0]
		}
	}
	nodes = append(nodes, extra...)

	if p.grouped() && !t.groupable() {
		return nil, esq.Unsupported("%s on a grouped query", t)
	}

	predicate, err := p.compiler.Where(nodes...)
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s query on %s", t, q.index)
	}
	p.predicate = predicate
	return p, nil
}

// features returns the filter and sort features of a plan. A plan that
// can match nothing filters with match_none.
func (p *plan) features(sorted bool) []esq.Feature {
	var features []esq.Feature
	if p.predicate.Unsatisfiable {
		features = append(features, matchNone{})
	} else {
		features = append(features, featureset.NewFilterFeature(p.predicate.Clause))
	}
	if sorted && len(p.predicate.Sorts) > 0 {
		features = append(features, featureset.NewSortingFeature(p.predicate.Sorts...))
	}
	return append(features, p.extra...)
}

// matchNone filters out every document.
type matchNone struct{}

func (matchNone) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	builder.With(compiler.MatchNone())
	return next(builder)
}
