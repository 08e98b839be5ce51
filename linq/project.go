package linq

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/reveald/esq/featureset"
	"github.com/reveald/esq/materialize"
)

type projectionKind int

const (
	// projectGroups reads one row per leaf bucket of a grouped query.
	projectGroups projectionKind = iota
	// projectMetrics reads one row of top-level metrics.
	projectMetrics
	// projectDocuments reads one row per matching document.
	projectDocuments
)

// projection is a compiled result shape.
type projection struct {
	kind         projectionKind
	slots        []compiler.ProjectionSlot
	spec         *compiler.AggregationSpec
	materializer *materialize.Materializer
}

func (p *plan) project() (*projection, error) {
	if p.shape == nil {
		return nil, esq.Unsupported("Project without a Select result shape")
	}
	slots, err := p.compiler.Select(p.shape)
	if err != nil {
		return nil, err
	}

	if p.grouped() {
		dims, err := p.compiler.GroupBy(p.group)
		if err != nil {
			return nil, err
		}
		return newAggregateProjection(p.compiler, projectGroups, dims, slots)
	}

	var metrics, properties int
	var result *multierror.Error
	for _, s := range slots {
		switch {
		case s.Kind.IsMetric():
			metrics++
		case s.FromKey:
			result = multierror.Append(result, esq.Unsupported("group key member %s of a query without GroupBy", s.Name))
		default:
			properties++
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	switch {
	case metrics > 0 && properties > 0:
		return nil, esq.Unsupported("result shape mixing document properties and aggregates without GroupBy")
	case metrics > 0:
		return newAggregateProjection(p.compiler, projectMetrics, nil, slots)
	}
	return &projection{kind: projectDocuments, slots: slots}, nil
}

func newAggregateProjection(c *compiler.Compiler, kind projectionKind, dims []compiler.GroupDimension, slots []compiler.ProjectionSlot) (*projection, error) {
	spec, err := c.Aggregation(dims, slots)
	if err != nil {
		return nil, err
	}
	m, err := materialize.New(dims, slots, spec)
	if err != nil {
		return nil, err
	}
	return &projection{kind: kind, slots: slots, spec: spec, materializer: m}, nil
}

func (s *projection) features() []esq.Feature {
	switch s.kind {
	case projectDocuments:
		return []esq.Feature{featureset.NewPropertyInclusionFeature(s.fields()...)}
	case projectMetrics:
		features := []esq.Feature{featureset.NewAggregationFeature(s.spec)}
		if s.countsDocuments() {
			features = append(features, featureset.NewPaginationFeature(
				featureset.WithPageSize(0),
				featureset.WithTotalHits()))
		}
		return features
	}
	return []esq.Feature{featureset.NewAggregationFeature(s.spec)}
}

// fields returns the document fields the shape reads, in slot order.
func (s *projection) fields() []string {
	seen := make(map[string]bool, len(s.slots))
	var fields []string
	for _, slot := range s.slots {
		if slot.Field == "" || seen[slot.Field] {
			continue
		}
		seen[slot.Field] = true
		fields = append(fields, slot.Field)
	}
	return fields
}

// countsDocuments reports whether a slot reads the hit count itself.
func (s *projection) countsDocuments() bool {
	for _, slot := range s.slots {
		if slot.Kind == compiler.SlotCount && slot.Metric == "" {
			return true
		}
	}
	return false
}

// Project runs a query with a Select stage and decodes each result row
// into R, a struct or a map[string]any.
//
// A grouped query yields one row per group. Without GroupBy, a shape of
// aggregates yields a single row over all matching documents and a shape
// of document properties yields a row per document.
func Project[T, R any](ctx context.Context, q *Queryable[T]) ([]R, error) {
	rows, err := projectRows(ctx, q, 0)
	if err != nil {
		return nil, err
	}
	out, err := materialize.Into[R](rows)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s rows of %s", terminalProject, q.index)
	}
	return out, nil
}

// ProjectFirst returns the first row of Project, or nil when there is none.
func ProjectFirst[T, R any](ctx context.Context, q *Queryable[T]) (*R, error) {
	rows, err := projectRows(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out, err := materialize.Into[R](rows[:1])
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s row of %s", terminalProject, q.index)
	}
	return &out[0], nil
}

// projectRows materializes the rows of a projection. A positive limit
// reads documents with a single search instead of a scan.
func projectRows[T any](ctx context.Context, q *Queryable[T], limit int) ([]materialize.Row, error) {
	p, err := q.compile(terminalProject)
	if err != nil {
		return nil, err
	}
	shape, err := p.project()
	if err != nil {
		return nil, err
	}

	if shape.kind == projectDocuments {
		if limit > 0 {
			page := featureset.NewPaginationFeature(featureset.WithPageSize(limit))
			result, err := q.execute(ctx, terminalProject, p, shape, []esq.Feature{page}, nil)
			if err != nil {
				return nil, err
			}
			return materialize.DocumentRows(result.Hits, shape.slots), nil
		}

		var rows []materialize.Row
		err := q.scan(ctx, terminalProject, p, shape, func(hit map[string]any) bool {
			rows = append(rows, materialize.DocumentRows([]map[string]any{hit}, shape.slots)...)
			return true
		})
		return rows, err
	}

	result, err := q.execute(ctx, terminalProject, p, shape, nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := shape.materializer.Rows(result)
	if err != nil {
		return nil, errors.Wrapf(err, "materialize %s", q.index)
	}
	return rows, nil
}
