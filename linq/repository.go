package linq

import (
	"context"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/mapping"
)

// Identified is implemented by documents that carry their own id.
type Identified interface {
	DocumentID() string
}

// Repository writes documents of type T to the index T declares.
type Repository[T any] struct {
	provider *Provider
	index    mapping.Index
	err      error
}

// NewRepository returns a repository for T. Missing index metadata is
// reported by the first call.
func NewRepository[T any](p *Provider) *Repository[T] {
	ix, err := mapping.IndexOf[T]()
	return &Repository[T]{provider: p, index: ix, err: err}
}

// Query starts a query over the documents of the repository.
func (r *Repository[T]) Query() *Queryable[T] {
	return &Queryable[T]{provider: r.provider, index: r.index.Name, err: r.err}
}

type writeOptions struct {
	at *time.Time
}

// WriteOption configures a write.
type WriteOption func(*writeOptions)

// At writes into the period index of t instead of the base index.
func At(t time.Time) WriteOption {
	return func(o *writeOptions) {
		o.at = &t
	}
}

func (r *Repository[T]) target(opts []WriteOption) string {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.at != nil {
		return r.index.NameAt(*o.at)
	}
	return r.index.Name
}

// ensure creates the target index with the mapping of T unless it exists.
func (r *Repository[T]) ensure(ctx context.Context, target string) error {
	properties := r.provider.resolver.Properties(reflect.TypeFor[T]())
	settings := r.index.Settings(target, properties)
	if err := r.provider.registry.Ensure(ctx, r.provider.client, target, settings); err != nil {
		return errors.Wrapf(err, "ensure index %s", target)
	}
	return nil
}

func documentID(doc any) string {
	if ided, ok := doc.(Identified); ok {
		if id := ided.DocumentID(); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// Insert writes one document and returns its id.
func (r *Repository[T]) Insert(ctx context.Context, doc T, opts ...WriteOption) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	target := r.target(opts)
	if err := r.ensure(ctx, target); err != nil {
		return "", err
	}

	id := documentID(doc)
	if err := r.provider.client.Index(ctx, target, id, doc); err != nil {
		return "", errors.Wrapf(err, "insert into %s", target)
	}
	return id, nil
}

// InsertMany writes documents in one bulk request and returns their ids
// in input order.
func (r *Repository[T]) InsertMany(ctx context.Context, docs []T, opts ...WriteOption) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	target := r.target(opts)
	if err := r.ensure(ctx, target); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	batch := make([]esq.Document, len(docs))
	for i, doc := range docs {
		ids[i] = documentID(doc)
		batch[i] = esq.Document{ID: ids[i], Source: doc}
	}
	if err := r.provider.client.Bulk(ctx, target, batch); err != nil {
		return nil, errors.Wrapf(err, "bulk insert %d documents into %s", len(docs), target)
	}

	r.provider.logger.Debug("documents inserted",
		zap.String("index", target),
		zap.Int("count", len(docs)))
	return ids, nil
}

// Update sets a property to value on every document matching where and
// returns the number of updated documents.
func (r *Repository[T]) Update(ctx context.Context, where expr.Node, field expr.Node, value any) (int64, error) {
	q := r.Query().Where(where)
	p, err := q.compile(terminalUpdate)
	if err != nil {
		return 0, err
	}
	ref, err := p.compiler.Field(field)
	if err != nil {
		return 0, err
	}

	script := esq.Script{
		Source: "ctx._source." + ref.Name + " = params." + paramName(ref.Name),
		Params: map[string]any{paramName(ref.Name): value},
	}
	result, err := q.execute(ctx, terminalUpdate, p, nil, nil, func(qb *esq.QueryBuilder) (*esq.Result, error) {
		n, err := r.provider.client.UpdateByQuery(ctx, qb, script)
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

// paramName turns a dotted field into a script parameter name.
func paramName(field string) string {
	return strings.ReplaceAll(field, ".", "_")
}

// Delete removes every document matching where and returns the number of
// deleted documents. Without predicates it deletes every document.
func (r *Repository[T]) Delete(ctx context.Context, where ...expr.Node) (int64, error) {
	q := r.Query().Where(where...)
	p, err := q.compile(terminalDelete)
	if err != nil {
		return 0, err
	}

	result, err := q.execute(ctx, terminalDelete, p, nil, nil, func(qb *esq.QueryBuilder) (*esq.Result, error) {
		n, err := r.provider.client.DeleteByQuery(ctx, qb)
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
