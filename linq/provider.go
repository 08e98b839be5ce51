// Package linq runs compiled expression-tree queries against Elasticsearch.
//
// A Provider owns the client and the compilation settings. Queries start
// from From or FromIndex, collect where, order, group and select stages on
// an immutable Queryable, and execute when a terminal is called:
//
//	q := linq.From[Sale](provider).
//	    Where(expr.Gt(expr.Field("Amount"), expr.Value(100))).
//	    OrderByDescending(expr.Field("CreatedAt"))
//
//	n, err := q.Count(ctx)
//	for sale, err := range q.All(ctx) {
//	    ...
//	}
//
// Grouped queries are projected with Project:
//
//	totals, err := linq.Project[Sale, CategoryTotal](ctx, q.
//	    GroupBy(expr.Field("Category")).
//	    Select(expr.New(
//	        expr.As("Category", expr.Key()),
//	        expr.As("Total", expr.Sum(expr.Field("Amount"))),
//	    )))
package linq

import (
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/reveald/esq/mapping"
)

const (
	DefaultScrollSize      = 1000
	DefaultScrollKeepAlive = 30 * time.Second
)

// Provider executes queries and writes through one client.
type Provider struct {
	client       esq.Client
	logger       *zap.Logger
	resolver     *mapping.Resolver
	registry     *esq.IndexRegistry
	scrollSize   int
	keepAlive    time.Duration
	compilerOpts []compiler.Option
}

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithResolver sets the field resolver shared by every query of the provider.
func WithResolver(resolver *mapping.Resolver) Option {
	return func(p *Provider) {
		if resolver != nil {
			p.resolver = resolver
		}
	}
}

// WithRegistry sets the registry of known indices. Providers share
// esq.DefaultIndexRegistry unless given one.
func WithRegistry(registry *esq.IndexRegistry) Option {
	return func(p *Provider) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithScrollSize sets the page size of scans.
func WithScrollSize(size int) Option {
	return func(p *Provider) {
		if size > 0 {
			p.scrollSize = size
		}
	}
}

// WithScrollKeepAlive sets how long a scan cursor stays open between pages.
func WithScrollKeepAlive(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.keepAlive = d
		}
	}
}

// WithCompilerOptions passes options to every compiler the provider builds.
func WithCompilerOptions(opts ...compiler.Option) Option {
	return func(p *Provider) {
		p.compilerOpts = append(p.compilerOpts, opts...)
	}
}

// WithConfig applies the scan and compilation settings of a configuration.
func WithConfig(cfg *esq.Config) Option {
	return func(p *Provider) {
		if cfg == nil {
			return
		}
		WithScrollSize(cfg.ScrollSize)(p)
		WithScrollKeepAlive(cfg.ScrollKeepAlive)(p)
		p.compilerOpts = append(p.compilerOpts,
			compiler.WithTermsSize(cfg.TermsSize),
			compiler.WithKeySeparator(cfg.KeySeparator))
		if cfg.EpochMillis {
			p.compilerOpts = append(p.compilerOpts, compiler.WithEpochMillis())
		}
	}
}

// NewProvider returns a provider running queries through client.
func NewProvider(client esq.Client, opts ...Option) *Provider {
	p := &Provider{
		client:     client,
		logger:     zap.NewNop(),
		resolver:   mapping.NewResolver(),
		registry:   esq.DefaultIndexRegistry,
		scrollSize: DefaultScrollSize,
		keepAlive:  DefaultScrollKeepAlive,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) compiler(docType reflect.Type) *compiler.Compiler {
	return compiler.New(p.resolver, docType, p.compilerOpts...)
}

func (p *Provider) endpoint(index string, features ...esq.Feature) (*esq.Endpoint, error) {
	e := esq.NewEndpoint(p.client, esq.WithIndices(index))
	if err := e.Register(features...); err != nil {
		return nil, err
	}
	return e, nil
}
