// Package compiler translates expression trees into the clause and
// aggregation model and from there into the Elasticsearch query DSL.
//
// A Compiler is bound to one document type. Where compiles filter, sort
// and metric nodes; GroupBy and Select compile the key selector and the
// result shape of a grouped query, which Aggregation composes into an
// aggregation tree. Compilers hold no per-call state and are safe for
// concurrent use.
package compiler

import (
	"reflect"
	"time"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/mapping"
)

const (
	// DefaultTermsSize is the engine's default search.max_buckets.
	DefaultTermsSize    = 65536
	DefaultKeySeparator = "-"
)

// Compiler compiles expression trees over one document type.
type Compiler struct {
	resolver    *mapping.Resolver
	docType     reflect.Type
	epochMillis bool
	termsSize   int
	separator   string
	clock       func() time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithEpochMillis compares times as epoch milliseconds instead of seconds.
func WithEpochMillis() Option {
	return func(c *Compiler) {
		c.epochMillis = true
	}
}

// WithTermsSize sets the bucket count requested from terms aggregations.
func WithTermsSize(size int) Option {
	return func(c *Compiler) {
		if size > 0 {
			c.termsSize = size
		}
	}
}

// WithKeySeparator sets the separator of composite group keys.
func WithKeySeparator(sep string) Option {
	return func(c *Compiler) {
		if sep != "" {
			c.separator = sep
		}
	}
}

// WithClock sets the clock expr.Now is evaluated with.
func WithClock(clock func() time.Time) Option {
	return func(c *Compiler) {
		c.clock = clock
	}
}

// New returns a compiler for documents of type docType.
func New(resolver *mapping.Resolver, docType reflect.Type, opts ...Option) *Compiler {
	if resolver == nil {
		resolver = mapping.NewResolver()
	}
	c := &Compiler{
		resolver:  resolver,
		docType:   docType,
		termsSize: DefaultTermsSize,
		separator: DefaultKeySeparator,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Separator returns the composite key separator.
func (c *Compiler) Separator() string {
	return c.separator
}

// DocType returns the document type the compiler resolves fields against.
func (c *Compiler) DocType() reflect.Type {
	return c.docType
}

// field resolves a document path that must name a whole field.
func (c *Compiler) field(p expr.Path) (mapping.FieldRef, error) {
	ref, rest, err := c.docField(p)
	if err != nil {
		return mapping.FieldRef{}, err
	}
	if len(rest) > 0 {
		return mapping.FieldRef{}, esq.Unsupported("member %s of date property %s", rest[0], ref.Name)
	}
	return ref, nil
}

func (c *Compiler) docField(p expr.Path) (mapping.FieldRef, []string, error) {
	if p.Param != expr.DocParam {
		return mapping.FieldRef{}, nil, esq.Unsupported("member access %s outside the document", p)
	}
	return c.resolver.Resolve(c.docType, p.Members)
}

// fieldOf resolves a node that must be a document member access.
func (c *Compiler) fieldOf(n expr.Node) (mapping.FieldRef, error) {
	m, ok := n.(*expr.MemberNode)
	if !ok {
		return mapping.FieldRef{}, esq.Unsupported("expected a document property, got %s", n)
	}
	p, err := expr.PathOf(m)
	if err != nil {
		return mapping.FieldRef{}, err
	}
	return c.field(p)
}

func (c *Compiler) epoch(t time.Time) (int64, string) {
	if c.epochMillis {
		return t.UnixMilli(), "epoch_millis"
	}
	return t.Unix(), "epoch_second"
}

// Field resolves a document member access to its backend field.
func (c *Compiler) Field(n expr.Node) (mapping.FieldRef, error) {
	return c.fieldOf(n)
}
