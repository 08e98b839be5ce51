package compiler

import (
	"fmt"
	"strings"

	"github.com/reveald/esq/expr"
)

// Clause is a node of a boolean query tree.
type Clause interface {
	isClause()
	String() string
}

// Term matches documents whose field equals Value.
type Term struct {
	Field string
	Value any
}

// RangeOp is an ordering comparison.
type RangeOp string

const (
	RangeGt  RangeOp = "gt"
	RangeGte RangeOp = "gte"
	RangeLt  RangeOp = "lt"
	RangeLte RangeOp = "lte"
)

// Range matches documents whose field compares to Value with Op.
//
// Times are carried as epoch numbers; Format names their unit
// ("epoch_second" or "epoch_millis") and is empty otherwise.
type Range struct {
	Field  string
	Op     RangeOp
	Value  any
	Kind   expr.ValueKind
	Format string
}

// Wildcard matches documents whose field matches Pattern, where * stands
// for any run of characters.
type Wildcard struct {
	Field   string
	Pattern string
}

// Terms matches documents whose field equals any of Values.
type Terms struct {
	Field  string
	Values []any
}

// Bool combines children with AND. With MustNot set it matches documents
// that match none of its children.
type Bool struct {
	MustNot  bool
	Children []Clause
}

func (*Term) isClause()     {}
func (*Range) isClause()    {}
func (*Wildcard) isClause() {}
func (*Terms) isClause()    {}
func (*Bool) isClause()     {}

func (c *Term) String() string { return fmt.Sprintf("term(%s = %v)", c.Field, c.Value) }
func (c *Range) String() string {
	return fmt.Sprintf("range(%s %s %v)", c.Field, c.Op, c.Value)
}
func (c *Wildcard) String() string { return fmt.Sprintf("wildcard(%s ~ %s)", c.Field, c.Pattern) }
func (c *Terms) String() string    { return fmt.Sprintf("terms(%s in %v)", c.Field, c.Values) }

func (c *Bool) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	op := "and"
	if c.MustNot {
		op = "not"
	}
	return op + "(" + strings.Join(parts, ", ") + ")"
}

// negate wraps c in a must-not, cancelling a double negation.
func negate(c Clause) Clause {
	if b, ok := c.(*Bool); ok && b.MustNot && len(b.Children) == 1 {
		return b.Children[0]
	}
	return &Bool{MustNot: true, Children: []Clause{c}}
}

type truth int

const (
	matchSome truth = iota
	matchAll
	matchNone
)

// simplify folds clauses whose outcome is known without a backend: an
// empty Terms matches nothing, an empty AND matches everything. Nested
// AND nodes are flattened into their parent.
func simplify(c Clause) (Clause, truth) {
	switch t := c.(type) {
	case *Terms:
		if len(t.Values) == 0 {
			return nil, matchNone
		}
		return t, matchSome
	case *Bool:
		var children []Clause
		for _, child := range t.Children {
			s, outcome := simplify(child)
			switch {
			case outcome == matchNone && !t.MustNot:
				return nil, matchNone
			case outcome == matchAll && t.MustNot:
				return nil, matchNone
			case outcome != matchSome:
				continue
			}
			if b, ok := s.(*Bool); ok && !b.MustNot && !t.MustNot {
				children = append(children, b.Children...)
				continue
			}
			children = append(children, s)
		}
		if len(children) == 0 {
			return &Bool{}, matchAll
		}
		return &Bool{MustNot: t.MustNot, Children: children}, matchSome
	default:
		return c, matchSome
	}
}

// Sort orders results by a field.
type Sort struct {
	Field      string
	Descending bool
}

// MetricKind is a metric aggregation.
type MetricKind int

const (
	MetricSum MetricKind = iota
	MetricMax
	MetricMin
	MetricAverage
	MetricCount
)

func (k MetricKind) String() string {
	switch k {
	case MetricSum:
		return "sum"
	case MetricMax:
		return "max"
	case MetricMin:
		return "min"
	case MetricAverage:
		return "avg"
	case MetricCount:
		return "count"
	default:
		return fmt.Sprintf("metric(%d)", int(k))
	}
}

// Metric is a named metric aggregation over a field.
type Metric struct {
	Name  string
	Kind  MetricKind
	Field string
}

// MetricName returns the aggregation name of a metric over field.
func MetricName(kind MetricKind, field string) string {
	return kind.String() + "_" + field
}

var metricMethods = map[string]MetricKind{
	expr.MethodSum:     MetricSum,
	expr.MethodMax:     MetricMax,
	expr.MethodMin:     MetricMin,
	expr.MethodAverage: MetricAverage,
	expr.MethodCount:   MetricCount,
}
