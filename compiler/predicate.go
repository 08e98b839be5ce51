package compiler

import (
	"reflect"
	"strings"
	"time"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/mapping"
)

// Predicate is a compiled filter.
type Predicate struct {
	// Clause is the top-level AND of the filter. It has no children when
	// every document matches.
	Clause *Bool
	Sorts  []Sort
	// Metrics are the aggregates named by aggregate calls.
	Metrics []Metric
	// Unsatisfiable is set when no document can match, such as a filter
	// on membership in an empty list.
	Unsatisfiable bool
}

// Where compiles filter nodes, combining them with AND. Nodes may also be
// OrderBy/OrderByDescending calls, which register sorts, and aggregate
// calls, which register metrics.
func (c *Compiler) Where(nodes ...expr.Node) (*Predicate, error) {
	v := &predicateVisitor{Base: expr.NewBase(c.clock), c: c}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := v.visitTop(n); err != nil {
			return nil, err
		}
	}

	p := &Predicate{Sorts: v.sorts, Metrics: v.metrics}
	clause, outcome := simplify(&Bool{Children: v.clauses})
	switch outcome {
	case matchNone:
		p.Clause = &Bool{}
		p.Unsatisfiable = true
	default:
		p.Clause = clause.(*Bool)
	}
	return p, nil
}

type predicateVisitor struct {
	*expr.Base
	c       *Compiler
	clauses []Clause
	sorts   []Sort
	metrics []Metric
}

// visitTop accepts a node that is either a predicate or a sort or metric
// registration.
func (v *predicateVisitor) visitTop(n expr.Node) error {
	if call, ok := n.(*expr.CallNode); ok {
		if _, metric := metricMethods[call.Method]; metric || isOrdering(call.Method) {
			return call.Accept(v)
		}
	}
	c, err := v.predicate(n)
	if err != nil {
		return err
	}
	v.clauses = append(v.clauses, c)
	return nil
}

// predicate compiles n into exactly one clause.
func (v *predicateVisitor) predicate(n expr.Node) (Clause, error) {
	if m, ok := n.(*expr.MemberNode); ok {
		return v.bareBool(m, true)
	}

	depth := len(v.clauses)
	if err := n.Accept(v); err != nil {
		return nil, err
	}
	if len(v.clauses) != depth+1 || len(v.Fields) > 0 || len(v.Values) > 0 {
		v.clauses = v.clauses[:depth]
		v.Reset()
		return nil, esq.Unsupported("expression %s is not a predicate", n)
	}

	c := v.clauses[depth]
	v.clauses = v.clauses[:depth]
	return c, nil
}

func (v *predicateVisitor) bareBool(m *expr.MemberNode, value bool) (Clause, error) {
	p, err := expr.PathOf(m)
	if err != nil {
		return nil, err
	}
	ref, err := v.c.field(p)
	if err != nil {
		return nil, err
	}
	if ref.Type != nil && ref.Type.Kind() != reflect.Bool {
		return nil, esq.Unsupported("property %s of type %s used as a condition", m, ref.Type)
	}
	return &Term{Field: ref.Name, Value: value}, nil
}

func (v *predicateVisitor) VisitUnary(n *expr.UnaryNode) error {
	if n.Op != expr.OpNot {
		return esq.Unsupported("expression %s", n)
	}

	if m, ok := n.Operand.(*expr.MemberNode); ok {
		c, err := v.bareBool(m, false)
		if err != nil {
			return err
		}
		v.clauses = append(v.clauses, c)
		return nil
	}

	c, err := v.predicate(n.Operand)
	if err != nil {
		return err
	}
	v.clauses = append(v.clauses, negate(c))
	return nil
}

func (v *predicateVisitor) VisitBinary(n *expr.BinaryNode) error {
	switch {
	case n.Op == expr.OpAnd:
		left, err := v.predicate(n.Left)
		if err != nil {
			return err
		}
		right, err := v.predicate(n.Right)
		if err != nil {
			return err
		}
		v.clauses = append(v.clauses, &Bool{Children: []Clause{left, right}})
		return nil
	case n.Op == expr.OpOr:
		return esq.Unsupported("operator || in %s; only AND composition is supported", n)
	case n.Op.Comparison():
		c, err := v.comparison(n)
		if err != nil {
			return err
		}
		v.clauses = append(v.clauses, c)
		return nil
	}
	return esq.Unsupported("operator %s", n.Op)
}

func (v *predicateVisitor) comparison(n *expr.BinaryNode) (Clause, error) {
	fields := len(v.Fields)
	if err := n.Left.Accept(v); err != nil {
		return nil, err
	}
	leftIsField := len(v.Fields) > fields
	if err := n.Right.Accept(v); err != nil {
		return nil, err
	}

	path, okField := v.PopField()
	value, okValue := v.PopValue()
	if !okField || !okValue || len(v.Fields) > 0 || len(v.Values) > 0 {
		v.Reset()
		return nil, esq.Unsupported("comparison %s needs one property and one value", n)
	}

	op := n.Op
	if !leftIsField {
		op = op.Flip()
	}

	ref, err := v.c.field(path)
	if err != nil {
		return nil, err
	}
	return v.c.compare(ref, op, value, n)
}

func (c *Compiler) compare(ref mapping.FieldRef, op expr.BinaryOp, value expr.Literal, n expr.Node) (Clause, error) {
	switch value.Kind {
	case expr.KindNull:
		return nil, esq.Unsupported("comparison with null in %s", n)
	case expr.KindArray:
		return nil, esq.Unsupported("comparison with a list in %s; use Contains", n)
	}

	switch op {
	case expr.OpEq:
		return &Term{Field: ref.Name, Value: value.Raw}, nil
	case expr.OpNe:
		return negate(&Term{Field: ref.Name, Value: value.Raw}), nil
	}

	r := &Range{Field: ref.Name, Op: rangeOps[op], Value: value.Raw, Kind: value.Kind}
	switch value.Kind {
	case expr.KindBool:
		return nil, esq.Unsupported("ordering comparison of a boolean in %s", n)
	case expr.KindTime:
		r.Value, r.Format = c.epoch(value.Raw.(time.Time))
	}
	return r, nil
}

var rangeOps = map[expr.BinaryOp]RangeOp{
	expr.OpGt: RangeGt,
	expr.OpGe: RangeGte,
	expr.OpLt: RangeLt,
	expr.OpLe: RangeLte,
}

func (v *predicateVisitor) VisitCall(n *expr.CallNode) error {
	switch n.Method {
	case expr.MethodContains, expr.MethodStartsWith, expr.MethodEndsWith:
		c, err := v.match(n)
		if err != nil {
			return err
		}
		v.clauses = append(v.clauses, c)
		return nil
	case expr.MethodOrderBy, expr.MethodOrderByDescending:
		if len(n.Args) != 1 {
			return esq.Unsupported("%s takes one property", n.Method)
		}
		ref, err := v.c.fieldOf(n.Args[0])
		if err != nil {
			return err
		}
		v.sorts = append(v.sorts, Sort{Field: ref.Name, Descending: n.Method == expr.MethodOrderByDescending})
		return nil
	}

	kind, ok := metricMethods[n.Method]
	if !ok {
		return esq.Unsupported("method %s", n.Method)
	}
	if len(n.Args) != 1 {
		return esq.Unsupported("%s takes one property", n.Method)
	}
	ref, err := v.c.fieldOf(n.Args[0])
	if err != nil {
		return err
	}
	v.metrics = append(v.metrics, Metric{Name: MetricName(kind, ref.Name), Kind: kind, Field: ref.Name})
	return nil
}

// match compiles Contains, StartsWith and EndsWith. A list receiver is a
// membership test; a property receiver is a wildcard pattern.
func (v *predicateVisitor) match(n *expr.CallNode) (Clause, error) {
	if n.Target == nil || len(n.Args) != 1 {
		return nil, esq.Unsupported("%s needs a receiver and one argument", n.Method)
	}
	if err := n.Target.Accept(v); err != nil {
		return nil, err
	}
	if err := n.Args[0].Accept(v); err != nil {
		return nil, err
	}

	path, okField := v.PopField()
	value, okValue := v.PopValue()
	if !okField || !okValue || len(v.Fields) > 0 || len(v.Values) > 0 {
		v.Reset()
		return nil, esq.Unsupported("%s needs one property and one value", n)
	}
	ref, err := v.c.field(path)
	if err != nil {
		return nil, err
	}

	switch value.Kind {
	case expr.KindArray:
		if n.Method != expr.MethodContains {
			return nil, esq.Unsupported("%s over a list", n.Method)
		}
		values := value.Elements()
		for i, e := range values {
			if t, ok := e.(time.Time); ok {
				values[i] = t.UTC().Format(time.RFC3339Nano)
			}
		}
		return &Terms{Field: ref.Name, Values: values}, nil
	}

	// A list property contains a value when any of its items equals it.
	if ref.Type != nil && ref.Type.Kind() == reflect.Slice && ref.Type.Elem().Kind() != reflect.Uint8 {
		if n.Method != expr.MethodContains {
			return nil, esq.Unsupported("%s on list property %s", n.Method, ref.Name)
		}
		return &Term{Field: ref.Name, Value: value.Raw}, nil
	}

	switch value.Kind {
	case expr.KindString:
		s := escapeWildcard(value.Raw.(string))
		switch n.Method {
		case expr.MethodStartsWith:
			s = s + "*"
		case expr.MethodEndsWith:
			s = "*" + s
		default:
			s = "*" + s + "*"
		}
		return &Wildcard{Field: ref.Name, Pattern: s}, nil
	}
	return nil, esq.Unsupported("%s with a %s argument", n.Method, value.Kind)
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

func isOrdering(method string) bool {
	return method == expr.MethodOrderBy || method == expr.MethodOrderByDescending
}
