package compiler

import (
	"strings"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/mapping"
)

// DimensionKind tells how a group key component is bucketed.
type DimensionKind int

const (
	DimensionTerms DimensionKind = iota
	DimensionDate
)

// Interval is a calendar interval of a date histogram.
type Interval string

const (
	IntervalYear    Interval = "year"
	IntervalQuarter Interval = "quarter"
	IntervalMonth   Interval = "month"
	IntervalWeek    Interval = "week"
	IntervalDay     Interval = "day"
	IntervalHour    Interval = "hour"
	IntervalMinute  Interval = "minute"
	IntervalSecond  Interval = "second"
)

var intervals = map[string]Interval{
	"year":    IntervalYear,
	"quarter": IntervalQuarter,
	"month":   IntervalMonth,
	"week":    IntervalWeek,
	"day":     IntervalDay,
	"date":    IntervalDay,
	"hour":    IntervalHour,
	"minute":  IntervalMinute,
	"second":  IntervalSecond,
}

// ParseInterval maps a time component accessor, such as Month, to its
// calendar interval.
func ParseInterval(member string) (Interval, bool) {
	iv, ok := intervals[strings.ToLower(member)]
	return iv, ok
}

// GroupDimension is one component of a group key.
type GroupDimension struct {
	// Name is the member name of the key component in a composite key.
	Name string
	// Property is the document property path, dot separated.
	Property string
	Field    mapping.FieldRef
	Kind     DimensionKind
	Interval Interval
}

// BucketField returns the field the dimension buckets on.
func (d GroupDimension) BucketField() string {
	if d.Kind == DimensionDate {
		return d.Field.Name
	}
	return d.Field.Exact()
}

// GroupBy compiles a key selector: a single document property, or a
// constructed shape of them. A time component accessor on a date property
// (x.CreatedAt.Month) is a date histogram dimension; at most one is allowed.
// Dimensions are returned in source order.
func (c *Compiler) GroupBy(key expr.Node) ([]GroupDimension, error) {
	if key == nil {
		return nil, esq.Unsupported("group by without a key")
	}

	v := &groupVisitor{Base: expr.NewBase(c.clock), c: c}
	if err := key.Accept(v); err != nil {
		return nil, err
	}

	dates := 0
	for _, d := range v.dims {
		if d.Kind == DimensionDate {
			dates++
		}
	}
	if dates > 1 {
		return nil, esq.Unsupported("group key %s has %d date components; at most one is supported", key, dates)
	}
	return v.dims, nil
}

type groupVisitor struct {
	*expr.Base
	c    *Compiler
	name string
	dims []GroupDimension
}

func (v *groupVisitor) VisitNew(n *expr.NewNode) error {
	if len(n.Members) == 0 {
		return esq.Unsupported("empty group key")
	}
	for _, m := range n.Members {
		if _, ok := m.Value.(*expr.MemberNode); !ok {
			return esq.Unsupported("group key member %s: %s is not a property", m.Name, m.Value)
		}
		v.name = m.Name
		if err := m.Value.Accept(v); err != nil {
			return err
		}
	}
	v.name = ""
	return nil
}

func (v *groupVisitor) VisitMember(n *expr.MemberNode) error {
	p, err := expr.PathOf(n)
	if err != nil {
		return err
	}
	ref, rest, err := v.c.docField(p)
	if err != nil {
		return err
	}

	d := GroupDimension{
		Name:     v.name,
		Property: strings.Join(p.Members, "."),
		Field:    ref,
	}
	if d.Name == "" {
		d.Name = p.Members[len(p.Members)-1]
	}

	switch {
	case len(rest) == 0:
		d.Kind = DimensionTerms
	case len(rest) == 1 && ref.IsDate():
		iv, ok := ParseInterval(rest[0])
		if !ok {
			return esq.Unsupported("time component %s of %s", rest[0], ref.Name)
		}
		d.Kind = DimensionDate
		d.Interval = iv
	default:
		return esq.Unsupported("group key %s", n)
	}

	v.dims = append(v.dims, d)
	return nil
}

func (v *groupVisitor) VisitConst(n *expr.ConstNode) error {
	return esq.Unsupported("constant %s in a group key", n)
}

func (v *groupVisitor) VisitNow(n *expr.NowNode) error {
	return esq.Unsupported("%s in a group key", n)
}
