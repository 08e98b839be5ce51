package compiler

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
)

// SlotKind is where a projected member reads its value from.
type SlotKind int

const (
	SlotKey SlotKind = iota
	SlotSum
	SlotMax
	SlotMin
	SlotAverage
	SlotCount
	SlotDateTime
)

func (k SlotKind) String() string {
	switch k {
	case SlotKey:
		return "key"
	case SlotSum:
		return "sum"
	case SlotMax:
		return "max"
	case SlotMin:
		return "min"
	case SlotAverage:
		return "average"
	case SlotCount:
		return "count"
	case SlotDateTime:
		return "datetime"
	default:
		return fmt.Sprintf("slot(%d)", int(k))
	}
}

// IsMetric reports whether the slot reads a metric aggregation.
func (k SlotKind) IsMetric() bool {
	return k >= SlotSum && k <= SlotCount
}

var slotMetrics = map[SlotKind]MetricKind{
	SlotSum:     MetricSum,
	SlotMax:     MetricMax,
	SlotMin:     MetricMin,
	SlotAverage: MetricAverage,
	SlotCount:   MetricCount,
}

var methodSlots = map[string]SlotKind{
	expr.MethodSum:     SlotSum,
	expr.MethodMax:     SlotMax,
	expr.MethodMin:     SlotMin,
	expr.MethodAverage: SlotAverage,
	expr.MethodCount:   SlotCount,
}

// ProjectionSlot is one named member of a result shape.
type ProjectionSlot struct {
	Name string
	Kind SlotKind
	// Source is the property path the slot reads, dot separated. It is
	// empty for the whole group key and for a document count.
	Source string
	// FromKey is set when the slot reads the group key rather than a
	// document property.
	FromKey bool
	// Field is the backend field of a metric or document slot.
	Field string
	// Metric is the aggregation name of a metric slot. It is empty for a
	// document count, which reads the bucket's doc_count.
	Metric string
	// ValueType is the type the slot produces; nil for key slots, which
	// take the type of their target.
	ValueType reflect.Type
}

// MetricOf returns the aggregation a metric slot reads.
func (s ProjectionSlot) MetricOf() (Metric, bool) {
	kind, ok := slotMetrics[s.Kind]
	if !ok || s.Metric == "" {
		return Metric{}, false
	}
	return Metric{Name: s.Metric, Kind: kind, Field: s.Field}, true
}

var (
	float64Type = reflect.TypeOf(float64(0))
	int64Type   = reflect.TypeOf(int64(0))
	timeType    = reflect.TypeOf(time.Time{})
)

// Select compiles a result shape, a constructed set of named members,
// into projection slots in member order.
//
//	expr.New(
//	    expr.As("category", expr.Key()),
//	    expr.As("total", expr.Sum(expr.Field("Amount"))),
//	)
func (c *Compiler) Select(shape expr.Node) ([]ProjectionSlot, error) {
	n, ok := shape.(*expr.NewNode)
	if !ok {
		return nil, esq.Unsupported("result shape %v must construct named members", shape)
	}

	v := &selectVisitor{Base: expr.NewBase(c.clock), c: c}
	if err := n.Accept(v); err != nil {
		return nil, err
	}
	return v.slots, nil
}

type selectVisitor struct {
	*expr.Base
	c     *Compiler
	name  string
	slots []ProjectionSlot
}

func (v *selectVisitor) VisitNew(n *expr.NewNode) error {
	if v.name != "" {
		return esq.Unsupported("nested result shape in member %s", v.name)
	}
	if len(n.Members) == 0 {
		return esq.Unsupported("empty result shape")
	}
	seen := make(map[string]bool, len(n.Members))
	for _, m := range n.Members {
		key := strings.ToLower(m.Name)
		if m.Name == "" || seen[key] {
			return esq.Malformed("result shape member %q is empty or repeated", m.Name)
		}
		seen[key] = true

		v.name = m.Name
		if err := m.Value.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

func (v *selectVisitor) VisitMember(n *expr.MemberNode) error {
	slot, err := v.keySlot(n)
	if err != nil {
		return err
	}
	v.slots = append(v.slots, slot)
	return nil
}

// keySlot reads the group key, or a document property that is either a
// key dimension or, for an ungrouped projection, a source field.
func (v *selectVisitor) keySlot(n *expr.MemberNode) (ProjectionSlot, error) {
	p, err := expr.PathOf(n)
	if err != nil {
		return ProjectionSlot{}, err
	}

	slot := ProjectionSlot{Name: v.name, Kind: SlotKey}
	switch {
	case p.IsKey():
		slot.FromKey = true
		slot.Source = strings.Join(p.KeyMembers(), ".")
	case p.Param == expr.DocParam:
		ref, _, err := v.c.docField(p)
		if err != nil {
			return ProjectionSlot{}, err
		}
		slot.Source = strings.Join(p.Members, ".")
		slot.Field = ref.Name
	default:
		return ProjectionSlot{}, esq.Unsupported("member access %s in a result shape", p)
	}
	return slot, nil
}

func (v *selectVisitor) VisitCall(n *expr.CallNode) error {
	if n.Method == expr.MethodToDateTime {
		return v.dateSlot(n)
	}

	kind, ok := methodSlots[n.Method]
	if !ok {
		return esq.Unsupported("method %s", n.Method)
	}

	slot := ProjectionSlot{Name: v.name, Kind: kind, ValueType: float64Type}
	switch {
	case kind == SlotCount && len(n.Args) == 0:
		slot.ValueType = int64Type
	case len(n.Args) == 1:
		m, ok := n.Args[0].(*expr.MemberNode)
		if !ok {
			return esq.Unsupported("%s of %s", n.Method, n.Args[0])
		}
		p, err := expr.PathOf(m)
		if err != nil {
			return err
		}
		ref, err := v.c.field(p)
		if err != nil {
			return err
		}
		slot.Source = strings.Join(p.Members, ".")
		slot.Field = ref.Name
		slot.Metric = MetricName(slotMetrics[kind], ref.Name)
		if kind == SlotCount {
			slot.ValueType = int64Type
		}
	default:
		return esq.Unsupported("%s takes one property", n.Method)
	}

	v.slots = append(v.slots, slot)
	return nil
}

func (v *selectVisitor) dateSlot(n *expr.CallNode) error {
	if len(n.Args) != 1 {
		return esq.Unsupported("%s takes one argument", n.Method)
	}
	m, ok := n.Args[0].(*expr.MemberNode)
	if !ok {
		return esq.Unsupported("%s of %s", n.Method, n.Args[0])
	}
	slot, err := v.keySlot(m)
	if err != nil {
		return err
	}
	slot.Kind = SlotDateTime
	slot.ValueType = timeType
	v.slots = append(v.slots, slot)
	return nil
}

func (v *selectVisitor) VisitConst(n *expr.ConstNode) error {
	return esq.Unsupported("constant %s in a result shape", n)
}

func (v *selectVisitor) VisitNow(n *expr.NowNode) error {
	return esq.Unsupported("%s in a result shape", n)
}
