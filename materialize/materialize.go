// Package materialize turns aggregation responses into result rows.
//
// A Materializer is built from the dimensions, slots and aggregation tree
// of one grouped query. It binds every key slot to a group dimension once,
// then walks the leaf buckets of a response and produces one Row per leaf,
// in bucket order. It keeps no iteration state: materializing the same
// response twice yields the same rows.
package materialize

import (
	"fmt"
	"strings"
	"time"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
)

// Materializer decodes the responses of one grouped query.
type Materializer struct {
	dims     []compiler.GroupDimension
	slots    []compiler.ProjectionSlot
	spec     *compiler.AggregationSpec
	bindings []int // dimension index per slot, -1 when unbound
	terms    []int // position among terms dimensions per dimension, -1 for the date dimension
}

// New binds the slots of a result shape to the dimensions of a group key.
//
// A key slot binds to the dimension it names, by key member or document
// property; otherwise it takes the next unbound dimension in order.
// Grouped queries must project every terms dimension when they project
// any: a key-slot count that differs from the terms dimension count is a
// MalformedProjection.
func New(dims []compiler.GroupDimension, slots []compiler.ProjectionSlot, spec *compiler.AggregationSpec) (*Materializer, error) {
	if spec == nil {
		return nil, esq.Malformed("no aggregation tree")
	}

	m := &Materializer{
		dims:     dims,
		slots:    slots,
		spec:     spec,
		bindings: make([]int, len(slots)),
		terms:    make([]int, len(dims)),
	}

	n := 0
	for i, d := range dims {
		m.terms[i] = -1
		if d.Kind == compiler.DimensionTerms {
			m.terms[i] = n
			n++
		}
	}

	bound := make([]bool, len(dims))
	var positional []int
	for i, s := range slots {
		m.bindings[i] = -1
		if !readsKey(s) {
			continue
		}
		if j, ok := m.named(s); ok {
			m.bindings[i] = j
			bound[j] = true
			continue
		}
		positional = append(positional, i)
	}

	next := 0
	for _, i := range positional {
		for next < len(dims) && bound[next] {
			next++
		}
		if next == len(dims) {
			return nil, esq.Malformed("result member %s has no group key component to read", slots[i].Name)
		}
		m.bindings[i] = next
		bound[next] = true
	}

	keySlots := 0
	for i, s := range slots {
		if s.Kind == compiler.SlotKey && m.bindings[i] >= 0 && dims[m.bindings[i]].Kind == compiler.DimensionTerms {
			keySlots++
		}
	}
	if keySlots > 0 && keySlots != n {
		return nil, esq.Malformed("%d key members for %d group key components", keySlots, n)
	}
	return m, nil
}

func readsKey(s compiler.ProjectionSlot) bool {
	return s.Kind == compiler.SlotKey || s.Kind == compiler.SlotDateTime
}

// named finds the dimension a slot names.
func (m *Materializer) named(s compiler.ProjectionSlot) (int, bool) {
	if s.Source == "" {
		if len(m.dims) == 1 {
			return 0, true
		}
		return -1, false
	}
	for j, d := range m.dims {
		if strings.EqualFold(d.Name, s.Source) || strings.EqualFold(d.Property, s.Source) {
			return j, true
		}
	}
	return -1, false
}

// Rows materializes the leaf buckets of a response.
func (m *Materializer) Rows(result *esq.Result) ([]Row, error) {
	if result == nil {
		return nil, nil
	}

	var rows []Row
	switch {
	case m.spec.Date != nil:
		for _, db := range result.Aggregations[m.spec.Date.Name] {
			if m.spec.Terms == nil {
				row, err := m.row(db, nil, db.Metrics, db.HitCount)
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
				continue
			}
			for _, tb := range db.SubResultBuckets[m.spec.Terms.Name] {
				row, err := m.row(db, tb, tb.Metrics, tb.HitCount)
				if err != nil {
					return nil, err
				}
				rows = append(rows, row)
			}
		}
	case m.spec.Terms != nil:
		for _, tb := range result.Aggregations[m.spec.Terms.Name] {
			row, err := m.row(nil, tb, tb.Metrics, tb.HitCount)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	default:
		row, err := m.row(nil, nil, result.Metrics, result.TotalHitCount)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Materializer) row(date, terms *esq.ResultBucket, metrics map[string]float64, count int64) (Row, error) {
	segments, err := m.segments(terms)
	if err != nil {
		return nil, err
	}

	row := make(Row, len(m.slots))
	for i, s := range m.slots {
		cell := Cell{Name: s.Name}
		switch {
		case s.Kind == compiler.SlotCount && s.Metric == "":
			cell.Value = count
		case s.Kind.IsMetric():
			cell.Value = metrics[s.Metric]
			if s.Kind == compiler.SlotCount {
				cell.Value = int64(metrics[s.Metric])
			}
		default:
			v, err := m.keyValue(i, date, segments)
			if err != nil {
				return nil, err
			}
			cell.Value = v
		}
		row[i] = cell
	}
	return row, nil
}

func (m *Materializer) keyValue(slot int, date *esq.ResultBucket, segments []any) (any, error) {
	s := m.slots[slot]
	j := m.bindings[slot]
	if j < 0 {
		return nil, esq.Malformed("result member %s is not bound to a group key component", s.Name)
	}

	if m.dims[j].Kind == compiler.DimensionDate {
		if date == nil {
			return nil, esq.Malformed("result member %s reads a date bucket that is missing", s.Name)
		}
		return bucketTime(date)
	}

	pos := m.terms[j]
	if pos >= len(segments) {
		return nil, esq.Malformed("result member %s reads key segment %d of %d", s.Name, pos+1, len(segments))
	}
	return segments[pos], nil
}

// segments splits the key of a terms bucket into one value per terms
// dimension. A single-field key is never split.
func (m *Materializer) segments(b *esq.ResultBucket) ([]any, error) {
	if b == nil || m.spec.Terms == nil {
		return nil, nil
	}
	if !m.spec.Terms.Composite() {
		return []any{b.Value}, nil
	}

	key, ok := b.Value.(string)
	if !ok {
		key = fmt.Sprint(b.Value)
	}
	parts := strings.Split(key, m.spec.Separator)
	if len(parts) != len(m.spec.Terms.Fields) {
		return nil, esq.Malformed("bucket key %q has %d segments, want %d", key, len(parts), len(m.spec.Terms.Fields))
	}

	segments := make([]any, len(parts))
	for i, p := range parts {
		segments[i] = p
	}
	return segments, nil
}

// bucketTime reads the key of a date histogram bucket.
func bucketTime(b *esq.ResultBucket) (time.Time, error) {
	switch v := b.Value.(type) {
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	}
	if b.KeyAsString != "" {
		t, err := time.Parse(time.RFC3339Nano, b.KeyAsString)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, esq.Malformed("date bucket key %v", b.Value)
}
