package compiler

import (
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/calendarinterval"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/shopspring/decimal"
)

// Query translates a clause into the query DSL. An AND without children
// matches all documents.
func Query(c Clause) types.Query {
	switch t := c.(type) {
	case *Term:
		return types.Query{Term: map[string]types.TermQuery{t.Field: {Value: fieldValue(t.Value)}}}
	case *Range:
		return types.Query{Range: map[string]types.RangeQuery{t.Field: rangeQuery(t)}}
	case *Wildcard:
		pattern := t.Pattern
		return types.Query{Wildcard: map[string]types.WildcardQuery{t.Field: {Value: &pattern}}}
	case *Terms:
		values := make([]types.FieldValue, len(t.Values))
		for i, v := range t.Values {
			values[i] = fieldValue(v)
		}
		return types.Query{Terms: &types.TermsQuery{TermsQuery: map[string]types.TermsQueryField{t.Field: values}}}
	case *Bool:
		if len(t.Children) == 0 && !t.MustNot {
			return types.Query{MatchAll: &types.MatchAllQuery{}}
		}
		queries := make([]types.Query, len(t.Children))
		for i, child := range t.Children {
			queries[i] = Query(child)
		}
		if t.MustNot {
			return types.Query{Bool: &types.BoolQuery{MustNot: queries}}
		}
		return types.Query{Bool: &types.BoolQuery{Must: queries}}
	}
	return types.Query{MatchAll: &types.MatchAllQuery{}}
}

// fieldValue sends decimals as JSON numbers with every digit kept; their
// own encoding is a quoted string.
func fieldValue(v any) types.FieldValue {
	if d, ok := v.(decimal.Decimal); ok {
		return json.Number(d.String())
	}
	return v
}

// MatchNone is the query of an unsatisfiable predicate.
func MatchNone() types.Query {
	return types.Query{MatchNone: &types.MatchNoneQuery{}}
}

func rangeQuery(r *Range) types.RangeQuery {
	if r.Format != "" {
		s := strconv.FormatInt(r.Value.(int64), 10)
		format := r.Format
		q := &types.DateRangeQuery{Format: &format}
		switch r.Op {
		case RangeGt:
			q.Gt = &s
		case RangeGte:
			q.Gte = &s
		case RangeLt:
			q.Lt = &s
		case RangeLte:
			q.Lte = &s
		}
		return q
	}

	if s, ok := r.Value.(string); ok {
		q := &types.TermRangeQuery{}
		switch r.Op {
		case RangeGt:
			q.Gt = &s
		case RangeGte:
			q.Gte = &s
		case RangeLt:
			q.Lt = &s
		case RangeLte:
			q.Lte = &s
		}
		return q
	}

	if d, ok := r.Value.(decimal.Decimal); ok {
		bound := json.RawMessage(d.String())
		q := &types.UntypedRangeQuery{}
		switch r.Op {
		case RangeGt:
			q.Gt = bound
		case RangeGte:
			q.Gte = bound
		case RangeLt:
			q.Lt = bound
		case RangeLte:
			q.Lte = bound
		}
		return q
	}

	f := types.Float64(toFloat(r.Value))
	q := &types.NumberRangeQuery{}
	switch r.Op {
	case RangeGt:
		q.Gt = &f
	case RangeGte:
		q.Gte = &f
	case RangeLt:
		q.Lt = &f
	case RangeLte:
		q.Lte = &f
	}
	return q
}

// SortOrder returns the sort order of a sort.
func (s Sort) SortOrder() sortorder.SortOrder {
	if s.Descending {
		return sortorder.Desc
	}
	return sortorder.Asc
}

var calendarIntervals = map[Interval]calendarinterval.CalendarInterval{
	IntervalYear:    calendarinterval.Year,
	IntervalQuarter: calendarinterval.Quarter,
	IntervalMonth:   calendarinterval.Month,
	IntervalWeek:    calendarinterval.Week,
	IntervalDay:     calendarinterval.Day,
	IntervalHour:    calendarinterval.Hour,
	IntervalMinute:  calendarinterval.Minute,
	IntervalSecond:  calendarinterval.Second,
}

// Aggregations translates the tree into named request aggregations.
func (s *AggregationSpec) Aggregations() map[string]types.Aggregations {
	aggs := s.metricAggregations()

	if s.Terms != nil {
		size := s.Terms.Size
		terms := &types.TermsAggregation{Size: &size}
		if s.Terms.Composite() {
			script := s.Terms.Script
			terms.Script = &types.Script{Source: &script}
		} else {
			field := s.Terms.Fields[0]
			terms.Field = &field
		}
		aggs = map[string]types.Aggregations{
			s.Terms.Name: {Terms: terms, Aggregations: aggs},
		}
	}

	if s.Date != nil {
		field := s.Date.Field
		interval := calendarIntervals[s.Date.Interval]
		aggs = map[string]types.Aggregations{
			s.Date.Name: {
				DateHistogram: &types.DateHistogramAggregation{
					Field:            &field,
					CalendarInterval: &interval,
				},
				Aggregations: aggs,
			},
		}
	}

	return aggs
}

func (s *AggregationSpec) metricAggregations() map[string]types.Aggregations {
	aggs := make(map[string]types.Aggregations, len(s.Metrics))
	for _, m := range s.Metrics {
		field := m.Field
		switch m.Kind {
		case MetricSum:
			aggs[m.Name] = types.Aggregations{Sum: &types.SumAggregation{Field: &field}}
		case MetricMax:
			aggs[m.Name] = types.Aggregations{Max: &types.MaxAggregation{Field: &field}}
		case MetricMin:
			aggs[m.Name] = types.Aggregations{Min: &types.MinAggregation{Field: &field}}
		case MetricAverage:
			aggs[m.Name] = types.Aggregations{Avg: &types.AverageAggregation{Field: &field}}
		case MetricCount:
			aggs[m.Name] = types.Aggregations{ValueCount: &types.ValueCountAggregation{Field: &field}}
		}
	}
	return aggs
}

func number(v any) (float64, bool) {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

func toFloat(v any) float64 {
	f, _ := number(v)
	return f
}
