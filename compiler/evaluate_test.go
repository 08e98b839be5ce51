package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/reveald/esq"
)

// evaluate reports whether a decoded document matches a clause, with the
// semantics the engine applies to the translated query. Multi-valued
// fields match when any of their values does.
func evaluate(c Clause, doc map[string]any) (bool, error) {
	switch t := c.(type) {
	case *Term:
		return anyValue(lookup(doc, t.Field), func(v any) bool { return equal(v, t.Value) }), nil
	case *Terms:
		return anyValue(lookup(doc, t.Field), func(v any) bool {
			for _, want := range t.Values {
				if equal(v, want) {
					return true
				}
			}
			return false
		}), nil
	case *Wildcard:
		return anyValue(lookup(doc, t.Field), func(v any) bool {
			s, ok := v.(string)
			return ok && globMatch(t.Pattern, s)
		}), nil
	case *Range:
		return anyValue(lookup(doc, t.Field), func(v any) bool { return inRange(v, t) }), nil
	case *Bool:
		for _, child := range t.Children {
			ok, err := evaluate(child, doc)
			if err != nil {
				return false, err
			}
			if ok == t.MustNot {
				return false, nil
			}
		}
		return true, nil
	}
	return false, esq.Unsupported("clause %T", c)
}

func lookup(doc map[string]any, field string) any {
	field = strings.TrimSuffix(field, ".keyword")
	if v, ok := doc[field]; ok {
		return v
	}
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func anyValue(v any, match func(any) bool) bool {
	if v == nil {
		return false
	}
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if match(item) {
				return true
			}
		}
		return false
	}
	return match(v)
}

func equal(docValue, want any) bool {
	if a, ok := number(docValue); ok {
		b, ok := number(want)
		return ok && a == b
	}
	if t, ok := want.(time.Time); ok {
		d, ok := timeValue(docValue)
		return ok && d.Equal(t)
	}
	return fmt.Sprint(docValue) == fmt.Sprint(want)
}

func inRange(docValue any, r *Range) bool {
	var cmp int
	switch {
	case r.Format != "":
		d, ok := timeValue(docValue)
		if !ok {
			return false
		}
		at := d.Unix()
		if r.Format == "epoch_millis" {
			at = d.UnixMilli()
		}
		cmp = compareInt(at, r.Value.(int64))
	default:
		if s, ok := r.Value.(string); ok {
			d, ok := docValue.(string)
			if !ok {
				return false
			}
			cmp = strings.Compare(d, s)
			break
		}
		a, ok := number(docValue)
		if !ok {
			return false
		}
		cmp = compareFloat(a, toFloat(r.Value))
	}

	switch r.Op {
	case RangeGt:
		return cmp > 0
	case RangeGte:
		return cmp >= 0
	case RangeLt:
		return cmp < 0
	default:
		return cmp <= 0
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	if ms, ok := number(v); ok {
		return time.UnixMilli(int64(ms)), true
	}
	return time.Time{}, false
}

// globMatch matches s against a wildcard pattern where * is any run of
// characters, ? any single character and \ escapes the next one.
func globMatch(pattern, s string) bool {
	p, str := []rune(pattern), []rune(s)
	var pi, si int
	star, mark := -1, 0
	for si < len(str) {
		switch {
		case pi < len(p) && p[pi] == '\\' && pi+1 < len(p) && p[pi+1] == str[si]:
			pi += 2
			si++
		case pi < len(p) && p[pi] == '?':
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, si
			pi++
		case pi < len(p) && p[pi] != '\\' && p[pi] == str[si]:
			pi++
			si++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
