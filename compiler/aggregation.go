package compiler

import (
	"fmt"
	"strings"

	"github.com/reveald/esq"
)

// DateBucket is a date histogram over one field.
type DateBucket struct {
	Name     string
	Field    string
	Interval Interval
}

// TermsBucket groups on one field, or on the concatenation of several
// fields computed by Script.
type TermsBucket struct {
	Name   string
	Fields []string
	Script string
	Size   int
}

// Composite reports whether bucket keys join several field values.
func (t *TermsBucket) Composite() bool {
	return t.Script != ""
}

// AggregationSpec is the aggregation tree of a grouped query: an optional
// date histogram wrapping an optional terms bucket wrapping the metrics.
type AggregationSpec struct {
	Date    *DateBucket
	Terms   *TermsBucket
	Metrics []Metric
	// Separator joins the values of a composite terms key.
	Separator string
}

// Aggregation composes the aggregation tree of a grouped query from its
// key dimensions and the metric slots of its result shape.
//
// The date dimension, if any, becomes the outer bucket. All terms
// dimensions collapse into one terms bucket: on the field itself for a
// single dimension, else on a script joining the field values with the
// key separator. With no dimensions the metrics sit at the top level.
func (c *Compiler) Aggregation(dims []GroupDimension, slots []ProjectionSlot) (*AggregationSpec, error) {
	spec := &AggregationSpec{Separator: c.separator}

	var names, fields []string
	for _, d := range dims {
		switch d.Kind {
		case DimensionDate:
			if spec.Date != nil {
				return nil, esq.Unsupported("more than one date dimension")
			}
			spec.Date = &DateBucket{
				Name:     d.Field.Name + "_" + string(d.Interval),
				Field:    d.Field.Name,
				Interval: d.Interval,
			}
		default:
			names = append(names, d.Field.Name)
			fields = append(fields, d.BucketField())
		}
	}

	if len(fields) > 0 {
		spec.Terms = &TermsBucket{
			Name:   strings.Join(names, "_"),
			Fields: fields,
			Size:   c.termsSize,
		}
		if len(fields) > 1 {
			spec.Terms.Script = joinScript(fields, c.separator)
		}
	}

	seen := make(map[string]bool)
	for _, s := range slots {
		m, ok := s.MetricOf()
		if !ok || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		spec.Metrics = append(spec.Metrics, m)
	}
	return spec, nil
}

// Metrics returns a bucket-less aggregation tree holding only metrics.
func (c *Compiler) Metrics(metrics []Metric) *AggregationSpec {
	return &AggregationSpec{Metrics: metrics, Separator: c.separator}
}

var painlessEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// joinScript concatenates the values of fields in a painless expression:
//
//	doc['a'].value + '-' + doc['b'].value
func joinScript(fields []string, sep string) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("doc['%s'].value", painlessEscaper.Replace(f))
	}
	return strings.Join(parts, " + '"+painlessEscaper.Replace(sep)+"' + ")
}
