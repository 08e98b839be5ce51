package materialize

import (
	"strings"

	"github.com/reveald/esq/compiler"
)

// Cell is one named value of a row.
type Cell struct {
	Name  string
	Value any
}

// Row is one materialized result, with cells in result shape order.
type Row []Cell

// Map returns the cells keyed by name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, c := range r {
		m[c.Name] = c.Value
	}
	return m
}

// Get returns the value of the named cell.
func (r Row) Get(name string) (any, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return nil, false
}

// DocumentRows projects document sources onto slots that read document
// properties. Missing properties are nil.
func DocumentRows(hits []map[string]any, slots []compiler.ProjectionSlot) []Row {
	rows := make([]Row, 0, len(hits))
	for _, hit := range hits {
		row := make(Row, len(slots))
		for i, s := range slots {
			row[i] = Cell{Name: s.Name, Value: lookup(hit, s.Field)}
		}
		rows = append(rows, row)
	}
	return rows
}

func lookup(doc map[string]any, field string) any {
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
