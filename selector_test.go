package esq

import (
	"testing"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/stretchr/testify/assert"
)

func Test_NewDocumentSelector(t *testing.T) {
	table := []struct {
		name      string
		selectors []Selector
		validate  func(*DocumentSelector) bool
	}{
		{"default page size", []Selector{}, func(ds *DocumentSelector) bool {
			return ds.PageSize() == defaultPageSize
		}},
		{"default offset", []Selector{}, func(ds *DocumentSelector) bool {
			return ds.Offset() == 0
		}},
		{"default sort", []Selector{}, func(ds *DocumentSelector) bool {
			return ds.sort == nil && len(ds.Sorting()) == 0
		}},
		{"set page size", []Selector{WithPageSize(10)}, func(ds *DocumentSelector) bool {
			return ds.PageSize() == 10
		}},
		{"set offset", []Selector{WithOffset(10)}, func(ds *DocumentSelector) bool {
			return ds.Offset() == 10
		}},
		{"set properties", []Selector{WithProperties("a"), WithProperties("b")}, func(ds *DocumentSelector) bool {
			return assert.Equal(t, []string{"a", "b"}, ds.Properties())
		}},
		{"set excluded properties", []Selector{WithoutProperties("c")}, func(ds *DocumentSelector) bool {
			return assert.Equal(t, []string{"c"}, ds.ExcludedProperties())
		}},
		{"set sort", []Selector{WithSort("test", sortorder.Asc)}, func(ds *DocumentSelector) bool {
			return assert.Equal(t, []*ResultSortingOption{{Property: "test", Ascending: true}}, ds.Sorting())
		}},
	}

	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			ds := NewDocumentSelector(tt.selectors...)
			assert.True(t, tt.validate(ds))
		})
	}
}

func Test_Update(t *testing.T) {
	ds := NewDocumentSelector(WithPageSize(10), WithSort("price", sortorder.Desc))
	ds.Update(WithOffset(20), WithSort("name", sortorder.Asc))

	assert.Equal(t, 10, ds.PageSize())
	assert.Equal(t, 20, ds.Offset())
	assert.Equal(t, []*ResultSortingOption{
		{Property: "price", Ascending: false},
		{Property: "name", Ascending: true},
	}, ds.Sorting())
	assert.Len(t, ds.sort, 2)
}
