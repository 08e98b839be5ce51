package featureset

import (
	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
)

// SortingFeature pushes compiled sorts down to the search request and
// reports them on the result.
type SortingFeature struct {
	sorts []compiler.Sort
}

// NewSortingFeature returns a feature applying sorts in order.
func NewSortingFeature(sorts ...compiler.Sort) *SortingFeature {
	return &SortingFeature{sorts}
}

func (sf *SortingFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	sf.build(builder)

	r, err := next(builder)
	if err != nil {
		return nil, err
	}

	return sf.handle(r)
}

func (sf *SortingFeature) build(builder *esq.QueryBuilder) {
	for _, s := range sf.sorts {
		builder.Selection().Update(esq.WithSort(s.Field, s.SortOrder()))
	}
}

func (sf *SortingFeature) handle(result *esq.Result) (*esq.Result, error) {
	if result == nil || len(sf.sorts) == 0 {
		return result, nil
	}

	var options []*esq.ResultSortingOption
	for _, s := range sf.sorts {
		options = append(options, &esq.ResultSortingOption{
			Property:  s.Field,
			Ascending: !s.Descending,
		})
	}

	result.Sorting = &esq.ResultSorting{
		Options: options,
	}
	return result, nil
}
