package featureset

import "github.com/reveald/esq"

// PropertyInclusionFeature limits document sources to a set of fields.
type PropertyInclusionFeature struct {
	properties []string
}

func NewPropertyInclusionFeature(properties ...string) *PropertyInclusionFeature {
	return &PropertyInclusionFeature{properties}
}

func (pif *PropertyInclusionFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	if len(pif.properties) > 0 {
		builder.
			Selection().
			Update(esq.WithProperties(pif.properties...))
	}

	return next(builder)
}
