package featureset

import "github.com/reveald/esq"

// PropertyExclusionFeature leaves a set of fields out of document sources.
type PropertyExclusionFeature struct {
	properties []string
}

func NewPropertyExclusionFeature(properties ...string) *PropertyExclusionFeature {
	return &PropertyExclusionFeature{properties}
}

func (pef *PropertyExclusionFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	if len(pef.properties) > 0 {
		builder.
			Selection().
			Update(esq.WithoutProperties(pef.properties...))
	}

	return next(builder)
}
