package featureset

import (
	"testing"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_FilterFeature_Build(t *testing.T) {
	clause := &compiler.Bool{Children: []compiler.Clause{
		&compiler.Term{Field: "region", Value: "eu"},
		&compiler.Bool{MustNot: true, Children: []compiler.Clause{&compiler.Term{Field: "active", Value: false}}},
		&compiler.Wildcard{Field: "name", Pattern: "foo*"},
	}}

	qb := esq.NewQueryBuilder("sales")
	NewFilterFeature(clause).build(qb)

	q := qb.RawQuery()
	require.NotNil(t, q.Bool)
	require.Len(t, q.Bool.Must, 2)
	require.Len(t, q.Bool.MustNot, 1)
	assert.Equal(t, "eu", q.Bool.Must[0].Term["region"].Value)
	assert.Equal(t, "foo*", *q.Bool.Must[1].Wildcard["name"].Value)
	assert.Equal(t, false, q.Bool.MustNot[0].Term["active"].Value)
}

func Test_FilterFeature_Options(t *testing.T) {
	qb := esq.NewQueryBuilder("sales")
	ff := NewFilterFeature(nil, WithRequiredProperty("category"), WithRequiredValue("region", "eu"))

	_, err := ff.Process(qb, func(_ *esq.QueryBuilder) (*esq.Result, error) {
		return nil, nil
	})
	require.NoError(t, err)

	q := qb.RawQuery()
	require.Len(t, q.Bool.Must, 2)
	assert.Equal(t, "category", q.Bool.Must[0].Exists.Field)
	assert.Equal(t, "eu", q.Bool.Must[1].Term["region"].Value)
	assert.Empty(t, q.Bool.MustNot)
}

func Test_FilterFeature_MatchAll(t *testing.T) {
	qb := esq.NewQueryBuilder("sales")
	NewFilterFeature(&compiler.Bool{}).build(qb)
	assert.Empty(t, qb.RawQuery().Bool.Must)
	assert.Empty(t, qb.RawQuery().Bool.MustNot)
}
