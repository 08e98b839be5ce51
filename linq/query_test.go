package linq

import (
	"context"
	"testing"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/featureset"
)

func TestCount(t *testing.T) {
	client := newFakeClient()
	client.count = 7
	p := newTestProvider(client, WithLogger(zaptest.NewLogger(t)))

	n, err := From[sale](p).
		Where(expr.Gt(expr.Field("Amount"), expr.Value(100.0))).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	require.Len(t, client.counts, 1)
	assert.Equal(t, []string{"sales"}, client.indices)
	must := client.counts[0].Bool.Must
	require.Len(t, must, 1)
	r, ok := must[0].Range["amount"].(*types.NumberRangeQuery)
	require.True(t, ok)
	require.NotNil(t, r.Gt)
	assert.Equal(t, types.Float64(100), *r.Gt)
}

func TestChainedWhereCombinesWithAnd(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(client)

	_, err := From[sale](p).
		Where(expr.Eq(expr.Field("Region"), expr.Value("eu"))).
		Where(expr.Not(expr.Eq(expr.Field("Category"), expr.Value("books")))).
		Count(context.Background())
	require.NoError(t, err)

	q := client.counts[0]
	require.Len(t, q.Bool.Must, 1)
	require.Len(t, q.Bool.MustNot, 1)
	assert.Equal(t, "eu", q.Bool.Must[0].Term["region"].Value)
	assert.Equal(t, "books", q.Bool.MustNot[0].Term["category"].Value)
}

func TestQueryableIsImmutable(t *testing.T) {
	p := newTestProvider(newFakeClient())
	base := From[sale](p).Where(expr.Eq(expr.Field("Region"), expr.Value("eu")))

	a := base.Where(expr.Eq(expr.Field("Category"), expr.Value("books")))
	b := base.OrderBy(expr.Field("Amount"))

	reqBase, err := base.Request()
	require.NoError(t, err)
	reqA, err := a.Request()
	require.NoError(t, err)
	reqB, err := b.Request()
	require.NoError(t, err)

	assert.Len(t, reqBase.Query.Bool.Must, 1)
	assert.Len(t, reqA.Query.Bool.Must, 2)
	assert.Len(t, reqB.Query.Bool.Must, 1)
	assert.Empty(t, reqBase.Sort)
	assert.Len(t, reqB.Sort, 1)
}

func TestRequestWithSortingAndPagination(t *testing.T) {
	p := newTestProvider(newFakeClient())
	q := From[sale](p).
		Where(expr.Gt(expr.Field("Amount"), expr.Value(1.0))).
		OrderByDescending(expr.Field("CreatedAt"))

	req, err := q.Request()
	require.NoError(t, err)
	require.Len(t, req.Sort, 1)

	req, err = q.Use(featureset.NewPaginationFeature(featureset.WithPageSize(5))).Request()
	require.NoError(t, err)
	require.NotNil(t, req.Size)
	assert.Equal(t, 5, *req.Size)
	assert.Len(t, req.Sort, 1)
}

func TestUnsatisfiableSkipsBackend(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(client)
	ctx := context.Background()
	q := From[sale](p).Where(expr.In(expr.Field("Category"), []string{}))

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	found, err := q.Any(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	first, err := q.FirstOrDefault(ctx)
	require.NoError(t, err)
	assert.Nil(t, first)

	sum, err := q.Sum(ctx, expr.Field("Amount"))
	require.NoError(t, err)
	assert.Zero(t, sum)

	page, err := q.Paged(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)

	for _, err := range q.All(ctx) {
		t.Fatalf("unexpected element, err=%v", err)
	}

	groups, err := Project[sale, categoryTotal](ctx, q.
		GroupBy(expr.Field("Category")).
		Select(expr.New(
			expr.As("category", expr.Key()),
			expr.As("total", expr.Sum(expr.Field("Amount"))),
		)))
	require.NoError(t, err)
	assert.Empty(t, groups)

	assert.Zero(t, client.calls())

	req, err := q.Request()
	require.NoError(t, err)
	require.Len(t, req.Query.Bool.Must, 1)
	assert.NotNil(t, req.Query.Bool.Must[0].MatchNone)
}

func TestGroupedQueryRejectsTerminals(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(client)
	ctx := context.Background()
	q := From[sale](p).GroupBy(expr.Field("Category"))

	_, err := q.Count(ctx)
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "Count")

	_, err = q.FirstOrDefault(ctx)
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "FirstOrDefault")

	_, err = q.Max(ctx, expr.Field("Amount"))
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)

	_, err = q.Paged(ctx, 1, 10)
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)

	for _, err := range q.All(ctx) {
		require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
		assert.Contains(t, err.Error(), "All")
	}

	assert.Zero(t, client.calls())
}

func TestUnknownTerminal(t *testing.T) {
	_, err := terminal(99).features(&plan{}, nil)
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
	assert.Contains(t, err.Error(), "terminal(unknown)")
}

func TestOrIsRejectedBeforeAnyCall(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(client)

	_, err := From[sale](p).
		Where(expr.Or(
			expr.Eq(expr.Field("Region"), expr.Value("eu")),
			expr.Eq(expr.Field("Region"), expr.Value("us")),
		)).
		Count(context.Background())
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
	assert.Zero(t, client.calls())
}

func TestMissingMetadata(t *testing.T) {
	client := newFakeClient()
	p := newTestProvider(client)

	_, err := From[map[string]any](p).Count(context.Background())
	require.ErrorIs(t, err, esq.ErrMissingMetadata)

	_, err = FromIndex[map[string]any](p, "").Count(context.Background())
	require.ErrorIs(t, err, esq.ErrMissingMetadata)

	client.count = 3
	n, err := FromIndex[map[string]any](p, "logs").
		Where(expr.Eq(expr.Field("status"), expr.Value("ok"))).
		Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{"logs"}, client.indices)
	assert.Equal(t, "ok", client.counts[0].Bool.Must[0].Term["status"].Value)
}

func TestFirstOrDefault(t *testing.T) {
	client := newFakeClient()
	client.result = &esq.Result{
		TotalHitCount: 4,
		Hits: []map[string]any{
			{"id": "s1", "category": "books", "amount": 12.5},
		},
	}
	p := newTestProvider(client)

	doc, err := From[sale](p).
		OrderByDescending(expr.Field("Amount")).
		FirstOrDefault(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, sale{ID: "s1", Category: "books", Amount: 12.5}, *doc)

	req := client.searches[0]
	assert.Equal(t, 1, *req.Size)
	require.Len(t, req.Sort, 1)
	sort := req.Sort[0].(types.SortOptions)
	assert.Equal(t, "desc", sort.SortOptions["amount"].Order.String())

	client.result = &esq.Result{}
	doc, err = From[sale](p).FirstOrDefault(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestAny(t *testing.T) {
	client := newFakeClient()
	client.result = &esq.Result{TotalHitCount: 1, Hits: []map[string]any{{"id": "s1"}}}
	p := newTestProvider(client)

	found, err := From[sale](p).Any(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMetricTerminals(t *testing.T) {
	tests := []struct {
		name   string
		call   func(*Queryable[sale]) (float64, error)
		metric string
		check  func(*testing.T, types.Aggregations)
	}{
		{
			name:   "max",
			call:   func(q *Queryable[sale]) (float64, error) { return q.Max(context.Background(), expr.Field("Amount")) },
			metric: "max_amount",
			check:  func(t *testing.T, a types.Aggregations) { assert.Equal(t, "amount", *a.Max.Field) },
		},
		{
			name:   "min",
			call:   func(q *Queryable[sale]) (float64, error) { return q.Min(context.Background(), expr.Field("Amount")) },
			metric: "min_amount",
			check:  func(t *testing.T, a types.Aggregations) { assert.Equal(t, "amount", *a.Min.Field) },
		},
		{
			name:   "average",
			call:   func(q *Queryable[sale]) (float64, error) { return q.Average(context.Background(), expr.Field("Amount")) },
			metric: "avg_amount",
			check:  func(t *testing.T, a types.Aggregations) { assert.Equal(t, "amount", *a.Avg.Field) },
		},
		{
			name:   "sum",
			call:   func(q *Queryable[sale]) (float64, error) { return q.Sum(context.Background(), expr.Field("Amount")) },
			metric: "sum_amount",
			check:  func(t *testing.T, a types.Aggregations) { assert.Equal(t, "amount", *a.Sum.Field) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.result = &esq.Result{Metrics: map[string]float64{tt.metric: 42}}
			p := newTestProvider(client)

			v, err := tt.call(From[sale](p).Where(expr.Eq(expr.Field("Region"), expr.Value("eu"))))
			require.NoError(t, err)
			assert.Equal(t, 42.0, v)

			req := client.searches[0]
			assert.Equal(t, 0, *req.Size)
			require.Contains(t, req.Aggregations, tt.metric)
			tt.check(t, req.Aggregations[tt.metric])
			assert.Len(t, req.Aggregations, 1)
		})
	}
}

func TestMetricOfEmptySetIsZero(t *testing.T) {
	client := newFakeClient()
	client.result = &esq.Result{Metrics: map[string]float64{}}
	p := newTestProvider(client)

	v, err := From[sale](p).Max(context.Background(), expr.Field("Amount"))
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestPaged(t *testing.T) {
	client := newFakeClient()
	client.result = &esq.Result{
		TotalHitCount: 42,
		Hits: []map[string]any{
			{"id": "s21", "amount": 1.0},
			{"id": "s22", "amount": 2.0},
		},
	}
	p := newTestProvider(client)

	page, err := From[sale](p).OrderBy(expr.Field("Amount")).Paged(context.Background(), 3, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(42), page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.Size)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "s21", page.Items[0].ID)

	req := client.searches[0]
	assert.Equal(t, 20, *req.From)
	assert.Equal(t, 10, *req.Size)
	assert.Equal(t, true, req.TrackTotalHits)
	assert.Len(t, req.Sort, 1)
}

func TestBackendFailureIsWrapped(t *testing.T) {
	client := newFakeClient()
	client.err = &esq.Error{Kind: esq.KindBackendCallFailed, Op: "search", Diagnostic: "shard failure"}
	p := newTestProvider(client)

	_, err := From[sale](p).Paged(context.Background(), 1, 10)
	require.ErrorIs(t, err, esq.ErrBackendCallFailed)
	assert.Contains(t, err.Error(), "Paged on sales")
	assert.Contains(t, err.Error(), "shard failure")
}

func TestRequestWithClock(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cfg := &esq.Config{ScrollSize: 50, ScrollKeepAlive: time.Minute, TermsSize: 100, KeySeparator: "|", EpochMillis: true}
	p := NewProvider(newFakeClient(), WithConfig(cfg), WithCompilerOptions(compilerClock(now)))

	req, err := From[sale](p).
		Where(expr.Gt(expr.Field("CreatedAt"), expr.Now())).
		Request()
	require.NoError(t, err)

	r, ok := req.Query.Bool.Must[0].Range["createdAt"].(*types.DateRangeQuery)
	require.True(t, ok)
	assert.Equal(t, "1710504000000", *r.Gt)
	assert.Equal(t, "epoch_millis", *r.Format)
	assert.Equal(t, 50, p.scrollSize)
	assert.Equal(t, time.Minute, p.keepAlive)
}

func TestUseAddsFeaturesToEveryTerminal(t *testing.T) {
	client := newFakeClient()
	client.result = &esq.Result{Hits: []map[string]any{{"id": "a"}}}
	p := newTestProvider(client)

	base := From[sale](p).Where(expr.Eq(expr.Field("Region"), expr.Value("eu")))
	q := base.Use(featureset.NewQueryFilterFeature("red shoes"))

	_, err := q.Count(context.Background())
	require.NoError(t, err)
	_, err = q.FirstOrDefault(context.Background())
	require.NoError(t, err)

	must := client.counts[0].Bool.Must
	require.Len(t, must, 2)
	require.NotNil(t, must[1].QueryString)
	assert.Equal(t, "red shoes", must[1].QueryString.Query)
	assert.NotNil(t, client.searches[0].Query.Bool.Must[1].QueryString)

	_, err = base.Count(context.Background())
	require.NoError(t, err)
	assert.Len(t, client.counts[1].Bool.Must, 1, "Use does not change the receiver")
}
