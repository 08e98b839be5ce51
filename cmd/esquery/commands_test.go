package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reveald/esq"
)

// stubClient answers searches and counts; every other call panics.
type stubClient struct {
	esq.Client
	result   *esq.Result
	count    int64
	searches int
}

func (s *stubClient) Execute(ctx context.Context, qb *esq.QueryBuilder) (*esq.Result, error) {
	s.searches++
	return s.result, nil
}

func (s *stubClient) Count(ctx context.Context, qb *esq.QueryBuilder) (int64, error) {
	return s.count, nil
}

func run(t *testing.T, client *stubClient, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ESQ_LOG_LEVEL", "error")

	connect := func(*esq.Config, *zap.Logger) (esq.Client, error) {
		if client == nil {
			t.Fatal("command connected to the cluster")
		}
		return client, nil
	}

	var out bytes.Buffer
	cmd := newRootCommand(connect)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompileCommand(t *testing.T) {
	out, err := run(t, nil, "compile",
		"--index", "sales",
		"--where", `x.amount > 100.0`,
		"--where", `x.region in ["eu", "us"]`,
		"--exists", "category",
		"--query", "red shoes",
		"--exclude", "payload",
		"--order-by", "createdAt", "--desc")
	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &req))
	body, err := json.Marshal(req["query"])
	require.NoError(t, err)
	assert.Contains(t, string(body), `"range"`)
	assert.Contains(t, string(body), `"terms"`)
	assert.Contains(t, string(body), `"exists"`)
	assert.Contains(t, string(body), `"query_string"`)
	assert.Contains(t, out, `"desc"`)
	assert.Contains(t, out, `"payload"`)
}

func TestCompileGroupedCommand(t *testing.T) {
	out, err := run(t, nil, "compile",
		"--index", "sales",
		"--field", "category=keyword",
		"--by", `x.category`,
		"--select", `{"category": g.key, "total": sum(x.amount)}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"category.keyword"`)
	assert.Contains(t, out, `"sum_amount"`)
}

func TestCountCommand(t *testing.T) {
	client := &stubClient{count: 7}
	out, err := run(t, client, "count", "--index", "sales", "--where", `amount >= 5.0`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count": 7}`, out)
}

func TestSearchCommand(t *testing.T) {
	client := &stubClient{result: &esq.Result{
		TotalHitCount: 12,
		Hits:          []map[string]any{{"id": "a"}, {"id": "b"}},
	}}
	out, err := run(t, client, "search", "--index", "sales", "--page", "2", "--size", "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 12, "page": 2, "size": 2, "items": [{"id": "a"}, {"id": "b"}]}`, out)
}

func TestGroupCommand(t *testing.T) {
	client := &stubClient{result: &esq.Result{Aggregations: map[string][]*esq.ResultBucket{
		"category": {
			{Value: "books", HitCount: 2, Metrics: map[string]float64{"sum_amount": 40}},
		},
	}}}
	out, err := run(t, client, "group",
		"--index", "sales",
		"--by", `x.category`,
		"--select", `{"category": g.key, "total": sum(x.amount), "orders": count()}`)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"category": "books", "total": 40, "orders": 2}]`, out)
	assert.Equal(t, 1, client.searches)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing index", []string{"count"}, `required flag(s) "index" not set`},
		{"bad field kind", []string{"count", "--index", "a", "--field", "x=blob"}, "invalid --field"},
		{"bad variable", []string{"count", "--index", "a", "--var", "since"}, "invalid --var"},
		{"syntax error", []string{"count", "--index", "a", "--where", "x.a >"}, "--where"},
		{"group without shape", []string{"group", "--index", "a", "--by", "x.a"}, "group needs --select"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, &stubClient{}, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUnsupportedWhereIsReported(t *testing.T) {
	client := &stubClient{}
	_, err := run(t, client, "count", "--index", "a", "--where", "x.a || x.b")
	require.ErrorIs(t, err, esq.ErrUnsupportedOperation)
}
