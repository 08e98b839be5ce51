package compiler

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reveald/esq"
	"github.com/reveald/esq/expr"
	"github.com/reveald/esq/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	Name      string    `es:"name,keyword"`
	Category  string    `es:"category,keyword"`
	Region    string    `json:"region"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	Views     int64     `json:"views"`
	Active    bool      `json:"active"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestCompiler(opts ...Option) *Compiler {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(mapping.NewResolver(), reflect.TypeFor[product](), opts...)
}

func compileOne(t *testing.T, c *Compiler, n expr.Node) Clause {
	t.Helper()
	p, err := c.Where(n)
	require.NoError(t, err)
	require.False(t, p.Unsatisfiable)
	require.Len(t, p.Clause.Children, 1)
	return p.Clause.Children[0]
}

func TestComparisonOperators(t *testing.T) {
	c := newTestCompiler()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	values := []struct {
		name  string
		field string
		es    string
		value any
		kind  expr.ValueKind
	}{
		{"int", "Stock", "stock", 5, expr.KindInt},
		{"long", "Views", "views", int64(5_000_000_000), expr.KindLong},
		{"decimal", "Price", "price", 9.5, expr.KindDecimal},
		{"exact decimal", "Price", "price", decimal.RequireFromString("9.95"), expr.KindDecimal},
		{"time", "CreatedAt", "createdAt", at, expr.KindTime},
		{"string", "Name", "name", "m", expr.KindString},
	}

	operators := []struct {
		name  string
		build func(l, r expr.Node) *expr.BinaryNode
		op    RangeOp
	}{
		{">", expr.Gt, RangeGt},
		{">=", expr.Ge, RangeGte},
		{"<", expr.Lt, RangeLt},
		{"<=", expr.Le, RangeLte},
	}

	for _, v := range values {
		t.Run(v.name+" ==", func(t *testing.T) {
			got := compileOne(t, c, expr.Eq(expr.Field(v.field), expr.Value(v.value)))
			assert.Equal(t, &Term{Field: v.es, Value: v.value}, got)
		})

		t.Run(v.name+" !=", func(t *testing.T) {
			got := compileOne(t, c, expr.Ne(expr.Field(v.field), expr.Value(v.value)))
			assert.Equal(t, &Bool{MustNot: true, Children: []Clause{&Term{Field: v.es, Value: v.value}}}, got)
		})

		for _, o := range operators {
			t.Run(v.name+" "+o.name, func(t *testing.T) {
				got := compileOne(t, c, o.build(expr.Field(v.field), expr.Value(v.value)))

				want := &Range{Field: v.es, Op: o.op, Value: v.value, Kind: v.kind}
				if v.kind == expr.KindTime {
					want.Value = at.Unix()
					want.Format = "epoch_second"
				}
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestEpochMillis(t *testing.T) {
	c := newTestCompiler(WithEpochMillis())
	got := compileOne(t, c, expr.Ge(expr.Field("CreatedAt"), expr.Now()))
	assert.Equal(t, &Range{
		Field:  "createdAt",
		Op:     RangeGte,
		Value:  fixedNow.UnixMilli(),
		Kind:   expr.KindTime,
		Format: "epoch_millis",
	}, got)
}

func TestFlippedComparison(t *testing.T) {
	c := newTestCompiler()
	got := compileOne(t, c, expr.Lt(expr.Value(10), expr.Field("Price")))
	assert.Equal(t, &Range{Field: "price", Op: RangeGt, Value: 10, Kind: expr.KindInt}, got)
}

func TestPriceBetween(t *testing.T) {
	c := newTestCompiler()
	p, err := c.Where(expr.And(
		expr.Gt(expr.Field("Price"), expr.Value(10)),
		expr.Le(expr.Field("Price"), expr.Value(100)),
	))
	require.NoError(t, err)

	assert.Equal(t, &Bool{Children: []Clause{
		&Range{Field: "price", Op: RangeGt, Value: 10, Kind: expr.KindInt},
		&Range{Field: "price", Op: RangeLte, Value: 100, Kind: expr.KindInt},
	}}, p.Clause)
}

func TestChainedWhereIsAnd(t *testing.T) {
	c := newTestCompiler()
	p, err := c.Where(
		expr.Eq(expr.Field("Stock"), expr.Value(1)),
		expr.Eq(expr.Field("Region"), expr.Value("v")),
	)
	require.NoError(t, err)
	require.Len(t, p.Clause.Children, 2)

	both := map[string]any{"stock": float64(1), "region": "v"}
	onlyOne := map[string]any{"stock": float64(1), "region": "w"}

	for _, child := range p.Clause.Children {
		ok, err := evaluate(child, both)
		require.NoError(t, err)
		assert.True(t, ok, child.String())
	}

	ok, err := evaluate(p.Clause, both)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = evaluate(p.Clause, onlyOne)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStringMatching(t *testing.T) {
	c := newTestCompiler()
	tests := []struct {
		name    string
		node    expr.Node
		pattern string
	}{
		{"starts with", expr.StartsWith(expr.Field("Name"), expr.Value("foo")), "foo*"},
		{"ends with", expr.EndsWith(expr.Field("Name"), expr.Value("foo")), "*foo"},
		{"contains", expr.Contains(expr.Field("Name"), expr.Value("foo")), "*foo*"},
		{"escaped", expr.StartsWith(expr.Field("Name"), expr.Value("a*b")), `a\*b*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compileOne(t, c, tt.node)
			assert.Equal(t, &Wildcard{Field: "name", Pattern: tt.pattern}, got)
		})
	}
}

func TestMembership(t *testing.T) {
	c := newTestCompiler()

	t.Run("in", func(t *testing.T) {
		got := compileOne(t, c, expr.In(expr.Field("Category"), []string{"books", "games"}))
		assert.Equal(t, &Terms{Field: "category", Values: []any{"books", "games"}}, got)
	})

	t.Run("not in", func(t *testing.T) {
		got := compileOne(t, c, expr.Not(expr.In(expr.Field("Stock"), []int{1, 2})))
		assert.Equal(t, &Bool{MustNot: true, Children: []Clause{&Terms{Field: "stock", Values: []any{1, 2}}}}, got)
	})

	t.Run("list property", func(t *testing.T) {
		got := compileOne(t, c, expr.Contains(expr.Field("Tags"), expr.Value("sale")))
		assert.Equal(t, &Term{Field: "tags", Value: "sale"}, got)
	})
}

func TestEmptyMembership(t *testing.T) {
	c := newTestCompiler()

	t.Run("positive is unsatisfiable", func(t *testing.T) {
		p, err := c.Where(
			expr.Eq(expr.Field("Region"), expr.Value("eu")),
			expr.In(expr.Field("Category"), []string{}),
		)
		require.NoError(t, err)
		assert.True(t, p.Unsatisfiable)
		assert.Empty(t, p.Clause.Children)
	})

	t.Run("negated is dropped", func(t *testing.T) {
		p, err := c.Where(
			expr.Eq(expr.Field("Region"), expr.Value("eu")),
			expr.Not(expr.In(expr.Field("Category"), []string{})),
		)
		require.NoError(t, err)
		assert.False(t, p.Unsatisfiable)
		assert.Equal(t, &Bool{Children: []Clause{&Term{Field: "region", Value: "eu"}}}, p.Clause)
	})

	t.Run("double negation is unsatisfiable", func(t *testing.T) {
		p, err := c.Where(expr.Not(expr.Not(expr.In(expr.Field("Category"), []string{}))))
		require.NoError(t, err)
		assert.True(t, p.Unsatisfiable)
	})

	t.Run("only clause negated matches all", func(t *testing.T) {
		p, err := c.Where(expr.Not(expr.In(expr.Field("Category"), []string{})))
		require.NoError(t, err)
		assert.False(t, p.Unsatisfiable)
		assert.Empty(t, p.Clause.Children)
	})
}

func TestBareBoolean(t *testing.T) {
	c := newTestCompiler()

	assert.Equal(t, &Term{Field: "active", Value: true}, compileOne(t, c, expr.Field("Active")))
	assert.Equal(t, &Term{Field: "active", Value: false}, compileOne(t, c, expr.Not(expr.Field("Active"))))

	_, err := c.Where(expr.Field("Name"))
	assert.ErrorIs(t, err, esq.ErrUnsupportedOperation)
}

func TestNegation(t *testing.T) {
	c := newTestCompiler()

	got := compileOne(t, c, expr.Not(expr.Gt(expr.Field("Price"), expr.Value(5))))
	assert.Equal(t, &Bool{MustNot: true, Children: []Clause{
		&Range{Field: "price", Op: RangeGt, Value: 5, Kind: expr.KindInt},
	}}, got)

	got = compileOne(t, c, expr.Not(expr.Ne(expr.Field("Region"), expr.Value("eu"))))
	assert.Equal(t, &Term{Field: "region", Value: "eu"}, got)
}

func TestSortsAndMetrics(t *testing.T) {
	c := newTestCompiler()
	p, err := c.Where(
		expr.Call(expr.MethodOrderBy, nil, expr.Field("Category")),
		expr.Call(expr.MethodOrderByDescending, nil, expr.Field("Price")),
		expr.Max(expr.Field("Price")),
	)
	require.NoError(t, err)

	assert.Equal(t, []Sort{{Field: "category"}, {Field: "price", Descending: true}}, p.Sorts)
	assert.Equal(t, []Metric{{Name: "max_price", Kind: MetricMax, Field: "price"}}, p.Metrics)
	assert.Empty(t, p.Clause.Children)
}

func TestUnsupportedPredicates(t *testing.T) {
	c := newTestCompiler()
	tests := []struct {
		name string
		node expr.Node
	}{
		{"or", expr.Or(expr.Field("Active"), expr.Eq(expr.Field("Stock"), expr.Value(1)))},
		{"null", expr.Eq(expr.Field("Name"), expr.Value(nil))},
		{"two fields", expr.Eq(expr.Field("Name"), expr.Field("Region"))},
		{"two values", expr.Eq(expr.Value(1), expr.Value(2))},
		{"constant", expr.Value(true)},
		{"unknown method", expr.Call("Matches", expr.Field("Name"), expr.Value("x"))},
		{"captured member", expr.Eq(expr.Member(expr.Value(product{}), "Name"), expr.Value("x"))},
		{"foreign parameter", expr.Eq(expr.Member(expr.Param("y"), "Name"), expr.Value("x"))},
		{"unknown field", expr.Eq(expr.Field("Missing"), expr.Value(1))},
		{"time component", expr.Eq(expr.Field("CreatedAt", "Month"), expr.Value(3))},
		{"boolean range", expr.Gt(expr.Field("Active"), expr.Value(true))},
		{"list comparison", expr.Eq(expr.Field("Name"), expr.Value([]string{"a"}))},
		{"starts with list", expr.StartsWith(expr.Value([]string{"a"}), expr.Field("Name"))},
		{"metric in and", expr.And(expr.Field("Active"), expr.Sum(expr.Field("Price")))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Where(tt.node)
			assert.ErrorIs(t, err, esq.ErrUnsupportedOperation)
		})
	}
}

func TestUnknownMethodIsNamed(t *testing.T) {
	_, err := newTestCompiler().Where(expr.Call("Median", nil, expr.Field("Price")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Median")
}
