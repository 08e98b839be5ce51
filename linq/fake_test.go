package linq

import (
	"context"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"

	"github.com/reveald/esq"
	"github.com/reveald/esq/compiler"
	"github.com/reveald/esq/mapping"
)

// fakeClient records every call and answers from canned results.
type fakeClient struct {
	mu sync.Mutex

	searches []*search.Request
	indices  []string
	counts   []*types.Query

	result   *esq.Result
	count    int64
	pages    []*esq.Result
	next     int
	cleared  []string
	err      error
	nextErr  error

	existing map[string]bool
	created  map[string]esq.IndexSettings
	indexed  map[string]map[string]any
	bulk     map[string][]esq.Document
	scripts  []esq.Script
	affected int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		existing: make(map[string]bool),
		created:  make(map[string]esq.IndexSettings),
		indexed:  make(map[string]map[string]any),
		bulk:     make(map[string][]esq.Document),
	}
}

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches) + len(f.counts)
}

func (f *fakeClient) record(qb *esq.QueryBuilder) {
	f.searches = append(f.searches, qb.BuildRequest())
	f.indices = append(f.indices, qb.Indices()...)
}

func (f *fakeClient) Execute(_ context.Context, qb *esq.QueryBuilder) (*esq.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(qb)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &esq.Result{}, nil
	}
	return f.result, nil
}

func (f *fakeClient) Count(_ context.Context, qb *esq.QueryBuilder) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, qb.RawQuery())
	f.indices = append(f.indices, qb.Indices()...)
	return f.count, f.err
}

func (f *fakeClient) Scroll(_ context.Context, qb *esq.QueryBuilder, _ time.Duration) (*esq.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(qb)
	if f.err != nil {
		return nil, f.err
	}
	return f.page(), nil
}

func (f *fakeClient) ScrollNext(_ context.Context, _ string, _ time.Duration) (*esq.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	return f.page(), nil
}

func (f *fakeClient) page() *esq.Result {
	if f.next >= len(f.pages) {
		return &esq.Result{ScrollID: "cursor"}
	}
	p := f.pages[f.next]
	f.next++
	return p
}

func (f *fakeClient) ClearScroll(_ context.Context, scrollID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, scrollID)
	return nil
}

func (f *fakeClient) IndexExists(_ context.Context, index string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[index], nil
}

func (f *fakeClient) CreateIndex(_ context.Context, index string, settings esq.IndexSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[index] = settings
	f.existing[index] = true
	return nil
}

func (f *fakeClient) Index(_ context.Context, index, id string, document any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed[index] == nil {
		f.indexed[index] = make(map[string]any)
	}
	f.indexed[index][id] = document
	return f.err
}

func (f *fakeClient) Bulk(_ context.Context, index string, documents []esq.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulk[index] = append(f.bulk[index], documents...)
	return f.err
}

func (f *fakeClient) DeleteByQuery(_ context.Context, qb *esq.QueryBuilder) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, qb.RawQuery())
	return f.affected, f.err
}

func (f *fakeClient) UpdateByQuery(_ context.Context, qb *esq.QueryBuilder, script esq.Script) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, qb.RawQuery())
	f.scripts = append(f.scripts, script)
	return f.affected, f.err
}

type sale struct {
	ID        string    `json:"id"`
	Category  string    `json:"category" es:"category,keyword"`
	Region    string    `json:"region"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

func (sale) SearchIndex() mapping.Index {
	return mapping.Index{Name: "sales"}
}

func (s sale) DocumentID() string {
	return s.ID
}

type categoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Orders   int64   `json:"orders"`
}

func newTestProvider(client *fakeClient, opts ...Option) *Provider {
	opts = append([]Option{WithRegistry(esq.NewIndexRegistry())}, opts...)
	return NewProvider(client, opts...)
}

func compilerClock(now time.Time) compiler.Option {
	return compiler.WithClock(func() time.Time { return now })
}
