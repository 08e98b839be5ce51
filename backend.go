package esq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/clearscroll"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/count"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/deletebyquery"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/scroll"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// ElasticBackend defines an Elasticsearch backend.
//
// It manages the connection to Elasticsearch and handles request execution.
// The ElasticBackend is responsible for translating query builders into
// Elasticsearch requests and processing the responses.
type ElasticBackend struct {
	client *elasticsearch.TypedClient
	config elasticsearch.Config
	logger *zap.Logger
}

var _ Client = (*ElasticBackend)(nil)

// ElasticBackendOption is a type for passing functional options to the Elastic Backend constructor.
//
// This allows for flexible configuration of the ElasticBackend.
type ElasticBackendOption func(*ElasticBackend)

// WithScheme defines which scheme to use when communicating with Elasticsearch (default is "http").
//
// Example:
//
//	// Use HTTPS for secure communication
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	    esq.WithScheme("https"),
//	)
func WithScheme(scheme string) ElasticBackendOption {
	return func(b *ElasticBackend) {
		b.config.Addresses = updateURLScheme(b.config.Addresses, scheme)
	}
}

// Helper function to update URL scheme in addresses
func updateURLScheme(addresses []string, scheme string) []string {
	updatedAddresses := make([]string, len(addresses))
	for i, addr := range addresses {
		addr = strings.TrimPrefix(addr, "http://")
		addr = strings.TrimPrefix(addr, "https://")
		updatedAddresses[i] = scheme + "://" + addr
	}
	return updatedAddresses
}

// WithCredentials adds username and password to requests to Elasticsearch.
//
// Example:
//
//	// Connect to Elasticsearch with authentication
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	    esq.WithCredentials("username", "password"),
//	)
func WithCredentials(username, password string) ElasticBackendOption {
	return func(b *ElasticBackend) {
		b.config.Username = username
		b.config.Password = password
	}
}

// WithSniff enables or disables sniffing.
//
// Sniffing allows the client to discover other nodes in the cluster.
func WithSniff(enabled bool) ElasticBackendOption {
	return func(b *ElasticBackend) {
		b.config.DiscoverNodesOnStart = enabled
	}
}

// WithHttpClient configures a http client to use for the http requests to elastic backend.
//
// This allows you to customize the transport used for requests, which can be useful
// for setting custom TLS configuration, proxies, etc.
//
// Example:
//
//	// Use a custom HTTP client transport
//	httpClient := &http.Client{
//	    Transport: &http.Transport{MaxIdleConnsPerHost: 16},
//	}
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	    esq.WithHttpClient(httpClient),
//	)
func WithHttpClient(httpClient *http.Client) ElasticBackendOption {
	return func(b *ElasticBackend) {
		b.config.Transport = httpClient.Transport
	}
}

// WithCACert configures a custom CA certificate to use for the http requests to elastic backend.
//
// Example:
//
//	// Use a custom CA certificate
//	cert, err := os.ReadFile("ca.crt")
//	if err != nil {
//	    // Handle error
//	}
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	    esq.WithCACert(cert),
//	)
func WithCACert(cert []byte) ElasticBackendOption {
	return func(b *ElasticBackend) {
		b.config.CACert = cert
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *zap.Logger) ElasticBackendOption {
	return func(b *ElasticBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewElasticBackend creates a new backend targeting Elasticsearch.
//
// It initializes a connection to Elasticsearch using the provided nodes and options.
//
// Example:
//
//	// Create a basic Elasticsearch backend
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create a backend with custom options
//	backend, err := esq.NewElasticBackend(
//	    []string{"localhost:9200"},
//	    esq.WithScheme("https"),
//	    esq.WithCredentials("user", "pass"),
//	)
func NewElasticBackend(nodes []string, opts ...ElasticBackendOption) (*ElasticBackend, error) {
	// Convert nodes to full URLs if they don't have a scheme
	addresses := make([]string, len(nodes))
	for i, node := range nodes {
		if !strings.HasPrefix(node, "http://") && !strings.HasPrefix(node, "https://") {
			addresses[i] = "http://" + node
		} else {
			addresses[i] = node
		}
	}

	backend := &ElasticBackend{
		config: elasticsearch.Config{
			Addresses: addresses,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(backend)
	}

	client, err := elasticsearch.NewTypedClient(backend.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	backend.client = client
	return backend, nil
}

// GetClient returns the underlying Elasticsearch client.
//
// This method is primarily intended for testing and advanced use cases
// where direct access to the Elasticsearch client is needed.
func (b *ElasticBackend) GetClient() *elasticsearch.TypedClient {
	return b.client
}

// Execute runs a search against Elasticsearch and returns the results.
//
// The QueryBuilder is translated into a typed search request, and the
// response is mapped into a Result, including bucket and metric aggregations.
//
// Example:
//
//	builder := esq.NewQueryBuilder("products")
//	builder.With(types.Query{Term: map[string]types.TermQuery{"active": {Value: true}}})
//
//	result, err := backend.Execute(ctx, builder)
//	if err != nil {
//	    // Handle error
//	}
//	fmt.Printf("Found %d documents\n", result.TotalHitCount)
func (b *ElasticBackend) Execute(ctx context.Context, builder *QueryBuilder) (*Result, error) {
	start := time.Now()
	index := strings.Join(builder.Indices(), ",")

	res, err := b.client.Search().
		Index(index).
		Request(builder.BuildRequest()).
		TypedKeys(true).
		Do(ctx)
	if err != nil {
		return nil, b.fail("search", index, err)
	}
	if res == nil {
		return nil, &Error{Kind: KindBackendCallFailed, Op: "search", Diagnostic: "no response from elasticsearch"}
	}

	b.trace("search", index, start)
	return mapSearchResult(res.Hits, res.Aggregations, res.ScrollId_)
}

// Scroll opens a scroll cursor for the query and returns its first page.
//
// The page size is the selection page size of the builder. The cursor stays
// alive for keepAlive between calls and must be released with ClearScroll.
func (b *ElasticBackend) Scroll(ctx context.Context, builder *QueryBuilder, keepAlive time.Duration) (*Result, error) {
	start := time.Now()
	index := strings.Join(builder.Indices(), ",")

	res, err := b.client.Search().
		Index(index).
		Request(builder.BuildRequest()).
		Scroll(formatKeepAlive(keepAlive)).
		Do(ctx)
	if err != nil {
		return nil, b.fail("scroll", index, err)
	}

	b.trace("scroll", index, start)
	return mapSearchResult(res.Hits, res.Aggregations, res.ScrollId_)
}

// ScrollNext fetches the next page of an open scroll cursor.
func (b *ElasticBackend) ScrollNext(ctx context.Context, scrollID string, keepAlive time.Duration) (*Result, error) {
	start := time.Now()

	res, err := b.client.Scroll().
		Request(&scroll.Request{
			Scroll:   formatKeepAlive(keepAlive),
			ScrollId: scrollID,
		}).
		Do(ctx)
	if err != nil {
		return nil, b.fail("scroll", "", err)
	}

	b.trace("scroll", "", start)
	return mapSearchResult(res.Hits, res.Aggregations, res.ScrollId_)
}

// ClearScroll releases a scroll cursor.
func (b *ElasticBackend) ClearScroll(ctx context.Context, scrollID string) error {
	if scrollID == "" {
		return nil
	}

	_, err := b.client.ClearScroll().
		Request(&clearscroll.Request{
			ScrollId: []string{scrollID},
		}).
		Do(ctx)
	if err != nil {
		return b.fail("clear_scroll", "", err)
	}
	return nil
}

// Count returns the number of documents matching the query of the builder.
func (b *ElasticBackend) Count(ctx context.Context, builder *QueryBuilder) (int64, error) {
	start := time.Now()
	index := strings.Join(builder.Indices(), ",")

	res, err := b.client.Count().
		Index(index).
		Request(&count.Request{
			Query: builder.RawQuery(),
		}).
		Do(ctx)
	if err != nil {
		return 0, b.fail("count", index, err)
	}

	b.trace("count", index, start)
	return res.Count, nil
}

// IndexExists reports whether an index or alias exists.
func (b *ElasticBackend) IndexExists(ctx context.Context, index string) (bool, error) {
	ok, err := b.client.Indices.Exists(index).Do(ctx)
	if err != nil {
		return false, b.fail("index_exists", index, err)
	}
	return ok, nil
}

// CreateIndex creates an index with a mapping, aliases, and shard settings.
func (b *ElasticBackend) CreateIndex(ctx context.Context, index string, settings IndexSettings) error {
	body, err := json.Marshal(indexBody(settings))
	if err != nil {
		return fmt.Errorf("failed to encode index settings: %w", err)
	}

	_, err = b.client.Indices.Create(index).
		Raw(bytes.NewReader(body)).
		Do(ctx)
	if err != nil {
		return b.fail("create_index", index, err)
	}

	b.logger.Info("index created",
		zap.String("index", index),
		zap.Strings("aliases", settings.Aliases),
		zap.Int("shards", settings.Shards),
		zap.Int("replicas", settings.Replicas))
	return nil
}

func indexBody(settings IndexSettings) map[string]any {
	aliases := make(map[string]any, len(settings.Aliases))
	for _, alias := range settings.Aliases {
		aliases[alias] = map[string]any{}
	}

	indexSettings := map[string]any{
		"number_of_replicas": settings.Replicas,
		"number_of_shards":   settings.Shards,
	}
	if settings.RefreshInterval != "" {
		indexSettings["refresh_interval"] = settings.RefreshInterval
	}

	body := map[string]any{
		"settings": map[string]any{"index": indexSettings},
		"aliases":  aliases,
	}
	if len(settings.Properties) > 0 {
		body["mappings"] = map[string]any{"properties": settings.Properties}
	}
	return body
}

// DeleteByQuery deletes the documents matching the query of the builder
// and returns the number of deleted documents.
func (b *ElasticBackend) DeleteByQuery(ctx context.Context, builder *QueryBuilder) (int64, error) {
	start := time.Now()
	index := strings.Join(builder.Indices(), ",")

	res, err := b.client.DeleteByQuery(index).
		Request(&deletebyquery.Request{
			Query: builder.RawQuery(),
		}).
		Do(ctx)
	if err != nil {
		return 0, b.fail("delete_by_query", index, err)
	}
	if err := scrollFailures(res.Failures); err != nil {
		return 0, b.fail("delete_by_query", index, err)
	}

	b.trace("delete_by_query", index, start)
	if res.Deleted == nil {
		return 0, nil
	}
	return *res.Deleted, nil
}

// UpdateByQuery runs a script against the documents matching the query
// of the builder and returns the number of updated documents.
func (b *ElasticBackend) UpdateByQuery(ctx context.Context, builder *QueryBuilder, script Script) (int64, error) {
	start := time.Now()
	index := strings.Join(builder.Indices(), ",")

	body, err := json.Marshal(map[string]any{
		"query": builder.RawQuery(),
		"script": map[string]any{
			"source": script.Source,
			"params": script.Params,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode update request: %w", err)
	}

	res, err := b.client.UpdateByQuery(index).
		Raw(bytes.NewReader(body)).
		Do(ctx)
	if err != nil {
		return 0, b.fail("update_by_query", index, err)
	}
	if err := scrollFailures(res.Failures); err != nil {
		return 0, b.fail("update_by_query", index, err)
	}

	b.trace("update_by_query", index, start)
	if res.Updated == nil {
		return 0, nil
	}
	return *res.Updated, nil
}

func scrollFailures(failures []types.BulkIndexByScrollFailure) error {
	var result *multierror.Error
	for _, f := range failures {
		reason := f.Cause.Type
		if f.Cause.Reason != nil {
			reason = *f.Cause.Reason
		}
		result = multierror.Append(result, fmt.Errorf("document %s: %s", f.Id, reason))
	}
	return result.ErrorOrNil()
}

// Index writes a single document.
func (b *ElasticBackend) Index(ctx context.Context, index, id string, document any) error {
	start := time.Now()

	_, err := b.client.Index(index).
		Id(id).
		Document(document).
		Do(ctx)
	if err != nil {
		return b.fail("index", index, err)
	}

	b.trace("index", index, start)
	return nil
}

// Bulk writes a set of documents in one request.
//
// Every failed item is reported; the returned error wraps all of them.
func (b *ElasticBackend) Bulk(ctx context.Context, index string, documents []Document) error {
	if len(documents) == 0 {
		return nil
	}
	start := time.Now()

	req := b.client.Bulk().Index(index)
	for _, doc := range documents {
		id := doc.ID
		if err := req.IndexOp(types.IndexOperation{Id_: &id}, doc.Source); err != nil {
			return fmt.Errorf("failed to encode document %s: %w", id, err)
		}
	}

	res, err := req.Do(ctx)
	if err != nil {
		return b.fail("bulk", index, err)
	}

	b.trace("bulk", index, start)
	if !res.Errors {
		return nil
	}

	var result *multierror.Error
	for _, item := range res.Items {
		for op, ri := range item {
			if ri.Error == nil {
				continue
			}
			id := ""
			if ri.Id_ != nil {
				id = *ri.Id_
			}
			reason := ri.Error.Type
			if ri.Error.Reason != nil {
				reason = fmt.Sprintf("%s: %s", ri.Error.Type, *ri.Error.Reason)
			}
			result = multierror.Append(result, fmt.Errorf("%s %s: %s", op, id, reason))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return &Error{Kind: KindBackendCallFailed, Op: "bulk", Diagnostic: index, Err: err}
	}
	return nil
}

func (b *ElasticBackend) fail(op, index string, err error) error {
	translated := backendError(op, err)
	b.logger.Warn("elasticsearch request failed",
		zap.String("operation", op),
		zap.String("index", index),
		zap.Error(translated))
	return translated
}

func (b *ElasticBackend) trace(op, index string, start time.Time) {
	b.logger.Debug("elasticsearch request",
		zap.String("operation", op),
		zap.String("index", index),
		zap.Duration("took", time.Since(start)))
}

func formatKeepAlive(d time.Duration) string {
	seconds := int(d / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return fmt.Sprintf("%ds", seconds)
}

func mapSearchResult(hits types.HitsMetadata, aggs map[string]types.Aggregate, scrollID *string) (*Result, error) {
	totalHits := int64(0)
	if hits.Total != nil {
		totalHits = hits.Total.Value
	}

	documents := make([]map[string]any, 0, len(hits.Hits))
	for _, hit := range hits.Hits {
		if len(hit.Source_) == 0 {
			continue
		}
		var source map[string]any
		if err := json.Unmarshal(hit.Source_, &source); err != nil {
			return nil, fmt.Errorf("failed to decode document source: %w", err)
		}
		documents = append(documents, source)
	}

	buckets, metrics := mapAggregations(aggs)

	result := &Result{
		TotalHitCount: totalHits,
		Hits:          documents,
		Aggregations:  buckets,
		Metrics:       metrics,
	}
	if scrollID != nil {
		result.ScrollID = *scrollID
	}
	return result, nil
}

// mapAggregations splits typed aggregates into bucket aggregations and
// metric values. Metrics with a null value are left out.
func mapAggregations(aggs map[string]types.Aggregate) (map[string][]*ResultBucket, map[string]float64) {
	buckets := make(map[string][]*ResultBucket)
	metrics := make(map[string]float64)

	for name, agg := range aggs {
		switch a := agg.(type) {
		case *types.DateHistogramAggregate:
			if list, ok := a.Buckets.([]types.DateHistogramBucket); ok {
				for _, item := range list {
					buckets[name] = append(buckets[name], newBucket(int64(item.Key), item.KeyAsString, item.DocCount, item.Aggregations))
				}
			}
		case *types.StringTermsAggregate:
			if list, ok := a.Buckets.([]types.StringTermsBucket); ok {
				for _, item := range list {
					buckets[name] = append(buckets[name], newBucket(item.Key, nil, item.DocCount, item.Aggregations))
				}
			}
		case *types.LongTermsAggregate:
			if list, ok := a.Buckets.([]types.LongTermsBucket); ok {
				for _, item := range list {
					buckets[name] = append(buckets[name], newBucket(item.Key, item.KeyAsString, item.DocCount, item.Aggregations))
				}
			}
		case *types.DoubleTermsAggregate:
			if list, ok := a.Buckets.([]types.DoubleTermsBucket); ok {
				for _, item := range list {
					buckets[name] = append(buckets[name], newBucket(float64(item.Key), item.KeyAsString, item.DocCount, item.Aggregations))
				}
			}
		case *types.SumAggregate:
			setMetric(metrics, name, a.Value)
		case *types.MaxAggregate:
			setMetric(metrics, name, a.Value)
		case *types.MinAggregate:
			setMetric(metrics, name, a.Value)
		case *types.AvgAggregate:
			setMetric(metrics, name, a.Value)
		case *types.ValueCountAggregate:
			setMetric(metrics, name, a.Value)
		}
	}

	return buckets, metrics
}

func newBucket(key any, keyAsString *string, docCount int64, aggs map[string]types.Aggregate) *ResultBucket {
	sub, metrics := mapAggregations(aggs)
	b := &ResultBucket{
		Value:            key,
		HitCount:         docCount,
		Metrics:          metrics,
		SubResultBuckets: sub,
	}
	if keyAsString != nil {
		b.KeyAsString = *keyAsString
	}
	return b
}

func setMetric(metrics map[string]float64, name string, value *types.Float64) {
	if value == nil {
		return
	}
	metrics[name] = float64(*value)
}
