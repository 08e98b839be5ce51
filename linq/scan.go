package linq

import (
	"context"
	"iter"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/reveald/esq"
	"github.com/reveald/esq/featureset"
	"github.com/reveald/esq/materialize"
)

// All iterates over every matching document in sort order with a scroll
// cursor. Iteration stops at the first error, which is yielded with a zero
// document. A missing index yields nothing.
//
//	for sale, err := range q.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	}
func (q *Queryable[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		p, err := q.compile(terminalScan)
		if err != nil {
			yield(zero, err)
			return
		}

		err = q.scan(ctx, terminalScan, p, nil, func(hit map[string]any) bool {
			doc, err := materialize.Document[T](hit)
			if err != nil {
				yield(zero, errors.Wrapf(err, "decode document of %s", q.index))
				return false
			}
			return yield(doc, nil)
		})
		if err != nil {
			yield(zero, err)
		}
	}
}

// scan pages through the matching documents, calling fn per document
// until it returns false. The cursor is cleared however the scan ends,
// and a cursor that outlives a cancelled context is still released.
func (q *Queryable[T]) scan(ctx context.Context, t terminal, p *plan, shape *projection, fn func(map[string]any) bool) error {
	client := q.provider.client
	size := q.provider.scrollSize
	keepAlive := q.provider.keepAlive

	var scrollID string
	defer func() {
		if scrollID == "" {
			return
		}
		if err := client.ClearScroll(context.WithoutCancel(ctx), scrollID); err != nil {
			q.provider.logger.Warn("failed to clear scroll cursor",
				zap.String("index", q.index),
				zap.Error(err))
		}
	}()

	page := featureset.NewPaginationFeature(featureset.WithPageSize(size))
	result, err := q.execute(ctx, t, p, shape, []esq.Feature{page}, func(qb *esq.QueryBuilder) (*esq.Result, error) {
		return client.Scroll(ctx, qb, keepAlive)
	})
	for {
		if err != nil {
			if errors.Is(err, esq.ErrIndexNotFound) {
				q.provider.logger.Debug("scan of missing index", zap.String("index", q.index))
				return nil
			}
			return err
		}
		if result.ScrollID != "" {
			scrollID = result.ScrollID
		}

		for _, hit := range result.Hits {
			if !fn(hit) {
				return nil
			}
		}
		if len(result.Hits) < size || scrollID == "" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err = client.ScrollNext(ctx, scrollID, keepAlive)
		if err != nil {
			err = errors.Wrapf(err, "%s on %s", t, q.index)
		}
	}
}
