package featureset

import (
	"github.com/reveald/esq"
)

const (
	defaultPageSize int = 24
)

type PaginationFeature struct {
	offset      int
	pageSize    int
	maxPageSize int
	maxOffset   int
	totals      bool
}

type PaginationOption func(*PaginationFeature)

func WithPageSize(pageSize int) PaginationOption {
	return func(pf *PaginationFeature) {
		pf.pageSize = pageSize
	}
}

func WithMaxPageSize(maxPageSize int) PaginationOption {
	return func(pf *PaginationFeature) {
		pf.maxPageSize = maxPageSize
	}
}

func WithMaxOffset(maxOffset int) PaginationOption {
	return func(pf *PaginationFeature) {
		pf.maxOffset = maxOffset
	}
}

// WithOffset skips the first offset documents.
func WithOffset(offset int) PaginationOption {
	return func(pf *PaginationFeature) {
		pf.offset = offset
	}
}

// WithPage selects a 1-based page of pageSize documents.
func WithPage(page, pageSize int) PaginationOption {
	return func(pf *PaginationFeature) {
		if page < 1 {
			page = 1
		}
		pf.pageSize = pageSize
		pf.offset = (page - 1) * pageSize
	}
}

// WithTotalHits asks for an exact total hit count.
func WithTotalHits() PaginationOption {
	return func(pf *PaginationFeature) {
		pf.totals = true
	}
}

// NewPaginationFeature returns a pagination feature. The page size is
// capped at the maximum page size, which defaults to the page size.
func NewPaginationFeature(opts ...PaginationOption) *PaginationFeature {
	pf := &PaginationFeature{
		pageSize:    defaultPageSize,
		maxPageSize: -1,
		maxOffset:   -1,
	}

	for _, opt := range opts {
		opt(pf)
	}

	if pf.maxPageSize < 0 {
		pf.maxPageSize = pf.pageSize
	}

	return pf
}

func (pf *PaginationFeature) Process(builder *esq.QueryBuilder, next esq.FeatureFunc) (*esq.Result, error) {
	offset, pageSize := pf.build(builder)

	r, err := next(builder)
	if err != nil || r == nil {
		return r, err
	}

	r.Pagination = &esq.ResultPagination{
		Offset:   offset,
		PageSize: pageSize,
	}
	return r, nil
}

func (pf *PaginationFeature) build(builder *esq.QueryBuilder) (int, int) {
	offset := pf.offset
	if offset < 0 || (pf.maxOffset > 0 && offset > pf.maxOffset) {
		offset = 0
	}

	pageSize := pf.pageSize
	if pageSize < 0 || pageSize > pf.maxPageSize {
		pageSize = pf.maxPageSize
	}

	builder.
		Selection().
		Update(
			esq.WithPageSize(pageSize),
			esq.WithOffset(offset))

	if pf.totals {
		builder.TrackTotalHits()
	}

	return offset, pageSize
}
