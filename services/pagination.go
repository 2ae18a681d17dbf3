package services

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps (page-1)*limit inside an int32 offset.
	MaxPage         = math.MaxInt32 / MaxPageSize
)

type PageRequest struct {
	Page  int
	Limit int
}

// NewPageRequest clamps page to [1, MaxPage] and limit to [1, MaxPageSize].
func NewPageRequest(page, limit int) PageRequest {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return PageRequest{Page: page, Limit: limit}
}

// ParsePageRequest reads page and limit; unparseable values fall back to the defaults.
func ParsePageRequest(q url.Values) PageRequest {
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil {
		page = 1
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil {
		limit = DefaultPageSize
	}
	return NewPageRequest(page, limit)
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is the list envelope returned by every paginated endpoint.
type Page[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return Page[T]{Items: items, Total: total, Page: req.Page, Limit: req.Limit, Pages: pages}
}
