package handler

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// ParsePagination reads ?limit and ?offset. Missing or invalid values fall
// back to the defaults; oversized limits are capped.
func ParsePagination(r *http.Request) PaginationParams {
	q := r.URL.Query()
	p := PaginationParams{Limit: DefaultLimit}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil && offset > 0 {
		p.Offset = offset
	}
	return p
}
