// Package pagination parses limit/offset query parameters and shapes
// list responses around them.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	// DefaultLimit applies when the client sends no usable limit.
	DefaultLimit = 20
	// MaxLimit caps page size; the paper list alone can run to
	// thousands of rows.
	MaxLimit = 100
)

// Params is a validated page window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset from the query string. Missing,
// malformed or out-of-range values fall back to a sane window rather
// than erroring, so list endpoints stay lenient about their inputs.
func FromContext(c echo.Context) Params {
	limit := intParam(c, "limit", DefaultLimit)
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset := intParam(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// HasMore reports whether rows remain past this window.
func (p Params) HasMore(total int) bool {
	return p.Offset+p.Limit < total
}

// Response is the envelope every list endpoint returns.
type Response struct {
	Data    any  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewResponse wraps one page of rows with its window and the full count.
func NewResponse(data any, total int, p Params) *Response {
	return &Response{
		Data:    data,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasMore(total),
	}
}
