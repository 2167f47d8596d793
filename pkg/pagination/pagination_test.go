package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/evidence/papers"+query, nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"no parameters", "", DefaultLimit, 0},
		{"explicit window", "?limit=50&offset=10", 50, 10},
		{"limit above cap", "?limit=500", MaxLimit, 0},
		{"zero limit", "?limit=0", DefaultLimit, 0},
		{"negative offset", "?offset=-5", DefaultLimit, 0},
		{"garbage values", "?limit=ten&offset=none", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got {%d %d}, want {%d %d}", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParamsHasMore(t *testing.T) {
	tests := []struct {
		name  string
		p     Params
		total int
		want  bool
	}{
		{"first of many pages", Params{Limit: 3, Offset: 0}, 10, true},
		{"exactly one page", Params{Limit: 3, Offset: 0}, 3, false},
		{"last partial page", Params{Limit: 10, Offset: 20}, 25, false},
		{"offset past the end", Params{Limit: 10, Offset: 40}, 25, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.HasMore(tt.total); got != tt.want {
				t.Errorf("HasMore(%d) = %v, want %v", tt.total, got, tt.want)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	papers := []string{"10.1001/jama.2019.1", "10.1056/nejm.2020.2", "10.1016/s0140.2021.3"}
	r := NewResponse(papers, 10, Params{Limit: 3, Offset: 0})

	if r.Total != 10 || r.Limit != 3 || r.Offset != 0 {
		t.Errorf("envelope = {total:%d limit:%d offset:%d}", r.Total, r.Limit, r.Offset)
	}
	if !r.HasMore {
		t.Error("has_more = false with seven rows remaining")
	}
	if got, ok := r.Data.([]string); !ok || len(got) != 3 {
		t.Errorf("data = %#v, want the three rows", r.Data)
	}
}
