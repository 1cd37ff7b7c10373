package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextFor(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p := FromContext(contextFor("/"))
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		target string
		limit  int
		offset int
	}{
		{"/?limit=10&offset=30", 10, 30},
		{"/?limit=500", MaxLimit, 0},
		{"/?limit=-3&offset=-1", DefaultLimit, 0},
		{"/?page=3&per_page=25", 25, 50},
		{"/?page=0", DefaultLimit, 0},
		{"/?page=2&offset=5", DefaultLimit, 5},
		{"/?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			p := FromContext(contextFor(tt.target))
			if p.Limit != tt.limit || p.Offset != tt.offset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d", p.Limit, p.Offset, tt.limit, tt.offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 45, Params{Limit: 20, Offset: 20})
	if !r.HasMore {
		t.Error("expected has_more with 45 rows on page 2 of 20")
	}
	if r.Page != 2 || r.Pages != 3 {
		t.Errorf("expected page 2 of 3, got %d of %d", r.Page, r.Pages)
	}

	last := NewResponse(nil, 45, Params{Limit: 20, Offset: 40})
	if last.HasMore {
		t.Error("expected no more rows on the last page")
	}
}

func TestPages_Empty(t *testing.T) {
	if got := (Params{Limit: 20}).Pages(0); got != 1 {
		t.Errorf("expected 1 page for empty result, got %d", got)
	}
}
