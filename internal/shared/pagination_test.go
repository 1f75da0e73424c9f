package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageParamsDefaults(t *testing.T) {
	r := httptest.NewRequest("GET", "/users", nil)
	page := PageParams(r)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20}, page)
	assert.Equal(t, 0, page.Offset())
}

func TestPageParamsBounds(t *testing.T) {
	tests := []struct {
		query      string
		wantPage   int
		wantPer    int
		wantOffset int
	}{
		{"page=3&per_page=50", 3, 50, 100},
		{"page=0&per_page=0", 1, 20, 0},
		{"page=-1&per_page=500", 1, 20, 0},
		{"page=2&per_page=abc", 2, 20, 20},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", "/users?"+tc.query, nil)
		page := PageParams(r)
		assert.Equal(t, tc.wantPage, page.Page, "query %q", tc.query)
		assert.Equal(t, tc.wantPer, page.PerPage, "query %q", tc.query)
		assert.Equal(t, tc.wantOffset, page.Offset(), "query %q", tc.query)
	}
}
