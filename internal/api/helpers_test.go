package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePaginationParams(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantPage  int
		wantLimit int
	}{
		{"defaults", "", 1, 50},
		{"explicit", "?page=3&limit=20", 3, 20},
		{"invalid values fall back", "?page=abc&limit=-5", 1, 50},
		{"zero page", "?page=0", 1, 50},
		{"limit is capped", "?limit=5000", 1, maxPageLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/threads"+tt.query, nil)
			page, limit := ParsePaginationParams(req, 50)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLimit, limit)
		})
	}
}

func TestWriteJSONResponse(t *testing.T) {
	t.Run("writes status and body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ok := WriteJSONResponse(rr, http.StatusAccepted, map[string]int{"n": 1})

		assert.True(t, ok)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"n":1}`, rr.Body.String())
	})

	t.Run("encode failure yields 500 without partial body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ok := WriteJSONResponse(rr, http.StatusOK, map[string]any{"ch": make(chan int)})

		assert.False(t, ok)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "ch")
	})
}
