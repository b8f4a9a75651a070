package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/theBullfish/replier-web/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))

	t.Run("keeps valid incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "abc-123_X")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, "abc-123_X", seen)
		assert.Equal(t, "abc-123_X", w.Header().Get(requestid.Header))
	})

	t.Run("replaces malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "bad id;drop table")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.NotEqual(t, "bad id;drop table", seen)
		assert.Len(t, seen, 36)
	})

	t.Run("replaces oversized id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, strings.Repeat("a", 200))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Len(t, seen, 36)
	})
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	extract := requestid.LoggerExtractor()
	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(requestid.WithContext(context.Background(), "rid"))
	assert.True(t, ok)
	assert.Equal(t, "rid", attr.Value.String())
}
