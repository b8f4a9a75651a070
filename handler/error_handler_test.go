package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theBullfish/replier-web/handler"
	"github.com/theBullfish/replier-web/pkg/requestid"
)

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		level  string
	}{
		{"client error logs warn", handler.ErrConflict, http.StatusConflict, "WARN"},
		{"server error logs error", errors.New("boom"), http.StatusInternalServerError, "ERROR"},
		{"bad gateway logs error", handler.ErrBadGateway, http.StatusBadGateway, "ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))
			eh := handler.NewErrorHandler(log)

			r := httptest.NewRequest(http.MethodPost, "/api/payments/cancel", nil)
			r = r.WithContext(requestid.WithContext(r.Context(), "req-42"))
			w := httptest.NewRecorder()

			eh(handler.NewContext(w, r), tc.err)

			assert.Equal(t, tc.status, w.Code)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tc.level, entry["level"])
			assert.Equal(t, "req-42", entry["request_id"])
			assert.Equal(t, float64(tc.status), entry["status_code"])
			assert.Equal(t, "/api/payments/cancel", entry["path"])
		})
	}
}

func TestFail(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := handler.Wrap(func(ctx handler.Context, _ struct{}) handler.Response {
		return handler.Fail(handler.ErrNotFound.WithMessage("product not found"))
	}, handler.WithErrorHandler[handler.Context, struct{}](handler.NewErrorHandler(log)))

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/api/products/1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"product not found"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}
