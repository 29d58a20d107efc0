package responsewriter_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/borrowbook/borrowbook/internal/middleware/responsewriter"
)

func TestRecorder(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name:       "implicit ok",
			handler:    func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit status",
			handler:    func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantStatus: http.StatusForbidden,
		},
		{
			name: "first status wins",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "status after body is ignored",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
				w.WriteHeader(http.StatusTeapot)
			},
			wantStatus: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			wrapped := responsewriter.NewRecorder(rec)

			tt.handler(wrapped, httptest.NewRequest(http.MethodGet, "/test", nil))

			assert.Equal(t, tt.wantStatus, wrapped.Status())
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRecorder_Unwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := responsewriter.NewRecorder(rec)

	require.Same(t, rec, wrapped.Unwrap())
}
