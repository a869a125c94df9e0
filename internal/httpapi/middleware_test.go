package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware_SubscriberRequired(t *testing.T) {
	m := NewMiddleware(nil)
	var got string
	handler := m.SubscriberRequired(func(w http.ResponseWriter, r *http.Request) {
		got = GetSubscriberID(r)
	})

	tests := []struct {
		name       string
		target     string
		header     string
		wantID     string
		wantStatus int
	}{
		{"header", "/", "from-header", "from-header", http.StatusOK},
		{"query", "/?subscriberId=from-query", "", "from-query", http.StatusOK},
		{"header wins", "/?subscriberId=from-query", "from-header", "from-header", http.StatusOK},
		{"missing", "/", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(SubscriberIDHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantID, got)
		})
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	m := NewMiddleware(nil)
	handler := m.Recovery(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestMiddleware_LoggingKeepsFlusher(t *testing.T) {
	m := NewMiddleware(nil)
	var flushable bool
	handler := m.Logging(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, flushable)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
