package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
)

// ContextKey type for context keys to avoid collisions
type ContextKey string

const (
	// SubscriberIDKey is the context key for the calling subscriber's ID
	SubscriberIDKey ContextKey = "subscriber_id"
)

const (
	// SubscriberIDHeader names the calling subscriber
	SubscriberIDHeader = "X-Subscriber-ID"
	// SubscriberIDParam is the query fallback for clients that cannot set
	// headers, such as browser EventSource
	SubscriberIDParam = "subscriberId"
)

// Middleware provides HTTP middleware functions
type Middleware struct {
	logger logging.Logger
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(logger logging.Logger) *Middleware {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Middleware{logger: logger}
}

// SubscriberRequired resolves the caller's subscriber ID from the
// X-Subscriber-ID header or the subscriberId query parameter. It identifies
// callers; it does not authenticate them.
func (m *Middleware) SubscriberRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SubscriberIDHeader)
		if id == "" {
			id = r.URL.Query().Get(SubscriberIDParam)
		}
		if id == "" {
			writeError(w, SubscriberIDHeader+" header or "+SubscriberIDParam+" query parameter required", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), SubscriberIDKey, id)
		next(w, r.WithContext(ctx))
	}
}

// CORS middleware adds CORS headers for browser compatibility
func (m *Middleware) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+SubscriberIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// ContentType middleware sets the content type to JSON
func (m *Middleware) ContentType(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

// Logging middleware logs each request with its status and duration
func (m *Middleware) Logging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	}
}

// Recovery middleware recovers from panics and returns 500 error
func (m *Middleware) Recovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.Error("panic in handler", "path", r.URL.Path, "panic", err)
				writeError(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// statusRecorder captures the response status. It forwards Flush so SSE
// streaming works through the logging middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}
	writeJSON(w, errorResp, statusCode)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// GetSubscriberID extracts the subscriber ID from the request context
func GetSubscriberID(r *http.Request) string {
	if id, ok := r.Context().Value(SubscriberIDKey).(string); ok {
		return id
	}
	return ""
}
