package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	internalhub "github.com/rmacdonaldsmith/topichub-go/internal/hub"
	"github.com/rmacdonaldsmith/topichub-go/internal/metrics"
)

// testServerSetup holds common test dependencies
type testServerSetup struct {
	Node     *internalhub.Node
	Server   *Server
	Registry *prometheus.Registry
}

// newTestServerSetup creates a started node behind an HTTP server
func newTestServerSetup(t *testing.T) *testServerSetup {
	t.Helper()

	reg := prometheus.NewRegistry()
	node, err := internalhub.NewNode(internalhub.NewConfig("test-node", "localhost:8080"),
		internalhub.WithMetrics(metrics.NewPrometheus(reg, "")))
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	t.Cleanup(func() { _ = node.Close() })

	server := NewServer(node, Config{
		KeepaliveInterval: 50 * time.Millisecond,
		Gatherer:          reg,
	})
	return &testServerSetup{Node: node, Server: server, Registry: reg}
}

// do runs a request against the routed handler. subscriberID is sent as
// X-Subscriber-ID when non-empty; a non-empty body is sent as JSON.
func (s *testServerSetup) do(t *testing.T, method, path, body, subscriberID string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if subscriberID != "" {
		req.Header.Set(SubscriberIDHeader, subscriberID)
	}

	rr := httptest.NewRecorder()
	s.Server.Handler().ServeHTTP(rr, req)
	return rr
}

func newJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *testServerSetup, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Server.Handler().ServeHTTP(rr, req)
	return rr
}
