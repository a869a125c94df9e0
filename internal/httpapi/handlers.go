package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	hub       hub.Hub
	logger    logging.Logger
	keepalive time.Duration
	buffer    int
}

// NewHandlers creates a new handlers instance
func NewHandlers(h hub.Hub, logger logging.Logger, keepalive time.Duration, streamBuffer int) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		hub:       h,
		logger:    logger,
		keepalive: keepalive,
		buffer:    streamBuffer,
	}
}

// Event endpoints

// PublishEvent handles POST /api/v1/events
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	// Validate JSON content type
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		writeError(w, "topic is required", http.StatusBadRequest)
		return
	}

	res, err := h.hub.Publish(r.Context(), req.Topic, req.Payload)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to publish: %v", err), statusFor(err))
		return
	}

	writeJSON(w, PublishResponse{
		Sequence:  res.Sequence,
		Matched:   res.Matched,
		Enqueued:  res.Enqueued,
		Dropped:   res.Dropped,
		Timestamp: res.Timestamp,
	}, http.StatusCreated)
}

// StreamEvents handles GET /api/v1/events/stream. It registers an endpoint
// for the caller, optionally subscribes it to ?topic=, and streams messages
// as SSE until the client disconnects. Disconnecting removes the caller's
// subscriptions.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	subscriberID := GetSubscriberID(r)
	if subscriberID == "" {
		writeError(w, "Subscriber ID required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	pattern := r.URL.Query().Get("topic")
	if pattern != "" {
		if _, err := routingtable.ParsePattern(pattern); err != nil {
			writeError(w, fmt.Sprintf("Invalid topic filter: %v", err), http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	ep, err := h.hub.Connect(ctx, subscriberID, h.buffer)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to connect: %v", err), statusFor(err))
		return
	}
	defer h.cleanup(ep)

	if pattern != "" {
		if err := h.hub.Subscribe(ctx, ep, pattern); err != nil {
			writeError(w, fmt.Sprintf("Failed to subscribe to topic: %v", err), statusFor(err))
			return
		}
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if pattern != "" {
		fmt.Fprintf(w, ": SSE connection established for topic: %s\n\n", pattern)
	} else {
		fmt.Fprint(w, ": SSE connection established\n\n")
	}
	flusher.Flush()

	h.streamWithKeepalive(ctx, w, flusher, ep)
}

// cleanup disconnects ep unless a newer stream has replaced it.
func (h *Handlers) cleanup(ep hub.Endpoint) {
	select {
	case <-ep.Done():
		return
	default:
	}
	// Use background context for cleanup since request context is cancelled
	if err := h.hub.Disconnect(context.Background(), ep.ID()); err != nil {
		h.logger.Warn("stream cleanup failed", "subscriber", ep.ID(), "error", err)
	}
}

// streamWithKeepalive forwards endpoint messages and periodic keepalive
// comments until the request ends or the endpoint is closed.
func (h *Handlers) streamWithKeepalive(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, ep hub.Endpoint) {
	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ep.Done():
			return

		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()

		case msg := <-ep.Messages():
			if err := writeSSEMessage(w, toStreamMessage(msg)); err != nil {
				h.logger.Debug("stream write failed", "subscriber", ep.ID(), "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// Subscription endpoints

// CreateSubscription handles POST /api/v1/subscriptions
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Pattern == "" {
		writeError(w, "pattern is required", http.StatusBadRequest)
		return
	}

	subscriber := routingtable.NewLocalSubscriber(GetSubscriberID(r))
	if err := h.hub.Subscribe(r.Context(), subscriber, req.Pattern); err != nil {
		writeError(w, fmt.Sprintf("Failed to subscribe: %v", err), statusFor(err))
		return
	}

	writeJSON(w, SubscriptionResponse{
		Pattern:      req.Pattern,
		SubscriberID: subscriber.ID(),
		Type:         subscriber.Type().String(),
	}, http.StatusCreated)
}

// ListSubscriptions handles GET /api/v1/subscriptions
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.writeSubscriptions(w, r, GetSubscriberID(r))
}

// DeleteSubscription handles DELETE /api/v1/subscriptions?pattern=
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, "pattern query parameter required", http.StatusBadRequest)
		return
	}

	if err := h.hub.Unsubscribe(r.Context(), GetSubscriberID(r), pattern); err != nil {
		writeError(w, fmt.Sprintf("Failed to unsubscribe: %v", err), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Topic endpoints

// MatchTopic handles GET /api/v1/topics/match?topic=
func (h *Handlers) MatchTopic(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, "topic query parameter required", http.StatusBadRequest)
		return
	}

	ids, err := h.hub.MatchSubscribers(r.Context(), topic)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to match: %v", err), statusFor(err))
		return
	}
	writeJSON(w, MatchResponse{Topic: topic, Subscribers: ids}, http.StatusOK)
}

// DeclareTopic handles POST /api/v1/topics
func (h *Handlers) DeclareTopic(w http.ResponseWriter, r *http.Request) {
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req DeclareTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		writeError(w, "topic is required", http.StatusBadRequest)
		return
	}

	if err := h.hub.DeclareTopic(r.Context(), req.Topic); err != nil {
		writeError(w, fmt.Sprintf("Failed to declare topic: %v", err), statusFor(err))
		return
	}
	writeJSON(w, DeclareTopicResponse{Topic: req.Topic}, http.StatusCreated)
}

// Admin endpoints

// AdminListSubscriptions handles GET /api/v1/admin/subscriptions
func (h *Handlers) AdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	h.writeSubscriptions(w, r, "")
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.hub.GetStats(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to get stats: %v", err), statusFor(err))
		return
	}

	writeJSON(w, AdminStatsResponse{
		NodeID:             stats.NodeID,
		Subscriptions:      stats.Subscriptions,
		Patterns:           stats.Patterns,
		RouteNodes:         stats.RouteNodes,
		ConnectedEndpoints: stats.ConnectedEndpoints,
		ActiveMailboxes:    stats.ActiveMailboxes,
		Published:          stats.Published,
		Delivered:          stats.Delivered,
		DeliveryFailures:   stats.DeliveryFailures,
		Dropped:            stats.Dropped,
		StartedAt:          stats.StartedAt,
	}, http.StatusOK)
}

// Health endpoint

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.hub.GetHealth(r.Context())
	if err != nil {
		writeError(w, "Failed to get health status", http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, HealthResponse{
		Healthy:             health.Healthy,
		RoutingTableHealthy: health.RoutingTableHealthy,
		DispatcherHealthy:   health.DispatcherHealthy,
		ConnectedEndpoints:  health.ConnectedEndpoints,
		Subscriptions:       health.Subscriptions,
		Message:             health.Message,
	}, statusCode)
}

// Helper methods

func (h *Handlers) writeSubscriptions(w http.ResponseWriter, r *http.Request, subscriberID string) {
	subscriptions, err := h.hub.ListSubscriptions(r.Context(), subscriberID)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to retrieve subscriptions: %v", err), statusFor(err))
		return
	}

	resp := SubscriptionsListResponse{Subscriptions: make([]SubscriptionResponse, 0, len(subscriptions))}
	for _, sub := range subscriptions {
		resp.Subscriptions = append(resp.Subscriptions, SubscriptionResponse{
			Pattern:      sub.Pattern,
			SubscriberID: sub.Subscriber.ID(),
			Type:         sub.Subscriber.Type().String(),
		})
	}
	writeJSON(w, resp, http.StatusOK)
}

// statusFor maps hub and routing errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, routingtable.ErrInvalidTopic),
		errors.Is(err, routingtable.ErrInvalidPattern),
		errors.Is(err, routingtable.ErrNilSubscriber),
		errors.Is(err, hub.ErrEmptySubscriberID):
		return http.StatusBadRequest
	case errors.Is(err, routingtable.ErrRouteNotFound):
		return http.StatusNotFound
	case errors.Is(err, hub.ErrNodeNotStarted),
		errors.Is(err, hub.ErrNodeClosed),
		errors.Is(err, routingtable.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// validateJSON validates that the request has valid JSON content-type
func validateJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}

func toStreamMessage(msg *delivery.Message) EventStreamMessage {
	var payload interface{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			// If not valid JSON, send as string
			payload = string(msg.Payload)
		}
	}
	var headers map[string]string
	if len(msg.Headers) > 0 {
		headers = msg.Headers
	}
	return EventStreamMessage{
		Sequence:  msg.Sequence,
		Topic:     msg.Topic,
		Payload:   payload,
		Timestamp: msg.PublishedAt,
		Headers:   headers,
	}
}

// writeSSEMessage writes an EventStreamMessage as a properly formatted SSE data message
func writeSSEMessage(w http.ResponseWriter, message EventStreamMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE message: %w", err)
	}

	// Write in SSE format: "id: seq\ndata: {json}\n\n"
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", message.Sequence, jsonData)
	return err
}
