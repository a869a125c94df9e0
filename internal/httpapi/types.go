package httpapi

import (
	"encoding/json"
	"time"
)

// Request/Response types for the HTTP API

// PublishRequest represents a publish request. Payload is any JSON value.
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// PublishResponse describes an accepted publish
type PublishResponse struct {
	Sequence  uint64    `json:"sequence"`
	Matched   int       `json:"matched"`
	Enqueued  int       `json:"enqueued"`
	Dropped   int       `json:"dropped"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionRequest represents a subscription creation request
type SubscriptionRequest struct {
	Pattern string `json:"pattern"`
}

// SubscriptionResponse represents one (pattern, subscriber) registration
type SubscriptionResponse struct {
	Pattern      string `json:"pattern"`
	SubscriberID string `json:"subscriberId"`
	Type         string `json:"type"`
}

// SubscriptionsListResponse represents a list of subscriptions
type SubscriptionsListResponse struct {
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

// DeclareTopicRequest represents a topic declaration request
type DeclareTopicRequest struct {
	Topic string `json:"topic"`
}

// DeclareTopicResponse confirms a declared topic
type DeclareTopicResponse struct {
	Topic string `json:"topic"`
}

// MatchResponse lists the subscribers a topic resolves to
type MatchResponse struct {
	Topic       string   `json:"topic"`
	Subscribers []string `json:"subscribers"`
}

// AdminStatsResponse represents node statistics
type AdminStatsResponse struct {
	NodeID             string    `json:"nodeId"`
	Subscriptions      int       `json:"subscriptions"`
	Patterns           int       `json:"patterns"`
	RouteNodes         int       `json:"routeNodes"`
	ConnectedEndpoints int       `json:"connectedEndpoints"`
	ActiveMailboxes    int       `json:"activeMailboxes"`
	Published          uint64    `json:"published"`
	Delivered          uint64    `json:"delivered"`
	DeliveryFailures   uint64    `json:"deliveryFailures"`
	Dropped            uint64    `json:"dropped"`
	StartedAt          time.Time `json:"startedAt"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy             bool   `json:"healthy"`
	RoutingTableHealthy bool   `json:"routingTableHealthy"`
	DispatcherHealthy   bool   `json:"dispatcherHealthy"`
	ConnectedEndpoints  int    `json:"connectedEndpoints"`
	Subscriptions       int    `json:"subscriptions"`
	Message             string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// EventStreamMessage represents a server-sent event message. Payloads that
// are not valid JSON are sent as strings.
type EventStreamMessage struct {
	Sequence  uint64            `json:"sequence"`
	Topic     string            `json:"topic"`
	Payload   interface{}       `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
}
