package routingtable

import (
	"context"
	"io"
)

// Subscriber represents an endpoint that receives messages for the patterns
// it subscribed to. Equality is by ID.
type Subscriber interface {
	// ID returns unique identifier for this subscriber
	ID() string

	// Type returns the kind of endpoint behind this subscriber
	Type() SubscriberType
}

// SubscriberType represents different kinds of subscriber endpoints
type SubscriberType int

const (
	// LocalClient is an endpoint attached to this process (HTTP stream, embedded caller)
	LocalClient SubscriberType = iota

	// FeedClient is an endpoint attached through the gRPC command feed
	FeedClient
)

func (t SubscriberType) String() string {
	switch t {
	case LocalClient:
		return "local"
	case FeedClient:
		return "feed"
	default:
		return "unknown"
	}
}

// Subscription represents a subscriber registered under a topic pattern
type Subscription struct {
	// Pattern is the topic pattern (may include wildcards)
	Pattern string

	// Subscriber is the entity that receives messages matching Pattern
	Subscriber Subscriber
}

// RoutingTable manages topic-to-subscriber mappings.
//
// All methods are safe for concurrent use. Subscribe and Unsubscribe are
// effective for every GetSubscribers call that starts after they return.
type RoutingTable interface {
	io.Closer

	// Subscribe adds subscriber under a topic pattern. Subscribing the same
	// (pattern, subscriber ID) pair twice keeps a single entry.
	Subscribe(ctx context.Context, pattern string, subscriber Subscriber) error

	// Unsubscribe removes subscriberID from a topic pattern. It returns
	// ErrRouteNotFound if the pattern's path does not exist and nil if the
	// path exists but the subscriber is not registered there.
	Unsubscribe(ctx context.Context, pattern string, subscriberID string) error

	// DeclareTopic creates the nodes for a topic without subscribing anyone.
	DeclareTopic(ctx context.Context, topic string) error

	// GetSubscribers returns the de-duplicated subscribers whose patterns
	// match topic, ordered by node then insertion.
	GetSubscribers(ctx context.Context, topic string) ([]Subscriber, error)

	// GetAllSubscriptions returns all current subscriptions.
	GetAllSubscriptions(ctx context.Context) ([]Subscription, error)

	// Rebuild atomically replaces the table contents with subscriptions.
	Rebuild(ctx context.Context, subscriptions []Subscription) error

	// GetTopicCount returns the number of patterns with at least one subscriber.
	GetTopicCount(ctx context.Context) (int, error)

	// GetSubscriberCount returns the total number of subscriptions.
	GetSubscriberCount(ctx context.Context) (int, error)

	// GetNodeCount returns the number of trie nodes, including declared
	// topics and nodes whose subscribers have all left.
	GetNodeCount(ctx context.Context) (int, error)
}
