package hub

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// CommandKind identifies a command feed operation.
type CommandKind int

const (
	// CommandSubscribe registers SubscriberID under the pattern in Topic
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe removes SubscriberID from the pattern in Topic
	CommandUnsubscribe
	// CommandPublish publishes Payload on Topic
	CommandPublish
)

func (k CommandKind) String() string {
	switch k {
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandPublish:
		return "publish"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// ParseCommandKind is the inverse of CommandKind.String.
func ParseCommandKind(s string) (CommandKind, error) {
	switch s {
	case "subscribe":
		return CommandSubscribe, nil
	case "unsubscribe":
		return CommandUnsubscribe, nil
	case "publish":
		return CommandPublish, nil
	default:
		return 0, fmt.Errorf("unknown command %q", s)
	}
}

// Command is one entry of the inbound command feed.
type Command struct {
	Kind CommandKind

	// Topic is the subscription pattern for Subscribe/Unsubscribe and the
	// concrete topic for Publish
	Topic string

	// SubscriberID is ignored for Publish
	SubscriberID string

	// Origin is the subscriber type recorded for Subscribe
	Origin routingtable.SubscriberType

	Payload []byte
}

// PublishResult describes one accepted publish.
type PublishResult struct {
	Sequence  uint64
	Matched   int
	Enqueued  int
	Dropped   int
	Timestamp time.Time
}

// Endpoint is a live receiver for one subscriber ID.
type Endpoint interface {
	routingtable.Subscriber

	// Messages delivers the subscriber's messages in publish order
	Messages() <-chan *delivery.Message

	// Done is closed when the endpoint is disconnected
	Done() <-chan struct{}

	// ConnectedAt returns when the endpoint was registered
	ConnectedAt() time.Time
}

// Hub is a single topichub node.
type Hub interface {
	io.Closer

	// Start begins background work. Commands are rejected until Start.
	Start(ctx context.Context) error

	// Stop pauses the node; it can be started again.
	Stop(ctx context.Context) error

	// Apply executes a command feed entry. The result is zero for
	// Subscribe and Unsubscribe.
	Apply(ctx context.Context, cmd Command) (PublishResult, error)

	// Publish resolves topic and queues payload for every matched subscriber.
	// It never waits for delivery.
	Publish(ctx context.Context, topic string, payload []byte) (PublishResult, error)

	// Subscribe registers subscriber under pattern.
	Subscribe(ctx context.Context, subscriber routingtable.Subscriber, pattern string) error

	// Unsubscribe removes subscriberID from pattern.
	Unsubscribe(ctx context.Context, subscriberID, pattern string) error

	// DeclareTopic creates the routing path for topic without subscribers.
	DeclareTopic(ctx context.Context, topic string) error

	// MatchSubscribers returns the IDs topic resolves to. "*" in topic
	// selects every child at that level.
	MatchSubscribers(ctx context.Context, topic string) ([]string, error)

	// Connect registers an endpoint for subscriberID, replacing any
	// existing one. buffer <= 0 selects the default size.
	Connect(ctx context.Context, subscriberID string, buffer int) (Endpoint, error)

	// Disconnect closes subscriberID's endpoint and removes every
	// subscription it holds.
	Disconnect(ctx context.Context, subscriberID string) error

	// ListSubscriptions returns subscriberID's subscriptions, or all of
	// them when subscriberID is empty.
	ListSubscriptions(ctx context.Context, subscriberID string) ([]routingtable.Subscription, error)

	// GetNodeID returns the node's identifier.
	GetNodeID() string

	// GetHealth returns the node's health.
	GetHealth(ctx context.Context) (HealthStatus, error)

	// GetStats returns routing and delivery counters.
	GetStats(ctx context.Context) (Stats, error)
}

// HealthStatus represents the overall health of a node
type HealthStatus struct {
	// Healthy indicates if the node is functioning properly
	Healthy bool

	// RoutingTableHealthy indicates if the routing table is operational
	RoutingTableHealthy bool

	// DispatcherHealthy indicates if the dispatcher accepts messages
	DispatcherHealthy bool

	// ConnectedEndpoints is the number of live endpoints
	ConnectedEndpoints int

	// Subscriptions is the number of (pattern, subscriber) registrations
	Subscriptions int

	// Message provides additional health information
	Message string
}

// Stats are point-in-time counters for a node.
type Stats struct {
	NodeID string

	// Routing table
	Subscriptions int
	Patterns      int
	RouteNodes    int

	// Delivery
	ConnectedEndpoints int
	ActiveMailboxes    int
	Published          uint64
	Delivered          uint64
	DeliveryFailures   uint64
	Dropped            uint64

	StartedAt time.Time
}
