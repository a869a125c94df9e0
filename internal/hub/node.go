package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/topichub-go/internal/dispatch"
	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/internal/metrics"
	"github.com/rmacdonaldsmith/topichub-go/internal/routingtable"
	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
	routingtablepkg "github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// Node implements hub.Hub. It owns the routing table, the dispatcher and
// the endpoint registry.
//
// Publish resolves subscribers before taking publishMu, then assigns the
// sequence number and enqueues under it so every subscriber sees messages in
// sequence order.
type Node struct {
	mu     sync.RWMutex
	config *Config

	logger   logging.Logger
	metrics  metrics.Collector
	fallback delivery.Sink

	routingTable routingtablepkg.RoutingTable
	dispatcher   *dispatch.Dispatcher

	// State management
	started   bool
	closed    bool
	startedAt time.Time
	stopStats context.CancelFunc
	statsDone chan struct{}

	endpointsMu sync.RWMutex
	endpoints   map[string]*ChannelEndpoint

	publishMu sync.Mutex
	sequence  uint64
	published atomic.Uint64
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithMetrics sets the metrics collector shared by the node and its dispatcher.
func WithMetrics(m metrics.Collector) Option {
	return func(n *Node) { n.metrics = m }
}

// WithSink sets where messages go for subscribers without a connected
// endpoint. Without it those deliveries fail with delivery.ErrNoEndpoint.
func WithSink(s delivery.Sink) Option {
	return func(n *Node) { n.fallback = s }
}

// NewNode creates a node from config. Call Start before issuing commands.
func NewNode(config *Config, opts ...Option) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configCopy := *config
	configCopy.SetDefaults()

	n := &Node{
		config:       &configCopy,
		logger:       logging.NewNop(),
		metrics:      metrics.NewNop(),
		routingTable: routingtable.NewInMemoryRoutingTable(),
		endpoints:    make(map[string]*ChannelEndpoint),
	}
	for _, opt := range opts {
		opt(n)
	}

	d, err := dispatch.New(configCopy.Dispatch, delivery.SinkFunc(n.deliver),
		dispatch.WithLogger(n.logger),
		dispatch.WithMetrics(n.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	n.dispatcher = d
	return n, nil
}

// Start declares the configured topics and starts the stats loop.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return hub.ErrNodeClosed
	}
	if n.started {
		return nil
	}

	for _, topic := range n.config.DeclaredTopics {
		if err := n.routingTable.DeclareTopic(ctx, topic); err != nil {
			return fmt.Errorf("declare %s: %w", topic, err)
		}
	}

	statsCtx, cancel := context.WithCancel(ctx)
	n.stopStats = cancel
	n.statsDone = make(chan struct{})
	go n.runStats(statsCtx, n.statsDone)

	n.started = true
	n.startedAt = time.Now()
	n.logger.Info("node started", "node_id", n.config.NodeID, "declared_topics", len(n.config.DeclaredTopics))
	return nil
}

// Stop halts the stats loop and rejects further commands until Start.
// Subscriptions, endpoints and queued deliveries are kept.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return nil
	}
	n.haltStats()
	n.started = false
	n.logger.Info("node stopped", "node_id", n.config.NodeID)
	return nil
}

// Close disconnects every endpoint, stops the dispatcher and closes the
// routing table. Queued deliveries are discarded.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	if n.started {
		n.haltStats()
	}

	n.endpointsMu.Lock()
	for id, ep := range n.endpoints {
		ep.close()
		delete(n.endpoints, id)
	}
	n.endpointsMu.Unlock()

	if err := n.dispatcher.Close(); err != nil {
		return fmt.Errorf("failed to close dispatcher: %w", err)
	}
	if err := n.routingTable.Close(); err != nil {
		return fmt.Errorf("failed to close routing table: %w", err)
	}

	n.started = false
	n.closed = true
	n.logger.Info("node closed", "node_id", n.config.NodeID)
	return nil
}

// Apply executes one command feed entry.
func (n *Node) Apply(ctx context.Context, cmd hub.Command) (hub.PublishResult, error) {
	switch cmd.Kind {
	case hub.CommandPublish:
		return n.Publish(ctx, cmd.Topic, cmd.Payload)
	case hub.CommandSubscribe:
		if cmd.SubscriberID == "" {
			return hub.PublishResult{}, hub.ErrEmptySubscriberID
		}
		var subscriber routingtablepkg.Subscriber = routingtablepkg.NewLocalSubscriber(cmd.SubscriberID)
		if cmd.Origin == routingtablepkg.FeedClient {
			subscriber = routingtablepkg.NewFeedSubscriber(cmd.SubscriberID)
		}
		return hub.PublishResult{}, n.Subscribe(ctx, subscriber, cmd.Topic)
	case hub.CommandUnsubscribe:
		return hub.PublishResult{}, n.Unsubscribe(ctx, cmd.SubscriberID, cmd.Topic)
	default:
		return hub.PublishResult{}, fmt.Errorf("unsupported command %s", cmd.Kind)
	}
}

// Publish resolves topic and enqueues payload for each matched subscriber.
// topic must be concrete; wildcards are rejected.
func (n *Node) Publish(ctx context.Context, topic string, payload []byte) (hub.PublishResult, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkStarted(); err != nil {
		return hub.PublishResult{}, err
	}

	if _, err := routingtablepkg.ParseTopic(topic); err != nil {
		n.metrics.RecordPublish(metrics.ResultRejected)
		return hub.PublishResult{}, fmt.Errorf("publish: %w", err)
	}

	begin := time.Now()
	subscribers, err := n.routingTable.GetSubscribers(ctx, topic)
	if err != nil {
		n.metrics.RecordPublish(metrics.ResultRejected)
		return hub.PublishResult{}, fmt.Errorf("failed to match subscribers: %w", err)
	}
	n.metrics.ObserveMatch(time.Since(begin).Seconds(), len(subscribers))
	ids := routingtablepkg.IDs(subscribers)

	base := delivery.NewMessage(topic, payload)

	n.publishMu.Lock()
	n.sequence++
	msg := base.WithSequence(n.sequence)
	res, err := n.dispatcher.Dispatch(ids, msg)
	n.publishMu.Unlock()
	if err != nil {
		n.metrics.RecordPublish(metrics.ResultRejected)
		return hub.PublishResult{}, fmt.Errorf("failed to dispatch: %w", err)
	}

	n.published.Add(1)
	n.metrics.RecordPublish(metrics.ResultAccepted)
	n.logger.Debug("published", "topic", topic, "sequence", msg.Sequence,
		"matched", len(ids), "dropped", res.Dropped)

	return hub.PublishResult{
		Sequence:  msg.Sequence,
		Matched:   len(ids),
		Enqueued:  res.Enqueued,
		Dropped:   res.Dropped,
		Timestamp: msg.PublishedAt,
	}, nil
}

// Subscribe registers subscriber under pattern.
func (n *Node) Subscribe(ctx context.Context, subscriber routingtablepkg.Subscriber, pattern string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkStarted(); err != nil {
		return err
	}
	if subscriber == nil {
		return routingtablepkg.ErrNilSubscriber
	}
	if subscriber.ID() == "" {
		return hub.ErrEmptySubscriberID
	}

	if err := n.routingTable.Subscribe(ctx, pattern, subscriber); err != nil {
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	n.logger.Debug("subscribed", "subscriber", subscriber.ID(), "pattern", pattern, "type", subscriber.Type())
	return nil
}

// Unsubscribe removes subscriberID from pattern.
func (n *Node) Unsubscribe(ctx context.Context, subscriberID, pattern string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkStarted(); err != nil {
		return err
	}
	if subscriberID == "" {
		return hub.ErrEmptySubscriberID
	}

	if err := n.routingTable.Unsubscribe(ctx, pattern, subscriberID); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	n.logger.Debug("unsubscribed", "subscriber", subscriberID, "pattern", pattern)
	return nil
}

// DeclareTopic creates the routing path for topic.
func (n *Node) DeclareTopic(ctx context.Context, topic string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkStarted(); err != nil {
		return err
	}
	if err := n.routingTable.DeclareTopic(ctx, topic); err != nil {
		return fmt.Errorf("failed to declare topic: %w", err)
	}
	return nil
}

// MatchSubscribers returns the subscriber IDs topic resolves to.
func (n *Node) MatchSubscribers(ctx context.Context, topic string) ([]string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, hub.ErrNodeClosed
	}
	subscribers, err := n.routingTable.GetSubscribers(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to match subscribers: %w", err)
	}
	return routingtablepkg.IDs(subscribers), nil
}

// Connect registers a channel endpoint for subscriberID. A previous
// endpoint for the same ID is closed.
func (n *Node) Connect(ctx context.Context, subscriberID string, buffer int) (hub.Endpoint, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkStarted(); err != nil {
		return nil, err
	}
	if subscriberID == "" {
		return nil, hub.ErrEmptySubscriberID
	}
	if buffer <= 0 {
		buffer = n.config.EndpointBuffer
	}

	ep := newChannelEndpoint(subscriberID, buffer)

	n.endpointsMu.Lock()
	if old, ok := n.endpoints[subscriberID]; ok {
		old.close()
		n.logger.Info("replacing endpoint", "subscriber", subscriberID)
	}
	n.endpoints[subscriberID] = ep
	n.endpointsMu.Unlock()

	n.logger.Debug("endpoint connected", "subscriber", subscriberID, "buffer", buffer)
	return ep, nil
}

// Disconnect closes subscriberID's endpoint, discards its queued messages
// and removes all of its subscriptions. Disconnecting an unknown ID is a
// no-op.
func (n *Node) Disconnect(ctx context.Context, subscriberID string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return hub.ErrNodeClosed
	}

	n.endpointsMu.Lock()
	if ep, ok := n.endpoints[subscriberID]; ok {
		ep.close()
		delete(n.endpoints, subscriberID)
	}
	n.endpointsMu.Unlock()

	subscriptions, err := n.listSubscriptions(ctx, subscriberID)
	if err != nil {
		return err
	}
	for _, sub := range subscriptions {
		err := n.routingTable.Unsubscribe(ctx, sub.Pattern, subscriberID)
		if err != nil && !errors.Is(err, routingtablepkg.ErrRouteNotFound) {
			return fmt.Errorf("failed to remove subscription %s: %w", sub.Pattern, err)
		}
	}
	n.dispatcher.Release(subscriberID)

	n.logger.Debug("endpoint disconnected", "subscriber", subscriberID, "subscriptions", len(subscriptions))
	return nil
}

// ListSubscriptions returns subscriberID's subscriptions, or every
// subscription when subscriberID is empty.
func (n *Node) ListSubscriptions(ctx context.Context, subscriberID string) ([]routingtablepkg.Subscription, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return nil, hub.ErrNodeClosed
	}
	return n.listSubscriptions(ctx, subscriberID)
}

func (n *Node) listSubscriptions(ctx context.Context, subscriberID string) ([]routingtablepkg.Subscription, error) {
	all, err := n.routingTable.GetAllSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	if subscriberID == "" {
		return all, nil
	}

	var filtered []routingtablepkg.Subscription
	for _, sub := range all {
		if sub.Subscriber.ID() == subscriberID {
			filtered = append(filtered, sub)
		}
	}
	return filtered, nil
}

// GetNodeID returns the configured node ID.
func (n *Node) GetNodeID() string {
	return n.config.NodeID
}

// GetRoutingTable returns the node's routing table.
func (n *Node) GetRoutingTable() routingtablepkg.RoutingTable {
	return n.routingTable
}

// GetHealth reports whether the node is started and its components respond.
func (n *Node) GetHealth(ctx context.Context) (hub.HealthStatus, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	status := hub.HealthStatus{
		ConnectedEndpoints: n.endpointCount(),
	}

	count, err := n.routingTable.GetSubscriberCount(ctx)
	status.RoutingTableHealthy = err == nil
	status.Subscriptions = count
	status.DispatcherHealthy = !n.closed
	status.Healthy = n.started && status.RoutingTableHealthy && status.DispatcherHealthy

	switch {
	case n.closed:
		status.Message = "node is closed"
	case !n.started:
		status.Message = "node is not started"
	case err != nil:
		status.Message = fmt.Sprintf("routing table: %v", err)
	default:
		status.Message = "ok"
	}
	return status, nil
}

// GetStats returns routing and delivery counters.
func (n *Node) GetStats(ctx context.Context) (hub.Stats, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		return hub.Stats{}, hub.ErrNodeClosed
	}

	subscriptions, err := n.routingTable.GetSubscriberCount(ctx)
	if err != nil {
		return hub.Stats{}, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	patterns, err := n.routingTable.GetTopicCount(ctx)
	if err != nil {
		return hub.Stats{}, fmt.Errorf("failed to count patterns: %w", err)
	}
	nodes, err := n.routingTable.GetNodeCount(ctx)
	if err != nil {
		return hub.Stats{}, fmt.Errorf("failed to count route nodes: %w", err)
	}

	return hub.Stats{
		NodeID:             n.config.NodeID,
		Subscriptions:      subscriptions,
		Patterns:           patterns,
		RouteNodes:         nodes,
		ConnectedEndpoints: n.endpointCount(),
		ActiveMailboxes:    n.dispatcher.ActiveMailboxes(),
		Published:          n.published.Load(),
		Delivered:          n.dispatcher.Delivered(),
		DeliveryFailures:   n.dispatcher.Failed(),
		Dropped:            n.dispatcher.Dropped(),
		StartedAt:          n.startedAt,
	}, nil
}

// deliver is the dispatcher's sink: the connected endpoint if any,
// otherwise the fallback sink.
func (n *Node) deliver(ctx context.Context, subscriberID string, msg *delivery.Message) error {
	n.endpointsMu.RLock()
	ep := n.endpoints[subscriberID]
	n.endpointsMu.RUnlock()

	if ep != nil {
		return ep.deliver(ctx, msg)
	}
	if n.fallback != nil {
		return n.fallback.Deliver(ctx, subscriberID, msg)
	}
	return delivery.ErrNoEndpoint
}

func (n *Node) endpointCount() int {
	n.endpointsMu.RLock()
	defer n.endpointsMu.RUnlock()
	return len(n.endpoints)
}

// checkStarted must be called with mu held.
func (n *Node) checkStarted() error {
	if n.closed {
		return hub.ErrNodeClosed
	}
	if !n.started {
		return hub.ErrNodeNotStarted
	}
	return nil
}

func (n *Node) runStats(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(n.config.StatsInterval)
	defer ticker.Stop()

	n.refreshGauges(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshGauges(ctx)
		}
	}
}

func (n *Node) refreshGauges(ctx context.Context) {
	count, err := n.routingTable.GetSubscriberCount(ctx)
	if err != nil {
		return
	}
	n.metrics.SetSubscriptions(count)
}

// haltStats must be called with mu held for writing.
func (n *Node) haltStats() {
	if n.stopStats == nil {
		return
	}
	n.stopStats()
	<-n.statsDone
	n.stopStats = nil
}

// Verify that Node implements the Hub interface at compile time
var _ hub.Hub = (*Node)(nil)
