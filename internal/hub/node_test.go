package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/topichub-go/internal/dispatch"
	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

func newStartedNode(t *testing.T, opts ...Option) *Node {
	t.Helper()
	node, err := NewNode(NewConfig("test-node", "localhost:8080"), opts...)
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	t.Cleanup(func() { _ = node.Close() })
	return node
}

// recordingSink collects fallback deliveries per subscriber.
type recordingSink struct {
	mu       sync.Mutex
	messages map[string][]*delivery.Message
}

func newRecordingSink() *recordingSink {
	return &recordingSink{messages: make(map[string][]*delivery.Message)}
}

func (s *recordingSink) Deliver(_ context.Context, id string, msg *delivery.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[id] = append(s.messages[id], msg)
	return nil
}

func (s *recordingSink) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[id])
}

func (s *recordingSink) sequences(id string) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seqs := make([]uint64, 0, len(s.messages[id]))
	for _, m := range s.messages[id] {
		seqs = append(seqs, m.Sequence)
	}
	return seqs
}

func TestNewNode_InvalidConfig(t *testing.T) {
	_, err := NewNode(nil)
	require.Error(t, err)

	_, err = NewNode(&Config{ListenAddress: "localhost:8080"})
	require.ErrorIs(t, err, ErrEmptyNodeID)
}

func TestNode_StartStopClose(t *testing.T) {
	node, err := NewNode(NewConfig("test-node", "localhost:8080"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = node.Publish(ctx, "orders.created", nil)
	require.ErrorIs(t, err, hub.ErrNodeNotStarted)

	require.NoError(t, node.Start(ctx))
	require.NoError(t, node.Start(ctx), "Start is idempotent")

	_, err = node.Publish(ctx, "orders.created", nil)
	require.NoError(t, err)

	require.NoError(t, node.Stop(ctx))
	require.NoError(t, node.Stop(ctx), "Stop is idempotent")
	err = node.Subscribe(ctx, routingtable.NewLocalSubscriber("c1"), "orders.>")
	require.ErrorIs(t, err, hub.ErrNodeNotStarted)

	require.NoError(t, node.Start(ctx), "a stopped node can be restarted")
	require.NoError(t, node.Close())
	require.NoError(t, node.Close(), "Close is idempotent")

	require.ErrorIs(t, node.Start(ctx), hub.ErrNodeClosed)
	_, err = node.Publish(ctx, "orders.created", nil)
	require.ErrorIs(t, err, hub.ErrNodeClosed)
	_, err = node.MatchSubscribers(ctx, "orders.created")
	require.ErrorIs(t, err, hub.ErrNodeClosed)
	_, err = node.GetStats(ctx)
	require.ErrorIs(t, err, hub.ErrNodeClosed)
}

func TestNode_MatchSubscribers_DeviceScenario(t *testing.T) {
	node := newStartedNode(t)
	ctx := context.Background()

	s1 := routingtable.NewLocalSubscriber("S1")
	s2 := routingtable.NewLocalSubscriber("S2")
	s3 := routingtable.NewLocalSubscriber("S3")
	require.NoError(t, node.Subscribe(ctx, s1, "floor2.device21.sensor1"))
	require.NoError(t, node.Subscribe(ctx, s2, "floor2.device21.sensor2"))

	ids, err := node.MatchSubscribers(ctx, "floor2.device21.*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"S1", "S2"}, ids)

	require.NoError(t, node.Unsubscribe(ctx, "S1", "floor2.device21.sensor1"))
	ids, err = node.MatchSubscribers(ctx, "floor2.device21.*")
	require.NoError(t, err)
	assert.Equal(t, []string{"S2"}, ids)

	require.NoError(t, node.Subscribe(ctx, s3, "floor2.>"))
	ids, err = node.MatchSubscribers(ctx, "floor2.device21.sensor1")
	require.NoError(t, err)
	assert.Contains(t, ids, "S3")
}

func TestNode_Publish_RejectsWildcardTopic(t *testing.T) {
	node := newStartedNode(t)

	for _, topic := range []string{"floor1.device11.*", "floor1.>", "", "floor1..device11"} {
		_, err := node.Publish(context.Background(), topic, []byte("x"))
		require.ErrorIs(t, err, routingtable.ErrInvalidTopic, "topic %q", topic)
	}

	stats, err := node.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Published)
}

func TestNode_Publish_DeliversInSequenceOrder(t *testing.T) {
	sink := newRecordingSink()
	node := newStartedNode(t, WithSink(sink))
	ctx := context.Background()

	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("exact"), "orders.created"))
	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("all"), "orders.>"))

	const total = 50
	var last uint64
	for i := 0; i < total; i++ {
		res, err := node.Publish(ctx, "orders.created", []byte(fmt.Sprintf("%d", i)))
		require.NoError(t, err)
		assert.Equal(t, 2, res.Matched)
		assert.Equal(t, 2, res.Enqueued)
		assert.Greater(t, res.Sequence, last)
		last = res.Sequence
	}

	require.Eventually(t, func() bool {
		return sink.count("exact") == total && sink.count("all") == total
	}, 2*time.Second, 5*time.Millisecond)

	for _, id := range []string{"exact", "all"} {
		seqs := sink.sequences(id)
		for i := 1; i < len(seqs); i++ {
			require.Less(t, seqs[i-1], seqs[i], "subscriber %s out of order at %d", id, i)
		}
	}
}

func TestNode_Publish_ConcurrentPublishersKeepOrder(t *testing.T) {
	sink := newRecordingSink()
	node := newStartedNode(t, WithSink(sink))
	ctx := context.Background()

	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("watcher"), "sensors.*.temp"))

	const publishers, each = 4, 25
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_, err := node.Publish(ctx, fmt.Sprintf("sensors.device%d.temp", p), nil)
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return sink.count("watcher") == publishers*each
	}, 2*time.Second, 5*time.Millisecond)

	seqs := sink.sequences("watcher")
	for i := 1; i < len(seqs); i++ {
		require.Less(t, seqs[i-1], seqs[i])
	}
}

func TestNode_Publish_NoMatch(t *testing.T) {
	node := newStartedNode(t)

	res, err := node.Publish(context.Background(), "nobody.listens", []byte("x"))
	require.NoError(t, err)
	assert.Zero(t, res.Matched)
	assert.Equal(t, uint64(1), res.Sequence)
	assert.False(t, res.Timestamp.IsZero())
}

func TestNode_ConnectReceivesMessages(t *testing.T) {
	node := newStartedNode(t)
	ctx := context.Background()

	ep, err := node.Connect(ctx, "client-1", 8)
	require.NoError(t, err)
	assert.Equal(t, "client-1", ep.ID())
	assert.Equal(t, routingtable.LocalClient, ep.Type())
	assert.False(t, ep.ConnectedAt().IsZero())

	require.NoError(t, node.Subscribe(ctx, ep, "floor1.>"))
	_, err = node.Publish(ctx, "floor1.device11.sensor1", []byte("21.5"))
	require.NoError(t, err)

	select {
	case msg := <-ep.Messages():
		assert.Equal(t, "floor1.device11.sensor1", msg.Topic)
		assert.Equal(t, []byte("21.5"), msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered to endpoint")
	}
}

func TestNode_ConnectReplacesEndpoint(t *testing.T) {
	node := newStartedNode(t)
	ctx := context.Background()

	first, err := node.Connect(ctx, "client-1", 0)
	require.NoError(t, err)
	second, err := node.Connect(ctx, "client-1", 0)
	require.NoError(t, err)

	select {
	case <-first.Done():
	default:
		t.Fatal("replaced endpoint should be closed")
	}
	select {
	case <-second.Done():
		t.Fatal("new endpoint should be open")
	default:
	}

	_, err = node.Connect(ctx, "", 0)
	require.ErrorIs(t, err, hub.ErrEmptySubscriberID)
}

func TestNode_DisconnectRemovesSubscriptions(t *testing.T) {
	node := newStartedNode(t)
	ctx := context.Background()

	ep, err := node.Connect(ctx, "client-1", 0)
	require.NoError(t, err)
	require.NoError(t, node.Subscribe(ctx, ep, "orders.>"))
	require.NoError(t, node.Subscribe(ctx, ep, "floor1.*.sensor1"))
	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("client-2"), "orders.>"))

	require.NoError(t, node.Disconnect(ctx, "client-1"))

	select {
	case <-ep.Done():
	default:
		t.Fatal("endpoint should be closed after Disconnect")
	}

	subs, err := node.ListSubscriptions(ctx, "client-1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	ids, err := node.MatchSubscribers(ctx, "orders.created")
	require.NoError(t, err)
	assert.Equal(t, []string{"client-2"}, ids)

	require.NoError(t, node.Disconnect(ctx, "unknown"), "Disconnect of an unknown ID is a no-op")
}

func TestNode_DeliveryWithoutEndpointFails(t *testing.T) {
	node := newStartedNode(t)
	ctx := context.Background()

	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("ghost"), "orders.created"))
	_, err := node.Publish(ctx, "orders.created", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stats, err := node.GetStats(ctx)
		return err == nil && stats.DeliveryFailures == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNode_Apply(t *testing.T) {
	sink := newRecordingSink()
	node := newStartedNode(t, WithSink(sink))
	ctx := context.Background()

	_, err := node.Apply(ctx, hub.Command{
		Kind:         hub.CommandSubscribe,
		Topic:        "floor1.*.sensor1",
		SubscriberID: "feed-1",
		Origin:       routingtable.FeedClient,
	})
	require.NoError(t, err)

	subs, err := node.ListSubscriptions(ctx, "feed-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, routingtable.FeedClient, subs[0].Subscriber.Type())

	res, err := node.Apply(ctx, hub.Command{Kind: hub.CommandPublish, Topic: "floor1.device11.sensor1", Payload: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matched)
	require.Eventually(t, func() bool { return sink.count("feed-1") == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err = node.Apply(ctx, hub.Command{Kind: hub.CommandUnsubscribe, Topic: "floor1.*.sensor1", SubscriberID: "feed-1"})
	require.NoError(t, err)
	subs, err = node.ListSubscriptions(ctx, "feed-1")
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, err = node.Apply(ctx, hub.Command{Kind: hub.CommandSubscribe, Topic: "a.b"})
	require.ErrorIs(t, err, hub.ErrEmptySubscriberID)

	_, err = node.Apply(ctx, hub.Command{Kind: hub.CommandKind(42)})
	require.Error(t, err)
}

func TestNode_UnsubscribeUnknownRoute(t *testing.T) {
	node := newStartedNode(t)

	err := node.Unsubscribe(context.Background(), "client-1", "never.subscribed")
	require.ErrorIs(t, err, routingtable.ErrRouteNotFound)
}

func TestNode_DeclaredTopics(t *testing.T) {
	cfg := NewConfig("test-node", "localhost:8080").WithDeclaredTopics("floor1.device11.sensor1", "floor2.device21")
	node, err := NewNode(cfg)
	require.NoError(t, err)
	defer node.Close()
	ctx := context.Background()
	require.NoError(t, node.Start(ctx))

	stats, err := node.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.RouteNodes)
	assert.Zero(t, stats.Patterns)

	require.NoError(t, node.DeclareTopic(ctx, "floor3"))
	require.ErrorIs(t, node.DeclareTopic(ctx, "floor3.*"), routingtable.ErrInvalidTopic)
}

func TestNode_DeclaredTopicsInvalid(t *testing.T) {
	cfg := NewConfig("test-node", "localhost:8080").WithDeclaredTopics("floor1.>")
	node, err := NewNode(cfg)
	require.NoError(t, err)
	defer node.Close()

	err = node.Start(context.Background())
	require.ErrorIs(t, err, routingtable.ErrInvalidTopic)
}

func TestNode_HealthAndStats(t *testing.T) {
	node, err := NewNode(NewConfig("test-node", "localhost:8080"))
	require.NoError(t, err)
	ctx := context.Background()

	health, err := node.GetHealth(ctx)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, "node is not started", health.Message)

	require.NoError(t, node.Start(ctx))
	_, err = node.Connect(ctx, "client-1", 0)
	require.NoError(t, err)
	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("client-1"), "a.>"))
	require.NoError(t, node.Subscribe(ctx, routingtable.NewLocalSubscriber("client-2"), "a.>"))
	_, err = node.Publish(ctx, "a.b", nil)
	require.NoError(t, err)

	health, err = node.GetHealth(ctx)
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.True(t, health.RoutingTableHealthy)
	assert.True(t, health.DispatcherHealthy)
	assert.Equal(t, 1, health.ConnectedEndpoints)
	assert.Equal(t, 2, health.Subscriptions)

	stats, err := node.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test-node", stats.NodeID)
	assert.Equal(t, 2, stats.Subscriptions)
	assert.Equal(t, 1, stats.Patterns)
	assert.Equal(t, 2, stats.RouteNodes)
	assert.Equal(t, 1, stats.ConnectedEndpoints)
	assert.Equal(t, uint64(1), stats.Published)
	assert.False(t, stats.StartedAt.IsZero())

	require.NoError(t, node.Close())
	health, err = node.GetHealth(ctx)
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.False(t, health.DispatcherHealthy)
}

func TestNode_CloseUnblocksSlowEndpoint(t *testing.T) {
	cfg := NewConfig("test-node", "localhost:8080").WithDispatchConfig(dispatch.Config{DeliveryTimeout: time.Minute})
	node, err := NewNode(cfg)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, node.Start(ctx))

	// An unread endpoint with a one-slot buffer blocks the pump on the second message
	ep, err := node.Connect(ctx, "slow", 1)
	require.NoError(t, err)
	require.NoError(t, node.Subscribe(ctx, ep, "a.b"))
	for i := 0; i < 3; i++ {
		_, err := node.Publish(ctx, "a.b", nil)
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- node.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on a slow endpoint")
	}
}

func TestNode_ContextCancelled(t *testing.T) {
	node := newStartedNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := node.Subscribe(ctx, routingtable.NewLocalSubscriber("c1"), "a.b")
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}
