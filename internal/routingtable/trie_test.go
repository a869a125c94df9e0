package routingtable

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

func subscriberIDs(t *testing.T, rt *InMemoryRoutingTable, topic string) []string {
	t.Helper()
	subscribers, err := rt.GetSubscribers(context.Background(), topic)
	require.NoError(t, err)
	return routingtable.IDs(subscribers)
}

func TestInMemoryRoutingTable_DeviceQueryScenario(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor2.device21.sensor1", routingtable.NewLocalSubscriber("S1")))
	require.NoError(t, rt.Subscribe(ctx, "floor2.device21.sensor2", routingtable.NewLocalSubscriber("S2")))

	assert.Equal(t, []string{"S1", "S2"}, subscriberIDs(t, rt, "floor2.device21.*"))

	require.NoError(t, rt.Unsubscribe(ctx, "floor2.device21.sensor1", "S1"))
	assert.Equal(t, []string{"S2"}, subscriberIDs(t, rt, "floor2.device21.*"))
}

func TestInMemoryRoutingTable_MultiWildcard(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor2.>", routingtable.NewLocalSubscriber("S3")))

	tests := []struct {
		topic string
		want  []string
	}{
		{topic: "floor2.device21.sensor1", want: []string{"S3"}},
		{topic: "floor2.device21", want: []string{"S3"}},
		{topic: "floor2.a.b.c.d.e", want: []string{"S3"}},
		{topic: "floor2", want: []string{}},
		{topic: "floor1.device11.sensor1", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, subscriberIDs(t, rt, tt.topic))
		})
	}
}

func TestInMemoryRoutingTable_LoneMultiWildcardMatchesEverything(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()

	require.NoError(t, rt.Subscribe(context.Background(), ">", routingtable.NewLocalSubscriber("all")))

	for _, topic := range []string{"a", "a.b", "floor1.device11.sensor1"} {
		assert.Equal(t, []string{"all"}, subscriberIDs(t, rt, topic), "topic %q", topic)
	}
}

func TestInMemoryRoutingTable_SingleWildcardAtEveryDepth(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "*.device11.sensor1", routingtable.NewLocalSubscriber("first")))
	require.NoError(t, rt.Subscribe(ctx, "floor1.*.sensor1", routingtable.NewLocalSubscriber("middle")))
	require.NoError(t, rt.Subscribe(ctx, "floor1.device11.*", routingtable.NewLocalSubscriber("last")))

	assert.ElementsMatch(t, []string{"first", "middle", "last"}, subscriberIDs(t, rt, "floor1.device11.sensor1"))
	assert.Equal(t, []string{"first"}, subscriberIDs(t, rt, "floor9.device11.sensor1"))
	assert.Equal(t, []string{"middle"}, subscriberIDs(t, rt, "floor1.device99.sensor1"))
	assert.Equal(t, []string{"last"}, subscriberIDs(t, rt, "floor1.device11.sensor9"))
	assert.Empty(t, subscriberIDs(t, rt, "floor1.device11"))
}

func TestInMemoryRoutingTable_MatchOrder(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "a.b", routingtable.NewLocalSubscriber("exact-1")))
	require.NoError(t, rt.Subscribe(ctx, "a.>", routingtable.NewLocalSubscriber("multi")))
	require.NoError(t, rt.Subscribe(ctx, "a.*", routingtable.NewLocalSubscriber("single")))
	require.NoError(t, rt.Subscribe(ctx, "a.b", routingtable.NewLocalSubscriber("exact-2")))

	// Exact node first, then "*", then ">"; insertion order within a node.
	assert.Equal(t, []string{"exact-1", "exact-2", "single", "multi"}, subscriberIDs(t, rt, "a.b"))
}

func TestInMemoryRoutingTable_DuplicateMatchesAreCollapsed(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	s := routingtable.NewLocalSubscriber("S1")
	require.NoError(t, rt.Subscribe(ctx, "floor1.device11.sensor1", s))
	require.NoError(t, rt.Subscribe(ctx, "floor1.*.sensor1", s))
	require.NoError(t, rt.Subscribe(ctx, "floor1.>", s))

	assert.Equal(t, []string{"S1"}, subscriberIDs(t, rt, "floor1.device11.sensor1"))
}

func TestInMemoryRoutingTable_QueryWildcardSpansPatternWildcards(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor2.device21.sensor1", routingtable.NewLocalSubscriber("exact")))
	require.NoError(t, rt.Subscribe(ctx, "floor2.*.sensor1", routingtable.NewLocalSubscriber("single")))
	require.NoError(t, rt.Subscribe(ctx, "floor2.>", routingtable.NewLocalSubscriber("multi")))

	assert.ElementsMatch(t, []string{"exact", "single", "multi"}, subscriberIDs(t, rt, "floor2.*.sensor1"))
}

func TestInMemoryRoutingTable_InvalidInput(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()
	s := routingtable.NewLocalSubscriber("S1")

	assert.ErrorIs(t, rt.Subscribe(ctx, "floor1..sensor1", s), routingtable.ErrInvalidTopic)
	assert.ErrorIs(t, rt.Subscribe(ctx, "floor1.>.sensor1", s), routingtable.ErrInvalidPattern)
	assert.ErrorIs(t, rt.Unsubscribe(ctx, ".floor1", "S1"), routingtable.ErrInvalidTopic)
	assert.ErrorIs(t, rt.DeclareTopic(ctx, "floor1.*"), routingtable.ErrInvalidTopic)

	_, err := rt.GetSubscribers(ctx, "floor1.>")
	assert.ErrorIs(t, err, routingtable.ErrInvalidTopic)
	_, err = rt.GetSubscribers(ctx, "")
	assert.ErrorIs(t, err, routingtable.ErrInvalidTopic)

	nodes, err := rt.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, nodes, "rejected input must not create nodes")
}

func TestInMemoryRoutingTable_UnsubscribeRouteNotFound(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor1.device11", routingtable.NewLocalSubscriber("S1")))

	err := rt.Unsubscribe(ctx, "floor1.device12", "S1")
	assert.ErrorIs(t, err, routingtable.ErrRouteNotFound)

	// Unsubscribing from an interior node does not need a subscriber there.
	assert.NoError(t, rt.Unsubscribe(ctx, "floor1", "S1"))
	// Nor does unsubscribing an ID that was never registered.
	assert.NoError(t, rt.Unsubscribe(ctx, "floor1.device11", "nobody"))

	assert.Equal(t, []string{"S1"}, subscriberIDs(t, rt, "floor1.device11"))
}

func TestInMemoryRoutingTable_NodesAreNotPruned(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor1.device11.sensor1", routingtable.NewLocalSubscriber("S1")))
	require.NoError(t, rt.Unsubscribe(ctx, "floor1.device11.sensor1", "S1"))

	nodes, err := rt.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, nodes)

	topics, err := rt.GetTopicCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, topics)

	// The emptied path still resolves for later unsubscribes.
	assert.NoError(t, rt.Unsubscribe(ctx, "floor1.device11.sensor1", "S1"))
}

func TestInMemoryRoutingTable_DeclareTopic(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.DeclareTopic(ctx, "floor1.device11.sensor1"))
	require.NoError(t, rt.DeclareTopic(ctx, "floor1.device11.sensor2"))

	nodes, err := rt.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, nodes)

	assert.Empty(t, subscriberIDs(t, rt, "floor1.device11.sensor1"))
	assert.NoError(t, rt.Unsubscribe(ctx, "floor1.device11.sensor2", "S1"))
}

func TestInMemoryRoutingTable_RebuildRejectsBadSnapshot(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor1.device11", routingtable.NewLocalSubscriber("S1")))

	err := rt.Rebuild(ctx, []routingtable.Subscription{
		{Pattern: "floor2.>", Subscriber: routingtable.NewLocalSubscriber("S2")},
		{Pattern: "floor2.>.x", Subscriber: routingtable.NewLocalSubscriber("S3")},
	})
	require.ErrorIs(t, err, routingtable.ErrInvalidPattern)

	err = rt.Rebuild(ctx, []routingtable.Subscription{{Pattern: "floor2"}})
	require.ErrorIs(t, err, routingtable.ErrNilSubscriber)

	assert.Equal(t, []string{"S1"}, subscriberIDs(t, rt, "floor1.device11"))
	assert.Empty(t, subscriberIDs(t, rt, "floor2.device21"))
}

func TestInMemoryRoutingTable_GetAllSubscriptionsPatterns(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor1.*.sensor1", routingtable.NewLocalSubscriber("S1")))
	require.NoError(t, rt.Subscribe(ctx, "floor2.>", routingtable.NewFeedSubscriber("S2")))

	subscriptions, err := rt.GetAllSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subscriptions, 2)
	assert.Equal(t, "floor1.*.sensor1", subscriptions[0].Pattern)
	assert.Equal(t, "S1", subscriptions[0].Subscriber.ID())
	assert.Equal(t, "floor2.>", subscriptions[1].Pattern)
	assert.Equal(t, routingtable.FeedClient, subscriptions[1].Subscriber.Type())
}

func TestInMemoryRoutingTable_ConcurrentCreateSharesNodes(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			s := routingtable.NewLocalSubscriber(fmt.Sprintf("S%d", id))
			assert.NoError(t, rt.Subscribe(ctx, "floor1.device11.sensor1", s))
		}(i)
	}
	close(start)
	wg.Wait()

	nodes, err := rt.GetNodeCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, nodes, "concurrent creators must not produce duplicate siblings")
	assert.Len(t, subscriberIDs(t, rt, "floor1.device11.sensor1"), workers)
}

func TestInMemoryRoutingTable_PublishDuringSubscribe(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	defer rt.Close()
	ctx := context.Background()

	require.NoError(t, rt.Subscribe(ctx, "floor1.>", routingtable.NewLocalSubscriber("watcher")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s := routingtable.NewLocalSubscriber(fmt.Sprintf("S%d", i))
			assert.NoError(t, rt.Subscribe(ctx, fmt.Sprintf("floor2.device%d.sensor1", i), s))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			subscribers, err := rt.GetSubscribers(ctx, "floor1.device11.sensor1")
			assert.NoError(t, err)
			assert.Equal(t, []string{"watcher"}, routingtable.IDs(subscribers))
		}
	}()
	wg.Wait()

	count, err := rt.GetSubscriberCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 501, count)
}

func TestInMemoryRoutingTable_ClosedTable(t *testing.T) {
	rt := NewInMemoryRoutingTable()
	require.NoError(t, rt.Close())
	require.NoError(t, rt.Close())
	ctx := context.Background()

	assert.ErrorIs(t, rt.Subscribe(ctx, "a", routingtable.NewLocalSubscriber("S1")), routingtable.ErrClosed)
	assert.ErrorIs(t, rt.Unsubscribe(ctx, "a", "S1"), routingtable.ErrClosed)
	assert.ErrorIs(t, rt.DeclareTopic(ctx, "a"), routingtable.ErrClosed)
	_, err := rt.GetSubscribers(ctx, "a")
	assert.ErrorIs(t, err, routingtable.ErrClosed)
	_, err = rt.GetAllSubscriptions(ctx)
	assert.ErrorIs(t, err, routingtable.ErrClosed)
	_, err = rt.GetNodeCount(ctx)
	assert.ErrorIs(t, err, routingtable.ErrClosed)
}
