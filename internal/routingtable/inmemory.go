package routingtable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// InMemoryRoutingTable implements routingtable.RoutingTable as a topic trie.
//
// Locking is per node: each node guards its children and its subscriber set
// with separate RWMutexes. mu is held in read mode by every operation and in
// write mode only by Rebuild, which swaps the whole trie.
type InMemoryRoutingTable struct {
	mu     sync.RWMutex
	root   *routeNode
	closed atomic.Bool
}

// NewInMemoryRoutingTable creates an empty routing table.
func NewInMemoryRoutingTable() *InMemoryRoutingTable {
	return &InMemoryRoutingTable{root: newRoot()}
}

// Subscribe adds subscriber under pattern, creating nodes on demand.
func (t *InMemoryRoutingTable) Subscribe(ctx context.Context, pattern string, subscriber routingtable.Subscriber) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if subscriber == nil {
		return routingtable.ErrNilSubscriber
	}
	p, err := routingtable.ParsePattern(pattern)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	insert(t.root, p).addSubscriber(subscriber)
	return nil
}

// Unsubscribe removes subscriberID from pattern without pruning nodes.
func (t *InMemoryRoutingTable) Unsubscribe(ctx context.Context, pattern string, subscriberID string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	p, err := routingtable.ParsePattern(pattern)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.root
	for _, seg := range p {
		if n = n.child(seg); n == nil {
			return fmt.Errorf("%w: %s", routingtable.ErrRouteNotFound, pattern)
		}
	}
	n.removeSubscriber(subscriberID)
	return nil
}

// DeclareTopic creates the nodes along topic without adding subscribers.
func (t *InMemoryRoutingTable) DeclareTopic(ctx context.Context, topic string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	p, err := routingtable.ParseTopic(topic)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	insert(t.root, p)
	return nil
}

// GetSubscribers resolves topic against every registered pattern. A "*" in
// topic selects every child at that level.
func (t *InMemoryRoutingTable) GetSubscribers(ctx context.Context, topic string) ([]routingtable.Subscriber, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	q, err := routingtable.ParseQuery(topic)
	if err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return match(t.root, q), nil
}

// GetAllSubscriptions returns every (pattern, subscriber) pair.
func (t *InMemoryRoutingTable) GetAllSubscriptions(ctx context.Context) ([]routingtable.Subscription, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	var subscriptions []routingtable.Subscription
	t.root.walk(func(n *routeNode) {
		for _, s := range n.subscribers(nil) {
			subscriptions = append(subscriptions, routingtable.Subscription{Pattern: n.pattern, Subscriber: s})
		}
	})
	return subscriptions, nil
}

// Rebuild replaces the table with subscriptions. The new trie is built
// before the swap so a bad entry leaves the current table untouched.
func (t *InMemoryRoutingTable) Rebuild(ctx context.Context, subscriptions []routingtable.Subscription) error {
	if err := t.check(ctx); err != nil {
		return err
	}

	root := newRoot()
	for _, sub := range subscriptions {
		if sub.Subscriber == nil {
			return fmt.Errorf("rebuild %s: %w", sub.Pattern, routingtable.ErrNilSubscriber)
		}
		p, err := routingtable.ParsePattern(sub.Pattern)
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		insert(root, p).addSubscriber(sub.Subscriber)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
	return nil
}

// GetTopicCount returns the number of patterns with at least one subscriber.
func (t *InMemoryRoutingTable) GetTopicCount(ctx context.Context) (int, error) {
	return t.count(ctx, func(n *routeNode) int {
		if n.subscriberCount() > 0 {
			return 1
		}
		return 0
	})
}

// GetSubscriberCount returns the total number of subscriptions.
func (t *InMemoryRoutingTable) GetSubscriberCount(ctx context.Context) (int, error) {
	return t.count(ctx, (*routeNode).subscriberCount)
}

// GetNodeCount returns the number of trie nodes below the root.
func (t *InMemoryRoutingTable) GetNodeCount(ctx context.Context) (int, error) {
	n, err := t.count(ctx, func(*routeNode) int { return 1 })
	return n - 1, err
}

// Close marks the table closed. It is safe to call more than once.
func (t *InMemoryRoutingTable) Close() error {
	t.closed.Store(true)
	return nil
}

func (t *InMemoryRoutingTable) count(ctx context.Context, f func(*routeNode) int) (int, error) {
	if err := t.check(ctx); err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	t.root.walk(func(n *routeNode) { total += f(n) })
	return total, nil
}

func (t *InMemoryRoutingTable) check(ctx context.Context) error {
	if t.closed.Load() {
		return routingtable.ErrClosed
	}
	return ctx.Err()
}

// insert walks p from root, creating missing nodes, and returns the last one.
func insert(root *routeNode, p routingtable.Pattern) *routeNode {
	n := root
	for _, seg := range p {
		n, _ = n.findOrCreate(seg)
	}
	return n
}

// Verify that InMemoryRoutingTable implements the RoutingTable interface at compile time
var _ routingtable.RoutingTable = (*InMemoryRoutingTable)(nil)
