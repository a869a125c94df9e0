package routingtable

import (
	"sync"

	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// routeNode is one level of the topic trie. children and subscribers are
// guarded by separate locks so a publish reading one node's subscriber set
// never waits on a subscribe creating a sibling branch.
type routeNode struct {
	segment routingtable.Segment
	pattern string // full pattern from the root, "" for the root

	childMu sync.RWMutex
	exact   map[string]*routeNode
	order   []*routeNode // exact children in creation order
	single  *routeNode
	multi   *routeNode

	subMu sync.RWMutex
	subs  map[string]routingtable.Subscriber
	ids   []string // subscriber IDs in insertion order
}

func newRouteNode(segment routingtable.Segment, parent string) *routeNode {
	pattern := segment.Token
	if parent != "" {
		pattern = parent + routingtable.Separator + segment.Token
	}
	return &routeNode{
		segment: segment,
		pattern: pattern,
	}
}

func newRoot() *routeNode {
	return &routeNode{}
}

// child returns the child for seg, or nil.
func (n *routeNode) child(seg routingtable.Segment) *routeNode {
	n.childMu.RLock()
	defer n.childMu.RUnlock()
	return n.childLocked(seg)
}

func (n *routeNode) childLocked(seg routingtable.Segment) *routeNode {
	switch seg.Kind {
	case routingtable.Single:
		return n.single
	case routingtable.Multi:
		return n.multi
	default:
		return n.exact[seg.Token]
	}
}

// findOrCreate returns the child for seg, creating it if absent. The
// re-check and insert happen under one write lock, so concurrent creators
// of the same segment always end up sharing a single node.
func (n *routeNode) findOrCreate(seg routingtable.Segment) (*routeNode, bool) {
	if c := n.child(seg); c != nil {
		return c, false
	}

	n.childMu.Lock()
	defer n.childMu.Unlock()
	if c := n.childLocked(seg); c != nil {
		return c, false
	}

	c := newRouteNode(seg, n.pattern)
	switch seg.Kind {
	case routingtable.Single:
		n.single = c
	case routingtable.Multi:
		n.multi = c
	default:
		if n.exact == nil {
			n.exact = make(map[string]*routeNode)
		}
		n.exact[seg.Token] = c
		n.order = append(n.order, c)
	}
	return c, true
}

// matching appends the children that accept the published token, in the
// order exact, "*", ">".
func (n *routeNode) matching(token string, dst []*routeNode) []*routeNode {
	n.childMu.RLock()
	defer n.childMu.RUnlock()
	if c := n.exact[token]; c != nil {
		dst = append(dst, c)
	}
	if n.single != nil {
		dst = append(dst, n.single)
	}
	if n.multi != nil {
		dst = append(dst, n.multi)
	}
	return dst
}

// children appends every child in the order exact (creation order), "*", ">".
func (n *routeNode) children(dst []*routeNode) []*routeNode {
	n.childMu.RLock()
	defer n.childMu.RUnlock()
	dst = append(dst, n.order...)
	if n.single != nil {
		dst = append(dst, n.single)
	}
	if n.multi != nil {
		dst = append(dst, n.multi)
	}
	return dst
}

// addSubscriber inserts s, returning false if its ID was already present.
func (n *routeNode) addSubscriber(s routingtable.Subscriber) bool {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subs == nil {
		n.subs = make(map[string]routingtable.Subscriber)
	}
	if _, ok := n.subs[s.ID()]; ok {
		return false
	}
	n.subs[s.ID()] = s
	n.ids = append(n.ids, s.ID())
	return true
}

// removeSubscriber deletes id, returning false if it was not present.
func (n *routeNode) removeSubscriber(id string) bool {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if _, ok := n.subs[id]; !ok {
		return false
	}
	delete(n.subs, id)
	for i, existing := range n.ids {
		if existing == id {
			n.ids = append(n.ids[:i], n.ids[i+1:]...)
			break
		}
	}
	return true
}

// subscribers appends the node's subscribers in insertion order.
func (n *routeNode) subscribers(dst []routingtable.Subscriber) []routingtable.Subscriber {
	n.subMu.RLock()
	defer n.subMu.RUnlock()
	for _, id := range n.ids {
		dst = append(dst, n.subs[id])
	}
	return dst
}

func (n *routeNode) subscriberCount() int {
	n.subMu.RLock()
	defer n.subMu.RUnlock()
	return len(n.ids)
}

// walk visits n and every descendant depth-first. Locks are held only while
// copying each node's child list.
func (n *routeNode) walk(visit func(*routeNode)) {
	visit(n)
	for _, c := range n.children(nil) {
		c.walk(visit)
	}
}
