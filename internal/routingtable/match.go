package routingtable

import "github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"

// match walks the trie one query token at a time, carrying the set of nodes
// reached so far. A ">" node collects its subscribers as soon as it is
// reached and is never expanded further; every other node collects only when
// the last token has been consumed.
func match(root *routeNode, query routingtable.Pattern) []routingtable.Subscriber {
	var c collector
	frontier := []*routeNode{root}
	var next, candidates []*routeNode

	for depth, seg := range query {
		last := depth == len(query)-1
		next = next[:0]

		for _, n := range frontier {
			candidates = candidates[:0]
			if seg.Kind == routingtable.Single {
				candidates = n.children(candidates)
			} else {
				candidates = n.matching(seg.Token, candidates)
			}

			for _, child := range candidates {
				switch {
				case child.segment.Kind == routingtable.Multi, last:
					c.collect(child)
				default:
					next = append(next, child)
				}
			}
		}

		if len(next) == 0 {
			break
		}
		frontier, next = next, frontier
	}
	return c.result
}

// collector accumulates subscribers, keeping the first occurrence of each ID.
type collector struct {
	seen   map[string]struct{}
	buf    []routingtable.Subscriber
	result []routingtable.Subscriber
}

func (c *collector) collect(n *routeNode) {
	c.buf = n.subscribers(c.buf[:0])
	for _, s := range c.buf {
		if c.seen == nil {
			c.seen = make(map[string]struct{})
		}
		if _, ok := c.seen[s.ID()]; ok {
			continue
		}
		c.seen[s.ID()] = struct{}{}
		c.result = append(c.result, s)
	}
}
