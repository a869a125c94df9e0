// Package routingtable provides interfaces for topic-to-subscriber routing.
//
// This package defines the core abstractions for the topichub routing table:
//   - Subscriber: Interface for entities that can receive messages (endpoints)
//   - Subscription: A subscriber registered under a topic pattern
//   - Pattern/Segment: The parsed form of a dot-delimited topic or pattern
//   - RoutingTable: Interface for managing topic-to-subscriber mappings
//
// Topics are dot-delimited paths such as "floor1.device11.sensor1". Every
// token must be non-empty printable ASCII without whitespace.
//
// Wildcard Patterns:
//   - "*" matches exactly one topic segment at its position
//   - ">" matches one or more trailing segments and must be the last token
//   - "floor1.*.sensor1" matches "floor1.device11.sensor1"
//   - "floor2.>" matches "floor2.device21" and "floor2.device21.sensor1",
//     but not "floor2" itself
//
// Published topics never contain wildcards. Lookups made through
// GetSubscribers may use "*" in the query to mean "any node at this level",
// which is how declared topics are enumerated.
//
// Example usage:
//
//	subscriber := routingtable.NewLocalSubscriber("sensor1subscriber")
//	err := table.Subscribe(ctx, "floor2.device21.sensor1", subscriber)
//	if err != nil {
//		return err
//	}
//
//	subscribers, err := table.GetSubscribers(ctx, "floor2.device21.sensor1")
//	if err != nil {
//		return err
//	}
//	for _, sub := range subscribers {
//		deliver(sub.ID(), msg)
//	}
//
// An empty result from GetSubscribers is a normal outcome. Malformed input is
// reported with ErrInvalidTopic or ErrInvalidPattern, and removing a
// subscription from a path that was never created yields ErrRouteNotFound.
package routingtable
