// Package metrics defines the hub's metrics contract and its no-op and
// Prometheus implementations.
package metrics

// Collector records routing and delivery metrics.
type Collector interface {
	// RecordPublish counts a publish attempt. result is "accepted" or "rejected".
	RecordPublish(result string)

	// ObserveMatch records how long resolving a topic took and how many
	// subscribers it produced.
	ObserveMatch(seconds float64, subscribers int)

	// IncrementDelivered counts a message handed to a sink without error.
	IncrementDelivered()

	// IncrementDeliveryFailure counts a sink error.
	IncrementDeliveryFailure()

	// IncrementDropped counts a message dropped on a full mailbox.
	IncrementDropped()

	// AddActiveMailboxes adjusts the live mailbox gauge by delta.
	AddActiveMailboxes(delta int)

	// SetSubscriptions sets the current subscription count.
	SetSubscriptions(count int)
}

// Publish results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)
