package routingtable

// LocalSubscriber represents an endpoint attached to this process
type LocalSubscriber struct {
	id string
}

// NewLocalSubscriber creates a new local subscriber with the given ID
func NewLocalSubscriber(id string) *LocalSubscriber {
	return &LocalSubscriber{id: id}
}

// ID returns the unique identifier for this subscriber
func (s *LocalSubscriber) ID() string {
	return s.id
}

// Type returns LocalClient
func (s *LocalSubscriber) Type() SubscriberType {
	return LocalClient
}

// FeedSubscriber represents an endpoint attached through the command feed
type FeedSubscriber struct {
	id string
}

// NewFeedSubscriber creates a new feed subscriber with the given ID
func NewFeedSubscriber(id string) *FeedSubscriber {
	return &FeedSubscriber{id: id}
}

// ID returns the unique identifier for this subscriber
func (s *FeedSubscriber) ID() string {
	return s.id
}

// Type returns FeedClient
func (s *FeedSubscriber) Type() SubscriberType {
	return FeedClient
}

// IDs returns the identifiers of subscribers in order.
func IDs(subscribers []Subscriber) []string {
	ids := make([]string, 0, len(subscribers))
	for _, s := range subscribers {
		ids = append(ids, s.ID())
	}
	return ids
}
