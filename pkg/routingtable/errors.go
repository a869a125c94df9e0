package routingtable

import "errors"

var (
	// ErrInvalidTopic is returned for an empty token, a leading, trailing or
	// doubled separator, a non-ASCII token, or a wildcard in a published topic.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidPattern is returned when ">" is not the final token of a
	// subscription pattern, or a wildcard is embedded in a longer token.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrRouteNotFound is returned by lookup-only traversals that reach a
	// level with no child for the required segment.
	ErrRouteNotFound = errors.New("route not found")

	// ErrNilSubscriber is returned when subscribing a nil subscriber.
	ErrNilSubscriber = errors.New("subscriber cannot be nil")

	// ErrClosed is returned by operations on a closed routing table.
	ErrClosed = errors.New("routing table is closed")
)
