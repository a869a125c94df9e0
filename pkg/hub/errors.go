package hub

import "errors"

var (
	// ErrNodeNotStarted is returned by commands issued before Start or after Stop
	ErrNodeNotStarted = errors.New("node is not started")

	// ErrNodeClosed is returned by every operation after Close
	ErrNodeClosed = errors.New("node is closed")

	// ErrEmptySubscriberID is returned when a command names no subscriber
	ErrEmptySubscriberID = errors.New("subscriber ID cannot be empty")
)
