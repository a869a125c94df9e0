package delivery

import (
	"context"
	"errors"
)

// ErrNoEndpoint is returned by sinks that have nowhere to send a message
// for the given subscriber.
var ErrNoEndpoint = errors.New("no endpoint for subscriber")

// Sink is the outbound delivery contract. Deliver is called once per matched
// subscriber per publish, from that subscriber's own goroutine, so calls for
// one subscriber never overlap.
type Sink interface {
	Deliver(ctx context.Context, subscriberID string, msg *Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, subscriberID string, msg *Message) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, subscriberID string, msg *Message) error {
	return f(ctx, subscriberID, msg)
}

// Discard is a Sink that accepts and drops every message.
var Discard Sink = SinkFunc(func(context.Context, string, *Message) error { return nil })
