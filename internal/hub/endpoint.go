package hub

import (
	"context"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// ChannelEndpoint delivers a subscriber's messages over a buffered channel.
// The channel is never closed; readers watch Done instead.
type ChannelEndpoint struct {
	id          string
	ch          chan *delivery.Message
	done        chan struct{}
	once        sync.Once
	connectedAt time.Time
}

func newChannelEndpoint(id string, buffer int) *ChannelEndpoint {
	return &ChannelEndpoint{
		id:          id,
		ch:          make(chan *delivery.Message, buffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// ID returns the subscriber ID
func (e *ChannelEndpoint) ID() string {
	return e.id
}

// Type returns LocalClient
func (e *ChannelEndpoint) Type() routingtable.SubscriberType {
	return routingtable.LocalClient
}

// Messages returns the receive side of the endpoint
func (e *ChannelEndpoint) Messages() <-chan *delivery.Message {
	return e.ch
}

// Done is closed once the endpoint is disconnected
func (e *ChannelEndpoint) Done() <-chan struct{} {
	return e.done
}

// ConnectedAt returns when the endpoint was registered
func (e *ChannelEndpoint) ConnectedAt() time.Time {
	return e.connectedAt
}

// deliver blocks until the reader takes msg, the endpoint closes, or ctx ends.
func (e *ChannelEndpoint) deliver(ctx context.Context, msg *delivery.Message) error {
	select {
	case <-e.done:
		return delivery.ErrNoEndpoint
	default:
	}

	select {
	case e.ch <- msg:
		return nil
	case <-e.done:
		return delivery.ErrNoEndpoint
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *ChannelEndpoint) close() {
	e.once.Do(func() { close(e.done) })
}
