// Package dispatch fans published messages out to subscribers through
// bounded per-subscriber mailboxes.
//
// Each subscriber with pending work owns one mailbox and one pump goroutine
// that calls the delivery sink. A slow subscriber fills only its own mailbox;
// once full, new messages for it are dropped and counted. Pumps retire after
// IdleTimeout without work and are recreated on the next message.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/internal/metrics"
	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Result reports what happened to one fan-out.
type Result struct {
	Enqueued int
	Dropped  int
}

// Dispatcher owns the subscriber mailboxes.
type Dispatcher struct {
	cfg     Config
	sink    delivery.Sink
	logger  logging.Logger
	metrics metrics.Collector

	mailboxes *xsync.Map[string, *mailbox]

	// mu is held in read mode by Dispatch and in write mode by Close, so no
	// pump can be started once Close has begun.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	dropped   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher delivering through sink.
func New(cfg Config, sink delivery.Sink, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:       cfg,
		sink:      sink,
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
		mailboxes: xsync.NewMap[string, *mailbox](),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch enqueues msg for every subscriber in ids. It never waits for a
// delivery; a full mailbox drops msg for that subscriber only.
func (d *Dispatcher) Dispatch(ids []string, msg *delivery.Message) (Result, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return Result{}, ErrDispatcherClosed
	}

	var res Result
	for _, id := range ids {
		if d.enqueue(id, msg) {
			res.Enqueued++
			continue
		}
		res.Dropped++
		d.dropped.Add(1)
		d.metrics.IncrementDropped()
		d.logger.Warn("mailbox full, dropping message",
			"subscriber", id, "topic", msg.Topic, "sequence", msg.Sequence)
	}
	return res, nil
}

// enqueue offers msg to id's mailbox, replacing a mailbox that retired
// between lookup and offer.
func (d *Dispatcher) enqueue(id string, msg *delivery.Message) bool {
	for {
		mb, _ := d.mailboxes.LoadOrCompute(id, func() (*mailbox, bool) {
			mb := newMailbox(id, d.cfg.QueueSize)
			d.wg.Add(1)
			d.metrics.AddActiveMailboxes(1)
			go d.pump(mb)
			return mb, false
		})
		switch mb.offer(msg) {
		case offerQueued:
			return true
		case offerFull:
			return false
		}
	}
}

func (d *Dispatcher) pump(mb *mailbox) {
	defer d.wg.Done()
	defer d.metrics.AddActiveMailboxes(-1)

	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-mb.stop:
			return
		default:
		}

		select {
		case msg := <-mb.queue:
			d.deliver(mb.id, msg)
			idle.Reset(d.cfg.IdleTimeout)
		case <-idle.C:
			if mb.tryRetire() {
				d.remove(mb)
				return
			}
			idle.Reset(d.cfg.IdleTimeout)
		case <-mb.stop:
			return
		}
	}
}

func (d *Dispatcher) deliver(id string, msg *delivery.Message) {
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	if err := d.sink.Deliver(ctx, id, msg); err != nil {
		d.failed.Add(1)
		d.metrics.IncrementDeliveryFailure()
		d.logger.Warn("delivery failed",
			"subscriber", id, "topic", msg.Topic, "sequence", msg.Sequence, "error", err)
		return
	}
	d.delivered.Add(1)
	d.metrics.IncrementDelivered()
}

// remove deletes mb from the registry if it is still the registered mailbox
// for its subscriber.
func (d *Dispatcher) remove(mb *mailbox) {
	d.mailboxes.Compute(mb.id, func(old *mailbox, loaded bool) (*mailbox, xsync.ComputeOp) {
		if loaded && old == mb {
			return nil, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
}

// Release stops id's pump and discards anything still queued for it.
func (d *Dispatcher) Release(id string) {
	mb, ok := d.mailboxes.LoadAndDelete(id)
	if !ok {
		return
	}
	if n := mb.shutdown(); n > 0 {
		d.logger.Debug("discarded queued messages", "subscriber", id, "count", n)
	}
}

// ActiveMailboxes returns the number of mailboxes with a live pump.
func (d *Dispatcher) ActiveMailboxes() int {
	return d.mailboxes.Size()
}

// Dropped returns how many messages were dropped on full mailboxes.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Delivered returns how many messages the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

// Failed returns how many sink calls returned an error.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

// Close stops every pump and waits for them to exit. In-flight sink calls
// see their context cancelled; queued messages are discarded.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.mailboxes.Range(func(id string, mb *mailbox) bool {
		mb.shutdown()
		d.mailboxes.Delete(id)
		return true
	})
	d.wg.Wait()
	return nil
}
