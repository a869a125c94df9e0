package dispatch

import (
	"sync"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
)

type offerResult int

const (
	offerQueued offerResult = iota
	offerFull
	offerRetired
)

// mailbox is one subscriber's bounded queue. A single pump goroutine drains
// it, which is what keeps per-subscriber delivery in enqueue order.
type mailbox struct {
	id    string
	queue chan *delivery.Message
	stop  chan struct{}

	mu      sync.Mutex
	retired bool
}

func newMailbox(id string, size int) *mailbox {
	return &mailbox{
		id:    id,
		queue: make(chan *delivery.Message, size),
		stop:  make(chan struct{}),
	}
}

// offer enqueues msg without blocking.
func (m *mailbox) offer(msg *delivery.Message) offerResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retired {
		return offerRetired
	}
	select {
	case m.queue <- msg:
		return offerQueued
	default:
		return offerFull
	}
}

// tryRetire retires the mailbox if nothing is queued. offer and tryRetire
// share mu, so once this returns true no message can be stranded in queue.
func (m *mailbox) tryRetire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) > 0 {
		return false
	}
	m.retired = true
	return true
}

// shutdown retires the mailbox and stops its pump, discarding anything
// still queued. It returns how many messages were discarded.
func (m *mailbox) shutdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retired {
		return 0
	}
	m.retired = true
	close(m.stop)
	return len(m.queue)
}
