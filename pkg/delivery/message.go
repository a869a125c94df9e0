package delivery

import (
	"time"
)

// Message is a published payload as seen by a subscriber.
type Message struct {
	// Sequence is assigned by the hub, increasing across all publishes
	Sequence uint64

	// Topic is the concrete topic the message was published on
	Topic string

	// Payload is the raw message data (immutable after creation)
	Payload []byte

	// PublishedAt is when the hub accepted the publish
	PublishedAt time.Time

	// Headers are optional key-value metadata (immutable after creation)
	Headers map[string]string
}

// NewMessage creates a Message. The payload is copied.
func NewMessage(topic string, payload []byte) *Message {
	return NewMessageWithHeaders(topic, payload, nil)
}

// NewMessageWithHeaders creates a Message with headers. Payload and headers
// are copied.
func NewMessageWithHeaders(topic string, payload []byte, headers map[string]string) *Message {
	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)

	headersCopy := make(map[string]string, len(headers))
	for k, v := range headers {
		headersCopy[k] = v
	}

	return &Message{
		Topic:       topic,
		Payload:     payloadCopy,
		PublishedAt: time.Now().UTC(),
		Headers:     headersCopy,
	}
}

// WithSequence returns a new Message carrying seq. Payload and headers are
// shared with m.
func (m *Message) WithSequence(seq uint64) *Message {
	return &Message{
		Sequence:    seq,
		Topic:       m.Topic,
		Payload:     m.Payload,
		PublishedAt: m.PublishedAt,
		Headers:     m.Headers,
	}
}

// Copy returns a deep copy of the Message.
func (m *Message) Copy() *Message {
	c := NewMessageWithHeaders(m.Topic, m.Payload, m.Headers)
	c.Sequence = m.Sequence
	c.PublishedAt = m.PublishedAt
	return c
}
