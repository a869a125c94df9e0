package dispatch

import (
	"errors"
	"time"
)

var (
	// ErrInvalidQueueSize is returned when QueueSize is negative
	ErrInvalidQueueSize = errors.New("queue size cannot be negative")

	// ErrInvalidTimeout is returned when a timeout is negative
	ErrInvalidTimeout = errors.New("timeout cannot be negative")
)

// Config holds configuration for the Dispatcher
type Config struct {
	// QueueSize bounds each subscriber mailbox. Messages arriving at a full
	// mailbox are dropped.
	QueueSize int `yaml:"queue_size"`

	// IdleTimeout is how long a mailbox pump waits for work before retiring.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// DeliveryTimeout bounds a single sink call.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.QueueSize < 0 {
		return ErrInvalidQueueSize
	}
	if c.IdleTimeout < 0 || c.DeliveryTimeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 5 * time.Second
	}
}
