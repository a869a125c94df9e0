package commandfeed

import (
	"errors"
	"time"
)

var (
	// ErrEmptyListenAddress is returned when the feed has no listen address
	ErrEmptyListenAddress = errors.New("listen address cannot be empty")

	// ErrInvalidMessageSize is returned when MaxMessageSize is negative
	ErrInvalidMessageSize = errors.New("max message size cannot be negative")
)

// Config holds configuration for the gRPC command feed
type Config struct {
	// ListenAddress is the gRPC listen address, e.g. "localhost:9090"
	ListenAddress string `yaml:"listen_address"`

	// StreamBuffer sizes the endpoint behind each Deliveries stream
	StreamBuffer int `yaml:"stream_buffer"`

	// KeepaliveInterval is how often the server pings idle connections
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// MaxMessageSize bounds a single received frame in bytes
	MaxMessageSize int `yaml:"max_message_size"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return ErrEmptyListenAddress
	}
	if c.MaxMessageSize < 0 {
		return ErrInvalidMessageSize
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 256
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
}
