package hub

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/topichub-go/internal/commandfeed"
	"github.com/rmacdonaldsmith/topichub-go/internal/dispatch"
	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
)

var (
	// ErrEmptyNodeID is returned when node ID is empty
	ErrEmptyNodeID = errors.New("node ID cannot be empty")
	// ErrInvalidListenAddress is returned when the HTTP listen address is empty
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
	// ErrInvalidEndpointBuffer is returned when EndpointBuffer is negative
	ErrInvalidEndpointBuffer = errors.New("endpoint buffer cannot be negative")
)

// LogConfig selects the log output format and level
type LogConfig struct {
	// Format is "text" or "json"
	Format string `yaml:"format"`
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// Config represents configuration for a hub Node
type Config struct {
	// NodeID uniquely identifies this node
	NodeID string `yaml:"node_id"`

	// ListenAddress is the HTTP address, "host:port"
	ListenAddress string `yaml:"listen_address"`

	// Feed configures the gRPC command feed. A nil Feed disables it.
	Feed *commandfeed.Config `yaml:"feed"`

	// Dispatch configures per-subscriber mailboxes
	Dispatch dispatch.Config `yaml:"dispatch"`

	// DeclaredTopics are created at startup without subscribers
	DeclaredTopics []string `yaml:"declared_topics"`

	// EndpointBuffer is the default channel size for Connect
	EndpointBuffer int `yaml:"endpoint_buffer"`

	// StatsInterval is how often gauges are refreshed while started
	StatsInterval time.Duration `yaml:"stats_interval"`

	Log LogConfig `yaml:"log"`
}

// NewConfig creates a new node configuration with safe defaults
func NewConfig(nodeID, listenAddress string) *Config {
	c := &Config{
		NodeID:        nodeID,
		ListenAddress: listenAddress,
	}
	c.SetDefaults()
	return c
}

// LoadConfig reads a YAML configuration file. Unset fields get defaults;
// the result is not validated so flags can still fill in required values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c.SetDefaults()
	return c, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrEmptyNodeID
	}
	if c.ListenAddress == "" {
		return ErrInvalidListenAddress
	}
	if c.EndpointBuffer < 0 {
		return ErrInvalidEndpointBuffer
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("invalid dispatch config: %w", err)
	}
	if c.Feed != nil {
		if err := c.Feed.Validate(); err != nil {
			return fmt.Errorf("invalid feed config: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	if c.Feed != nil {
		c.Feed.SetDefaults()
	}
	if c.EndpointBuffer <= 0 {
		c.EndpointBuffer = 64
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = 10 * time.Second
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// WithFeedConfig sets the command feed configuration
func (c *Config) WithFeedConfig(feed *commandfeed.Config) *Config {
	c.Feed = feed
	return c
}

// WithDispatchConfig sets the dispatcher configuration
func (c *Config) WithDispatchConfig(d dispatch.Config) *Config {
	c.Dispatch = d
	return c
}

// WithDeclaredTopics sets the topics declared at startup
func (c *Config) WithDeclaredTopics(topics ...string) *Config {
	c.DeclaredTopics = topics
	return c
}
