package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rmacdonaldsmith/topichub-go/internal/commandfeed"
	"github.com/rmacdonaldsmith/topichub-go/internal/httpapi"
	internalhub "github.com/rmacdonaldsmith/topichub-go/internal/hub"
	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/internal/metrics"
)

const (
	// Application info
	appName    = "topichub"
	appVersion = "0.1.0"

	shutdownTimeout = 30 * time.Second
)

// options holds parsed command-line flags
type options struct {
	configPath  string
	nodeID      string
	httpAddr    string
	grpcAddr    string
	logFormat   string
	logLevel    string
	showVersion bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&opts.nodeID, "node-id", "", "Unique node identifier (overrides config)")
	fs.StringVar(&opts.httpAddr, "http", "", "HTTP API listen address (overrides config, default :8081)")
	fs.StringVar(&opts.grpcAddr, "grpc", "", "Command feed listen address; empty disables the feed unless configured")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// buildConfig loads the config file, if any, and applies flag overrides
func buildConfig(opts *options) (*internalhub.Config, error) {
	var config *internalhub.Config
	if opts.configPath != "" {
		loaded, err := internalhub.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		config = internalhub.NewConfig(getDefaultNodeID(), ":8081")
	}

	if opts.nodeID != "" {
		config.NodeID = opts.nodeID
	}
	if opts.httpAddr != "" {
		config.ListenAddress = opts.httpAddr
	}
	if opts.grpcAddr != "" {
		if config.Feed == nil {
			config.WithFeedConfig(&commandfeed.Config{})
		}
		config.Feed.ListenAddress = opts.grpcAddr
	}
	if opts.logFormat != "" {
		config.Log.Format = opts.logFormat
	}
	if opts.logLevel != "" {
		config.Log.Level = opts.logLevel
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// run starts the node and its servers and blocks until ctx is done or a
// server fails.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "%s v%s\n", appName, appVersion)
		return nil
	}

	config, err := buildConfig(opts)
	if err != nil {
		return err
	}

	slogger, err := logging.New(config.Log.Format, config.Log.Level, stderr)
	if err != nil {
		return err
	}
	logger := logging.NewSlog(slogger).With("node_id", config.NodeID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	node, err := internalhub.NewNode(config,
		internalhub.WithLogger(logger),
		internalhub.WithMetrics(metrics.NewPrometheus(registry, "")))
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("error closing node", "error", err)
		}
	}()

	logger.Info("starting", "version", appVersion, "http", config.ListenAddress)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	if config.Feed != nil {
		feed, err := commandfeed.NewServer(config.Feed, node, commandfeed.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create command feed: %w", err)
		}
		defer feed.Close()
		if err := feed.Start(ctx); err != nil {
			return err
		}
	}

	api := httpapi.NewServer(node, httpapi.Config{
		Address:  config.ListenAddress,
		Gatherer: registry,
		Logger:   logger,
	})
	serveErr := make(chan error, 1)
	go func() { serveErr <- api.Start() }()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Closing the node ends open SSE streams
	if err := node.Close(); err != nil {
		logger.Warn("error closing node", "error", err)
	}
	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http api", "error", err)
	}
	<-serveErr

	logger.Info("stopped")
	return nil
}

// getDefaultNodeID generates a default node ID based on hostname
func getDefaultNodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "topichub-node-1"
	}
	return fmt.Sprintf("topichub-%s", hostname)
}
