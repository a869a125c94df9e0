package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/topichub-go/pkg/httpclient"
)

var (
	// Global flags
	serverURL    string
	subscriberID string
	timeout      time.Duration

	// Global client instance
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "topichub-cli",
		Short: "topichub HTTP API command line interface",
		Long: `topichub-cli is a command line interface for the topichub HTTP API.
It provides commands for publishing, wildcard subscription management,
topic matching and real-time event streaming.`,
		PersistentPreRunE: initializeClient,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8081", "topichub server URL")
	rootCmd.PersistentFlags().StringVar(&subscriberID, "subscriber-id", "", "Subscriber ID for subscription and stream commands")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newSubscribeCommand())
	rootCmd.AddCommand(newUnsubscribeCommand())
	rootCmd.AddCommand(newSubscriptionsCommand())
	rootCmd.AddCommand(newStreamCommand())
	rootCmd.AddCommand(newTopicsCommand())
	rootCmd.AddCommand(newAdminCommand())
	rootCmd.AddCommand(newHealthCommand())

	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	// Skip client initialization for help commands
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	var err error
	client, err = httpclient.NewClient(httpclient.Config{
		ServerURL:    serverURL,
		SubscriberID: subscriberID,
		Timeout:      timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// requireSubscriberID checks the client can make identified calls
func requireSubscriberID() error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}
	if client.SubscriberID() == "" {
		return fmt.Errorf("--subscriber-id is required for this command")
	}
	return nil
}
