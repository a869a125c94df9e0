package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	out := cmd.OutOrStdout()
	if health.Healthy {
		fmt.Fprintln(out, "✅ Server is healthy!")
	} else {
		fmt.Fprintln(out, "❌ Server is not healthy!")
	}
	fmt.Fprintf(out, "RoutingTable: %t\n", health.RoutingTableHealthy)
	fmt.Fprintf(out, "Dispatcher: %t\n", health.DispatcherHealthy)
	fmt.Fprintf(out, "Connected Endpoints: %d\n", health.ConnectedEndpoints)
	fmt.Fprintf(out, "Subscriptions: %d\n", health.Subscriptions)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}
	return nil
}
