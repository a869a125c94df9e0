package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Node-wide inspection",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "subscriptions",
		Short: "List every subscription on the node",
		RunE:  runAdminSubscriptions,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show node statistics",
		RunE:  runAdminStats,
	})

	return cmd
}

func runAdminSubscriptions(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	subscriptions, err := client.AdminListSubscriptions(ctx)
	if err != nil {
		return err
	}

	printSubscriptions(cmd.OutOrStdout(), subscriptions)
	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stats, err := client.GetStats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 Node %s\n", stats.NodeID)
	fmt.Fprintf(out, "Subscriptions: %d (%d patterns)\n", stats.Subscriptions, stats.Patterns)
	fmt.Fprintf(out, "Route Nodes: %d\n", stats.RouteNodes)
	fmt.Fprintf(out, "Connected Endpoints: %d\n", stats.ConnectedEndpoints)
	fmt.Fprintf(out, "Active Mailboxes: %d\n", stats.ActiveMailboxes)
	fmt.Fprintf(out, "Published: %d\n", stats.Published)
	fmt.Fprintf(out, "Delivered: %d (failures %d, dropped %d)\n", stats.Delivered, stats.DeliveryFailures, stats.Dropped)
	if !stats.StartedAt.IsZero() {
		fmt.Fprintf(out, "Started: %s\n", stats.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
