package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubscribeCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe to a topic pattern",
		Long: `Register a subscription for this subscriber ID. Patterns may use
'*' for exactly one level and a trailing '>' for one or more levels,
e.g. floor1.*.sensor1 or floor1.>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, pattern)
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "Topic pattern to subscribe to (required)")
	if err := cmd.MarkFlagRequired("pattern"); err != nil {
		panic(fmt.Sprintf("Failed to mark pattern as required: %v", err))
	}

	return cmd
}

func newUnsubscribeCommand() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Remove a subscription",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnsubscribe(cmd, pattern)
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "Topic pattern to unsubscribe from (required)")
	if err := cmd.MarkFlagRequired("pattern"); err != nil {
		panic(fmt.Sprintf("Failed to mark pattern as required: %v", err))
	}

	return cmd
}

func runSubscribe(cmd *cobra.Command, pattern string) error {
	if err := requireSubscriberID(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sub, err := client.Subscribe(ctx, pattern)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Subscribed '%s' to '%s'\n", sub.SubscriberID, sub.Pattern)
	return nil
}

func runUnsubscribe(cmd *cobra.Command, pattern string) error {
	if err := requireSubscriberID(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Unsubscribe(ctx, pattern); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Unsubscribed '%s' from '%s'\n", client.SubscriberID(), pattern)
	return nil
}
