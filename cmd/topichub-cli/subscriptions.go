package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/topichub-go/pkg/httpclient"
)

func newSubscriptionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subscriptions",
		Short: "List this subscriber's subscriptions",
		RunE:  runSubscriptionsList,
	}
}

func runSubscriptionsList(cmd *cobra.Command, args []string) error {
	if err := requireSubscriberID(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	subscriptions, err := client.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	printSubscriptions(cmd.OutOrStdout(), subscriptions)
	return nil
}

func printSubscriptions(out io.Writer, subscriptions []httpclient.SubscriptionResponse) {
	if len(subscriptions) == 0 {
		fmt.Fprintln(out, "No subscriptions found")
		return
	}

	fmt.Fprintf(out, "Found %d subscription(s):\n", len(subscriptions))
	for i, sub := range subscriptions {
		fmt.Fprintf(out, "%d. %s  subscriber=%s type=%s\n", i+1, sub.Pattern, sub.SubscriberID, sub.Type)
	}
}
