package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newTopicsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Inspect and declare topics",
	}

	cmd.AddCommand(newTopicsMatchCommand())
	cmd.AddCommand(newTopicsDeclareCommand())

	return cmd
}

func newTopicsMatchCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Show which subscribers a topic resolves to",
		Long: `Resolve a topic against the routing table. A '*' level in the
query matches every concrete child at that level.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			match, err := client.Match(ctx, topic)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(match.Subscribers) == 0 {
				fmt.Fprintf(out, "No subscribers match '%s'\n", match.Topic)
				return nil
			}
			fmt.Fprintf(out, "%d subscriber(s) match '%s':\n", len(match.Subscribers), match.Topic)
			for _, id := range match.Subscribers {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to resolve (required)")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic flag as required: %v", err))
	}

	return cmd
}

func newTopicsDeclareCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "declare",
		Short: "Pre-create the route for a concrete topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := client.DeclareTopic(ctx, topic); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Declared '%s'\n", topic)
			return nil
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to declare (required)")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic flag as required: %v", err))
	}

	return cmd
}
