package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCommand() *cobra.Command {
	var (
		topic   string
		payload string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a topic",
		Long: `Publish an event to a concrete topic such as floor1.device11.sensor1.
Wildcards are not allowed. The payload should be valid JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, topic, payload)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Topic to publish to (required)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "Event payload as JSON")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func runPublish(cmd *cobra.Command, topic, payloadStr string) error {
	var payload interface{}
	if payloadStr != "" {
		if err := json.Unmarshal([]byte(payloadStr), &payload); err != nil {
			return fmt.Errorf("invalid JSON payload: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	response, err := client.Publish(ctx, topic, payload)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Published to '%s'\n", topic)
	fmt.Fprintf(out, "Sequence: %d\n", response.Sequence)
	fmt.Fprintf(out, "Matched: %d (enqueued %d, dropped %d)\n", response.Matched, response.Enqueued, response.Dropped)
	fmt.Fprintf(out, "Timestamp: %s\n", response.Timestamp.Format("2006-01-02 15:04:05"))
	return nil
}
