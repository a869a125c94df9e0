package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/topichub-go/pkg/httpclient"
)

func newStreamCommand() *cobra.Command {
	var (
		topic        string
		bufferSize   int
		prettyFormat bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream events in real-time",
		Long: `Stream events for this subscriber ID using Server-Sent Events.
--topic subscribes a pattern for the life of the stream. Ending the stream
removes the subscriber's subscriptions. Press Ctrl+C to stop streaming.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStream(ctx, cmd.OutOrStdout(), topic, bufferSize, prettyFormat)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Pattern to subscribe for the stream (optional)")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 100, "Event buffer size")
	cmd.Flags().BoolVar(&prettyFormat, "pretty", false, "Pretty print JSON payloads")

	return cmd
}

func runStream(ctx context.Context, out io.Writer, topic string, bufferSize int, prettyFormat bool) error {
	if err := requireSubscriberID(); err != nil {
		return err
	}

	fmt.Fprintf(out, "🌊 Streaming from %s as '%s'", serverURL, client.SubscriberID())
	if topic != "" {
		fmt.Fprintf(out, " (pattern: %s)", topic)
	}
	fmt.Fprintln(out, "...")

	streamClient, err := client.Stream(ctx, httpclient.StreamConfig{
		Topic:      topic,
		BufferSize: bufferSize,
	})
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer streamClient.Close()

	errs := streamClient.Errors()
	eventCount := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d events.\n", eventCount)
			return nil

		case event, ok := <-streamClient.Events():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream closed. Received %d events.\n", eventCount)
				return nil
			}
			eventCount++
			printEvent(out, event, prettyFormat)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Non-fatal; the stream reconnects
			fmt.Fprintf(out, "❌ Stream error: %v\n", err)
		}
	}
}

func printEvent(out io.Writer, event httpclient.EventStreamMessage, pretty bool) {
	fmt.Fprintf(out, "📨 #%d %s @ %s\n", event.Sequence, event.Topic, event.Timestamp.Format("15:04:05.000"))

	if len(event.Payload) == 0 {
		fmt.Fprintln(out, "   Payload: null")
		return
	}
	if pretty {
		var v interface{}
		if err := json.Unmarshal(event.Payload, &v); err == nil {
			if indented, err := json.MarshalIndent(v, "   ", "  "); err == nil {
				fmt.Fprintf(out, "   Payload: %s\n", indented)
				return
			}
		}
	}
	fmt.Fprintf(out, "   Payload: %s\n", event.Payload)
}
