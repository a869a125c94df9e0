package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const streamPath = "/api/v1/events/stream"

// StreamConfig configures a delivery stream
type StreamConfig struct {
	// Topic is a pattern subscribed for the life of the stream (optional).
	// Subscriptions made separately are also delivered on the stream.
	Topic string

	// BufferSize of the Events channel
	BufferSize int

	// ReconnectDelay between connection attempts
	ReconnectDelay time.Duration

	// MaxReconnectAttempts bounds reconnects; 0 retries forever
	MaxReconnectAttempts int
}

// SetDefaults fills zero fields
func (sc *StreamConfig) SetDefaults() {
	if sc.BufferSize == 0 {
		sc.BufferSize = 100
	}
	if sc.ReconnectDelay == 0 {
		sc.ReconnectDelay = 2 * time.Second
	}
}

// StreamClient receives deliveries over Server-Sent Events. Events blocks
// the reader when full, so a slow consumer backs up into the server-side
// mailbox rather than losing messages here.
type StreamClient struct {
	client *Client
	config StreamConfig

	events chan EventStreamMessage
	errors chan error
	done   chan struct{}
	cancel context.CancelFunc
}

// Stream opens an SSE stream for this client's subscriber ID. The server
// drops the subscriber's subscriptions when a stream ends; a reconnect
// re-subscribes StreamConfig.Topic only.
func (c *Client) Stream(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	if c.config.SubscriberID == "" {
		return nil, ErrNoSubscriberID
	}
	config.SetDefaults()

	ctx, cancel := context.WithCancel(ctx)
	sc := &StreamClient{
		client: c,
		config: config,
		events: make(chan EventStreamMessage, config.BufferSize),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sc.run(ctx)
	return sc, nil
}

// Events delivers decoded messages. It is closed when the stream ends.
func (sc *StreamClient) Events() <-chan EventStreamMessage { return sc.events }

// Errors reports connection and decode failures without blocking the
// stream; errors are dropped when nobody reads them.
func (sc *StreamClient) Errors() <-chan error { return sc.errors }

// Done is closed once the stream has stopped for good
func (sc *StreamClient) Done() <-chan struct{} { return sc.done }

// Close stops the stream and waits for the reader to exit
func (sc *StreamClient) Close() error {
	sc.cancel()
	<-sc.done
	return nil
}

func (sc *StreamClient) report(err error) {
	select {
	case sc.errors <- err:
	default:
	}
}

func (sc *StreamClient) run(ctx context.Context) {
	defer close(sc.done)
	defer close(sc.events)
	defer close(sc.errors)

	retry := time.NewTimer(0)
	defer retry.Stop()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
		}

		err := sc.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			sc.report(fmt.Errorf("streaming error: %w", err))
		}

		if limit := sc.config.MaxReconnectAttempts; limit > 0 && attempt >= limit {
			sc.report(fmt.Errorf("max reconnect attempts (%d) exceeded", limit))
			return
		}
		retry.Reset(sc.config.ReconnectDelay)
	}
}

// consume holds one connection open and forwards its events until the
// body ends or ctx is cancelled.
func (sc *StreamClient) consume(ctx context.Context) error {
	resp, err := sc.open(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	frames := newSSEReader(resp.Body)
	for {
		data, err := frames.next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("error reading SSE stream: %w", err)
		}

		var event EventStreamMessage
		if err := json.Unmarshal(data, &event); err != nil {
			sc.report(fmt.Errorf("failed to parse event: %w", err))
			continue
		}

		select {
		case sc.events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (sc *StreamClient) open(ctx context.Context) (*http.Response, error) {
	target := sc.client.baseURL.ResolveReference(&url.URL{Path: streamPath})
	if sc.config.Topic != "" {
		target.RawQuery = url.Values{"topic": {sc.config.Topic}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(SubscriberIDHeader, sc.client.config.SubscriberID)

	// The request timeout would cut long-lived streams
	httpClient := *sc.client.httpClient
	httpClient.Timeout = 0

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// sseReader splits an event stream into the data payloads of its events.
// Comment lines and fields other than data are skipped; multiple data lines
// in one event are joined with newlines.
type sseReader struct {
	scanner *bufio.Scanner
	data    bytes.Buffer
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &sseReader{scanner: scanner}
}

// next returns the data of the next event carrying any, or io.EOF
func (r *sseReader) next() ([]byte, error) {
	r.data.Reset()
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			if r.data.Len() > 0 {
				return r.data.Bytes(), nil
			}
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if r.data.Len() > 0 {
			r.data.WriteByte('\n')
		}
		r.data.Write(value)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if r.data.Len() > 0 {
		return r.data.Bytes(), nil
	}
	return nil, io.EOF
}
