package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// SubscriberIDHeader names the calling subscriber on identified requests
const SubscriberIDHeader = "X-Subscriber-ID"

// ErrNoSubscriberID is returned by calls that need Config.SubscriberID
var ErrNoSubscriberID = errors.New("client has no subscriber ID")

// Client provides HTTP client for the topichub API
type Client struct {
	config     Config
	httpClient *http.Client
	baseURL    *url.URL
}

// NewClient creates a new topichub HTTP client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// SubscriberID returns the identity this client uses
func (c *Client) SubscriberID() string {
	return c.config.SubscriberID
}

// Publish publishes payload to a concrete topic. payload is sent as JSON.
func (c *Client) Publish(ctx context.Context, topic string, payload interface{}) (*PublishResponse, error) {
	var resp PublishResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/events", nil, PublishRequest{Topic: topic, Payload: payload}, &resp, false)
	if err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}
	return &resp, nil
}

// Subscribe registers a subscription for pattern
func (c *Client) Subscribe(ctx context.Context, pattern string) (*SubscriptionResponse, error) {
	var resp SubscriptionResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/subscriptions", nil, SubscriptionRequest{Pattern: pattern}, &resp, true)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return &resp, nil
}

// Unsubscribe removes this client's subscription for pattern
func (c *Client) Unsubscribe(ctx context.Context, pattern string) error {
	query := url.Values{"pattern": {pattern}}
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/subscriptions", query, nil, nil, true); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}

// ListSubscriptions returns this client's subscriptions
func (c *Client) ListSubscriptions(ctx context.Context) ([]SubscriptionResponse, error) {
	var resp SubscriptionsListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/subscriptions", nil, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return resp.Subscriptions, nil
}

// Match returns the subscriber IDs a topic resolves to
func (c *Client) Match(ctx context.Context, topic string) (*MatchResponse, error) {
	var resp MatchResponse
	query := url.Values{"topic": {topic}}
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/topics/match", query, nil, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to match topic: %w", err)
	}
	return &resp, nil
}

// DeclareTopic pre-creates the route for a concrete topic
func (c *Client) DeclareTopic(ctx context.Context, topic string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/topics", nil, DeclareTopicRequest{Topic: topic}, nil, false); err != nil {
		return fmt.Errorf("failed to declare topic: %w", err)
	}
	return nil
}

// GetHealth returns the health status of the node
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, nil, &resp, false); err != nil {
		// 503 still carries a health body
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable && resp.Message != "" {
			return &resp, nil
		}
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// Admin methods

// AdminListSubscriptions returns every subscription on the node
func (c *Client) AdminListSubscriptions(ctx context.Context) ([]SubscriptionResponse, error) {
	var resp SubscriptionsListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/subscriptions", nil, nil, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to list all subscriptions: %w", err)
	}
	return resp.Subscriptions, nil
}

// GetStats returns node statistics
func (c *Client) GetStats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/stats", nil, nil, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// doRequest performs an HTTP request. identified requests carry the
// subscriber ID header and fail fast without one. On a 503 from the health
// endpoint respBody is still populated.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, reqBody interface{}, respBody interface{}, identified bool) error {
	if identified && c.config.SubscriberID == "" {
		return ErrNoSubscriberID
	}

	u := &url.URL{Path: path}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	fullURL := c.baseURL.ResolveReference(u)

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identified {
		req.Header.Set(SubscriberIDHeader, c.config.SubscriberID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusServiceUnavailable && respBody != nil {
			_ = json.Unmarshal(bodyBytes, respBody)
		}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil || errResp.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes))}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}

	if respBody != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
