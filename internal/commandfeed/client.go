package commandfeed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/topichub-go/pkg/delivery"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
)

// Client issues commands to a remote hub's command feed.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// Dial connects to target. Without options the connection is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClient wraps an existing connection. Close does not close it.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Publish publishes payload on topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) (hub.PublishResult, error) {
	req, err := publishFrame(topic, payload)
	if err != nil {
		return hub.PublishResult{}, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, PublishMethod, req, resp); err != nil {
		return hub.PublishResult{}, err
	}
	return decodeResult(resp)
}

// Subscribe registers subscriberID under pattern.
func (c *Client) Subscribe(ctx context.Context, subscriberID, pattern string) error {
	return c.subscription(ctx, SubscribeMethod, subscriberID, pattern)
}

// Unsubscribe removes subscriberID from pattern.
func (c *Client) Unsubscribe(ctx context.Context, subscriberID, pattern string) error {
	return c.subscription(ctx, UnsubscribeMethod, subscriberID, pattern)
}

func (c *Client) subscription(ctx context.Context, method, subscriberID, pattern string) error {
	req, err := subscriptionFrame(subscriberID, pattern)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, method, req, new(emptypb.Empty))
}

// Deliveries opens the delivery stream for subscriberID. buffer <= 0 uses
// the server's default. Cancel ctx to close the stream; the server then
// removes the subscriber's subscriptions.
func (c *Client) Deliveries(ctx context.Context, subscriberID string, buffer int) (*DeliveryStream, error) {
	req, err := deliveriesFrame(subscriberID, buffer)
	if err != nil {
		return nil, err
	}
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], DeliveriesMethod)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &DeliveryStream{stream: stream}, nil
}

// Close closes the connection if the client created it.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// DeliveryStream receives one subscriber's messages.
type DeliveryStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next message. It returns io.EOF when the server ends
// the stream cleanly.
func (s *DeliveryStream) Recv() (*delivery.Message, error) {
	frame := new(structpb.Struct)
	if err := s.stream.RecvMsg(frame); err != nil {
		return nil, err
	}
	return decodeMessage(frame)
}

// Header waits for the server's response header, which is sent once the
// endpoint is registered.
func (s *DeliveryStream) Header() error {
	_, err := s.stream.Header()
	return err
}
