// Package commandfeed exposes a hub's command feed over gRPC.
//
// The service carries google.protobuf.Struct frames so no generated code is
// needed:
//
//	service topichub.v1.CommandFeed {
//	  rpc Publish(Struct{topic, payload})                returns (Struct{sequence, matched, enqueued, dropped, timestamp});
//	  rpc Subscribe(Struct{subscriber_id, pattern})      returns (Empty);
//	  rpc Unsubscribe(Struct{subscriber_id, pattern})    returns (Empty);
//	  rpc Deliveries(Struct{subscriber_id, buffer})      returns (stream Struct{sequence, topic, payload, published_at, headers});
//	}
//
// Payloads are base64 encoded.
package commandfeed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rmacdonaldsmith/topichub-go/internal/logging"
	"github.com/rmacdonaldsmith/topichub-go/pkg/hub"
	"github.com/rmacdonaldsmith/topichub-go/pkg/routingtable"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "topichub.v1.CommandFeed"

// Full method names
const (
	PublishMethod     = "/" + ServiceName + "/Publish"
	SubscribeMethod   = "/" + ServiceName + "/Subscribe"
	UnsubscribeMethod = "/" + ServiceName + "/Unsubscribe"
	DeliveriesMethod  = "/" + ServiceName + "/Deliveries"
)

// ErrServerClosed is returned by Start after Close
var ErrServerClosed = errors.New("command feed server is closed")

// feedService is the handler type the ServiceDesc dispatches to.
type feedService interface {
	publish(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	subscribe(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	unsubscribe(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	deliveries(req *structpb.Struct, stream grpc.ServerStream) error
}

// serviceDesc describes topichub.v1.CommandFeed for grpc.Server.RegisterService.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*feedService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Publish", Handler: publishHandler},
		{MethodName: "Subscribe", Handler: subscribeHandler},
		{MethodName: "Unsubscribe", Handler: unsubscribeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Deliveries", Handler: deliveriesHandler, ServerStreams: true},
	},
	Metadata: "topichub/v1/commandfeed.proto",
}

// Server serves the command feed for one hub.
type Server struct {
	config *Config
	hub    hub.Hub
	logger logging.Logger

	grpcServer *grpc.Server

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	serveErr chan error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a command feed server for h.
func NewServer(config *Config, h hub.Hub, opts ...Option) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}

	configCopy := *config
	configCopy.SetDefaults()

	s := &Server{
		config: &configCopy,
		hub:    h,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.grpcServer = grpc.NewServer(
		grpc.MaxRecvMsgSize(configCopy.MaxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: configCopy.KeepaliveInterval}),
	)
	s.Register(s.grpcServer)
	return s, nil
}

// Register adds the CommandFeed service to reg.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&serviceDesc, s)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background. It is used directly by tests with
// an in-memory listener.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = lis.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		_ = lis.Close()
		return fmt.Errorf("command feed already serving on %s", s.listener.Addr())
	}

	s.listener = lis
	s.serveErr = make(chan error, 1)
	go func() {
		err := s.grpcServer.Serve(lis)
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error("command feed stopped", "error", err)
		}
		s.serveErr <- err
	}()
	s.logger.Info("command feed listening", "address", lis.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the server. Open Deliveries streams are cancelled.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	serveErr := s.serveErr
	s.mu.Unlock()

	s.grpcServer.Stop()
	if serveErr != nil {
		<-serveErr
	}
	return nil
}

func (s *Server) publish(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	cmd, err := decodeCommand(hub.CommandPublish, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.hub.Apply(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	frame, err := resultFrame(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return frame, nil
}

func (s *Server) subscribe(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	return s.applySubscription(ctx, hub.CommandSubscribe, req)
}

func (s *Server) unsubscribe(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	return s.applySubscription(ctx, hub.CommandUnsubscribe, req)
}

func (s *Server) applySubscription(ctx context.Context, kind hub.CommandKind, req *structpb.Struct) (*emptypb.Empty, error) {
	cmd, err := decodeCommand(kind, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cmd.Origin = routingtable.FeedClient
	if _, err := s.hub.Apply(ctx, cmd); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Debug("feed command applied", "command", kind, "subscriber", cmd.SubscriberID, "pattern", cmd.Topic)
	return &emptypb.Empty{}, nil
}

// deliveries connects an endpoint for the requested subscriber and streams
// its messages until the client goes away or the endpoint is replaced.
func (s *Server) deliveries(req *structpb.Struct, stream grpc.ServerStream) error {
	id, err := stringField(req, fieldSubscriberID)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	buffer := int(numberField(req, fieldBuffer))
	if buffer <= 0 {
		buffer = s.config.StreamBuffer
	}

	ctx := stream.Context()
	ep, err := s.hub.Connect(ctx, id, buffer)
	if err != nil {
		return toStatus(err)
	}
	s.logger.Info("delivery stream opened", "subscriber", id)

	// The header tells the client the endpoint is registered
	if err := stream.SendHeader(metadata.MD{}); err != nil {
		_ = s.hub.Disconnect(context.Background(), id)
		return err
	}

	defer func() {
		select {
		case <-ep.Done():
			// replaced by a newer stream, which now owns the subscriber
		default:
			if err := s.hub.Disconnect(context.Background(), id); err != nil {
				s.logger.Warn("disconnect failed", "subscriber", id, "error", err)
			}
		}
		s.logger.Info("delivery stream closed", "subscriber", id)
	}()

	for {
		select {
		case msg := <-ep.Messages():
			frame, err := messageFrame(msg)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(frame); err != nil {
				return err
			}
		case <-ep.Done():
			return status.Error(codes.Aborted, "endpoint replaced or disconnected")
		case <-ctx.Done():
			return nil
		}
	}
}

// toStatus maps hub and routing errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, routingtable.ErrInvalidTopic),
		errors.Is(err, routingtable.ErrInvalidPattern),
		errors.Is(err, routingtable.ErrNilSubscriber),
		errors.Is(err, hub.ErrEmptySubscriberID):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, routingtable.ErrRouteNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, hub.ErrNodeNotStarted),
		errors.Is(err, hub.ErrNodeClosed),
		errors.Is(err, routingtable.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func publishHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(feedService).publish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(feedService).publish(ctx, req.(*structpb.Struct))
	})
}

func subscribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(feedService).subscribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SubscribeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(feedService).subscribe(ctx, req.(*structpb.Struct))
	})
}

func unsubscribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(feedService).unsubscribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UnsubscribeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(feedService).unsubscribe(ctx, req.(*structpb.Struct))
	})
}

func deliveriesHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(feedService).deliveries(in, stream)
}
