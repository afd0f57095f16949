// Package grpc implements the gRPC transport for voxcmd.
//
// This transport exposes voxcmd.v1.CommandService with a single unary Process
// method. Messages are encoded with a registered JSON codec (content-subtype
// "json"), so clients need no generated stubs. The standard grpc.health.v1
// service is registered alongside it. It is the preferred transport for
// low-latency communication with edge devices.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
	"github.com/nadzzz/voxcmd/internal/transport"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "voxcmd.v1.CommandService"
	// ProcessMethod is the full method name of CommandService.Process.
	ProcessMethod = "/" + ServiceName + "/Process"

	// messageOverhead covers base64 expansion of the audio and JSON framing.
	messageOverhead = 64 << 10
)

// ProcessRequest carries one audio clip.
type ProcessRequest struct {
	Audio       []byte `json:"audio"`
	ContentType string `json:"content_type,omitempty"`
}

// CommandServiceServer is the server API for CommandService.
type CommandServiceServer interface {
	Process(context.Context, *ProcessRequest) (*message.Result, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "voxcmd/v1/command.proto",
}

func processHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ProcessRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandServiceServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProcessMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandServiceServer).Process(ctx, req.(*ProcessRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Process calls CommandService.Process over conn.
func Process(ctx context.Context, conn grpc.ClientConnInterface, req *ProcessRequest, opts ...grpc.CallOption) (*message.Result, error) {
	out := new(message.Result)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := conn.Invoke(ctx, ProcessMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// service adapts a transport.Handler to CommandServiceServer.
type service struct {
	handler  transport.Handler
	maxBytes int64
}

// Pipeline failures are part of the result; the RPC itself succeeds.
func (s *service) Process(ctx context.Context, req *ProcessRequest) (*message.Result, error) {
	if size := int64(len(req.Audio)); size > s.maxBytes {
		res := message.Failed(apperr.AudioTooLarge(size, s.maxBytes), "")
		return &res, nil
	}
	res := s.handler(ctx, message.AudioClip{Data: req.Audio, ContentType: req.ContentType})
	return &res, nil
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port     int
	maxBytes int64
	server   *grpc.Server
	health   *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int, maxBytes int64) *Transport {
	return &Transport{port: port, maxBytes: maxBytes, health: health.NewServer()}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// newServer builds the gRPC server with both services registered.
func (t *Transport) newServer(handler transport.Handler) *grpc.Server {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(t.maxBytes*4/3)+messageOverhead),
		grpc.ChainUnaryInterceptor(logUnary),
	)
	s.RegisterService(&serviceDesc, &service{handler: handler, maxBytes: t.maxBytes})
	healthpb.RegisterHealthServer(s, t.health)
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	t.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.serve(ctx, lis, handler)
}

func (t *Transport) serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = t.newServer(handler)

	log.Info().Str("addr", lis.Addr().String()).Msg("grpc transport listening")

	go func() {
		<-ctx.Done()
		log.Info().Msg("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	return t.server.Serve(lis)
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	t.health.Shutdown()
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

func logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Msg("grpc request")
	return resp, err
}
