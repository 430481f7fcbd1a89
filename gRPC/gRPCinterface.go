package proto

import (
	"FloorPlanServer/floorplan"
	"FloorPlanServer/logger"
	"FloorPlanServer/monitor"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName       = "floorplan.FloorPlanService"
	AnalyzeFullMethod = "/" + ServiceName + "/Analyze"
)

// MaxMessageSize matches the HTTP upload limit plus framing overhead.
const MaxMessageSize = 17 * 1024 * 1024

type Analyzer interface {
	Analyze(ctx context.Context, raw []byte) (*floorplan.Result, error)
}

// FloorPlanServiceServer takes the image bytes and answers with the result
// document as a google.protobuf.Struct.
type FloorPlanServiceServer interface {
	Analyze(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var FloorPlanService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FloorPlanServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Analyze",
			Handler:    _FloorPlanService_Analyze_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "floorplan.proto",
}

func _FloorPlanService_Analyze_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FloorPlanServiceServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: AnalyzeFullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FloorPlanServiceServer).Analyze(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func RegisterFloorPlanServiceServer(s grpc.ServiceRegistrar, srv FloorPlanServiceServer) {
	s.RegisterService(&FloorPlanService_ServiceDesc, srv)
}

// Analyze calls the service on conn.
func Analyze(ctx context.Context, conn grpc.ClientConnInterface, image []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, AnalyzeFullMethod, wrapperspb.Bytes(image), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type Server struct {
	analyzer Analyzer
}

func NewServer(analyzer Analyzer) *Server {
	return &Server{analyzer: analyzer}
}

func (s *Server) Analyze(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	result, err := s.analyzer.Analyze(ctx, req.GetValue())
	if err != nil {
		code := codes.Internal
		if errors.Is(err, floorplan.ErrIngestion) {
			code = codes.InvalidArgument
		}
		monitor.ObserveRequest("grpc", code.String())
		logger.Log().Error("grpc analyze failed", zap.Error(err))
		return nil, status.Error(code, err.Error())
	}
	out, err := toStruct(result)
	if err != nil {
		monitor.ObserveRequest("grpc", codes.Internal.String())
		return nil, status.Error(codes.Internal, err.Error())
	}
	monitor.ObserveRequest("grpc", codes.OK.String())
	return out, nil
}

// toStruct goes through JSON so the struct carries exactly the HTTP document.
func toStruct(result *floorplan.Result) (*structpb.Struct, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// StartGRPCServer serves the analyzer and the standard health service on lis.
// The returned health server reports NOT_SERVING until SetServing is called.
func StartGRPCServer(lis net.Listener, analyzer Analyzer) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(grpc.MaxRecvMsgSize(MaxMessageSize))
	RegisterFloorPlanServiceServer(s, NewServer(analyzer))
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	go func() {
		logger.Log().Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Log().Error("failed to serve grpc server", zap.Error(err))
		}
	}()
	return s, hs
}

func SetServing(hs *health.Server, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(ServiceName, st)
	hs.SetServingStatus("", st)
}

func Listen(port int) (net.Listener, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	return lis, nil
}
