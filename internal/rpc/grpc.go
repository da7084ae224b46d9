package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LashSesh/qso/internal/calibrator"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct so no generated code is needed on either side.
const ServiceName = "scs.v1.Calibration"

// #region descriptor

// CalibrationServer is the server side of ServiceName.
type CalibrationServer interface {
	Propose(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(CalibrationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CalibrationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Propose", CalibrationServer.Propose),
		unary("Status", CalibrationServer.Status),
		unary("Ingest", CalibrationServer.Ingest),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scs/v1/calibration.proto",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary(name string, call method) grpc.MethodDesc {
	full := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(CalibrationServer)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(impl, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// #endregion descriptor

// #region server

type grpcServer struct {
	svc *Service
}

func (g grpcServer) Propose(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := g.svc.Propose(ctx)
	if err != nil {
		return nil, statusError(err)
	}
	return toStruct(p)
}

func (g grpcServer) Status(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(g.svc.Status())
}

func (g grpcServer) Ingest(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil || len(req.GetFields()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "record is required")
	}
	path, err := g.svc.Ingest(req.AsMap())
	if err != nil {
		return nil, statusError(err)
	}
	return structpb.NewStruct(map[string]any{"path": path})
}

// Register adds the calibration and health services to g. The returned
// health server reports ServiceName as serving until Shutdown.
func Register(g *grpc.Server, svc *Service) *health.Server {
	g.RegisterService(&serviceDesc, grpcServer{svc: svc})
	hs := health.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// NewGRPCServer builds a server with request logging and both services
// registered.
func NewGRPCServer(svc *Service, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(svc.logger))}, opts...)
	g := grpc.NewServer(opts...)
	return g, Register(g, svc)
}

// LoggingInterceptor logs every unary call at debug level, and failures
// at warn.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc", fields...)
		}
		return resp, err
	}
}

func statusError(err error) error {
	switch {
	case errors.Is(err, calibrator.ErrNotInitialized):
		return status.Error(codes.FailedPrecondition, err.Error())
	case isBadRequest(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion server

// #region struct

// toStruct converts v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// #endregion struct
