// Package rpc serves the operation monitor over gRPC.
//
// The Operations service has no generated stubs: its methods are declared
// by hand and exchange google.protobuf.Struct messages, so any gRPC client
// can call it with the well-known types alone.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service names
const (
	OperationsService = "cargomcp.v1.Operations"
	// ShellPoolService is the health-check name reflecting shell pool health
	ShellPoolService = "cargomcp.v1.ShellPool"
)

// Full method names
const (
	MethodWait   = "/" + OperationsService + "/Wait"
	MethodStatus = "/" + OperationsService + "/Status"
	MethodCancel = "/" + OperationsService + "/Cancel"
	MethodStats  = "/" + OperationsService + "/Stats"
)

// OperationsServer is the server API for the Operations service
type OperationsServer interface {
	Wait(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Stats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv OperationsServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func methodHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OperationsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OperationsServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// OperationsServiceDesc is the grpc.ServiceDesc for the Operations service
var OperationsServiceDesc = grpc.ServiceDesc{
	ServiceName: OperationsService,
	HandlerType: (*OperationsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Wait", Handler: methodHandler(MethodWait, OperationsServer.Wait)},
		{MethodName: "Status", Handler: methodHandler(MethodStatus, OperationsServer.Status)},
		{MethodName: "Cancel", Handler: methodHandler(MethodCancel, OperationsServer.Cancel)},
		{MethodName: "Stats", Handler: methodHandler(MethodStats, OperationsServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cargomcp/v1/operations.proto",
}

// RegisterOperationsServer registers srv with a gRPC server
func RegisterOperationsServer(s grpc.ServiceRegistrar, srv OperationsServer) {
	s.RegisterService(&OperationsServiceDesc, srv)
}
