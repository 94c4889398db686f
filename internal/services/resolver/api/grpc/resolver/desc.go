// Package resolver exposes the fairroll.resolver.v1 gRPC service.
//
// Messages are google.protobuf.Struct values. Amounts, balances, slots and
// seeds travel as decimal strings because they may exceed 2^53; addresses,
// signatures and record payloads travel as base58.
package resolver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fairroll.resolver.v1.ResolverService"

// Method names.
const (
	MethodInitializeVault = "InitializeVault"
	MethodFund            = "Fund"
	MethodPlaceBet        = "PlaceBet"
	MethodGetBet          = "GetBet"
	MethodResolveBet      = "ResolveBet"
	MethodRefundBet       = "RefundBet"
	MethodGetBalance      = "GetBalance"
	MethodGetVault        = "GetVault"
	MethodGetTransfers    = "GetTransfers"
)

// ResolverServiceServer is the server API for the resolver service.
type ResolverServiceServer interface {
	InitializeVault(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Fund(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PlaceBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefundBet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVault(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTransfers(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ResolverServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(ResolverServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		})
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the resolver service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodInitializeVault, Handler: unaryHandler(MethodInitializeVault, ResolverServiceServer.InitializeVault)},
		{MethodName: MethodFund, Handler: unaryHandler(MethodFund, ResolverServiceServer.Fund)},
		{MethodName: MethodPlaceBet, Handler: unaryHandler(MethodPlaceBet, ResolverServiceServer.PlaceBet)},
		{MethodName: MethodGetBet, Handler: unaryHandler(MethodGetBet, ResolverServiceServer.GetBet)},
		{MethodName: MethodResolveBet, Handler: unaryHandler(MethodResolveBet, ResolverServiceServer.ResolveBet)},
		{MethodName: MethodRefundBet, Handler: unaryHandler(MethodRefundBet, ResolverServiceServer.RefundBet)},
		{MethodName: MethodGetBalance, Handler: unaryHandler(MethodGetBalance, ResolverServiceServer.GetBalance)},
		{MethodName: MethodGetVault, Handler: unaryHandler(MethodGetVault, ResolverServiceServer.GetVault)},
		{MethodName: MethodGetTransfers, Handler: unaryHandler(MethodGetTransfers, ResolverServiceServer.GetTransfers)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fairroll/resolver/v1/resolver.proto",
}

// RegisterResolverServiceServer registers srv on s.
func RegisterResolverServiceServer(s grpc.ServiceRegistrar, srv ResolverServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
