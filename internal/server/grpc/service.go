package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "identitykeeper.v1.Session"

// Full method names.
const (
	MethodRegister       = "/" + ServiceName + "/Register"
	MethodSignIn         = "/" + ServiceName + "/SignIn"
	MethodResume         = "/" + ServiceName + "/Resume"
	MethodSignOut        = "/" + ServiceName + "/SignOut"
	MethodGetSession     = "/" + ServiceName + "/GetSession"
	MethodWaitForProfile = "/" + ServiceName + "/WaitForProfile"
	MethodWatch          = "/" + ServiceName + "/Watch"
)

// SessionServer is the server API of identitykeeper.v1.Session. Messages are
// protobuf well-known types, so no generated code is needed on either side.
type SessionServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resume(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WaitForProfile(context.Context, *durationpb.Duration) (*wrapperspb.BoolValue, error)
	Watch(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterSessionServer registers srv on s.
func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(SessionServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SessionServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SessionServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionServer).Watch(in, stream)
}

// SessionServiceDesc describes identitykeeper.v1.Session.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, SessionServer.Register)},
		{MethodName: "SignIn", Handler: unaryHandler(MethodSignIn, SessionServer.SignIn)},
		{MethodName: "Resume", Handler: unaryHandler(MethodResume, SessionServer.Resume)},
		{MethodName: "SignOut", Handler: unaryHandler(MethodSignOut, SessionServer.SignOut)},
		{MethodName: "GetSession", Handler: unaryHandler(MethodGetSession, SessionServer.GetSession)},
		{MethodName: "WaitForProfile", Handler: unaryHandler(MethodWaitForProfile, SessionServer.WaitForProfile)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "identitykeeper/v1/session.proto",
}
