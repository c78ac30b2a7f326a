// Package sandmonv1 defines the daemon's gRPC service. Requests and replies
// are protobuf well-known types; sandbox records travel as structpb values
// built by the helpers in types.go.
package sandmonv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "sandmon.v1.SandMon"

const (
	SandMon_Ping_FullMethodName    = "/sandmon.v1.SandMon/Ping"
	SandMon_List_FullMethodName    = "/sandmon.v1.SandMon/List"
	SandMon_Stats_FullMethodName   = "/sandmon.v1.SandMon/Stats"
	SandMon_Resolve_FullMethodName = "/sandmon.v1.SandMon/Resolve"
	SandMon_Tree_FullMethodName    = "/sandmon.v1.SandMon/Tree"
	SandMon_Refresh_FullMethodName = "/sandmon.v1.SandMon/Refresh"
)

// SandMonClient is the client API for the SandMon service.
type SandMonClient interface {
	Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	// List returns one Sandbox struct per sandbox root.
	List(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	// Stats returns the Sandbox struct of one root pid.
	Stats(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error)
	// Resolve maps a sandbox name to its root pid.
	Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error)
	// Tree returns one Member struct per process of a sandbox.
	Tree(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error)
	// Refresh rescans processes before returning.
	Refresh(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type sandMonClient struct {
	cc grpc.ClientConnInterface
}

func NewSandMonClient(cc grpc.ClientConnInterface) SandMonClient {
	return &sandMonClient{cc}
}

func (c *sandMonClient) Ping(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, SandMon_Ping_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandMonClient) List(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, SandMon_List_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandMonClient) Stats(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SandMon_Stats_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandMonClient) Resolve(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.cc.Invoke(ctx, SandMon_Resolve_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandMonClient) Tree(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, SandMon_Tree_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sandMonClient) Refresh(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SandMon_Refresh_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SandMonServer is the server API for the SandMon service.
type SandMonServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	List(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Stats(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
	Resolve(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int32Value, error)
	Tree(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error)
	Refresh(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// UnimplementedSandMonServer can be embedded to get forward compatible
// implementations.
type UnimplementedSandMonServer struct{}

func (UnimplementedSandMonServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedSandMonServer) List(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method List not implemented")
}
func (UnimplementedSandMonServer) Stats(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Stats not implemented")
}
func (UnimplementedSandMonServer) Resolve(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int32Value, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Resolve not implemented")
}
func (UnimplementedSandMonServer) Tree(context.Context, *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Tree not implemented")
}
func (UnimplementedSandMonServer) Refresh(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Refresh not implemented")
}

func RegisterSandMonServer(s grpc.ServiceRegistrar, srv SandMonServer) {
	s.RegisterService(&SandMon_ServiceDesc, srv)
}

func _SandMon_Ping_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_Ping_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _SandMon_List_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).List(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_List_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).List(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _SandMon_Stats_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_Stats_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).Stats(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _SandMon_Resolve_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_Resolve_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).Resolve(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _SandMon_Tree_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).Tree(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_Tree_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).Tree(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func _SandMon_Refresh_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SandMonServer).Refresh(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SandMon_Refresh_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SandMonServer).Refresh(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// SandMon_ServiceDesc is the grpc.ServiceDesc for the SandMon service.
var SandMon_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SandMonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: _SandMon_Ping_Handler},
		{MethodName: "List", Handler: _SandMon_List_Handler},
		{MethodName: "Stats", Handler: _SandMon_Stats_Handler},
		{MethodName: "Resolve", Handler: _SandMon_Resolve_Handler},
		{MethodName: "Tree", Handler: _SandMon_Tree_Handler},
		{MethodName: "Refresh", Handler: _SandMon_Refresh_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sandmon/v1/sandmon.proto",
}
