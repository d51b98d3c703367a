// internal/handler/service.go
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// StyleTransfer_Stylize_FullMethodName is the full gRPC method name of Stylize.
const StyleTransfer_Stylize_FullMethodName = "/stylize.v1.StyleTransfer/Stylize"

// StyleTransferServer is the server API for the stylize.v1.StyleTransfer service.
// The request carries the encoded source image; the response is a PNG.
type StyleTransferServer interface {
	Stylize(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// RegisterStyleTransferServer registers srv with s.
func RegisterStyleTransferServer(s grpc.ServiceRegistrar, srv StyleTransferServer) {
	s.RegisterService(&StyleTransfer_ServiceDesc, srv)
}

func _StyleTransfer_Stylize_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StyleTransferServer).Stylize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StyleTransfer_Stylize_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StyleTransferServer).Stylize(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// StyleTransfer_ServiceDesc is the grpc.ServiceDesc for the StyleTransfer service.
var StyleTransfer_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "stylize.v1.StyleTransfer",
	HandlerType: (*StyleTransferServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Stylize",
			Handler:    _StyleTransfer_Stylize_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stylize/v1/stylize.proto",
}

// StyleTransferClient is the client API for the StyleTransfer service.
type StyleTransferClient interface {
	Stylize(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type styleTransferClient struct {
	cc grpc.ClientConnInterface
}

// NewStyleTransferClient creates a client on cc.
func NewStyleTransferClient(cc grpc.ClientConnInterface) StyleTransferClient {
	return &styleTransferClient{cc}
}

func (c *styleTransferClient) Stylize(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, StyleTransfer_Stylize_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
