package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "cartpricing.v1.CartPricing"

type CartPricingServer interface {
	GetCart(ctx context.Context, req *GetCartRequest) (*CartResponse, error)
	AddItem(ctx context.Context, req *AddItemRequest) (*AddItemResponse, error)
	UpdateItemQuantity(ctx context.Context, req *UpdateItemQuantityRequest) (*CartResponse, error)
	RemoveItem(ctx context.Context, req *RemoveItemRequest) (*CartResponse, error)
	ApplyCoupon(ctx context.Context, req *ApplyCouponRequest) (*CartResponse, error)
	RemoveCoupon(ctx context.Context, req *CartRequest) (*CartResponse, error)
	ClearCart(ctx context.Context, req *CartRequest) (*CartResponse, error)
	Recompute(ctx context.Context, req *CartRequest) (*CartResponse, error)
}

// cartPricingServiceDesc has no proto file behind it. Reflection lists the
// service but cannot describe it.
var cartPricingServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CartPricingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetCart", CartPricingServer.GetCart),
		unary("AddItem", CartPricingServer.AddItem),
		unary("UpdateItemQuantity", CartPricingServer.UpdateItemQuantity),
		unary("RemoveItem", CartPricingServer.RemoveItem),
		unary("ApplyCoupon", CartPricingServer.ApplyCoupon),
		unary("RemoveCoupon", CartPricingServer.RemoveCoupon),
		unary("ClearCart", CartPricingServer.ClearCart),
		unary("Recompute", CartPricingServer.Recompute),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCartPricingServer(s grpc.ServiceRegistrar, srv CartPricingServer) {
	s.RegisterService(&cartPricingServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func unary[Req, Resp any](method string, call func(CartPricingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(CartPricingServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(server, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
