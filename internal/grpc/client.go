package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the cart pricing service over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetCart(ctx context.Context, req *GetCartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "GetCart", req, opts)
}

func (c *Client) AddItem(ctx context.Context, req *AddItemRequest, opts ...grpc.CallOption) (*AddItemResponse, error) {
	return invoke[AddItemResponse](ctx, c.conn, "AddItem", req, opts)
}

func (c *Client) UpdateItemQuantity(ctx context.Context, req *UpdateItemQuantityRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "UpdateItemQuantity", req, opts)
}

func (c *Client) RemoveItem(ctx context.Context, req *RemoveItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "RemoveItem", req, opts)
}

func (c *Client) ApplyCoupon(ctx context.Context, req *ApplyCouponRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "ApplyCoupon", req, opts)
}

func (c *Client) RemoveCoupon(ctx context.Context, req *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "RemoveCoupon", req, opts)
}

func (c *Client) ClearCart(ctx context.Context, req *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "ClearCart", req, opts)
}

func (c *Client) Recompute(ctx context.Context, req *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke[CartResponse](ctx, c.conn, "Recompute", req, opts)
}

func invoke[Resp any](ctx context.Context, conn grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := conn.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
