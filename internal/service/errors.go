package service

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidCoupon
	KindInvalidArgument
	KindPersistence
	KindTimeout
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalidCoupon:
		return "InvalidCoupon"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindPersistence:
		return "PersistenceFailure"
	case KindTimeout:
		return "Timeout"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Error is the only error type returned by CartService. Two errors match
// with errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

var (
	ErrUserNotFound            = &Error{Kind: KindNotFound, Code: "UserNotFound", Message: "user not found"}
	ErrProductNotFound         = &Error{Kind: KindNotFound, Code: "ProductNotFound", Message: "product not found"}
	ErrLineItemNotFound        = &Error{Kind: KindNotFound, Code: "LineItemNotFound", Message: "line item not found"}
	ErrCartNotFound            = &Error{Kind: KindNotFound, Code: "CartNotFound", Message: "cart not found"}
	ErrInvalidOrInactiveCoupon = &Error{Kind: KindInvalidCoupon, Code: "InvalidOrInactiveCoupon", Message: "coupon is invalid or inactive"}
	ErrExpiredOrNotYetValid    = &Error{Kind: KindInvalidCoupon, Code: "ExpiredOrNotYetValid", Message: "coupon is expired or not yet valid"}
	ErrInvalidQuantity         = &Error{Kind: KindInvalidArgument, Code: "InvalidQuantity", Message: "quantity must be at least 1"}
	ErrPersistence             = &Error{Kind: KindPersistence, Code: "PersistenceFailure", Message: "persistence failure"}
	ErrTimeout                 = &Error{Kind: KindTimeout, Code: "Timeout", Message: "operation timed out"}
	ErrCanceled                = &Error{Kind: KindCanceled, Code: "Canceled", Message: "operation canceled"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// GRPCStatus lets status.FromError translate service errors for transports.
func (e *Error) GRPCStatus() *status.Status {
	var code codes.Code
	switch e.Kind {
	case KindNotFound:
		code = codes.NotFound
	case KindInvalidCoupon:
		code = codes.FailedPrecondition
	case KindInvalidArgument:
		code = codes.InvalidArgument
	case KindTimeout:
		code = codes.DeadlineExceeded
	case KindCanceled:
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.New(code, e.Message)
}

func (e *Error) wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

// persistence wraps err as a PersistenceFailure unless it already is a service
// error or the caller's context ended.
func persistence(err error) error {
	var svcErr *Error
	switch {
	case errors.As(err, &svcErr):
		return svcErr
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout.wrap(err)
	case errors.Is(err, context.Canceled):
		return ErrCanceled.wrap(err)
	}
	return ErrPersistence.wrap(err)
}
