package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode converts the CoreStatus to its closest gRPC status code equivalent.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusServiceUnavailable:
		return codes.Unavailable
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusConflict:
		return codes.AlreadyExists
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	case StatusUnknown:
		return codes.Unknown
	default:
		return codes.Unknown
	}
}

// grpcCodeFor refines the status code for domain reasons whose retry
// semantics differ from the plain status mapping.
func grpcCodeFor(base BaseError) codes.Code {
	switch base.Reason {
	case ReasonConflictRetry:
		return codes.Aborted
	case ReasonCapacityExceeded:
		return codes.ResourceExhausted
	case ReasonInvalidTransition, ReasonCampaignNotOpen:
		return codes.FailedPrecondition
	}
	return base.Code.GRPCCode()
}

// ToGRPCError converts err into a gRPC status. The reason, when present,
// prefixes the message so clients can branch on it.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if !errors.As(err, &base) {
		return status.Error(codes.Internal, err.Error())
	}
	if base.Reason != "" {
		return status.Errorf(grpcCodeFor(base), "%s: %s", base.Reason, base.messageWithErr())
	}
	return status.Error(grpcCodeFor(base), base.messageWithErr())
}
