// internal/handler/errors.go
package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
)

// Code maps a pipeline error to a gRPC status code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}

	switch apperr.KindOf(err) {
	case apperr.ImageDecodeError:
		return codes.InvalidArgument
	case apperr.ModelLoadError:
		return codes.FailedPrecondition
	case apperr.InvalidDimensions, apperr.InferenceExecutionError:
		return codes.Internal
	}

	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Internal
}

// grpcError maps known internal errors to appropriate gRPC status errors.
// The cause is logged by the caller and kept out of the status message.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}

	code := Code(err)
	switch code {
	case codes.InvalidArgument:
		return status.Error(code, "invalid source image")
	case codes.FailedPrecondition:
		return status.Error(code, "model unavailable")
	case codes.DeadlineExceeded:
		return status.Error(code, "inference timed out")
	case codes.Canceled:
		return status.Error(code, "request cancelled")
	default:
		return status.Error(code, "style transfer failed")
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}

// internalError creates an Internal gRPC error
func internalError(format string, args ...interface{}) error {
	return status.Errorf(codes.Internal, format, args...)
}
