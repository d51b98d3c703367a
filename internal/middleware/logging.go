// internal/middleware/logging.go
package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryLoggingInterceptor attaches a request-scoped logger to the context and
// logs each call on completion. Install it after UnaryRequestIDInterceptor so
// the logger carries the request ID.
func UnaryLoggingInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		lc := base.With().Str("method", info.FullMethod)
		if id := GetRequestID(ctx); id != "" {
			lc = lc.Str("request_id", id)
		}
		logger := lc.Logger()
		ctx = logger.WithContext(ctx)

		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		ev := logger.Info()
		if err != nil {
			ev = logger.Warn().Err(err)
		}
		ev.Str("code", code.String()).Dur("duration", time.Since(start)).Msg("gRPC call")

		return resp, err
	}
}
