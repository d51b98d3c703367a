// internal/middleware/metrics.go
package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/style-transfer-service/internal/metrics"
)

// UnaryMetricsInterceptor records the latency of each unary call by method and status code.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCLatency(info.FullMethod, status.Code(err).String(), time.Since(start).Seconds())
		return resp, err
	}
}
