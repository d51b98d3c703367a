// internal/handler/handler.go
package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	// InferenceSecondsHeader carries the model evaluation time of the response.
	InferenceSecondsHeader = "x-inference-seconds"
	// CacheHeader is "hit" when the response came from the result cache.
	CacheHeader = "x-cache"
)

// Handler implements the StyleTransferServer interface.
type Handler struct {
	stylizer *Stylizer
}

// New creates a new Handler backed by s.
func New(s *Stylizer) *Handler {
	return &Handler{stylizer: s}
}

// Stylize handles a single style-transfer request.
func (h *Handler) Stylize(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx)

	if req == nil || len(req.GetValue()) == 0 {
		return nil, invalidArgumentError("source image cannot be empty")
	}
	if h.stylizer == nil {
		return nil, failedPreconditionError("style transfer pipeline not initialized")
	}

	out, err := h.stylizer.StylizeBytes(ctx, req.GetValue())
	if err != nil {
		logger.Error().Err(err).Msg("Stylize failed")
		return nil, grpcError(err)
	}
	if len(out.PNG) == 0 {
		return nil, internalError("empty result image")
	}

	// Fails outside a server transport, e.g. in direct calls from tests
	_ = grpc.SetHeader(ctx, metadata.Pairs(
		InferenceSecondsHeader, strconv.FormatFloat(out.Seconds, 'f', -1, 64),
		CacheHeader, cacheState(out.Cached),
	))

	logger.Info().
		Int("input_bytes", len(req.GetValue())).
		Int("output_bytes", len(out.PNG)).
		Float64("inference_seconds", out.Seconds).
		Bool("cached", out.Cached).
		Dur("total", time.Since(start)).
		Msg("Stylize")

	return wrapperspb.Bytes(out.PNG), nil
}

func cacheState(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

var _ StyleTransferServer = (*Handler)(nil)
