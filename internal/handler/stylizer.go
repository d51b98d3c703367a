// internal/handler/stylizer.go
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/style-transfer-service/internal/bitmap"
	"github.com/SyedDaiam9101/style-transfer-service/internal/cache"
	"github.com/SyedDaiam9101/style-transfer-service/internal/metrics"
	"github.com/SyedDaiam9101/style-transfer-service/internal/pipeline"
)

// Runner runs the style-transfer pipeline.
type Runner interface {
	Run(ctx context.Context, source string) (pipeline.Result, error)
	RunBytes(ctx context.Context, data []byte) (pipeline.Result, error)
}

// ResultCache stores encoded results between requests.
type ResultCache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, entry cache.Entry, ttl time.Duration) error
}

// Output is a stylized image ready to send.
type Output struct {
	PNG     []byte
	Seconds float64
	Cached  bool
}

// Stylizer is shared by the gRPC and HTTP surfaces. It runs the pipeline,
// encodes the bitmap as PNG and consults the optional result cache.
type Stylizer struct {
	runner Runner
	cache  ResultCache
	model  string
	ttl    time.Duration
}

// StylizerOption configures a Stylizer.
type StylizerOption func(*Stylizer)

// WithCache enables result caching for results produced by model.
func WithCache(c ResultCache, model string, ttl time.Duration) StylizerOption {
	return func(s *Stylizer) {
		s.cache = c
		s.model = model
		s.ttl = ttl
	}
}

// NewStylizer creates a Stylizer over r.
func NewStylizer(r Runner, opts ...StylizerOption) *Stylizer {
	s := &Stylizer{runner: r}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StylizeBytes stylizes an encoded image. Results are cached by image content.
func (s *Stylizer) StylizeBytes(ctx context.Context, data []byte) (Output, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(data, s.model)
		if out, ok := s.lookup(ctx, key); ok {
			return out, nil
		}
	}

	res, err := s.runner.RunBytes(ctx, data)
	if err != nil {
		return Output{}, err
	}
	out, err := encode(res)
	if err != nil {
		return Output{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cache.Entry{PNG: out.PNG, Seconds: out.Seconds}, s.ttl); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to store result")
		}
	}
	return out, nil
}

// StylizeSource stylizes the image at source. Remote content may change, so
// these results bypass the cache.
func (s *Stylizer) StylizeSource(ctx context.Context, source string) (Output, error) {
	res, err := s.runner.Run(ctx, source)
	if err != nil {
		return Output{}, err
	}
	return encode(res)
}

func (s *Stylizer) lookup(ctx context.Context, key string) (Output, bool) {
	entry, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup("error")
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Result cache lookup failed")
		return Output{}, false
	case !ok:
		metrics.RecordCacheLookup("miss")
		return Output{}, false
	}
	metrics.RecordCacheLookup("hit")
	return Output{PNG: entry.PNG, Seconds: entry.Seconds, Cached: true}, true
}

func encode(res pipeline.Result) (Output, error) {
	png, err := bitmap.EncodePNG(res.Bitmap)
	if err != nil {
		return Output{}, fmt.Errorf("failed to encode result: %w", err)
	}
	return Output{PNG: png, Seconds: res.Seconds()}, nil
}
