// Package pipeline runs a single style-transfer request: decode the source
// image, encode it to a tensor, evaluate the model and decode the output.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/bitmap"
	"github.com/SyedDaiam9101/style-transfer-service/internal/codec"
	"github.com/SyedDaiam9101/style-transfer-service/internal/inference"
	"github.com/SyedDaiam9101/style-transfer-service/internal/metrics"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

// Stage labels attached to errors.
const (
	StageDecodeImage  = "decode-image"
	StageEncode       = "encode"
	StageLoadModel    = "load-model"
	StageEvaluate     = "evaluate"
	StageDecodeTensor = "decode-tensor"
)

// ImageLoader turns a source reference or encoded bytes into a bitmap.
type ImageLoader interface {
	Load(ctx context.Context, source string) (*bitmap.Bitmap, error)
	DecodeBytes(data []byte) (*bitmap.Bitmap, error)
}

// Codec converts between bitmaps and tensors.
type Codec interface {
	Encode(pix []byte, width, height int) (*tensor.Tensor, error)
	Decode(t *tensor.Tensor, width, height int) ([]byte, error)
}

// Engine is the inference adapter.
type Engine interface {
	EnsureLoaded(ctx context.Context) (inference.Session, error)
	Evaluate(ctx context.Context, s inference.Session, in *tensor.Tensor) (inference.Result, error)
}

// Result is the output of a run.
type Result struct {
	Bitmap *bitmap.Bitmap
	// Elapsed is the model evaluation time only.
	Elapsed time.Duration
}

// Seconds returns Elapsed in fractional seconds.
func (r Result) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// Orchestrator is the single entry point for style-transfer requests. It keeps
// no state between runs beyond the engine it was built with.
type Orchestrator struct {
	engine Engine
	images ImageLoader
	codec  Codec
	width  int
	height int
	logger zerolog.Logger
	tracer trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCodec replaces the planar codec.
func WithCodec(c Codec) Option {
	return func(o *Orchestrator) { o.codec = c }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator producing size x size bitmaps.
func New(engine Engine, images ImageLoader, size int, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine: engine,
		images: images,
		codec:  codec.Planar{},
		width:  size,
		height: size,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("github.com/SyedDaiam9101/style-transfer-service/internal/pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run loads source (data URL, http(s) URL or path) and stylizes it.
func (o *Orchestrator) Run(ctx context.Context, source string) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	var bm *bitmap.Bitmap
	err := o.stage(ctx, StageDecodeImage, func(ctx context.Context) (err error) {
		bm, err = o.images.Load(ctx, source)
		return err
	})
	if err != nil {
		return fail(span, err)
	}
	return o.stylize(ctx, span, bm)
}

// RunBytes stylizes an encoded image.
func (o *Orchestrator) RunBytes(ctx context.Context, data []byte) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.RunBytes")
	defer span.End()
	span.SetAttributes(attribute.Int("image.bytes", len(data)))

	var bm *bitmap.Bitmap
	err := o.stage(ctx, StageDecodeImage, func(ctx context.Context) (err error) {
		bm, err = o.images.DecodeBytes(data)
		return err
	})
	if err != nil {
		return fail(span, err)
	}
	return o.stylize(ctx, span, bm)
}

func (o *Orchestrator) stylize(ctx context.Context, span trace.Span, bm *bitmap.Bitmap) (Result, error) {
	var (
		in      *tensor.Tensor
		session inference.Session
		res     inference.Result
		pix     []byte
	)

	err := o.stage(ctx, StageEncode, func(ctx context.Context) (err error) {
		in, err = o.codec.Encode(bm.Pix, o.width, o.height)
		return err
	})
	if err == nil {
		err = o.stage(ctx, StageLoadModel, func(ctx context.Context) (err error) {
			session, err = o.engine.EnsureLoaded(ctx)
			return err
		})
	}
	if err == nil {
		err = o.stage(ctx, StageEvaluate, func(ctx context.Context) (err error) {
			res, err = o.engine.Evaluate(ctx, session, in)
			return err
		})
	}
	if err == nil {
		err = o.stage(ctx, StageDecodeTensor, func(ctx context.Context) (err error) {
			pix, err = o.codec.Decode(res.Output, o.width, o.height)
			return err
		})
	}
	if err != nil {
		return fail(span, err)
	}

	out, err := bitmap.New(pix, o.width, o.height)
	if err != nil {
		return fail(span, apperr.WithStage(err, StageDecodeTensor))
	}

	span.SetAttributes(attribute.Float64("inference.seconds", res.Seconds()))
	o.log(ctx).Info().
		Float64("inference_seconds", res.Seconds()).
		Int("width", o.width).
		Int("height", o.height).
		Msg("Style transfer complete")

	return Result{
		Bitmap:  out,
		Elapsed: res.Elapsed,
	}, nil
}

// stage runs fn in its own span and labels any error with name.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := apperr.WithStage(fn(ctx), name)
	if err != nil {
		kind := string(apperr.KindOf(err))
		if kind == "" {
			kind = "UNKNOWN"
		}
		metrics.RecordPipelineError(name, kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		o.log(ctx).Error().Err(err).Str("stage", name).Str("kind", kind).Msg("Style transfer stage failed")
		return err
	}

	o.log(ctx).Debug().Str("stage", name).Dur("took", time.Since(start)).Msg("Stage complete")
	return nil
}

// log prefers the request-scoped logger carried by ctx.
func (o *Orchestrator) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &o.logger
}

func fail(span trace.Span, err error) (Result, error) {
	span.SetStatus(codes.Error, err.Error())
	return Result{}, err
}
