package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/metrics"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

// Result is the output of a single evaluation.
type Result struct {
	Output *tensor.Tensor
	// Elapsed covers the engine run call only.
	Elapsed time.Duration
}

// Seconds returns Elapsed in fractional seconds.
func (r Result) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// Adapter owns the engine handle. Build one at startup and share it; the
// session is created on first use and reused for the life of the Adapter.
type Adapter struct {
	load      Loader
	timeout   time.Duration
	serialize bool
	logger    zerolog.Logger

	mu     sync.Mutex // serializes loading
	handle atomic.Pointer[loaded]

	evalMu sync.Mutex // held around Run when serialize is set

	// runMu is read-held by every engine call, including ones that outlived
	// their timeout; Close takes it exclusively before releasing the session.
	runMu sync.RWMutex
}

type loaded struct {
	session Session
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds each evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithSerializedEvaluate runs at most one evaluation at a time.
func WithSerializedEvaluate(on bool) Option {
	return func(a *Adapter) { a.serialize = on }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an Adapter that loads its session with load.
func NewAdapter(load Loader, opts ...Option) *Adapter {
	a := &Adapter{load: load, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Loaded reports whether a session is ready.
func (a *Adapter) Loaded() bool {
	return a.handle.Load() != nil
}

// EnsureLoaded returns the session, loading it on first call. Concurrent first
// calls result in a single load. A failed load is not cached.
func (a *Adapter) EnsureLoaded(ctx context.Context) (Session, error) {
	if h := a.handle.Load(); h != nil {
		return h.session, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if h := a.handle.Load(); h != nil {
		return h.session, nil
	}
	if a.load == nil {
		return nil, apperr.NewModelLoadError(nil, "no model loader configured")
	}

	start := time.Now()
	session, err := a.load(ctx)
	if err == nil && session == nil {
		err = errors.New("loader returned no session")
	}
	if err != nil {
		metrics.RecordModelLoad(false)
		a.logger.Error().Err(err).Msg("Model load failed")
		if apperr.KindOf(err) == apperr.ModelLoadError {
			return nil, err
		}
		return nil, apperr.NewModelLoadError(err, "failed to load model")
	}

	metrics.RecordModelLoad(true)
	ev := a.logger.Info()
	if p, ok := session.(interface{ Provider() string }); ok {
		ev = ev.Str("provider", p.Provider())
	}
	ev.Strs("inputs", session.InputNames()).
		Strs("outputs", session.OutputNames()).
		Dur("load_time", time.Since(start)).
		Msg("Model loaded")

	a.handle.Store(&loaded{session: session})
	return session, nil
}

// Evaluate runs s on in, feeding it under the first declared input name and
// reading the first declared output. Elapsed is measured around the run only.
func (a *Adapter) Evaluate(ctx context.Context, s Session, in *tensor.Tensor) (Result, error) {
	if s == nil {
		return Result{}, apperr.NewInferenceExecutionError(nil, "no session")
	}
	if err := in.Validate(); err != nil {
		return Result{}, err
	}

	inputs, outputs := s.InputNames(), s.OutputNames()
	if len(inputs) == 0 || len(outputs) == 0 {
		return Result{}, apperr.NewInferenceExecutionError(nil,
			"session declares %d inputs and %d outputs", len(inputs), len(outputs))
	}
	if declared := s.InputShape(); declared != nil && len(declared) != in.Rank() {
		return Result{}, apperr.NewInvalidDimensions("input %q expects rank %d, got shape %v",
			inputs[0], len(declared), in.Shape)
	}

	feeds := map[string]*tensor.Tensor{inputs[0]: in.Rename(inputs[0])}

	if err := ctx.Err(); err != nil {
		return Result{}, apperr.NewInferenceExecutionError(err, "evaluation not started")
	}

	start := time.Now()
	results, err := a.run(ctx, s, feeds)
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}

	if err != nil {
		return Result{}, apperr.NewInferenceExecutionError(err, "evaluation failed after %s", elapsed)
	}

	out, ok := results[outputs[0]]
	if !ok || out == nil {
		return Result{}, apperr.NewInferenceExecutionError(nil, "engine returned no output %q", outputs[0])
	}
	if err := out.Validate(); err != nil {
		return Result{}, err
	}

	metrics.RecordInferenceLatency(elapsed.Seconds())
	if e := a.logger.Debug(); e.Enabled() {
		e.Stringer("output", out.Stats()).Dur("elapsed", elapsed).Msg("Evaluation complete")
	}

	return Result{Output: out, Elapsed: elapsed}, nil
}

// run calls s.Run, returning early if ctx ends or the timeout passes. The
// engine call itself cannot be aborted and finishes in the background.
func (a *Adapter) run(ctx context.Context, s Session, feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	call := func() (map[string]*tensor.Tensor, error) {
		a.runMu.RLock()
		defer a.runMu.RUnlock()
		if a.serialize {
			a.evalMu.Lock()
			defer a.evalMu.Unlock()
		}
		return s.Run(feeds)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	if ctx.Done() == nil {
		return call()
	}

	type outcome struct {
		results map[string]*tensor.Tensor
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := call()
		done <- outcome{results, err}
	}()

	select {
	case o := <-done:
		return o.results, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the session if one was loaded. It waits for engine calls still
// running, including those whose caller already gave up on a timeout.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.handle.Swap(nil)
	if h == nil {
		return nil
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()
	return h.session.Close()
}
