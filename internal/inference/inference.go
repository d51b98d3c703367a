// internal/inference/inference.go
package inference

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/SyedDaiam9101/style-transfer-service/internal/apperr"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

// Execution providers understood by the ONNX loader.
const (
	ProviderCUDA = "cuda"
	ProviderCPU  = "cpu"
)

// Options configures the ONNX runtime loader.
type Options struct {
	// ModelPath is the serialized ONNX graph.
	ModelPath string
	// LibraryPath overrides the onnxruntime shared library location.
	LibraryPath string
	// Providers are tried in order; the first one that yields a session wins.
	Providers []string
	// IntraOpThreads is passed to the runtime when > 0.
	IntraOpThreads int
	// DeviceID selects the CUDA device.
	DeviceID int
	Logger   zerolog.Logger
}

// envMu guards process-wide runtime environment setup.
var envMu sync.Mutex

// ONNXSession wraps an onnxruntime dynamic session. Runs are safe for
// concurrent use; onnxruntime sessions are re-entrant.
type ONNXSession struct {
	session    *ort.DynamicAdvancedSession
	input      ort.InputOutputInfo
	output     ort.InputOutputInfo
	inputShape []int64
	provider   string
}

// NewONNXLoader returns a Loader that opens opts.ModelPath with onnxruntime.
func NewONNXLoader(opts Options) Loader {
	return func(ctx context.Context) (Session, error) {
		return LoadONNX(opts)
	}
}

// LoadONNX loads the model, discovering its input and output names and
// falling back through opts.Providers until one succeeds.
func LoadONNX(opts Options) (*ONNXSession, error) {
	if opts.ModelPath == "" {
		return nil, apperr.NewModelLoadError(nil, "empty model path")
	}
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, apperr.NewModelLoadError(err, "model artifact not found")
	}

	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, apperr.NewModelLoadError(err, "failed to initialize ONNX environment")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, apperr.NewModelLoadError(err, "failed to read model inputs and outputs")
	}
	in, out, err := selectIO(inputs, outputs)
	if err != nil {
		return nil, apperr.NewModelLoadError(err, "unsupported model signature")
	}
	if len(inputs) > 1 || len(outputs) > 1 {
		opts.Logger.Warn().
			Int("inputs", len(inputs)).
			Int("outputs", len(outputs)).
			Msg("Model declares several inputs or outputs; using the first of each")
	}

	providers := opts.Providers
	if len(providers) == 0 {
		providers = []string{ProviderCPU}
	}

	var errs []string
	for _, provider := range providers {
		session, err := newSession(opts, provider, in, out)
		if err != nil {
			opts.Logger.Warn().Err(err).Str("provider", provider).Msg("Execution provider unavailable, trying next")
			errs = append(errs, fmt.Sprintf("%s: %v", provider, err))
			continue
		}
		opts.Logger.Info().
			Str("provider", provider).
			Str("input", in.Name).
			Str("output", out.Name).
			Ints64("input_shape", in.Dimensions).
			Msg("ONNX session created")
		return &ONNXSession{
			session:    session,
			input:      in,
			output:     out,
			inputShape: append([]int64(nil), in.Dimensions...),
			provider:   provider,
		}, nil
	}

	return nil, apperr.NewModelLoadError(nil, "failed to create ONNX session (%s)", strings.Join(errs, "; "))
}

func initEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	return ort.InitializeEnvironment()
}

func selectIO(inputs, outputs []ort.InputOutputInfo) (ort.InputOutputInfo, ort.InputOutputInfo, error) {
	if len(inputs) == 0 || len(outputs) == 0 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if len(in.Dimensions) != 4 {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("expected 4D input, got %dD", len(in.Dimensions))
	}
	if in.DataType != ort.TensorElementDataTypeFloat {
		return ort.InputOutputInfo{}, ort.InputOutputInfo{},
			fmt.Errorf("expected float32 input, got %v", in.DataType)
	}
	return in, out, nil
}

func newSession(opts Options, provider string, in, out ort.InputOutputInfo) (*ort.DynamicAdvancedSession, error) {
	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOptions.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	switch provider {
	case ProviderCPU:
	case ProviderCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("failed to create CUDA options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := cudaOptions.Update(map[string]string{"device_id": fmt.Sprint(opts.DeviceID)}); err != nil {
			return nil, fmt.Errorf("failed to configure CUDA: %w", err)
		}
		if err := sessionOptions.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, fmt.Errorf("failed to enable CUDA: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown execution provider %q", provider)
	}

	session, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{in.Name},
		[]string{out.Name},
		sessionOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// InputNames returns the model's first declared input name.
func (s *ONNXSession) InputNames() []string { return []string{s.input.Name} }

// OutputNames returns the model's first declared output name.
func (s *ONNXSession) OutputNames() []string { return []string{s.output.Name} }

// InputShape returns the declared input shape, -1 for dynamic axes.
func (s *ONNXSession) InputShape() []int64 { return s.inputShape }

// Provider returns the execution provider the session was created with.
func (s *ONNXSession) Provider() string { return s.provider }

// Run evaluates the model. The output is copied out of runtime-owned memory
// before the runtime tensor is released.
func (s *ONNXSession) Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	if s.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}
	in, ok := feeds[s.input.Name]
	if !ok {
		return nil, fmt.Errorf("missing feed for input %q", s.input.Name)
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// A nil output slot is allocated by the runtime with the actual output shape.
	outputs := []ort.ArbitraryTensor{nil}
	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("output %q is not a float32 tensor", s.output.Name)
	}

	data := append([]float32(nil), outputTensor.GetData()...)
	shape := append([]int64(nil), outputTensor.GetShape()...)
	out, err := tensor.New(s.output.Name, data, shape...)
	if err != nil {
		return nil, err
	}
	return map[string]*tensor.Tensor{s.output.Name: out}, nil
}

// Close releases the ONNX session and the runtime environment.
func (s *ONNXSession) Close() error {
	if s.session != nil {
		err := s.session.Destroy()
		s.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

// Inspect reports the input and output signature of a model without
// creating a session.
func Inspect(modelPath, libraryPath string) ([]ort.InputOutputInfo, []ort.InputOutputInfo, error) {
	if err := initEnvironment(libraryPath); err != nil {
		return nil, nil, apperr.NewModelLoadError(err, "failed to initialize ONNX environment")
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, apperr.NewModelLoadError(err, "failed to read model inputs and outputs")
	}
	return inputs, outputs, nil
}

// Ensure ONNXSession implements Session at compile time
var _ Session = (*ONNXSession)(nil)
