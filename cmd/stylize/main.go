// cmd/stylize/main.go
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/SyedDaiam9101/style-transfer-service/internal/bitmap"
	"github.com/SyedDaiam9101/style-transfer-service/internal/config"
	"github.com/SyedDaiam9101/style-transfer-service/internal/inference"
	"github.com/SyedDaiam9101/style-transfer-service/internal/logging"
	"github.com/SyedDaiam9101/style-transfer-service/internal/pipeline"
)

const (
	serviceName    = "style-transfer-service"
	serviceVersion = "1.0.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "stylize",
		Short:         "Neural style transfer over ONNX Runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to config file (optional)")
	pf.String("model", "", "Path to ONNX model file (default: models/nst_model.onnx)")
	pf.String("onnx-library", "", "Path to the onnxruntime shared library")
	pf.StringSlice("providers", nil, "Execution providers in preference order (default: cuda,cpu)")
	pf.Int("image-size", 0, "Canonical image width and height (default: 256)")
	pf.Duration("evaluate-timeout", 0, "Bound on a single model evaluation; 0 disables it")
	pf.String("log-level", "", "Log level: debug|info|warn|error (default: info)")
	pf.String("log-format", "", "Log format: json|console (default: json)")
	pf.Bool("mock", false, "Use mock inference engine (for testing)")

	root.AddCommand(
		newServeCmd(&configFile),
		newRunCmd(&configFile),
		newInspectCmd(&configFile),
	)
	return root
}

// loadConfig reads and validates the configuration for cmd and builds the logger.
func loadConfig(cmd *cobra.Command, configFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat), nil
}

// buildPipeline wires the inference adapter, image loader and orchestrator.
// A non-nil remote replaces the client used for http(s) sources.
func buildPipeline(cfg *config.Config, logger zerolog.Logger, remote *http.Client) (*pipeline.Orchestrator, *inference.Adapter) {
	var load inference.Loader
	if cfg.UseMockInference {
		logger.Warn().Msg("Using mock inference engine")
		load = inference.MockLoader(inference.NewMock())
	} else {
		opts := cfg.InferenceOptions()
		opts.Logger = logger
		load = inference.NewONNXLoader(opts)
	}

	adapter := inference.NewAdapter(load,
		inference.WithTimeout(cfg.EvaluateTimeout),
		inference.WithSerializedEvaluate(cfg.SerializeEvaluate),
		inference.WithLogger(logger),
	)

	images := bitmap.NewLoader(cfg.ImageSize, cfg.ImageSize)
	images.MaxBytes = cfg.MaxImageBytes
	images.MaxPixels = cfg.MaxImagePixels
	if remote != nil {
		images.Client = remote
	}

	orch := pipeline.New(adapter, images, cfg.ImageSize,
		pipeline.WithLogger(logger),
		pipeline.WithTracer(otel.Tracer(serviceName)),
	)
	return orch, adapter
}
