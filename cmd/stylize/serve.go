// cmd/stylize/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/style-transfer-service/internal/bitmap"
	"github.com/SyedDaiam9101/style-transfer-service/internal/cache"
	"github.com/SyedDaiam9101/style-transfer-service/internal/handler"
	"github.com/SyedDaiam9101/style-transfer-service/internal/httpapi"
	"github.com/SyedDaiam9101/style-transfer-service/internal/metrics"
	"github.com/SyedDaiam9101/style-transfer-service/internal/middleware"
	"github.com/SyedDaiam9101/style-transfer-service/internal/tracing"
)

// drainDelay gives load balancers time to see NOT_SERVING before connections close.
const drainDelay = 5 * time.Second

func newServeCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve style transfer over gRPC and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, *configFile)
		},
	}

	f := cmd.Flags()
	f.Int("port", 0, "gRPC server port (default: 50051)")
	f.Int("http-port", 0, "HTTP port for the REST API, metrics and health (default: 9100)")
	f.String("redis", "", "Redis address for the result cache; empty disables it")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the HTTP API from a browser")
	f.Bool("allow-remote", false, "Let HTTP callers stylize public http(s) image URLs")
	return cmd
}

func serve(cmd *cobra.Command, configFile string) error {
	cfg, logger, err := loadConfig(cmd, configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Int("port", cfg.Port).
		Int("http_port", cfg.HTTPPort).
		Str("model", cfg.Model).
		Strs("providers", cfg.ExecutionProviders).
		Int("image_size", cfg.ImageSize).
		Str("redis", cfg.Redis).
		Bool("allow_remote_sources", cfg.AllowRemoteSources).
		Bool("otel", cfg.OTELEnabled).
		Msgf("Starting %s", serviceName)

	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = tracing.Init(tracing.Options{
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Endpoint:       cfg.OTELEndpoint,
			Writer:         cmd.OutOrStdout(),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer")
		} else {
			logger.Info().Str("endpoint", cfg.OTELEndpoint).Msg("OpenTelemetry tracing enabled")
		}
	}

	orch, adapter := buildPipeline(cfg, logger, bitmap.NewPublicClient(30*time.Second))
	defer adapter.Close()

	// Load eagerly so the first request does not pay for it; a failure here is
	// retried on the next request.
	go func() {
		if _, err := adapter.EnsureLoaded(ctx); err != nil {
			logger.Error().Err(err).Msg("Initial model load failed")
		}
	}()

	var stylizerOpts []handler.StylizerOption
	if cfg.Redis != "" {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rc, err := cache.New(pingCtx, cfg.Redis)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing without result cache")
		} else {
			defer rc.Close()
			stylizerOpts = append(stylizerOpts, handler.WithCache(rc, cfg.Model, cfg.CacheTTL))
			logger.Info().Str("addr", cfg.Redis).Dur("ttl", cfg.CacheTTL).Msg("Result cache enabled")
		}
	}
	stylizer := handler.NewStylizer(orch, stylizerOpts...)

	healthServer := health.NewServer()

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryLoggingInterceptor(logger),
		middleware.UnaryMetricsInterceptor(),
	}
	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
		grpc.MaxRecvMsgSize(int(cfg.MaxImageBytes)+1024),
	)
	handler.RegisterStyleTransferServer(grpcServer, handler.New(stylizer))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpapi.NewMux(stylizer, httpapi.Options{
			MaxBodyBytes:   2 * cfg.MaxImageBytes,
			Ready:          adapter.Loaded,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowRemote:    cfg.AllowRemoteSources,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", addr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()
	logger.Info().Msgf("%s is ready to accept requests", serviceName)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down gracefully")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Server failed, shutting down")
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	metrics.SetUnhealthy()
	if serveErr == nil {
		time.Sleep(drainDelay)
	}

	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown")
	}
	if tracerShutdown != nil {
		if err := tracerShutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Tracer shutdown")
		}
	}

	logger.Info().Msg("Server shutdown complete")
	return serveErr
}
