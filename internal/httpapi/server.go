// Package httpapi exposes the stylizer over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"

	"github.com/SyedDaiam9101/style-transfer-service/internal/handler"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	StylizeBytes(ctx context.Context, data []byte) (handler.Output, error)
	StylizeSource(ctx context.Context, source string) (handler.Output, error)
}

// Options configures the mux.
type Options struct {
	// MaxBodyBytes bounds request bodies; 10 MiB when zero
	MaxBodyBytes int64
	// Ready reports whether the model is loaded; nil means always ready
	Ready func() bool
	// AllowedOrigins enables CORS for browser clients when non-empty
	AllowedOrigins []string
	// AllowRemote accepts http(s) URLs as JSON sources; data URLs are always accepted
	AllowRemote bool
	Logger      zerolog.Logger
}

// StylizeRequest is the JSON form of POST /v1/stylize.
type StylizeRequest struct {
	// Source is a data URL or an http(s) URL
	Source string `json:"source"`
}

const defaultMaxBodyBytes = 10 << 20

// NewMux builds the HTTP router.
func NewMux(svc Service, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Inference-Seconds", "X-Cache"},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ready != nil && !opts.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Post("/v1/stylize", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)

		var (
			out handler.Output
			err error
		)
		if isJSON(r.Header.Get("Content-Type")) {
			var req StylizeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
			if msg := checkSource(req.Source, opts.AllowRemote); msg != "" {
				writeJSONError(w, http.StatusBadRequest, msg)
				return
			}
			out, err = svc.StylizeSource(r.Context(), req.Source)
		} else {
			data, rerr := io.ReadAll(r.Body)
			var maxErr *http.MaxBytesError
			switch {
			case errors.As(rerr, &maxErr):
				writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
				return
			case rerr != nil:
				writeJSONError(w, http.StatusBadRequest, "failed to read body")
				return
			case len(data) == 0:
				writeJSONError(w, http.StatusBadRequest, "source image cannot be empty")
				return
			}
			out, err = svc.StylizeBytes(r.Context(), data)
		}

		if err != nil {
			// Client went away
			if r.Context().Err() != nil {
				return
			}
			status := httpStatus(handler.Code(err))
			zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("Stylize failed")
			writeJSONError(w, status, publicMessage(status))
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(out.PNG)))
		w.Header().Set("X-Inference-Seconds", strconv.FormatFloat(out.Seconds, 'f', -1, 64))
		w.Header().Set("X-Cache", cacheState(out.Cached))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.PNG)
	})

	return r
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
}

// checkSource returns a client-facing reason when source may not be used.
// File paths are only read by the CLI. The prefixes match the loader's
// dispatch exactly so nothing here can fall through to a file read.
func checkSource(source string, allowRemote bool) string {
	switch {
	case strings.HasPrefix(source, "data:"):
		return ""
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		if !allowRemote {
			return "remote sources are disabled"
		}
		return ""
	case allowRemote:
		return "source must be a data URL or an http(s) URL"
	default:
		return "source must be a data URL"
	}
}

func httpStatus(c codes.Code) int {
	switch c {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the response text for a failed run; the cause stays in the log.
func publicMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid source image"
	case http.StatusServiceUnavailable:
		return "model unavailable"
	case http.StatusGatewayTimeout:
		return "inference timed out"
	default:
		return "style transfer failed"
	}
}

func cacheState(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
