// internal/middleware/middleware_test.go
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/stylize.v1.StyleTransfer/Stylize"}

func TestUnaryRequestIDInterceptor_GeneratesID(t *testing.T) {
	interceptor := UnaryRequestIDInterceptor()

	var capturedCtx context.Context
	mockHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return "response", nil
	}

	_, err := interceptor(context.Background(), nil, testInfo, mockHandler)
	if err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}

	// UUID format: 36 chars with dashes
	requestID := GetRequestID(capturedCtx)
	if len(requestID) != 36 {
		t.Errorf("Expected UUID format (36 chars), got %d chars: %q", len(requestID), requestID)
	}
}

func TestUnaryRequestIDInterceptor_PreservesExistingID(t *testing.T) {
	interceptor := UnaryRequestIDInterceptor()
	existingID := "test-request-id-12345"

	var capturedCtx context.Context
	mockHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return "response", nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, existingID))
	if _, err := interceptor(ctx, nil, testInfo, mockHandler); err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}

	if requestID := GetRequestID(capturedCtx); requestID != existingID {
		t.Errorf("Expected request ID %s, got %s", existingID, requestID)
	}
}

func TestUnaryRequestIDInterceptor_ReplacesOversizedID(t *testing.T) {
	interceptor := UnaryRequestIDInterceptor()
	huge := strings.Repeat("x", maxRequestIDLen+1)

	var capturedCtx context.Context
	mockHandler := func(ctx context.Context, req interface{}) (interface{}, error) {
		capturedCtx = ctx
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, huge))
	if _, err := interceptor(ctx, nil, testInfo, mockHandler); err != nil {
		t.Fatalf("Interceptor failed: %v", err)
	}
	if id := GetRequestID(capturedCtx); id == huge || len(id) != 36 {
		t.Errorf("Expected a generated ID, got %q", id)
	}
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	if requestID := GetRequestID(context.Background()); requestID != "" {
		t.Errorf("Expected empty request ID from empty context, got %s", requestID)
	}
}

func TestUnaryLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	interceptor := UnaryLoggingInterceptor(zerolog.New(&buf))

	ctx := WithRequestID(context.Background(), "req-1")
	_, err := interceptor(ctx, nil, testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		zerolog.Ctx(ctx).Info().Msg("inside")
		return nil, status.Error(codes.InvalidArgument, "bad image")
	})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("Expected the handler error to pass through, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Invalid JSON log line %q: %v", line, err)
		}
		if entry["request_id"] != "req-1" || entry["method"] != testInfo.FullMethod {
			t.Errorf("Expected request-scoped fields, got %v", entry)
		}
	}

	var last map[string]interface{}
	_ = json.Unmarshal([]byte(lines[1]), &last)
	if last["code"] != "InvalidArgument" || last["level"] != "warn" {
		t.Errorf("Unexpected completion entry: %v", last)
	}
}

func TestUnaryMetricsInterceptor_PassesThrough(t *testing.T) {
	interceptor := UnaryMetricsInterceptor()
	want := errors.New("boom")

	resp, err := interceptor(context.Background(), "req", testInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", want
	})
	if resp != "resp" || err != want {
		t.Errorf("Expected handler results unchanged, got %v, %v", resp, err)
	}
}
