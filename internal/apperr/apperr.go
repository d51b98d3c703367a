// Package apperr defines the error taxonomy shared by the style-transfer pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	// ImageDecodeError means the source image could not be loaded or decoded.
	ImageDecodeError Kind = "IMAGE_DECODE_ERROR"
	// InvalidDimensions means a buffer or tensor length does not match its declared shape.
	InvalidDimensions Kind = "INVALID_DIMENSIONS"
	// ModelLoadError means the model artifact or the runtime failed to initialize.
	ModelLoadError Kind = "MODEL_LOAD_ERROR"
	// InferenceExecutionError means the model evaluation call failed.
	InferenceExecutionError Kind = "INFERENCE_EXECUTION_ERROR"
)

// Error implements error so that errors.Is(err, apperr.ModelLoadError) works.
func (k Kind) Error() string { return string(k) }

// Error is a classified failure. Stage is set by the orchestrator and names the
// pipeline step that failed; it never changes the Kind.
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind with cause attached.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Factory functions, one per kind

func NewImageDecodeError(cause error, format string, args ...interface{}) *Error {
	return Wrap(ImageDecodeError, cause, format, args...)
}

func NewInvalidDimensions(format string, args ...interface{}) *Error {
	return New(InvalidDimensions, format, args...)
}

func NewModelLoadError(cause error, format string, args ...interface{}) *Error {
	return Wrap(ModelLoadError, cause, format, args...)
}

func NewInferenceExecutionError(cause error, format string, args ...interface{}) *Error {
	return Wrap(InferenceExecutionError, cause, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf returns the stage label attached to err, or "" if none.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// WithStage labels err with the pipeline stage that produced it. A classified
// error is copied with Stage set; an existing label is kept. An unclassified
// error is returned unchanged.
func WithStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Stage != "" {
		return err
	}
	labeled := *e
	labeled.Stage = stage
	return &labeled
}
