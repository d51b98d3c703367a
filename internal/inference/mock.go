// internal/inference/mock.go
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

// MockSession is a mock implementation of Session for testing.
// It returns deterministic outputs without requiring the ONNX shared library.
type MockSession struct {
	mu sync.Mutex

	// Input and Output are the names reported by InputNames and OutputNames
	Input  string
	Output string
	// Shape is the declared input shape; nil disables the rank check
	Shape []int64
	// DefaultOutput, if set, is returned for every call instead of echoing the input
	DefaultOutput *tensor.Tensor
	// Delay is slept inside Run
	Delay time.Duration
	// ShouldError if true, Run will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Run was called
	CallCount int
	// LastFeeds holds the feeds of the most recent Run
	LastFeeds map[string]*tensor.Tensor
	// Closed is set by Close
	Closed bool
}

// NewMock creates a MockSession that echoes its input, like an identity model.
func NewMock() *MockSession {
	return &MockSession{
		Input:  "input",
		Output: "output",
		Shape:  []int64{1, 3, -1, -1},
	}
}

// NewMockWithOutput creates a MockSession that always returns out.
func NewMockWithOutput(out *tensor.Tensor) *MockSession {
	m := NewMock()
	m.DefaultOutput = out
	return m
}

// InputNames returns the mock input name.
func (m *MockSession) InputNames() []string { return []string{m.Input} }

// OutputNames returns the mock output name.
func (m *MockSession) OutputNames() []string { return []string{m.Output} }

// InputShape returns the declared input shape.
func (m *MockSession) InputShape() []int64 { return m.Shape }

// Run returns DefaultOutput, or a copy of the input feed renamed to the output name.
func (m *MockSession) Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastFeeds = feeds
	delay := m.Delay
	shouldError, msg := m.ShouldError, m.ErrorMessage
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if shouldError {
		if msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	if m.DefaultOutput != nil {
		return map[string]*tensor.Tensor{m.Output: m.DefaultOutput.Rename(m.Output)}, nil
	}

	in, ok := feeds[m.Input]
	if !ok {
		return nil, fmt.Errorf("missing feed for input %q", m.Input)
	}
	out := &tensor.Tensor{
		Name:        m.Output,
		ElementType: in.ElementType,
		Data:        append([]float32(nil), in.Data...),
		Shape:       append([]int64(nil), in.Shape...),
	}
	return map[string]*tensor.Tensor{m.Output: out}, nil
}

// Calls returns CallCount under the lock.
func (m *MockSession) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Close marks the mock closed.
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// SetError configures the mock to return an error on the next Run call
func (m *MockSession) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockSession) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// MockLoader returns a Loader that always yields s.
func MockLoader(s Session) Loader {
	return func(ctx context.Context) (Session, error) {
		return s, nil
	}
}

// Ensure MockSession implements Session at compile time
var _ Session = (*MockSession)(nil)
