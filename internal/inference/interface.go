// internal/inference/interface.go
package inference

import (
	"context"

	"github.com/SyedDaiam9101/style-transfer-service/internal/tensor"
)

// Session is a loaded model ready for evaluation (the engine handle).
// Implementations must be safe to Run from several goroutines unless the
// Adapter is built with WithSerializedEvaluate.
type Session interface {
	// InputNames and OutputNames are discovered from the model at load time.
	InputNames() []string
	OutputNames() []string

	// InputShape is the declared shape of the first input; dynamic axes are -1.
	// A nil shape means the rank is unknown and is not checked.
	InputShape() []int64

	// Run evaluates the model on the named feeds and returns the named outputs.
	Run(feeds map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

	// Close releases any resources held by the session.
	Close() error
}

// Loader creates a Session. It is called at most once per successful load.
type Loader func(ctx context.Context) (Session, error)
