package detectors

import (
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
)

// Model is a loaded checkpoint.
//
// Implementations must allow concurrent Infer calls: the loaded weights are only
// read after construction.
type Model interface {
	Name() string
	Version() string
	// InputShape is the fixed input size the tensor must match.
	InputShape() preprocess.Shape
	// Classes labels the class indices Infer produces.
	Classes() postprocess.Labeler
	// Infer runs the model and returns candidates in model pixel space.
	Infer(t *preprocess.Tensor) ([]postprocess.RawDetection, error)
	Close() error
}
