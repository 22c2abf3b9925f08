package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Config holds the runtime settings shared by every session.
type Config struct {
	// Backend specifies the execution provider.
	Backend ProviderBackend `json:"backend" yaml:"backend"`
	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string `json:"shared_lib_path" yaml:"shared_lib_path"`
	// IntraOpNumThreads sets threads for parallelizing ops; 0 lets the runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops; 0 lets the runtime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// GraphOptimizationLevel controls the level of graph optimization.
	GraphOptimizationLevel ort.GraphOptimizationLevel `json:"graph_optimization_level" yaml:"graph_optimization_level"`
	// CUDA configures the CUDA backend.
	CUDA CUDAOptions `json:"cuda" yaml:"cuda"`
	// CoreML configures the CoreML backend.
	CoreML CoreMLOptions `json:"coreml" yaml:"coreml"`
}

// DefaultConfig returns a CPU configuration with extended graph optimizations.
//
// Returns:
//   - Config: Production-ready configuration
//
// @example
// config := DefaultConfig()
// config.Backend = CUDAProviderBackend
// options, err := SessionOptions(config)
func DefaultConfig() Config {
	return Config{
		Backend:                CPUProviderBackend,
		GraphOptimizationLevel: ort.GraphOptimizationLevelEnableExtended,
	}
}

// NewConfig validates args.
//
// Arguments:
//   - args: The requested configuration.
//
// Returns:
//   - *Config: The completed configuration.
//   - error: An error if a field is out of range.
func NewConfig(args Config) (*Config, error) {
	backend, err := ParseBackend(string(args.Backend))
	if err != nil {
		return nil, err
	}
	if args.IntraOpNumThreads < 0 {
		return nil, fmt.Errorf("intra_op_num_threads must be >= 0, got %d", args.IntraOpNumThreads)
	}
	if args.InterOpNumThreads < 0 {
		return nil, fmt.Errorf("inter_op_num_threads must be >= 0, got %d", args.InterOpNumThreads)
	}
	args.Backend = backend
	return &args, nil
}
