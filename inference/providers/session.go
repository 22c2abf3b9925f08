package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Metadata is what the ONNX file says about itself.
type Metadata struct {
	Producer    string `json:"producer"`
	Graph       string `json:"graph"`
	Description string `json:"description"`
	Version     int64  `json:"version"`
}

// Session wraps a dynamic ONNX Runtime session.
//
// The session binds no tensors, so Run may be called from several goroutines at
// once: every call brings its own inputs and receives freshly allocated outputs.
type Session struct {
	Session  *ort.DynamicAdvancedSession
	Inputs   []ort.InputOutputInfo
	Outputs  []ort.InputOutputInfo
	Metadata Metadata
}

// SessionOptions builds session options for the configured backend.
//
// Arguments:
//   - cfg: The runtime configuration.
//
// Returns:
//   - *ort.SessionOptions: The options. The caller must Destroy them.
//   - error: An error if the backend cannot be enabled.
func SessionOptions(cfg Config) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	fail := func(err error) (*ort.SessionOptions, error) {
		options.Destroy()
		return nil, err
	}

	if err := options.SetIntraOpNumThreads(cfg.IntraOpNumThreads); err != nil {
		return fail(fmt.Errorf("error setting intra-op threads: %w", err))
	}
	if err := options.SetInterOpNumThreads(cfg.InterOpNumThreads); err != nil {
		return fail(fmt.Errorf("error setting inter-op threads: %w", err))
	}
	if err := options.SetGraphOptimizationLevel(cfg.GraphOptimizationLevel); err != nil {
		return fail(fmt.Errorf("error setting graph optimization level: %w", err))
	}

	switch cfg.Backend {
	case CoreMLProviderBackend:
		if err := options.AppendExecutionProviderCoreML(cfg.CoreML.Flags()); err != nil {
			return fail(fmt.Errorf("error enabling CoreML: %w", err))
		}
	case CUDAProviderBackend:
		cuda, err := cfg.CUDA.ToNativeProviderOptions()
		if err != nil {
			return fail(fmt.Errorf("error converting CUDA options: %w", err))
		}
		defer cuda.Destroy()
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return fail(fmt.Errorf("error enabling CUDA: %w", err))
		}
	}

	return options, nil
}

// NewSession loads a model into a dynamic session.
//
// Order of operations:
//  1. Environment setup: loads the shared library once per process.
//  2. Introspection: reads input/output names and shapes from the model file.
//  3. Session options: threading, graph optimizations and the execution provider.
//  4. Session creation: loads the model for the discovered inputs and outputs.
//
// Arguments:
//   - cfg: The runtime configuration.
//   - modelPath: The ONNX file.
//
// Returns:
//   - *Session: The session.
//   - error: An error if any step fails. Nothing is leaked on error.
func NewSession(cfg Config, modelPath string) (*Session, error) {
	if err := InitEnvironment(cfg.SharedLibPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model inputs and outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares %d inputs and %d outputs", modelPath, len(inputs), len(outputs))
	}

	options, err := SessionOptions(cfg)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, names(inputs), names(outputs), options)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		Session:  session,
		Inputs:   inputs,
		Outputs:  outputs,
		Metadata: readMetadata(modelPath),
	}, nil
}

// Run executes the model on inputs. The returned outputs are owned by the caller.
func (s *Session) Run(inputs []ort.Value) ([]ort.Value, error) {
	outputs := make([]ort.Value, len(s.Outputs))
	if err := s.Session.Run(inputs, outputs); err != nil {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
		return nil, err
	}
	return outputs, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	if s.Session != nil {
		err := s.Session.Destroy()
		s.Session = nil
		if err != nil {
			return fmt.Errorf("error destroying ORT session: %w", err)
		}
	}
	return nil
}

func names(infos []ort.InputOutputInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Name
	}
	return out
}

func readMetadata(modelPath string) Metadata {
	md, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return Metadata{}
	}
	defer md.Destroy()

	var out Metadata
	out.Producer, _ = md.GetProducerName()
	out.Graph, _ = md.GetGraphName()
	out.Description, _ = md.GetDescription()
	out.Version, _ = md.GetVersion()
	return out
}
