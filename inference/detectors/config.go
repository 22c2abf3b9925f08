// Package detectors - Detector adapter: checkpoint loading, degraded state and inference.
package detectors

import (
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

// Candidate is one checkpoint the detector may load.
type Candidate struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	URL     string `json:"url,omitempty"`
	Version string `json:"version,omitempty"`
}

// Config represents the configuration for loading a detector.
type Config struct {
	// Candidates are tried in order; the first that loads wins.
	Candidates []Candidate `json:"candidates"`
	// InputShape is used when the model does not declare a static input size.
	InputShape preprocess.Shape `json:"input_shape"`
	// ClassSet selects the class table that labels the model output.
	ClassSet models.ModelFamily `json:"class_set"`
	// Provider configures ONNX Runtime.
	Provider providers.Config `json:"provider"`
	// FetchTimeout bounds the download of a missing checkpoint.
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// DefaultConfig returns a configuration that tries YOLOv8n, then YOLOv5s, on CPU.
//
// Returns:
//   - Config: Production-ready configuration
//
// @example
// cfg := DefaultConfig()
// cfg.Candidates[0].Path = "/models/yolov8n.onnx"
// det := Load(ctx, cfg, LoadONNX, nil)
func DefaultConfig() Config {
	return Config{
		Candidates: []Candidate{
			{Name: "yolov8n", Path: "models/yolov8n.onnx", Version: "8.0"},
			{Name: "yolov5s", Path: "models/yolov5s.onnx", Version: "5.0"},
		},
		InputShape:   preprocess.Shape{Width: 640, Height: 640},
		ClassSet:     models.ModelFamilyYOLO,
		Provider:     providers.DefaultConfig(),
		FetchTimeout: 2 * time.Minute,
	}
}

// FromConfig maps the service configuration onto a detector configuration.
//
// Arguments:
//   - m: The model section of the service configuration.
//
// Returns:
//   - Config: The detector configuration.
//   - error: An error if the provider settings are invalid.
func FromConfig(m config.Model) (Config, error) {
	prov := providers.DefaultConfig()
	prov.Backend = providers.ProviderBackend(m.Provider)
	prov.SharedLibPath = m.SharedLib
	prov.IntraOpNumThreads = m.IntraThreads
	prov.InterOpNumThreads = m.InterThreads
	prov.GraphOptimizationLevel = ort.GraphOptimizationLevelEnableExtended
	checked, err := providers.NewConfig(prov)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		InputShape:   preprocess.Shape{Width: m.InputWidth, Height: m.InputHeight},
		ClassSet:     models.ModelFamily(m.ClassSet),
		Provider:     *checked,
		FetchTimeout: m.FetchTimeout,
	}
	for _, c := range m.Candidates {
		cfg.Candidates = append(cfg.Candidates, Candidate{Name: c.Name, Path: c.Path, URL: c.URL, Version: c.Version})
	}
	return cfg, nil
}
