package inference

import (
	"context"
	"errors"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/profiler"
)

// EngineBuilder assembles a Pipeline with a fluent API.
//
// The first failing step is kept and every later step becomes a no-op.
type EngineBuilder struct {
	detector *detectors.Detector
	decoder  *images.Decoder
	defaults Options
	metrics  *profiler.Metrics
	err      error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{
		defaults: Options{ConfidenceThreshold: 0.3, IoUThreshold: 0.45, AnnotationFormat: images.FormatPNG},
	}
}

// WithMetrics sets the metrics the pipeline and the detector record into.
func (b *EngineBuilder) WithMetrics(m *profiler.Metrics) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.metrics = m
	return b
}

// WithConfig applies the detection and decoder sections of the service configuration.
//
// Arguments:
//   - cfg: The service configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithConfig(cfg config.Config) *EngineBuilder {
	if b.HasError() {
		return b
	}
	opts := Options{
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		IoUThreshold:        cfg.Detection.IoUThreshold,
		Annotate:            cfg.Detection.Annotate,
		AnnotationFormat:    images.Format(cfg.Detection.AnnotationFormat),
	}
	if err := opts.Validate(); err != nil {
		b.err = err
		return b
	}
	b.defaults = opts
	b.decoder = images.NewDecoder(cfg.Decoder.MaxPixels)
	return b
}

// WithDetector uses an already built detector.
func (b *EngineBuilder) WithDetector(d *detectors.Detector) *EngineBuilder {
	if b.HasError() {
		return b
	}
	b.detector = d
	return b
}

// LoadDetector loads the detector from candidates. A failed load leaves the
// detector degraded rather than failing the build.
//
// Arguments:
//   - ctx: Bounds checkpoint downloads.
//   - cfg: The detector configuration.
//   - load: The loader, usually detectors.LoadONNX.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) LoadDetector(ctx context.Context, cfg detectors.Config, load detectors.Loader) *EngineBuilder {
	if b.HasError() {
		return b
	}
	if b.metrics == nil {
		b.metrics = profiler.New()
	}
	b.detector = detectors.Load(ctx, cfg, load, b.metrics)
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the pipeline and panics if there is an error.
//
// Returns:
//   - *Pipeline: The pipeline.
func (b *EngineBuilder) MustBuild() *Pipeline {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}

// Build builds the pipeline.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: The error if any.
func (b *EngineBuilder) Build() (*Pipeline, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.detector == nil {
		return nil, errors.New("detector not configured")
	}
	return NewPipeline(b.detector, b.decoder, b.defaults, b.metrics), nil
}

var _ Engine = (*Pipeline)(nil)
