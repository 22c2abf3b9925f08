// Package inference - Request pipeline from uploaded bytes to response payload.
package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Stage names used for timings and metrics.
const (
	StageDecode      = "decode"
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageAssemble    = "assemble"
)

// Options are the per-request detection parameters.
type Options struct {
	ConfidenceThreshold float32       `json:"confidence_threshold" validate:"gte=0,lte=1"`
	IoUThreshold        float32       `json:"iou_threshold" validate:"gte=0,lte=1"`
	Annotate            bool          `json:"annotate"`
	AnnotationFormat    images.Format `json:"annotation_format" validate:"omitempty,oneof=png jpeg"`
}

// OptionsError reports request parameters outside their valid range.
type OptionsError struct {
	Err error
}

func (e *OptionsError) Error() string { return fmt.Sprintf("invalid parameters: %v", e.Err) }

func (e *OptionsError) Unwrap() error { return e.Err }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the thresholds.
func (o Options) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(o); err != nil {
		return &OptionsError{Err: err}
	}
	return nil
}

// Request is one detection request.
type Request struct {
	// Data is the uploaded image.
	Data []byte
	// MIME is the content type the client declared. It is logged, never trusted.
	MIME string
	// SourceID identifies the request; generated when empty.
	SourceID string
	Options  Options
}

// Engine runs detection requests.
type Engine interface {
	Detect(ctx context.Context, req Request) (*Payload, error)
	Close() error
}

// Pipeline runs decode, preprocess, inference, postprocess and assembly for one
// request at a time per goroutine. A Pipeline is safe for concurrent use: the
// detector is the only shared state and it is read-only.
type Pipeline struct {
	detector *detectors.Detector
	decoder  *images.Decoder
	defaults Options
	metrics  *profiler.Metrics
}

// NewPipeline creates a pipeline.
//
// Arguments:
//   - detector: The shared detector, ready or degraded.
//   - decoder: The media decoder.
//   - defaults: The options used by DefaultOptions.
//   - metrics: Receives stage timings; may be nil.
//
// Returns:
//   - *Pipeline: The pipeline.
func NewPipeline(detector *detectors.Detector, decoder *images.Decoder, defaults Options, metrics *profiler.Metrics) *Pipeline {
	if decoder == nil {
		decoder = images.NewDecoder(images.DefaultMaxPixels)
	}
	if metrics == nil {
		metrics = profiler.New()
	}
	return &Pipeline{detector: detector, decoder: decoder, defaults: defaults, metrics: metrics}
}

// Detector returns the shared detector.
func (p *Pipeline) Detector() *detectors.Detector { return p.detector }

// DefaultOptions returns the configured request defaults.
func (p *Pipeline) DefaultOptions() Options { return p.defaults }

// Metrics returns the metrics the pipeline records into.
func (p *Pipeline) Metrics() *profiler.Metrics { return p.metrics }

// Detect runs the whole pipeline on one request.
//
// Model availability is checked first so that a degraded service does no work.
// Errors are returned unchanged from the failing stage:
//   - *detectors.ModelUnavailableError when the detector is degraded or fails.
//   - *OptionsError for out of range thresholds.
//   - *images.DecodeError for malformed media.
//   - *preprocess.ShapeError for a degenerate model input shape.
//   - *models.UnknownClassError when the model emits an index outside its class table.
//
// Arguments:
//   - ctx: Carries the request logger. The pipeline does not stop early on cancellation.
//   - req: The request.
//
// Returns:
//   - *Payload: The response payload.
//   - error: See above.
func (p *Pipeline) Detect(ctx context.Context, req Request) (*Payload, error) {
	if err := p.detector.Check(); err != nil {
		return nil, err
	}
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	log := logger.C(ctx)
	timings := make(map[string]float64, 5)
	stage := func(name string) func() {
		done := p.metrics.StartOperation(name)
		return func() { timings[name] = millis(done()) }
	}

	end := stage(StageDecode)
	frame, err := p.decoder.Decode(req.Data, req.MIME, req.SourceID)
	end()
	if err != nil {
		return nil, err
	}
	if images.DeclaredMismatch(frame, req.MIME) {
		log.Debug().Str("declared", req.MIME).Str("detected", frame.Format().MIME()).Msg("declared content type does not match content")
	}

	shape, err := p.detector.InputShape()
	if err != nil {
		return nil, err
	}
	end = stage(StagePreprocess)
	tensor, err := preprocess.Prepare(frame, shape)
	end()
	if err != nil {
		return nil, err
	}

	end = stage(StageInference)
	start := time.Now()
	raws, err := p.detector.Infer(ctx, tensor)
	latency := time.Since(start)
	end()
	if err != nil {
		return nil, err
	}

	classes, err := p.detector.Classes()
	if err != nil {
		return nil, err
	}
	end = stage(StagePostprocess)
	result, err := postprocess.Postprocess(raws, transform(tensor), postprocess.Params{
		ConfidenceThreshold: req.Options.ConfidenceThreshold,
		IoUThreshold:        req.Options.IoUThreshold,
	}, classes)
	end()
	if err != nil {
		return nil, err
	}
	model := p.detector.Model()
	result.Latency = latency
	result.ModelName = model.Name()
	result.ModelVersion = model.Version()

	end = stage(StageAssemble)
	payload, err := Assemble(result, frame, req.Options.Annotate, req.Options.AnnotationFormat)
	end()
	if err != nil {
		return nil, err
	}
	payload.Timings = timings

	for _, d := range result.Detections {
		p.metrics.RecordDetection(d.Label)
	}
	log.Debug().
		Str("source", frame.SourceID()).
		Int("candidates", len(raws)).
		Int("detections", payload.Count).
		Dur("latency", latency).
		Msg("detection complete")

	return payload, nil
}

// Close releases the detector.
func (p *Pipeline) Close() error {
	return p.detector.Close()
}

// transform recovers the letterbox transform recorded by the preprocessor.
func transform(t *preprocess.Tensor) postprocess.Transform {
	return postprocess.Transform{
		Scale:   t.Scale,
		OffsetX: t.PadLeft,
		OffsetY: t.PadTop,
		Width:   t.SourceWidth,
		Height:  t.SourceHeight,
	}
}
