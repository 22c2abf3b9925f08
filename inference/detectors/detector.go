package detectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Loader builds a Model from one candidate.
type Loader func(c Candidate, cfg Config) (Model, error)

// Attempt records the outcome of loading one candidate.
type Attempt struct {
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Status describes the detector for health endpoints.
type Status struct {
	Loaded     bool      `json:"loaded"`
	Name       string    `json:"name,omitempty"`
	Version    string    `json:"version,omitempty"`
	InputShape string    `json:"input_shape,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   []Attempt `json:"attempts,omitempty"`
	// Metadata and Runtime are only set for ONNX models.
	Metadata *providers.Metadata `json:"metadata,omitempty"`
	Runtime  string              `json:"runtime,omitempty"`
}

type metadataModel interface {
	Metadata() providers.Metadata
}

// Detector is the process-wide adapter around a loaded model.
//
// A Detector is either ready, holding a Model, or degraded, holding the load error.
// It never changes state after construction, so it is safe to share between requests.
type Detector struct {
	model    Model
	err      error
	attempts []Attempt
	once     sync.Once
}

// New wraps a loaded model.
func New(m Model) *Detector {
	if m == nil {
		return NewDegraded(nil)
	}
	return &Detector{model: m}
}

// NewDegraded returns a detector whose Infer always fails with *ModelUnavailableError.
func NewDegraded(err error) *Detector {
	if err == nil {
		err = fmt.Errorf("no model loaded")
	}
	return &Detector{err: err}
}

// Load tries each candidate in order and keeps the first that loads.
//
// Missing checkpoints with a URL are fetched first. Every attempt is logged and
// counted; when all fail the returned detector is degraded. Load never fails.
//
// Arguments:
//   - ctx: Bounds checkpoint downloads.
//   - cfg: The detector configuration.
//   - load: Builds a model from a candidate, usually LoadONNX.
//   - metrics: Optional, receives load attempts and availability.
//
// Returns:
//   - *Detector: A ready or degraded detector.
func Load(ctx context.Context, cfg Config, load Loader, metrics *profiler.Metrics) *Detector {
	log := logger.Named("detector")

	var attempts []Attempt
	var lastErr error
	for _, c := range cfg.Candidates {
		start := time.Now()
		m, err := loadCandidate(ctx, c, cfg, load)
		a := Attempt{Name: c.Name, Path: c.Path, Duration: time.Since(start)}
		if metrics != nil {
			metrics.RecordModelLoad(c.Name, err == nil)
		}

		if err != nil {
			a.Error = err.Error()
			attempts = append(attempts, a)
			lastErr = fmt.Errorf("%s: %w", c.Name, err)
			log.Warn().Err(err).Str("model", c.Name).Str("path", c.Path).Msg("checkpoint failed to load")
			continue
		}

		attempts = append(attempts, a)
		log.Info().
			Str("model", m.Name()).
			Str("version", m.Version()).
			Str("input", m.InputShape().String()).
			Dur("elapsed", a.Duration).
			Msg("checkpoint loaded")
		if metrics != nil {
			metrics.SetModelAvailable(true)
		}
		return &Detector{model: m, attempts: attempts}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no checkpoint configured")
	}
	log.Error().Err(lastErr).Int("attempts", len(attempts)).Msg("no checkpoint loaded, serving in degraded mode")
	if metrics != nil {
		metrics.SetModelAvailable(false)
	}
	d := NewDegraded(lastErr)
	d.attempts = attempts
	return d
}

func loadCandidate(ctx context.Context, c Candidate, cfg Config, load Loader) (m Model, err error) {
	if err := Fetch(ctx, c, cfg.FetchTimeout); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("panic while loading: %v", r)
		}
	}()
	m, err = load(c, cfg)
	if err == nil && m == nil {
		err = fmt.Errorf("loader returned no model")
	}
	return m, err
}

// Available reports whether a model is loaded.
func (d *Detector) Available() bool { return d.model != nil }

// Check returns a *ModelUnavailableError when the detector is degraded, nil otherwise.
func (d *Detector) Check() error {
	if d.model == nil {
		return &ModelUnavailableError{Err: d.err}
	}
	return nil
}

// Model returns the loaded model, nil when degraded.
func (d *Detector) Model() Model { return d.model }

// InputShape is the tensor size Infer expects.
func (d *Detector) InputShape() (preprocess.Shape, error) {
	if err := d.Check(); err != nil {
		return preprocess.Shape{}, err
	}
	return d.model.InputShape(), nil
}

// Classes is the class table of the loaded model.
func (d *Detector) Classes() (postprocess.Labeler, error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d.model.Classes(), nil
}

// Infer runs the model on t.
//
// A degraded detector fails with *ModelUnavailableError. A tensor that does not match
// the model input fails with *preprocess.ShapeError. Runtime failures, panics included,
// are reported as *ModelUnavailableError wrapping the cause.
//
// Arguments:
//   - ctx: Carries the request logger.
//   - t: The prepared tensor.
//
// Returns:
//   - []postprocess.RawDetection: Candidates in model pixel space.
//   - error: See above.
func (d *Detector) Infer(ctx context.Context, t *preprocess.Tensor) (raws []postprocess.RawDetection, err error) {
	if err := d.Check(); err != nil {
		return nil, err
	}
	if t == nil || t.Shape != d.model.InputShape() {
		var got preprocess.Shape
		if t != nil {
			got = t.Shape
		}
		return nil, &preprocess.ShapeError{Shape: got}
	}

	defer func() {
		if r := recover(); r != nil {
			logger.C(ctx).Error().Interface("panic", r).Str("model", d.model.Name()).Msg("inference panicked")
			raws, err = nil, &ModelUnavailableError{Model: d.model.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	raws, err = d.model.Infer(t)
	if err != nil {
		return nil, &ModelUnavailableError{Model: d.model.Name(), Err: err}
	}
	return raws, nil
}

// Status reports the detector state.
func (d *Detector) Status() Status {
	s := Status{Loaded: d.model != nil, Attempts: d.attempts}
	if d.model != nil {
		s.Name = d.model.Name()
		s.Version = d.model.Version()
		s.InputShape = d.model.InputShape().String()
		if mm, ok := d.model.(metadataModel); ok {
			md := mm.Metadata()
			s.Metadata = &md
			s.Runtime = providers.SharedLib()
		}
	} else if d.err != nil {
		s.Error = d.err.Error()
	}
	return s
}

// Close releases the model. Further calls are no-ops.
func (d *Detector) Close() error {
	var err error
	d.once.Do(func() {
		if d.model != nil {
			err = d.model.Close()
		}
	})
	return err
}
