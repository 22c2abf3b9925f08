package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
)

var modelShape = preprocess.Shape{Width: 640, Height: 640}

type stubModel struct {
	raws []postprocess.RawDetection
	err  error
}

func (s *stubModel) Name() string { return "yolov8n" }
func (s *stubModel) Version() string { return "8.0" }
func (s *stubModel) InputShape() preprocess.Shape { return modelShape }
func (s *stubModel) Classes() postprocess.Labeler { return models.YOLOClasses }
func (s *stubModel) Close() error { return nil }

func (s *stubModel) Infer(*preprocess.Tensor) ([]postprocess.RawDetection, error) {
	return s.raws, s.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func defaults() Options {
	return Options{ConfidenceThreshold: 0.5, IoUThreshold: 0.5, AnnotationFormat: images.FormatPNG}
}

// A 640x480 frame letterboxed into 640x640 has scale 1 and 80 pixels of top padding.
func scenarioRaws() []postprocess.RawDetection {
	return []postprocess.RawDetection{
		{Box: images.Rect{X1: 100, Y1: 180, X2: 200, Y2: 280}, Score: 0.9, Class: 0},
		{Box: images.Rect{X1: 300, Y1: 300, X2: 320, Y2: 320}, Score: 0.2, Class: 2},
	}
}

func TestDetectScenario(t *testing.T) {
	p := NewPipeline(detectors.New(&stubModel{raws: scenarioRaws()}), nil, defaults(), nil)

	payload, err := p.Detect(context.Background(), Request{Data: pngBytes(t, 640, 480), Options: defaults()})
	require.NoError(t, err)

	assert.True(t, payload.Success)
	require.Equal(t, 1, payload.Count)
	d := payload.Detections[0]
	assert.Equal(t, "person", d.Label)
	assert.InDelta(t, 0.9, d.Confidence, 1e-6)
	assert.InDelta(t, 100, d.Box.XMin, 1e-3)
	assert.InDelta(t, 100, d.Box.YMin, 1e-3)
	assert.InDelta(t, 200, d.Box.XMax, 1e-3)
	assert.InDelta(t, 200, d.Box.YMax, 1e-3)

	assert.Equal(t, ImageInfo{Width: 640, Height: 480, Format: "png"}, payload.Image)
	assert.Equal(t, ModelInfo{Name: "yolov8n", Version: "8.0"}, payload.Model)
	assert.Equal(t, "Detected 1 object", payload.Message)
	assert.Empty(t, payload.AnnotatedImage)
	for _, s := range []string{StageDecode, StagePreprocess, StageInference, StagePostprocess, StageAssemble} {
		assert.Contains(t, payload.Timings, s)
	}
}

func TestDetectAnnotated(t *testing.T) {
	p := NewPipeline(detectors.New(&stubModel{raws: scenarioRaws()}), nil, defaults(), nil)
	opts := defaults()
	opts.Annotate = true

	payload, err := p.Detect(context.Background(), Request{Data: pngBytes(t, 640, 480), Options: opts})
	require.NoError(t, err)
	require.Equal(t, "png", payload.AnnotatedFormat)

	raw, err := base64.StdEncoding.DecodeString(payload.AnnotatedImage)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 480), img.Bounds())
}

func TestDetectErrors(t *testing.T) {
	good := pngBytes(t, 64, 48)

	tests := []struct {
		name     string
		detector *detectors.Detector
		req      Request
		check    func(t *testing.T, err error)
	}{
		{
			name:     "degraded short-circuits before decoding",
			detector: detectors.NewDegraded(errors.New("no checkpoint")),
			req:      Request{Data: []byte("not an image"), Options: defaults()},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, detectors.ErrModelUnavailable)
			},
		},
		{
			name:     "malformed media",
			detector: detectors.New(&stubModel{}),
			req:      Request{Data: []byte("not an image"), MIME: "image/png", Options: defaults()},
			check: func(t *testing.T, err error) {
				var de *images.DecodeError
				assert.ErrorAs(t, err, &de)
			},
		},
		{
			name:     "threshold out of range",
			detector: detectors.New(&stubModel{}),
			req:      Request{Data: good, Options: Options{ConfidenceThreshold: 1.5, IoUThreshold: 0.5}},
			check: func(t *testing.T, err error) {
				var oe *OptionsError
				assert.ErrorAs(t, err, &oe)
			},
		},
		{
			name: "unknown class",
			detector: detectors.New(&stubModel{raws: []postprocess.RawDetection{
				{Box: images.Rect{X1: 1, Y1: 1, X2: 50, Y2: 50}, Score: 0.9, Class: 500},
			}}),
			req: Request{Data: good, Options: defaults()},
			check: func(t *testing.T, err error) {
				var ue *models.UnknownClassError
				assert.ErrorAs(t, err, &ue)
			},
		},
		{
			name:     "runtime failure",
			detector: detectors.New(&stubModel{err: errors.New("ort")}),
			req:      Request{Data: good, Options: defaults()},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, detectors.ErrModelUnavailable)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(tt.detector, nil, defaults(), nil)
			payload, err := p.Detect(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, payload)
			tt.check(t, err)
		})
	}
}

func TestDetectConcurrent(t *testing.T) {
	p := NewPipeline(detectors.New(&stubModel{raws: scenarioRaws()}), nil, defaults(), nil)
	data := pngBytes(t, 640, 480)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := p.Detect(context.Background(), Request{Data: data, Options: defaults()})
			if err == nil && payload.Count != 1 {
				err = errors.New("unexpected detection count")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestAssembleLeavesFrameUntouched(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range src.Pix {
		src.Pix[i] = 10
	}
	frame, err := images.NewFrame(src, images.FormatPNG, "req")
	require.NoError(t, err)
	before := append([]byte(nil), src.Pix...)

	result := &postprocess.DetectionResult{
		Width: 40, Height: 30,
		Detections: []postprocess.Detection{
			{Box: images.Rect{X1: 5, Y1: 5, X2: 20, Y2: 20}, Label: "dog", Class: 16, Confidence: 0.7},
		},
	}
	p, err := Assemble(result, frame, true, images.FormatJPEG)
	require.NoError(t, err)

	assert.Equal(t, before, src.Pix)
	assert.Equal(t, "jpeg", p.AnnotatedFormat)
	assert.NotEmpty(t, p.AnnotatedImage)
	assert.Equal(t, Box{XMin: 5, YMin: 5, XMax: 20, YMax: 20}, p.Detections[0].Box)
}

func TestAssembleEmpty(t *testing.T) {
	frame, err := images.NewFrame(image.NewGray(image.Rect(0, 0, 8, 8)), images.FormatPNG, "req")
	require.NoError(t, err)

	p, err := Assemble(&postprocess.DetectionResult{Width: 8, Height: 8}, frame, false, images.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, 0, p.Count)
	assert.NotNil(t, p.Detections)
	assert.Equal(t, "No objects detected", p.Message)
}

func TestEngineBuilder(t *testing.T) {
	_, err := NewEngineBuilder().Build()
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Detection.ConfidenceThreshold = 2
	_, err = NewEngineBuilder().WithConfig(cfg).WithDetector(detectors.New(&stubModel{})).Build()
	var oe *OptionsError
	assert.ErrorAs(t, err, &oe)

	dcfg := detectors.DefaultConfig()
	dcfg.Candidates = []detectors.Candidate{{Name: "yolov8n", Path: "does/not/exist.onnx"}}
	p := NewEngineBuilder().
		WithConfig(config.Default()).
		LoadDetector(context.Background(), dcfg, detectors.LoadONNX).
		MustBuild()
	assert.False(t, p.Detector().Available())
	assert.InDelta(t, 0.3, p.DefaultOptions().ConfidenceThreshold, 1e-6)
	assert.True(t, p.DefaultOptions().Annotate)
}
