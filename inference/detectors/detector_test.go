package detectors

import (
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/preprocess"
	"github.com/nvr-ai/go-detect/profiler"
	ort "github.com/yalue/onnxruntime_go"
)

type fakeModel struct {
	name   string
	shape  preprocess.Shape
	raws   []postprocess.RawDetection
	err    error
	panics bool
	closed int
}

func (f *fakeModel) Name() string { return f.name }
func (f *fakeModel) Version() string { return "test" }
func (f *fakeModel) InputShape() preprocess.Shape { return f.shape }
func (f *fakeModel) Classes() postprocess.Labeler { return models.YOLOClasses }
func (f *fakeModel) Close() error { f.closed++; return nil }

func (f *fakeModel) Infer(*preprocess.Tensor) ([]postprocess.RawDetection, error) {
	if f.panics {
		panic("boom")
	}
	return f.raws, f.err
}

func tensorFor(t *testing.T, shape preprocess.Shape) *preprocess.Tensor {
	t.Helper()
	frame, err := images.NewFrame(image.NewRGBA(image.Rect(0, 0, 32, 24)), images.FormatPNG, "t")
	require.NoError(t, err)
	tt, err := preprocess.Prepare(frame, shape)
	require.NoError(t, err)
	return tt
}

var small = preprocess.Shape{Width: 32, Height: 32}

func TestDegradedInferAlwaysUnavailable(t *testing.T) {
	for _, d := range []*Detector{
		NewDegraded(errors.New("load failed")),
		NewDegraded(nil),
		New(nil),
	} {
		assert.False(t, d.Available())

		for _, tt := range []*preprocess.Tensor{nil, tensorFor(t, small)} {
			_, err := d.Infer(context.Background(), tt)
			var mu *ModelUnavailableError
			require.ErrorAs(t, err, &mu)
			assert.ErrorIs(t, err, ErrModelUnavailable)
		}

		_, err := d.InputShape()
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.False(t, d.Status().Loaded)
		assert.NotEmpty(t, d.Status().Error)
		assert.NoError(t, d.Close())
	}
}

func TestInfer(t *testing.T) {
	raws := []postprocess.RawDetection{{Box: images.Rect{X1: 1, Y1: 1, X2: 4, Y2: 4}, Score: 0.9}}
	m := &fakeModel{name: "fake", shape: small, raws: raws}
	d := New(m)

	got, err := d.Infer(context.Background(), tensorFor(t, small))
	require.NoError(t, err)
	assert.Equal(t, raws, got)

	st := d.Status()
	assert.True(t, st.Loaded)
	assert.Equal(t, "fake", st.Name)
	assert.Equal(t, "32x32", st.InputShape)
}

type onnxLikeModel struct {
	fakeModel
}

func (onnxLikeModel) Metadata() providers.Metadata {
	return providers.Metadata{Producer: "pytorch", Graph: "main_graph", Version: 3}
}

func TestStatusReportsMetadata(t *testing.T) {
	st := New(&onnxLikeModel{fakeModel{name: "fake", shape: small}}).Status()
	require.NotNil(t, st.Metadata)
	assert.Equal(t, "pytorch", st.Metadata.Producer)
	assert.Equal(t, int64(3), st.Metadata.Version)

	assert.Nil(t, New(&fakeModel{name: "plain", shape: small}).Status().Metadata)
}

func TestInferShapeMismatch(t *testing.T) {
	d := New(&fakeModel{name: "fake", shape: small})

	_, err := d.Infer(context.Background(), tensorFor(t, preprocess.Shape{Width: 64, Height: 64}))
	var se *preprocess.ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestInferRuntimeFailures(t *testing.T) {
	cause := errors.New("ort failed")
	for name, m := range map[string]*fakeModel{
		"error": {name: "fake", shape: small, err: cause},
		"panic": {name: "fake", shape: small, panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := New(m).Infer(context.Background(), tensorFor(t, small))
			var mu *ModelUnavailableError
			require.ErrorAs(t, err, &mu)
			assert.Equal(t, "fake", mu.Model)
		})
	}
}

func TestLoadFallsBack(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.onnx")
	second := filepath.Join(dir, "b.onnx")
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("x"), 0o644))

	cfg := DefaultConfig()
	cfg.Candidates = []Candidate{{Name: "yolov8n", Path: first}, {Name: "yolov5s", Path: second}}

	loader := func(c Candidate, _ Config) (Model, error) {
		if c.Name == "yolov8n" {
			return nil, errors.New("corrupt checkpoint")
		}
		return &fakeModel{name: c.Name, shape: small}, nil
	}

	metrics := profiler.New()
	d := Load(context.Background(), cfg, loader, metrics)

	require.True(t, d.Available())
	assert.Equal(t, "yolov5s", d.Model().Name())
	st := d.Status()
	require.Len(t, st.Attempts, 2)
	assert.Contains(t, st.Attempts[0].Error, "corrupt")
	assert.Empty(t, st.Attempts[1].Error)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "detect_model_available 1")
	assert.Contains(t, string(body), `detect_model_load_attempts_total{model="yolov8n",result="failed"} 1`)
}

func TestLoadDegraded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Candidates = []Candidate{
		{Name: "yolov8n", Path: filepath.Join(t.TempDir(), "missing.onnx")},
		{Name: "yolov5s", Path: "also-missing.onnx"},
	}
	called := 0
	loader := func(Candidate, Config) (Model, error) {
		called++
		panic("never reached")
	}

	d := Load(context.Background(), cfg, loader, nil)

	assert.False(t, d.Available())
	assert.Zero(t, called)
	assert.Len(t, d.Status().Attempts, 2)
	assert.ErrorIs(t, d.Check(), ErrModelUnavailable)
}

func TestLoadRecoversLoaderPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.onnx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	cfg := DefaultConfig()
	cfg.Candidates = []Candidate{{Name: "yolov8n", Path: path}}

	d := Load(context.Background(), cfg, func(Candidate, Config) (Model, error) { panic("cgo") }, nil)

	assert.False(t, d.Available())
	assert.Contains(t, d.Status().Attempts[0].Error, "panic")
}

func TestClose(t *testing.T) {
	m := &fakeModel{name: "fake", shape: small}
	d := New(m)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, m.closed)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()

	t.Run("downloads missing checkpoint", func(t *testing.T) {
		path := filepath.Join(dir, "sub", "m.onnx")
		require.NoError(t, Fetch(context.Background(), Candidate{Path: path, URL: srv.URL + "/m.onnx"}, 0))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "onnx-bytes", string(data))
	})

	t.Run("existing path is kept", func(t *testing.T) {
		path := filepath.Join(dir, "keep.onnx")
		require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))
		require.NoError(t, Fetch(context.Background(), Candidate{Path: path, URL: srv.URL + "/m.onnx"}, 0))
		data, _ := os.ReadFile(path)
		assert.Equal(t, "local", string(data))
	})

	t.Run("http error leaves nothing behind", func(t *testing.T) {
		path := filepath.Join(dir, "bad.onnx")
		assert.Error(t, Fetch(context.Background(), Candidate{Path: path, URL: srv.URL + "/missing"}, 0))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
		left, _ := filepath.Glob(filepath.Join(dir, "bad.onnx.*"))
		assert.Empty(t, left)
	})

	t.Run("no url", func(t *testing.T) {
		assert.Error(t, Fetch(context.Background(), Candidate{Path: filepath.Join(dir, "nope.onnx")}, 0))
	})
}

func TestInputShapeFromModel(t *testing.T) {
	fallback := preprocess.Shape{Width: 640, Height: 640}
	assert.Equal(t, preprocess.Shape{Width: 320, Height: 256},
		inputShape(ortInfo(1, 3, 256, 320), fallback))
	assert.Equal(t, fallback, inputShape(ortInfo(1, 3, -1, -1), fallback))
	assert.Equal(t, fallback, inputShape(ortInfo(1, 3), fallback))
}

func ortInfo(dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{Name: "images", Dimensions: ort.NewShape(dims...)}
}
