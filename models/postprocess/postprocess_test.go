package postprocess_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

var defaults = postprocess.Params{ConfidenceThreshold: 0.5, IoUThreshold: 0.5}

func TestSingleBoxScenario(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}, Score: 0.9, Class: 0},
	}

	res, err := postprocess.Postprocess(raws, postprocess.Identity(640, 480), defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)

	d := res.Detections[0]
	assert.Equal(t, images.Rect{X1: 100, Y1: 100, X2: 200, Y2: 200}, d.Box)
	assert.Equal(t, float32(0.9), d.Confidence)
	assert.Equal(t, "person", d.Label)
	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
}

func TestOverlapScenario(t *testing.T) {
	// IoU([0,0,100,100], [0,0,100,80]) = 8000/10000 = 0.8
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 80}, Score: 0.8, Class: 2},
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.9, Class: 2},
	}
	require.InDelta(t, 0.8, images.CalculateIoU(raws[0].Box, raws[1].Box), 1e-6)

	res, err := postprocess.Postprocess(raws, postprocess.Identity(640, 480), defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, float32(0.9), res.Detections[0].Confidence)
	assert.Equal(t, "car", res.Detections[0].Label)
}

func TestNMSIsPerClass(t *testing.T) {
	box := images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 50}
	raws := []postprocess.RawDetection{
		{Box: box, Score: 0.9, Class: 0},
		{Box: box, Score: 0.8, Class: 16},
		{Box: box, Score: 0.7, Class: 0},
	}

	res, err := postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 2)
	assert.Equal(t, "person", res.Detections[0].Label)
	assert.Equal(t, "dog", res.Detections[1].Label)
}

func TestNMSTieBreakKeepsEarlier(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.7, Class: 0},
		{Box: images.Rect{X1: 1, Y1: 0, X2: 11, Y2: 10}, Score: 0.7, Class: 0},
	}
	kept := postprocess.ApplyGreedyNMS(raws, postprocess.NMSConfig{IoUThreshold: 0.5, ClassAware: true})
	require.Len(t, kept, 1)
	assert.Equal(t, raws[0].Box, kept[0].Box)
}

func TestNMSThresholdIsExclusive(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.9},
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 50}, Score: 0.8},
	}
	// IoU is exactly 0.5: not suppressed
	kept := postprocess.ApplyGreedyNMS(raws, postprocess.NMSConfig{IoUThreshold: 0.5})
	assert.Len(t, kept, 2)
}

func TestInverseTransformAndClip(t *testing.T) {
	// 1280x720 letterboxed into 640x640: scale 0.5, top padding 140
	tr := postprocess.Transform{Scale: 0.5, OffsetX: 0, OffsetY: 140, Width: 1280, Height: 720}
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 50, Y1: 190, X2: 150, Y2: 290}, Score: 0.95, Class: 0},
		// spills into the padding and past the right edge
		{Box: images.Rect{X1: 600, Y1: 100, X2: 700, Y2: 200}, Score: 0.6, Class: 1},
		// entirely inside the top padding
		{Box: images.Rect{X1: 10, Y1: 10, X2: 50, Y2: 100}, Score: 0.99, Class: 0},
	}

	res, err := postprocess.Postprocess(raws, tr, defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 2)

	assert.Equal(t, images.Rect{X1: 100, Y1: 100, X2: 300, Y2: 300}, res.Detections[0].Box)
	assert.Equal(t, images.Rect{X1: 1200, Y1: 0, X2: 1280, Y2: 120}, res.Detections[1].Box)
}

func TestNMSRunsOnClippedBoxes(t *testing.T) {
	tr := postprocess.Transform{Scale: 0.5, OffsetX: 0, OffsetY: 140, Width: 1280, Height: 720}
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 60, X2: 100, Y2: 200}, Score: 0.9, Class: 0},
		{Box: images.Rect{X1: 0, Y1: 140, X2: 100, Y2: 200}, Score: 0.8, Class: 0},
	}
	// Apart in model space, identical once the letterbox part is clipped away.
	require.Less(t, images.CalculateIoU(raws[0].Box, raws[1].Box), defaults.IoUThreshold)

	res, err := postprocess.Postprocess(raws, tr, defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, float32(0.9), res.Detections[0].Confidence)
	assert.Equal(t, images.Rect{X1: 0, Y1: 0, X2: 200, Y2: 120}, res.Detections[0].Box)
}

func TestNonFiniteBoxesAreDropped(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: nan, Y1: 10, X2: 50, Y2: 50}, Score: 0.9, Class: 0},
		{Box: images.Rect{X1: 10, Y1: 10, X2: inf, Y2: 50}, Score: 0.9, Class: 0},
		{Box: images.Rect{X1: 60, Y1: 60, X2: 90, Y2: 90}, Score: 0.7, Class: 0},
	}

	res, err := postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, images.Rect{X1: 60, Y1: 60, X2: 90, Y2: 90}, res.Detections[0].Box)
}

func TestThresholdIsInclusive(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.5},
		{Box: images.Rect{X1: 20, Y1: 20, X2: 30, Y2: 30}, Score: 0.4999},
	}
	res, err := postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	require.NoError(t, err)
	assert.Len(t, res.Detections, 1)
}

func TestAllZeroConfidence(t *testing.T) {
	raws := randomRaws(rand.New(rand.NewSource(3)), 500)
	for i := range raws {
		raws[i].Score = 0
	}
	for _, thr := range []float32{0.001, 0.25, 1} {
		res, err := postprocess.Postprocess(raws, postprocess.Identity(640, 640),
			postprocess.Params{ConfidenceThreshold: thr, IoUThreshold: 0.45}, models.YOLOClasses)
		require.NoError(t, err)
		assert.Empty(t, res.Detections)
	}
}

func TestUnknownClass(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 0.9, Class: 80},
	}
	_, err := postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	var uce *models.UnknownClassError
	require.True(t, errors.As(err, &uce))
	assert.Equal(t, 80, uce.Index)

	// below threshold, never looked up
	raws[0].Score = 0.1
	_, err = postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	assert.NoError(t, err)
}

func TestInvalidScale(t *testing.T) {
	_, err := postprocess.Postprocess(nil, postprocess.Transform{Scale: 0, Width: 10, Height: 10}, defaults,
		models.YOLOClasses)
	assert.Error(t, err)
}

func TestConfidenceIsClamped(t *testing.T) {
	raws := []postprocess.RawDetection{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}, Score: 1.7, Class: 0},
	}
	res, err := postprocess.Postprocess(raws, postprocess.Identity(100, 100), defaults, models.YOLOClasses)
	require.NoError(t, err)
	assert.Equal(t, float32(1), res.Detections[0].Confidence)
}

func TestIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tr := postprocess.Transform{Scale: 0.5, OffsetX: 0, OffsetY: 80, Width: 1280, Height: 960}

	for round := 0; round < 20; round++ {
		raws := randomRaws(rng, 300)
		first, err := postprocess.Postprocess(raws, tr, postprocess.Params{ConfidenceThreshold: 0.3, IoUThreshold: 0.45},
			models.YOLOClasses)
		require.NoError(t, err)

		second, err := postprocess.Postprocess(first.Raw(), postprocess.Identity(first.Width, first.Height),
			postprocess.Params{ConfidenceThreshold: 0.3, IoUThreshold: 0.45}, models.YOLOClasses)
		require.NoError(t, err)

		assert.Equal(t, first.Detections, second.Detections, "round %d", round)
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	raws := randomRaws(rng, 400)
	tr := postprocess.Identity(640, 640)

	prev := -1
	for thr := float32(0); thr <= 1.0001; thr += 0.05 {
		res, err := postprocess.Postprocess(raws, tr, postprocess.Params{ConfidenceThreshold: thr, IoUThreshold: 0.45},
			models.YOLOClasses)
		require.NoError(t, err)
		if prev >= 0 {
			assert.LessOrEqual(t, len(res.Detections), prev, "threshold %.2f", thr)
		}
		prev = len(res.Detections)

		for _, d := range res.Detections {
			assert.GreaterOrEqual(t, d.Confidence, thr)
		}
	}
}

func TestOutputInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tr := postprocess.Transform{Scale: 0.8, OffsetX: 32, OffsetY: 0, Width: 720, Height: 800}
	res, err := postprocess.Postprocess(randomRaws(rng, 500), tr, defaults, models.YOLOClasses)
	require.NoError(t, err)
	require.NotEmpty(t, res.Detections)

	for i, d := range res.Detections {
		assert.GreaterOrEqual(t, d.Box.X1, float32(0))
		assert.GreaterOrEqual(t, d.Box.Y1, float32(0))
		assert.LessOrEqual(t, d.Box.X1, d.Box.X2)
		assert.LessOrEqual(t, d.Box.Y1, d.Box.Y2)
		assert.LessOrEqual(t, d.Box.X2, float32(720))
		assert.LessOrEqual(t, d.Box.Y2, float32(800))
		assert.NotEmpty(t, d.Label)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Detections[i-1].Confidence, d.Confidence)
		}
	}
}

// randomRaws draws clustered boxes in a 640x640 model space over a handful of classes.
func randomRaws(rng *rand.Rand, n int) []postprocess.RawDetection {
	out := make([]postprocess.RawDetection, n)
	for i := range out {
		cx := float32(rng.Intn(8))*80 + float32(rng.NormFloat64()*6)
		cy := float32(rng.Intn(8))*80 + float32(rng.NormFloat64()*6)
		w := 20 + float32(rng.Intn(120))
		h := 20 + float32(rng.Intn(120))
		out[i] = postprocess.RawDetection{
			Box:   images.Rect{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
			Score: rng.Float32(),
			Class: rng.Intn(4),
		}
	}
	return out
}
