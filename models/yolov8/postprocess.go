package yolov8

import (
	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

const layout = "[1, 4+C, N] or [1, N, 4+C]"

// Decode converts the YOLOv8 output into one candidate per anchor.
//
// Each anchor carries cx, cy, w, h followed by C class scores and no objectness;
// the anchor's score is its best class score. The exporter's default layout is
// channel-major [1, 4+C, N]; a transposed [1, N, 4+C] output is also accepted.
//
// Arguments:
//   - output: The flat output tensor.
//   - shape: The output shape.
//
// Returns:
//   - Candidates in model pixel space (xyxy).
//   - A *model.ShapeMismatchError when the shape cannot be read.
func (m *YOLOv8) Decode(output []float32, shape []int64) ([]postprocess.RawDetection, error) {
	a, b, err := model.Dims3(model.ModelNameYOLOv8, output, shape, layout)
	if err != nil {
		return nil, err
	}

	channelMajor := m.channelMajor(a, b)
	channels, anchors := a, b
	if !channelMajor {
		channels, anchors = b, a
	}
	numClasses := channels - 4
	if numClasses <= 0 || (m.options.NumClasses > 0 && numClasses != m.options.NumClasses) {
		return nil, &model.ShapeMismatchError{Model: model.ModelNameYOLOv8, Shape: shape, Len: len(output), Want: layout}
	}

	// at reads channel c of anchor i.
	at := func(c, i int) float32 { return output[c*anchors+i] }
	if !channelMajor {
		at = func(c, i int) float32 { return output[i*channels+c] }
	}

	results := make([]postprocess.RawDetection, 0, anchors)
	for i := 0; i < anchors; i++ {
		classID := -1
		maxScore := math32.Inf(-1)
		for c := 0; c < numClasses; c++ {
			score := at(4+c, i)
			if score > maxScore {
				maxScore = score
				classID = c
			}
		}
		if classID < 0 {
			// every score was NaN
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		results = append(results, postprocess.RawDetection{
			Box: images.Rect{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
			Score: maxScore,
			Class: classID,
		})
	}
	return results, nil
}

// channelMajor decides between [1, 4+C, N] and [1, N, 4+C].
func (m *YOLOv8) channelMajor(a, b int) bool {
	if n := m.options.NumClasses; n > 0 {
		return a == n+4
	}
	// anchors outnumber channels for every practical input size
	return a <= b
}
