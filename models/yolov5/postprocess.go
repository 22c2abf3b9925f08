package yolov5

import (
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

const layout = "[1, N, 5+C]"

// Decode converts the YOLOv5 output into one candidate per row.
//
// Each row holds cx, cy, w, h, objectness and C class scores. The candidate score
// is objectness times the best class score.
//
// Arguments:
//   - output: The flat output tensor.
//   - shape: The output shape.
//
// Returns:
//   - Candidates in model pixel space (xyxy).
//   - A *model.ShapeMismatchError when the shape cannot be read.
func (p *YOLOv5) Decode(output []float32, shape []int64) ([]postprocess.RawDetection, error) {
	numRows, numCols, err := model.Dims3(model.ModelNameYOLOv5, output, shape, layout)
	if err != nil {
		return nil, err
	}
	numClasses := numCols - 5
	if numClasses <= 0 || (p.options.NumClasses > 0 && numClasses != p.options.NumClasses) {
		return nil, &model.ShapeMismatchError{Model: model.ModelNameYOLOv5, Shape: shape, Len: len(output), Want: layout}
	}

	results := make([]postprocess.RawDetection, 0, numRows)
	for i := 0; i < numRows; i++ {
		offset := i * numCols
		objConf := output[offset+4]

		classID := -1
		maxScore := float32(0)
		for j := 5; j < numCols; j++ {
			score := output[offset+j]
			if classID < 0 || score > maxScore {
				maxScore = score
				classID = j - 5
			}
		}

		w := output[offset+2]
		h := output[offset+3]

		results = append(results, postprocess.RawDetection{
			Box: images.Rect{
				X1: output[offset+0] - w/2, // cx - w/2
				Y1: output[offset+1] - h/2, // cy - h/2
				X2: output[offset+0] + w/2, // cx + w/2
				Y2: output[offset+1] + h/2, // cy + h/2
			},
			Score: objConf * maxScore,
			Class: classID,
		})
	}
	return results, nil
}
