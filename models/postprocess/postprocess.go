package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// Labeler maps class indices to names.
type Labeler interface {
	Label(class int) (string, error)
}

// Transform describes how a frame was mapped into model space.
type Transform struct {
	// Scale is the resize factor. Must be > 0.
	Scale float32
	// OffsetX and OffsetY are the letterbox padding in model pixels.
	OffsetX float32
	OffsetY float32
	// Width and Height are the frame dimensions.
	Width  int
	Height int
}

// Identity returns the transform of a frame that was fed to the model as is.
func Identity(width, height int) Transform {
	return Transform{Scale: 1, Width: width, Height: height}
}

// Params holds the per-request thresholds.
type Params struct {
	// ConfidenceThreshold is the minimum score kept (inclusive).
	ConfidenceThreshold float32
	// IoUThreshold is the overlap above which NMS suppresses a box.
	IoUThreshold float32
}

func finite(b images.Rect) bool {
	for _, v := range [4]float32{b.X1, b.Y1, b.X2, b.Y2} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Postprocess turns raw candidates into the final detection list.
//
// Candidates scoring below the confidence threshold or carrying a NaN or infinite
// coordinate are dropped. The survivors are labelled, mapped back through the
// transform (coord - offset) / scale, clipped to the frame and suppressed per class
// with greedy NMS. Boxes that clip to zero area are dropped. NMS runs in frame space so that postprocessing a result again with an
// identity transform returns it unchanged.
//
// Arguments:
//   - raws: The decoder output in model space.
//   - tr: The preprocessing transform.
//   - params: The thresholds.
//   - classes: The detector's class table.
//
// Returns:
//   - *DetectionResult: Detections sorted by descending confidence.
//   - error: The labeler's error (an UnknownClassError) when a class index is out of range.
func Postprocess(raws []RawDetection, tr Transform, params Params, classes Labeler) (*DetectionResult, error) {
	if tr.Scale <= 0 || math32.IsNaN(tr.Scale) || math32.IsInf(tr.Scale, 0) {
		return nil, errors.Errorf("postprocess: invalid scale %v", tr.Scale)
	}

	result := &DetectionResult{Width: tr.Width, Height: tr.Height}
	w, h := float32(tr.Width), float32(tr.Height)

	kept := make([]RawDetection, 0, len(raws)/4)
	labels := make(map[int]string)

	for _, r := range raws {
		if math32.IsNaN(r.Score) || r.Score < params.ConfidenceThreshold || !finite(r.Box) {
			continue
		}
		if _, ok := labels[r.Class]; !ok {
			name, err := classes.Label(r.Class)
			if err != nil {
				return nil, err
			}
			labels[r.Class] = name
		}

		box := r.Box.Scale(tr.Scale, tr.OffsetX, tr.OffsetY).Clip(w, h)
		if box.Area() <= 0 {
			continue
		}
		kept = append(kept, RawDetection{Box: box, Score: r.Score, Class: r.Class})
	}

	survivors := ApplyGreedyNMS(kept, NMSConfig{IoUThreshold: params.IoUThreshold, ClassAware: true})

	result.Detections = make([]Detection, len(survivors))
	for i, s := range survivors {
		result.Detections[i] = Detection{
			Box:        s.Box,
			Label:      labels[s.Class],
			Class:      s.Class,
			Confidence: math32.Min(1, math32.Max(0, s.Score)),
		}
	}
	return result, nil
}
