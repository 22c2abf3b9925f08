// Package postprocess - Thresholding, NMS and coordinate recovery for detector outputs.
package postprocess

import (
	"time"

	"github.com/nvr-ai/go-detect/images"
)

// RawDetection is one candidate emitted by a detector, in model pixel space.
type RawDetection struct {
	// The bounding box in model input coordinates (xyxy).
	Box images.Rect
	// The confidence score as produced by the model, not yet interpreted.
	Score float32
	// The predicted class index.
	Class int
}

// Detection is a finalized result in frame pixel space.
type Detection struct {
	// Box is clipped to the frame and canonical (X1 <= X2, Y1 <= Y2).
	Box images.Rect `json:"box"`
	// Label is the class table entry for Class.
	Label string `json:"label"`
	// Class is the class index reported by the model.
	Class int `json:"class_id"`
	// Confidence is in [0, 1] and at least the threshold used.
	Confidence float32 `json:"confidence"`
}

// DetectionResult is the ordered output of one postprocess call plus its metadata.
type DetectionResult struct {
	// Detections are sorted by descending confidence.
	Detections []Detection
	// Width and Height are the frame dimensions the boxes were clipped to.
	Width  int
	Height int
	// Latency covers the inference call, filled by the caller.
	Latency time.Duration
	// ModelName and ModelVersion identify the checkpoint that produced the result.
	ModelName    string
	ModelVersion string
}

// Raw converts the detections back into frame-space candidates.
//
// Feeding the result into Postprocess with an identity transform yields the same detections.
func (r *DetectionResult) Raw() []RawDetection {
	out := make([]RawDetection, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = RawDetection{Box: d.Box, Score: d.Confidence, Class: d.Class}
	}
	return out
}

// Labels returns the detections as annotation labels.
func (r *DetectionResult) Labels(caption func(Detection) string) []images.Label {
	out := make([]images.Label, len(r.Detections))
	for i, d := range r.Detections {
		out[i] = images.Label{Box: d.Box, Class: d.Class, Text: caption(d)}
	}
	return out
}
