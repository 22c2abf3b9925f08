package inference

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Box is a detection box in frame pixels.
type Box struct {
	XMin float32 `json:"x_min"`
	YMin float32 `json:"y_min"`
	XMax float32 `json:"x_max"`
	YMax float32 `json:"y_max"`
}

// DetectionPayload is one detection as returned to clients.
type DetectionPayload struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Box        Box     `json:"box"`
}

// ImageInfo describes the decoded frame.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// ModelInfo identifies the checkpoint that produced the detections.
type ModelInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Payload is the response of one detection request.
type Payload struct {
	Success    bool               `json:"success"`
	Detections []DetectionPayload `json:"detections"`
	Count      int                `json:"count"`
	Image      ImageInfo          `json:"image"`
	Model      ModelInfo          `json:"model"`
	// LatencyMS is the inference call latency.
	LatencyMS float64 `json:"latency_ms"`
	// Timings are per-stage durations in milliseconds.
	Timings map[string]float64 `json:"timings,omitempty"`
	Message string             `json:"message"`
	// AnnotatedImage is the base64 encoded annotated frame, present when annotation was requested.
	AnnotatedImage  string `json:"annotated_image,omitempty"`
	AnnotatedFormat string `json:"annotated_format,omitempty"`
}

// Assemble builds the response payload for a detection result.
//
// When annotate is set the boxes and labels are drawn on a copy of the frame and the
// encoded copy is attached; the frame itself is never modified.
//
// Arguments:
//   - result: The postprocessed detections.
//   - frame: The decoded frame the detections refer to.
//   - annotate: Whether to attach an annotated image.
//   - format: The annotated image encoding, PNG or JPEG.
//
// Returns:
//   - *Payload: The payload.
//   - error: An error if the annotated image cannot be encoded.
func Assemble(result *postprocess.DetectionResult, frame *images.Frame, annotate bool, format images.Format) (*Payload, error) {
	p := &Payload{
		Success:    true,
		Detections: make([]DetectionPayload, len(result.Detections)),
		Count:      len(result.Detections),
		Image:      ImageInfo{Width: frame.Width(), Height: frame.Height(), Format: string(frame.Format())},
		Model:      ModelInfo{Name: result.ModelName, Version: result.ModelVersion},
		LatencyMS:  millis(result.Latency),
		Message:    message(len(result.Detections)),
	}
	for i, d := range result.Detections {
		p.Detections[i] = DetectionPayload{
			Label:      d.Label,
			Confidence: d.Confidence,
			ClassID:    d.Class,
			Box:        Box{XMin: d.Box.X1, YMin: d.Box.Y1, XMax: d.Box.X2, YMax: d.Box.Y2},
		}
	}

	if !annotate {
		return p, nil
	}

	img := images.Annotate(frame.Image(), result.Labels(Caption))
	data, used, err := images.Encode(img, format)
	if err != nil {
		return nil, fmt.Errorf("encoding annotated image: %w", err)
	}
	p.AnnotatedImage = base64.StdEncoding.EncodeToString(data)
	p.AnnotatedFormat = string(used)
	return p, nil
}

// Caption is the label text drawn above a box, e.g. "person 0.87".
func Caption(d postprocess.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

func message(n int) string {
	switch n {
	case 0:
		return "No objects detected"
	case 1:
		return "Detected 1 object"
	}
	return fmt.Sprintf("Detected %d objects", n)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
