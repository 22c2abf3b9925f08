package models

import (
	"fmt"
	"strings"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/yolov5"
	"github.com/nvr-ai/go-detect/models/yolov8"
)

// ResolveName maps a checkpoint name such as "yolov8n" or "YOLOv5s" onto its output layout.
//
// Arguments:
//   - name: The configured checkpoint name.
//
// Returns:
//   - model.Name: The decoder name.
//   - error: An error if no decoder handles the name.
func ResolveName(name string) (model.Name, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case strings.HasPrefix(n, string(model.ModelNameYOLOv8)):
		return model.ModelNameYOLOv8, nil
	case strings.HasPrefix(n, string(model.ModelNameYOLOv5)):
		return model.ModelNameYOLOv5, nil
	default:
		return "", fmt.Errorf("unsupported model name: %s", name)
	}
}

// NewModel creates the output decoder for a checkpoint.
//
// This factory routes to the architecture-specific constructors so that callers only
// deal with the model.Model interface.
//
// Arguments:
//   - args: The checkpoint description. Name may carry a size suffix ("yolov8n").
//
// Returns:
//   - model.Model: The decoder.
//   - error: An error if the name is unsupported.
//
// Example:
//
// ```go
//
//	m, err := NewModel(model.NewModelArgs{Name: "yolov8n", Path: "/models/yolov8n.onnx"})
//	if err != nil {
//	    log.Fatalf("Failed to create decoder: %v", err)
//	}
//
// ```
func NewModel(args model.NewModelArgs) (model.Model, error) {
	name, err := ResolveName(string(args.Name))
	if err != nil {
		return nil, err
	}
	switch name {
	case model.ModelNameYOLOv8:
		m, err := yolov8.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameYOLOv5:
		m, err := yolov5.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported model name: %s", args.Name)
}
