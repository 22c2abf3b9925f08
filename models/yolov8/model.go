// Package yolov8 - YOLOv8 model.
package yolov8

import (
	"github.com/nvr-ai/go-detect/models/model"
)

// YOLOv8 is the instance of the YOLOv8 model.
type YOLOv8 struct {
	options model.Options
}

// Options returns the options for the YOLOv8 model.
//
// Returns:
//   - The options for the YOLOv8 model.
func (m *YOLOv8) Options() model.Options {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*YOLOv8, error) {
	family := args.Family
	if family == "" {
		family = "yolo"
	}
	return &YOLOv8{
		options: model.Options{
			Name:       model.ModelNameYOLOv8,
			Family:     family,
			Path:       args.Path,
			Version:    args.Version,
			NumClasses: args.NumClasses,
		},
	}, nil
}
