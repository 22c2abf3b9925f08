// Package yolov5 - YOLOv5 model.
package yolov5

import (
	"github.com/nvr-ai/go-detect/models/model"
)

// YOLOv5 is the instance of the YOLOv5 model.
type YOLOv5 struct {
	options model.Options
}

// Options returns the options for the YOLOv5 model.
func (m *YOLOv5) Options() model.Options {
	return m.options
}

// NewModel creates a new model.
//
// Arguments:
//   - args: The arguments for creating a new model.
//
// Returns:
//   - The model.
func NewModel(args model.NewModelArgs) (*YOLOv5, error) {
	family := args.Family
	if family == "" {
		family = "yolo"
	}
	return &YOLOv5{
		options: model.Options{
			Name:       model.ModelNameYOLOv5,
			Family:     family,
			Path:       args.Path,
			Version:    args.Version,
			NumClasses: args.NumClasses,
		},
	}, nil
}
