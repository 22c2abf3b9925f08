// Package model - Common types shared by the output decoders.
package model

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Name is the unique identifier of an output layout.
type Name string

const (
	// ModelNameYOLOv8 is the anchor-free [1, 4+C, N] layout.
	ModelNameYOLOv8 Name = "yolov8"
	// ModelNameYOLOv5 is the anchor-based [1, N, 5+C] layout with objectness.
	ModelNameYOLOv5 Name = "yolov5"
)

// Options describes a loaded checkpoint.
type Options struct {
	Name    Name   `json:"name" yaml:"name"`
	Family  string `json:"family" yaml:"family"`
	Path    string `json:"path" yaml:"path"`
	Version string `json:"version" yaml:"version"`
	// NumClasses is the class count the decoder expects; 0 infers it from the output shape.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
}

// Model decodes the raw output tensor of one detector architecture.
type Model interface {
	Options() Options
	// Decode turns the output tensor into candidates in model pixel space.
	Decode(output []float32, shape []int64) ([]postprocess.RawDetection, error)
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name       Name   `json:"name" yaml:"name"`
	Path       string `json:"path" yaml:"path"`
	Family     string `json:"family" yaml:"family"`
	Version    string `json:"version" yaml:"version"`
	NumClasses int    `json:"num_classes" yaml:"num_classes"`
}

// ShapeMismatchError reports an output tensor the decoder cannot read.
type ShapeMismatchError struct {
	Model Name
	Shape []int64
	Len   int
	Want  string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: output shape %v (%d values) does not match %s", e.Model, e.Shape, e.Len, e.Want)
}

// Dims3 validates a [1, a, b] output and returns a and b.
//
// Arguments:
//   - name: The decoder, for error messages.
//   - output: The flat output data.
//   - shape: The output shape.
//   - want: The expected layout, for error messages.
//
// Returns:
//   - a, b: The two non-batch dimensions.
//   - error: A *ShapeMismatchError when shape is not [1, a, b] or does not cover output.
func Dims3(name Name, output []float32, shape []int64, want string) (int, int, error) {
	if len(shape) != 3 || shape[0] != 1 || shape[1] <= 0 || shape[2] <= 0 {
		return 0, 0, &ShapeMismatchError{Model: name, Shape: shape, Len: len(output), Want: want}
	}
	a, b := int(shape[1]), int(shape[2])
	if a*b != len(output) {
		return 0, 0, &ShapeMismatchError{Model: name, Shape: shape, Len: len(output), Want: want}
	}
	return a, b, nil
}
