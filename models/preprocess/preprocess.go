// Package preprocess - Letterboxing and normalisation of frames into model input tensors.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/images"
)

// Shape is the fixed spatial input size of a detector.
type Shape struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// ShapeError reports a target shape that is degenerate or does not match the model input.
type ShapeError struct {
	Shape Shape
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("preprocess: invalid target shape %s", e.Shape)
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
)

// ColorMode defines the channel order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
)

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// Shape is the expected input size of the model.
	Shape Shape
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// ColorMode defines the channel order.
	ColorMode ColorMode
	// LetterboxColor is the color used for letterbox padding.
	LetterboxColor color.Color
	// Interpolation is the resampling kernel used for the resize.
	Interpolation resize.InterpolationFunction
}

// Tensor is a model input plus the transform needed to map boxes back onto the frame.
//
// A box in model space maps back with coord_original = (coord_model - offset) / Scale.
type Tensor struct {
	// Dense holds the NCHW float32 data, shape [1, 3, Height, Width].
	Dense *tensor.Dense
	// Shape is the spatial size of Dense.
	Shape Shape
	// Scale is the resize factor applied to the frame. Always > 0.
	Scale float32
	// PadLeft and PadTop are the letterbox offsets in model pixels.
	PadLeft float32
	PadTop  float32
	// SourceWidth and SourceHeight are the frame dimensions.
	SourceWidth  int
	SourceHeight int
}

// Data returns the flat backing slice of the tensor.
func (t *Tensor) Data() []float32 {
	return t.Dense.Data().([]float32)
}

// Dims returns the NCHW dimensions as int64, as ONNX Runtime expects them.
func (t *Tensor) Dims() []int64 {
	s := t.Dense.Shape()
	out := make([]int64, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}

// ToSource maps a model-space box back onto the frame, without clipping.
func (t *Tensor) ToSource(r images.Rect) images.Rect {
	return r.Scale(t.Scale, t.PadLeft, t.PadTop)
}

// ToModel maps a frame-space box into model space.
func (t *Tensor) ToModel(r images.Rect) images.Rect {
	return images.Rect{
		X1: r.X1*t.Scale + t.PadLeft,
		Y1: r.Y1*t.Scale + t.PadTop,
		X2: r.X2*t.Scale + t.PadLeft,
		Y2: r.Y2*t.Scale + t.PadTop,
	}
}

// Preprocessor turns frames into model input tensors.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
// - config: The model-specific preprocessing configuration.
//
// Returns:
// - A configured Preprocessor instance.
// - A *ShapeError if the configured shape has a zero or negative side.
//
// @example
//
//	preprocessor, err := NewPreprocessor(GetYOLOConfig(Shape{Width: 640, Height: 640}))
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config.Shape.Width <= 0 || config.Shape.Height <= 0 {
		return nil, &ShapeError{Shape: config.Shape}
	}
	if config.LetterboxColor == nil {
		config.LetterboxColor = color.Black
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the configuration of the preprocessor.
func (p *Preprocessor) Config() ModelConfig { return *p.config }

// Prepare letterboxes frame into shape using the YOLO preset.
//
// Arguments:
// - frame: The decoded frame.
// - shape: The detector input size.
//
// Returns:
// - The prepared tensor.
// - A *ShapeError if shape is degenerate.
func Prepare(frame *images.Frame, shape Shape) (*Tensor, error) {
	p, err := NewPreprocessor(GetYOLOConfig(shape))
	if err != nil {
		return nil, err
	}
	return p.Preprocess(frame)
}

// Preprocess resizes the frame preserving its aspect ratio, pads it to the
// configured shape and writes the normalized pixels in CHW order.
//
// Arguments:
// - frame: The frame to preprocess. It is not modified.
//
// Returns:
// - The prepared tensor with its scale and padding.
// - error if the frame is unusable.
func (p *Preprocessor) Preprocess(frame *images.Frame) (*Tensor, error) {
	if frame == nil {
		return nil, errors.New("preprocess: nil frame")
	}
	srcW, srcH := frame.Width(), frame.Height()
	if srcW <= 0 || srcH <= 0 {
		return nil, errors.Errorf("preprocess: invalid frame dimensions %dx%d", srcW, srcH)
	}

	letterboxed, scale, padLeft, padTop := p.letterbox(frame.Image())

	data := p.imageToTensor(letterboxed)
	p.normalize(data)

	dst := tensor.New(
		tensor.WithShape(1, 3, p.config.Shape.Height, p.config.Shape.Width),
		tensor.WithBacking(data),
	)

	return &Tensor{
		Dense:        dst,
		Shape:        p.config.Shape,
		Scale:        scale,
		PadLeft:      float32(padLeft),
		PadTop:       float32(padTop),
		SourceWidth:  srcW,
		SourceHeight: srcH,
	}, nil
}

// letterbox resizes img into the model shape keeping its aspect ratio.
//
// Returns:
// - The letterboxed RGBA image of exactly the model shape.
// - scale: The resize factor min(tw/w, th/h).
// - padLeft: Left padding for letterboxing.
// - padTop: Top padding for letterboxing.
func (p *Preprocessor) letterbox(img image.Image) (*image.RGBA, float32, int, int) {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dstW, dstH := p.config.Shape.Width, p.config.Shape.Height

	scale := math32.Min(float32(dstW)/float32(srcW), float32(dstH)/float32(srcH))

	newW := min(max(int(math32.Round(float32(srcW)*scale)), 1), dstW)
	newH := min(max(int(math32.Round(float32(srcH)*scale)), 1), dstH)

	var resized image.Image = img
	if newW != srcW || newH != srcH {
		resized = resize.Resize(uint(newW), uint(newH), img, p.config.Interpolation)
	}

	padLeft := (dstW - newW) / 2
	padTop := (dstH - newH) / 2

	letterboxed := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.Draw(letterboxed, letterboxed.Bounds(), &image.Uniform{p.config.LetterboxColor}, image.Point{}, draw.Src)
	draw.Draw(letterboxed, image.Rect(padLeft, padTop, padLeft+newW, padTop+newH),
		resized, resized.Bounds().Min, draw.Src)

	return letterboxed, scale, padLeft, padTop
}

// imageToTensor converts an RGBA image to planar float32 channels.
func (p *Preprocessor) imageToTensor(img *image.RGBA) []float32 {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	r, b := 0, 2
	if p.config.ColorMode == ColorModeBGR {
		r, b = 2, 0
	}

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			i := y*width + x
			data[r*plane+i] = float32(px[0])
			data[1*plane+i] = float32(px[1])
			data[b*plane+i] = float32(px[2])
		}
	}
	return data
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(data []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range data {
			data[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range data {
			data[i] = (data[i] / 127.5) - 1.0
		}
	}
}

// GetYOLOConfig returns the standard configuration for YOLOv5/YOLOv8 exports.
//
// Arguments:
// - shape: The input size (typically 640x640).
//
// Returns:
// - A configured ModelConfig for YOLO.
//
// @example
// config := GetYOLOConfig(Shape{Width: 640, Height: 640})
// preprocessor, err := NewPreprocessor(config)
func GetYOLOConfig(shape Shape) *ModelConfig {
	return &ModelConfig{
		Name:              "yolo",
		Shape:             shape,
		NormalizationType: NormalizeZeroToOne,
		ColorMode:         ColorModeRGB,
		LetterboxColor:    color.RGBA{114, 114, 114, 255},
		Interpolation:     resize.Bilinear,
	}
}
