package images

import (
	"image"
	"image/color"
)

// ColorSpace tags the pixel layout of a decoded frame.
type ColorSpace string

const (
	ColorSpaceGray  ColorSpace = "gray"
	ColorSpaceRGB   ColorSpace = "rgb"
	ColorSpaceRGBA  ColorSpace = "rgba"
	ColorSpaceYCbCr ColorSpace = "ycbcr"
	ColorSpaceCMYK  ColorSpace = "cmyk"
)

// Frame is a decoded image owned by a single request.
//
// A Frame is immutable: all fields are set by Decode (or NewFrame) and only exposed
// through accessors. Code that needs to draw on the pixels must work on a copy.
type Frame struct {
	img        image.Image
	width      int
	height     int
	channels   int
	colorSpace ColorSpace
	format     Format
	sourceID   string
}

// NewFrame wraps an already decoded image.
//
// Arguments:
//   - img: The decoded image. Its bounds must not be empty.
//   - format: The encoding the image was decoded from.
//   - sourceID: Identifies the request the frame belongs to.
//
// Returns:
//   - *Frame: The frame, or nil with a DecodeError when img has no pixels.
func NewFrame(img image.Image, format Format, sourceID string) (*Frame, error) {
	if img == nil {
		return nil, &DecodeError{Reason: "no image"}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Reason: "image has zero width or height"}
	}
	cs, ch := describe(img)
	return &Frame{
		img:        img,
		width:      b.Dx(),
		height:     b.Dy(),
		channels:   ch,
		colorSpace: cs,
		format:     format,
		sourceID:   sourceID,
	}, nil
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// Channels returns the number of color channels, alpha included.
func (f *Frame) Channels() int { return f.channels }

// ColorSpace returns the pixel layout the frame was decoded into.
func (f *Frame) ColorSpace() ColorSpace { return f.colorSpace }

// Format returns the encoding the frame was decoded from.
func (f *Frame) Format() Format { return f.format }

// SourceID returns the id of the request the frame belongs to.
func (f *Frame) SourceID() string { return f.sourceID }

// Image returns the decoded pixels. Callers must not draw on it.
func (f *Frame) Image() image.Image { return f.img }

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle { return f.img.Bounds() }

func describe(img image.Image) (ColorSpace, int) {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return ColorSpaceGray, 1
	case *image.YCbCr:
		return ColorSpaceYCbCr, 3
	case *image.CMYK:
		return ColorSpaceCMYK, 4
	case *image.Paletted:
		if paletteHasAlpha(m.Palette) {
			return ColorSpaceRGBA, 4
		}
		return ColorSpaceRGB, 3
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		return ColorSpaceRGBA, 4
	}

	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return ColorSpaceGray, 1
	case color.YCbCrModel:
		return ColorSpaceYCbCr, 3
	case color.CMYKModel:
		return ColorSpaceCMYK, 4
	}
	return ColorSpaceRGBA, 4
}

func paletteHasAlpha(p color.Palette) bool {
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			return true
		}
	}
	return false
}
