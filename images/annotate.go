package images

import (
	"bytes"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Label is one box to draw with its caption.
type Label struct {
	Box Rect
	// Text is drawn above the box, e.g. "person 0.91".
	Text string
	// Class picks the palette colour.
	Class int
}

// Palette cycles per class index.
var Palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
	{R: 82, G: 0, B: 133, A: 255},
	{R: 203, G: 56, B: 255, A: 255},
	{R: 255, G: 149, B: 200, A: 255},
	{R: 255, G: 55, B: 199, A: 255},
}

// ColorFor returns the palette colour of a class index.
func ColorFor(class int) color.RGBA {
	if class < 0 {
		class = -class
	}
	return Palette[class%len(Palette)]
}

// Annotate draws boxes and captions onto a copy of src.
//
// Arguments:
//   - src: The source image. It is never modified.
//   - labels: The boxes to draw, in src pixel coordinates.
//
// Returns:
//   - *image.NRGBA: A new image holding the drawing.
func Annotate(src image.Image, labels []Label) *image.NRGBA {
	canvas := imaging.Clone(src)
	if len(labels) == 0 {
		return canvas
	}

	dc := gg.NewContextForImage(canvas)
	w, h := float64(dc.Width()), float64(dc.Height())

	short := math32.Min(float32(w), float32(h))
	lineWidth := float64(math32.Max(2, math32.Round(short/320)))
	fontSize := float64(math32.Max(11, math32.Round(short/40)))
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: fontSize}))

	for _, l := range labels {
		c := ColorFor(l.Class)
		x, y := float64(l.Box.X1), float64(l.Box.Y1)
		bw, bh := float64(l.Box.Width()), float64(l.Box.Height())

		dc.SetColor(c)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(x, y, bw, bh)
		dc.Stroke()

		if l.Text == "" {
			continue
		}
		tw, th := dc.MeasureString(l.Text)
		pad := lineWidth
		top := y - th - 2*pad
		if top < 0 {
			// no room above, draw inside the box
			top = y
		}
		left := x
		if left+tw+2*pad > w {
			left = max(0, w-tw-2*pad)
		}
		dc.DrawRectangle(left, top, tw+2*pad, th+2*pad)
		dc.Fill()

		dc.SetColor(color.White)
		dc.DrawStringAnchored(l.Text, left+pad, top+pad, 0, 1)
	}

	return imaging.Clone(dc.Image())
}

// Encode serialises img as PNG or JPEG.
//
// Arguments:
//   - img: The image to encode.
//   - format: FormatPNG or FormatJPEG; anything else encodes PNG.
//
// Returns:
//   - []byte: The encoded bytes.
//   - Format: The format actually used.
//   - error: An error if encoding failed.
func Encode(img image.Image, format Format) ([]byte, Format, error) {
	f := imaging.PNG
	if format == FormatJPEG {
		f = imaging.JPEG
	} else {
		format = FormatPNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(90)); err != nil {
		return nil, "", errors.Wrapf(err, "encode %s", format)
	}
	return buf.Bytes(), format, nil
}
