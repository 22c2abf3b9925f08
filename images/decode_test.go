package images

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestDecodeFormats(t *testing.T) {
	src := solid(64, 48, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	var gifBuf, bmpBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, src, nil))
	require.NoError(t, bmp.Encode(&bmpBuf, src))

	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"png", encodePNG(t, src), FormatPNG},
		{"jpeg", encodeJPEG(t, src), FormatJPEG},
		{"gif", gifBuf.Bytes(), FormatGIF},
		{"bmp", bmpBuf.Bytes(), FormatBMP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data, "", "req-1")
			require.NoError(t, err)
			assert.Equal(t, 64, f.Width())
			assert.Equal(t, 48, f.Height())
			assert.Equal(t, tt.format, f.Format())
			assert.Equal(t, "req-1", f.SourceID())
			assert.Positive(t, f.Channels())
		})
	}
}

func TestDecodeColorSpace(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 8, 8))
	f, err := Decode(encodePNG(t, gray), "image/png", "")
	require.NoError(t, err)
	assert.Equal(t, ColorSpaceGray, f.ColorSpace())
	assert.Equal(t, 1, f.Channels())
	assert.NotEmpty(t, f.SourceID(), "a source id is generated when none is given")

	f, err = Decode(encodeJPEG(t, solid(8, 8, color.White)), "", "")
	require.NoError(t, err)
	assert.Equal(t, ColorSpaceYCbCr, f.ColorSpace())
	assert.Equal(t, 3, f.Channels())
}

func TestDecodeErrors(t *testing.T) {
	valid := encodePNG(t, solid(32, 32, color.Black))

	tests := []struct {
		name string
		data []byte
		mime string
	}{
		{"empty", nil, "image/png"},
		{"text", []byte("hello, this is not an image"), "image/jpeg"},
		{"truncated png", valid[:len(valid)/2], "image/png"},
		{"header only", valid[:8], "image/png"},
		{"pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n"), "image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data, tt.mime, "")
			require.Error(t, err)
			assert.Nil(t, f)

			var de *DecodeError
			assert.True(t, errors.As(err, &de), "got %T", err)
		})
	}
}

func TestDecodeMaxPixels(t *testing.T) {
	data := encodePNG(t, solid(100, 100, color.Black))

	_, err := NewDecoder(9_999).Decode(data, "", "")
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "exceeds")

	_, err = NewDecoder(10_000).Decode(data, "", "")
	assert.NoError(t, err)
}

func TestDecodeIgnoresDeclaredMIME(t *testing.T) {
	data := encodePNG(t, solid(10, 10, color.Black))

	f, err := Decode(data, "image/jpeg", "")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f.Format())
	assert.True(t, DeclaredMismatch(f, "image/jpeg"))
	assert.False(t, DeclaredMismatch(f, "image/png"))
	assert.False(t, DeclaredMismatch(f, "application/octet-stream"))
}

func TestNewFrameRejectsEmpty(t *testing.T) {
	_, err := NewFrame(image.NewRGBA(image.Rect(0, 0, 0, 10)), FormatPNG, "")
	var de *DecodeError
	assert.ErrorAs(t, err, &de)

	_, err = NewFrame(nil, FormatPNG, "")
	assert.ErrorAs(t, err, &de)
}

func TestFormatForMIME(t *testing.T) {
	f, ok := FormatForMIME("Image/JPEG; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, "image/jpeg", f.MIME())

	_, ok = FormatForMIME("video/mp4")
	assert.False(t, ok)
}
