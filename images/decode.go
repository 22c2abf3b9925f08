package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxPixels bounds the decoded size when no limit is configured.
const DefaultMaxPixels = 40_000_000

// DecodeError reports bytes that do not hold a usable image.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns uploaded bytes into frames.
type Decoder struct {
	maxPixels int
}

// NewDecoder creates a decoder rejecting images above maxPixels (<= 0 uses DefaultMaxPixels).
func NewDecoder(maxPixels int) *Decoder {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Decoder{maxPixels: maxPixels}
}

// Decode decodes data with the default decoder.
func Decode(data []byte, declaredMIME, sourceID string) (*Frame, error) {
	return NewDecoder(0).Decode(data, declaredMIME, sourceID)
}

// Decode validates and decodes an uploaded image.
//
// The declared MIME type is only advisory: the container is identified by sniffing
// the bytes, and the frame is accepted once its decoded dimensions are non-zero.
// Multi-frame GIFs yield their first frame.
//
// Arguments:
//   - data: The raw upload.
//   - declaredMIME: The client supplied content type, may be empty.
//   - sourceID: Identifies the request; a random id is generated when empty.
//
// Returns:
//   - *Frame: The decoded frame.
//   - error: A *DecodeError for empty, truncated, oversized or unsupported input.
func (d *Decoder) Decode(data []byte, declaredMIME, sourceID string) (*Frame, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}

	detected := mimetype.Detect(data)
	format, ok := FormatForMIME(detected.String())
	if !ok {
		reason := fmt.Sprintf("unsupported media type %s", detected.String())
		if declaredMIME != "" {
			reason += fmt.Sprintf(" (declared %s)", declaredMIME)
		}
		return nil, &DecodeError{Reason: reason}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "malformed " + string(format) + " header", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Reason: "image has zero width or height"}
	}
	if cfg.Width > d.maxPixels/cfg.Height {
		return nil, &DecodeError{
			Reason: fmt.Sprintf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.maxPixels),
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Reason: "truncated or corrupt " + string(format), Err: err}
	}

	if sourceID == "" {
		sourceID = uuid.NewString()
	}
	return NewFrame(img, format, sourceID)
}

// DeclaredMismatch reports whether a client declared a supported MIME type that differs
// from what was decoded.
func DeclaredMismatch(f *Frame, declaredMIME string) bool {
	declared, ok := FormatForMIME(declaredMIME)
	return ok && declared != f.Format()
}
