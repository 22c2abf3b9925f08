package images

import "strings"

// Format is the container encoding of an uploaded frame.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp"
)

var mimeFormats = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/png":  FormatPNG,
	"image/gif":  FormatGIF,
	"image/bmp":  FormatBMP,
	"image/tiff": FormatTIFF,
	"image/webp": FormatWEBP,
}

// SupportedFormats lists every format Decode accepts.
var SupportedFormats = []Format{FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF, FormatWEBP}

// FormatForMIME maps a MIME type (parameters ignored) onto a supported format.
func FormatForMIME(mime string) (Format, bool) {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	f, ok := mimeFormats[strings.ToLower(strings.TrimSpace(mime))]
	return f, ok
}

// MIME returns the canonical MIME type of the format.
func (f Format) MIME() string {
	return "image/" + string(f)
}
