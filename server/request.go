package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
)

// jsonDetectRequest is the application/json form of POST /detect.
type jsonDetectRequest struct {
	// Image is base64, optionally as a data URL.
	Image               string   `json:"image"`
	ConfidenceThreshold *float32 `json:"confidence_threshold"`
	IoUThreshold        *float32 `json:"iou_threshold"`
	Annotate            *bool    `json:"annotate"`
	AnnotationFormat    *string  `json:"annotation_format"`
}

// readDetectRequest extracts the image and parameters from a /detect request.
//
// Three body forms are accepted: multipart/form-data with an "image" file,
// application/json with a base64 "image", or the raw image bytes. Parameters are
// read from the query string, then from form fields or JSON fields, later sources
// overriding earlier ones.
func readDetectRequest(r *http.Request, maxBody int64, defaults inference.Options) (inference.Request, error) {
	req := inference.Request{Options: defaults}
	if err := applyParams(&req.Options, r.URL.Query().Get); err != nil {
		return req, err
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBody); err != nil {
			return req, bodyError(err, "malformed multipart body")
		}
		if err := applyParams(&req.Options, r.PostFormValue); err != nil {
			return req, err
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			return req, badRequest("no image uploaded", nil)
		}
		defer file.Close()
		if header.Filename == "" && header.Size == 0 {
			return req, badRequest("no image selected", nil)
		}
		req.Data, err = io.ReadAll(file)
		if err != nil {
			return req, bodyError(err, "reading image")
		}
		req.MIME = header.Header.Get("Content-Type")

	case "application/json":
		var body jsonDetectRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return req, bodyError(err, "malformed JSON body")
		}
		if body.ConfidenceThreshold != nil {
			req.Options.ConfidenceThreshold = *body.ConfidenceThreshold
		}
		if body.IoUThreshold != nil {
			req.Options.IoUThreshold = *body.IoUThreshold
		}
		if body.Annotate != nil {
			req.Options.Annotate = *body.Annotate
		}
		if body.AnnotationFormat != nil {
			req.Options.AnnotationFormat = images.Format(strings.ToLower(*body.AnnotationFormat))
		}
		data, declared, err := decodeBase64Image(body.Image)
		if err != nil {
			return req, err
		}
		req.Data, req.MIME = data, declared

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return req, bodyError(err, "reading body")
		}
		req.Data = data
		req.MIME = mediaType
	}

	if len(req.Data) == 0 {
		return req, badRequest("no image uploaded", nil)
	}
	return req, nil
}

// applyParams overrides opts with the parameters get returns.
func applyParams(opts *inference.Options, get func(string) string) error {
	if v := get("confidence_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return badRequest("confidence_threshold must be a number", err)
		}
		opts.ConfidenceThreshold = float32(f)
	}
	if v := get("iou_threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return badRequest("iou_threshold must be a number", err)
		}
		opts.IoUThreshold = float32(f)
	}
	if v := get("annotate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest("annotate must be a boolean", err)
		}
		opts.Annotate = b
	}
	if v := get("annotation_format"); v != "" {
		opts.AnnotationFormat = images.Format(strings.ToLower(v))
	}
	return nil
}

// decodeBase64Image accepts plain base64 or a data URL ("data:image/png;base64,...").
func decodeBase64Image(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", badRequest("no image uploaded", nil)
	}
	var declared string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", badRequest("malformed data URL", nil)
		}
		declared, _, _ = strings.Cut(meta, ";")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, "", badRequest("image is not valid base64", err)
		}
	}
	return data, declared, nil
}

// bodyError keeps a MaxBytesError visible and reports everything else as a bad request.
func bodyError(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return badRequest(msg, err)
}
