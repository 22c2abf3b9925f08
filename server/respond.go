package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
)

// Error codes returned in the JSON error body.
const (
	CodeInvalidImage     = "invalid_image"
	CodeInvalidRequest   = "invalid_request"
	CodeTooLarge         = "payload_too_large"
	CodeModelUnavailable = "model_unavailable"
	CodeInternal         = "internal_error"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
)

// ErrorBody is the response body of every failed request.
type ErrorBody struct {
	Success   bool   `json:"success"`
	Code      string `json:"code"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// requestError is a client mistake found while reading the request.
type requestError struct {
	msg string
	err error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error { return &requestError{msg: msg, err: err} }

// internalBody is written when a response cannot be encoded.
var internalBody = []byte(`{"success":false,"code":"` + CodeInternal + `","error":"internal error"}` + "\n")

// JSON writes v as application/json with the given status.
//
// v is encoded before anything is sent, so a value that cannot be encoded (a NaN
// float, for one) turns into a 500 internal_error instead of a truncated body.
//
// Returns:
//   - error: The encoding error, after the 500 has been written.
func JSON(w http.ResponseWriter, status int, v any) error {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(v)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalBody)
		return err
	}
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
	return nil
}

// reply writes v and logs an encoding failure.
func reply(w http.ResponseWriter, r *http.Request, status int, v any) bool {
	if err := JSON(w, status, v); err != nil {
		logger.C(r.Context()).Error().Err(err).Int("status", status).Msg("encoding response")
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	reply(w, r, status, ErrorBody{
		Code:      code,
		Error:     msg,
		RequestID: logger.RequestID(r.Context()),
	})
}

// classify maps a pipeline error onto a status, a code and a client safe message.
func classify(err error) (int, string, string) {
	var (
		decodeErr  *images.DecodeError
		optsErr    *inference.OptionsError
		reqErr     *requestError
		tooLarge   *http.MaxBytesError
		unavailErr *detectors.ModelUnavailableError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge, "request body too large"
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest, CodeInvalidImage, "invalid image: " + decodeErr.Reason
	case errors.As(err, &optsErr):
		return http.StatusBadRequest, CodeInvalidRequest, "parameters out of range: confidence_threshold and iou_threshold must be within [0, 1]"
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, CodeInvalidRequest, reqErr.msg
	case errors.As(err, &unavailErr):
		return http.StatusServiceUnavailable, CodeModelUnavailable, "detection model unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

// fail logs err with its internal detail and writes the client safe response.
func fail(w http.ResponseWriter, r *http.Request, err error) string {
	status, code, msg := classify(err)
	log := logger.C(r.Context())
	evt := log.Warn()
	if status >= http.StatusInternalServerError {
		evt = log.Error()
	}
	evt.Err(err).Int("status", status).Str("code", code).Msg("detect failed")
	respondError(w, r, status, code, msg)
	return code
}
