package detectors

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable matches every *ModelUnavailableError with errors.Is.
var ErrModelUnavailable = errors.New("detector model unavailable")

// ModelUnavailableError reports that the detector cannot run inference, either
// because no checkpoint loaded at startup or because the runtime failed.
type ModelUnavailableError struct {
	// Model is the checkpoint name, empty when nothing loaded.
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	switch {
	case e.Model == "" && e.Err == nil:
		return ErrModelUnavailable.Error()
	case e.Model == "":
		return fmt.Sprintf("%s: %v", ErrModelUnavailable, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", ErrModelUnavailable, e.Model)
	}
	return fmt.Sprintf("%s: %s: %v", ErrModelUnavailable, e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is ErrModelUnavailable.
func (e *ModelUnavailableError) Is(target error) bool {
	return target == ErrModelUnavailable
}
