package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad marks fatal artifact problems found at construction.
	// The engine never starts with a partial registry.
	ErrModelLoad = errors.New("model load")

	// ErrValidation marks rejected caller input. Handlers map it to 422.
	ErrValidation = errors.New("validation")
)

func loadErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrModelLoad, fmt.Sprintf(format, args...))
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
