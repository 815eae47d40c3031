package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Producers wrap these with %w, dispatchers classify with errors.Is.
var (
	// ErrConfiguration is fatal and only produced at startup
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks a request missing a required field
	ErrValidation = errors.New("validation error")

	// ErrDependency marks a context fetch or inference runtime failure
	ErrDependency = errors.New("dependency error")

	// ErrTimeout marks chat update processing that exceeded its bound
	ErrTimeout = errors.New("timeout")

	// ErrTemplate marks a prompt template referencing an unknown placeholder
	ErrTemplate = errors.New("template error")

	// ErrInference marks a failed call into the inference runtime
	ErrInference = fmt.Errorf("inference error: %w", ErrDependency)
)
