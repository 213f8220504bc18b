package domain

import (
	"errors"
	"fmt"
)

// ErrPrecondition marks malformed input: dimension mismatch, an empty matrix
// where at least one row is required, too few rows to fit a projection. The
// affected stage does not proceed.
var ErrPrecondition = errors.New("precondition violated")

// ErrMissingArtifact marks an absent upstream artifact, such as one cluster's
// embedding export. Callers skip the affected unit of work and continue.
var ErrMissingArtifact = errors.New("required artifact missing")

// DimensionError reports an inconsistent or insufficient matrix shape.
// It wraps ErrPrecondition.
func DimensionError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPrecondition}, args...)...)
}
