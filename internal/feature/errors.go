package feature

import (
	"errors"
	"fmt"
)

// ValidationError reports a collection or schema that cannot be used as
// input. Index is the offending feature or field position when known.
type ValidationError struct {
	Layer  string
	Reason string
	Index  int
}

func (e *ValidationError) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("feature: layer %q: %s", e.Layer, e.Reason)
	}
	return "feature: " + e.Reason
}

// IsValidationError returns true if err (or any error in its chain) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func withLayer(err error, layer string) error {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Layer == "" {
		ve.Layer = layer
	}
	return err
}
