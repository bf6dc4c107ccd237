package join

import (
	"errors"
	"fmt"
)

// InputError reports a missing or unusable input collection, or an output
// schema that cannot be built from the inputs. Nothing has been written
// when it is returned.
type InputError struct {
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return "join: invalid input: " + e.Reason + ": " + e.Err.Error()
	}
	return "join: invalid input: " + e.Reason
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// SinkCreationError reports that the sink rejected the output layer.
// Nothing has been written when it is returned.
type SinkCreationError struct {
	Layer string
	Err   error
}

func (e *SinkCreationError) Error() string {
	return fmt.Sprintf("join: create output layer %q: %v", e.Layer, e.Err)
}

func (e *SinkCreationError) Unwrap() error {
	return e.Err
}

// AppendError reports the first record the sink refused. Index is the
// position of the source feature in its collection.
type AppendError struct {
	Index    int
	SourceID int64
	Err      error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("join: append feature %d (source id %d): %v", e.Index, e.SourceID, e.Err)
}

func (e *AppendError) Unwrap() error {
	return e.Err
}

// IsInputError returns true if err (or any error in its chain) is an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsSinkCreationError returns true if err (or any error in its chain) is a SinkCreationError.
func IsSinkCreationError(err error) bool {
	var se *SinkCreationError
	return errors.As(err, &se)
}

// IsAppendError returns true if err (or any error in its chain) is an AppendError.
func IsAppendError(err error) bool {
	var ae *AppendError
	return errors.As(err, &ae)
}
