package nn

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch is returned when a tensor's dimensions disagree with
	// the configured layer sizes.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrBatchTooSmall is returned by batch normalization in training mode
	// when the batch has fewer than two rows.
	ErrBatchTooSmall = errors.New("batch too small for training-mode statistics")

	// ErrMissingParam is returned by LoadParams when a parameter is absent
	// from the loaded file.
	ErrMissingParam = errors.New("missing parameter")
)

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}
