package library

import (
	"errors"
	"fmt"

	"library/internal/models"
)

// classify passes classified errors through and marks everything else as a store fault
func classify(op string, err error) error {
	for _, class := range []error{
		models.ErrValidation,
		models.ErrNotFound,
		models.ErrConflict,
		models.ErrInvariantViolation,
		models.ErrStoreFault,
	} {
		if errors.Is(err, class) {
			return err
		}
	}
	return fmt.Errorf("%w: failed to %s: %w", models.ErrStoreFault, op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
