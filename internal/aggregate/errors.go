package aggregate

import (
	"errors"
	"fmt"
)

// EmptyInputError signals that aggregation or ranking was requested over zero
// inputs. That is a caller-logic bug, not a data-quality state, so it
// surfaces loudly instead of defaulting to an empty result a caller could
// mistake for a real answer.
type EmptyInputError struct {
	Op string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: empty input", e.Op)
}

// IsEmptyInput reports whether the error (or any error in its chain) is an
// EmptyInputError.
func IsEmptyInput(err error) bool {
	var ee *EmptyInputError
	return errors.As(err, &ee)
}
