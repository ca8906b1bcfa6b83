package scan

import (
	"errors"
	"fmt"
)

// ErrFatal marks failures that must stop the process so a supervisor can restart it:
// an unreachable node on the liveness check or a non-duplicate store write failure.
var ErrFatal = errors.New("fatal")

// Fatal wraps err as fatal. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	if IsFatal(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
