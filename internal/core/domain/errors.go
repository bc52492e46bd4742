package domain

import (
	"errors"
	"fmt"
)

// Error kinds. ErrConflict covers state-machine violations (double commit,
// concurrent run, answering a closed question); ErrStageFailed marks a
// pipeline stage that failed after exhausting its retries.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")
	ErrStageFailed  = errors.New("stage failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
