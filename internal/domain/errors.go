package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a run or other entity does not exist.
var ErrNotFound = errors.New("not found")

// IllegalTransitionError reports a run-status transition outside the
// lifecycle graph. The ingestion pipeline treats it as non-fatal; operator
// actions surface it to the caller.
type IllegalTransitionError struct {
	From RunStatus
	To   RunStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// IsIllegalTransition reports whether err is an IllegalTransitionError.
func IsIllegalTransition(err error) bool {
	var ite *IllegalTransitionError
	return errors.As(err, &ite)
}
