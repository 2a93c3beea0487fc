package mutate

import (
	"errors"
	"fmt"
)

// ErrSessionBusy rejects edits while a submission is in flight.
var ErrSessionBusy = errors.New("session is submitting")

// IndexError reports a mode position outside the current list. Positions come
// from the UI, so this is a caller bug rather than a user mistake.
type IndexError struct {
	Op    string
	Index int
	Len   int
}

func (e IndexError) Error() string {
	return fmt.Sprintf("%s: mode index %d out of range [0,%d)", e.Op, e.Index, e.Len)
}

type UnknownFieldError struct {
	Field Field
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field: %s", e.Field)
}
