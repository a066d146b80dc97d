package neighbors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument covers bad sources, worker counts and malformed indexes.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a queried user is not in the index.
	ErrNotFound = errors.New("user not found")
)

// Phase names a stage of a batch run.
type Phase string

const (
	PhasePrune Phase = "prune"
	PhaseScore Phase = "score"
)

// WorkerError reports the unit that failed a batch.
type WorkerError struct {
	Phase  Phase
	UserID int
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s unit for user %d: %v", e.Phase, e.UserID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }
