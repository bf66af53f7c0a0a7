package packages

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateReference = errors.New("reference already used")
	ErrInvalidPlanKind    = errors.New("invalid plan kind")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrSubmissionFailure  = errors.New("submission failed")
	ErrPersistenceFailure = errors.New("persistence failed")
	ErrNotFound           = errors.New("package not found")
)

// PersistenceError describes a failed read or write of one of the state files.
type PersistenceError struct {
	Op   string // "load", "save"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceFailure
}
