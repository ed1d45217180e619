package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is matched by every protocol violation.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned when a required argument is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotConfigured is returned by Resume on a loader that was never configured.
	ErrNotConfigured = fmt.Errorf("loader not configured: %w", ErrInvalidState)

	// ErrSourceFailed is matched by every fault raised by a data source.
	ErrSourceFailed = errors.New("source failed")
)

// StateError reports an operation attempted in a state that does not permit it.
type StateError struct {
	Op       string
	Expected []State
	Actual   State
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Expected))
	for i, s := range e.Expected {
		names[i] = s.String()
	}
	return fmt.Sprintf("loader: %s: expected state %s, present %s", e.Op, strings.Join(names, " or "), e.Actual)
}

// Is makes errors.Is(err, ErrInvalidState) true for any StateError.
func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func expectState(op string, actual State, expected ...State) error {
	for _, s := range expected {
		if s == actual {
			return nil
		}
	}
	return &StateError{Op: op, Expected: expected, Actual: actual}
}

// SourceError wraps an error raised (or a panic recovered) while pulling
// items from the data source.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("loader: source failed: %v", e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSourceFailed) true for any SourceError.
func (e *SourceError) Is(target error) bool {
	return target == ErrSourceFailed
}
