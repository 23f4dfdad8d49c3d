package sort

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// The worker count or dataset size can't be sorted by the network
	ErrConfig = errors.New("invalid configuration")

	// A partner sent something the exchange protocol doesn't allow
	ErrMalformedPayload = errors.New("malformed exchange payload")
)

// Failure of one worker at one network step. Every StepError is fatal to the
// whole sort: the partner may already have mutated its partition, so the
// step can't be replayed.
type StepError struct {
	Rank    int
	Stage   int
	Substep int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("worker %v failed at stage %v substep %v: %v", e.Rank, e.Stage, e.Substep, e.Err)
}

// Lets errors.Cause see through to the transport or protocol error
func (e *StepError) Cause() error {
	return e.Err
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}
