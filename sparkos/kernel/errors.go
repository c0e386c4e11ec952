package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates a wait expired before it could be satisfied.
	ErrTimeout = errors.New("timeout")

	// ErrRange indicates a no-wait request could not be satisfied, or a
	// counted resource is already at capacity.
	ErrRange = errors.New("out of range")

	// ErrInvalid indicates a malformed mask, size or timeout.
	ErrInvalid = errors.New("invalid argument")

	// ErrAccess indicates the caller may not perform the operation, e.g. a
	// non-owner releasing a mutex or a blocking wait outside thread context.
	ErrAccess = errors.New("access denied")

	// ErrAgain indicates an object is already initialised, or a wait was
	// abandoned and may be retried.
	ErrAgain = errors.New("try again")

	// ErrBusy indicates teardown was attempted while the object is held or awaited.
	ErrBusy = errors.New("busy")

	// ErrFault indicates Destroy was called on an object that was not created
	// by the kernel.
	ErrFault = errors.New("fault")

	// ErrForced is delivered to waiters woken because their object was torn down.
	ErrForced = fmt.Errorf("object torn down: %w", ErrAgain)
)
