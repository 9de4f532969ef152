package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is the root of all misuse errors in this package.
	ErrInvalidState = errors.New("dispatch: invalid state")

	// ErrQueueClosed is returned when tasks are added to a closed queue.
	ErrQueueClosed = fmt.Errorf("%w: queue closed", ErrInvalidState)
)
