package livemon

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBuffer is returned by PopFront when there is nothing to pop.
	// It means "no data yet" and is not a failure.
	ErrEmptyBuffer = errors.New("buffer is empty")
	// ErrIndexOutOfRange is returned when group member doesn't exist.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrChannelClosed is returned by every operation on a buffer which
	// backing channel is gone. Callers should stop using the buffer.
	ErrChannelClosed = errors.New("channel closed")
	// ErrModeMismatch is returned if write operation isn't supported by
	// buffer mode, e.g. Push on LatestOnly buffer.
	ErrModeMismatch = errors.New("operation not supported in buffer mode")
	// ErrInvalidCapacity is returned if buffer is created with negative capacity.
	ErrInvalidCapacity = errors.New("invalid capacity")
	// ErrInvalidPeriod is returned if poll period is not positive.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrSchedulerRunning is returned if Run is called on running scheduler.
	ErrSchedulerRunning = errors.New("scheduler is already running")
	// ErrInvalidConfig is returned when configuration values fail validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// TickError wraps a panic recovered from a scheduled callback.
type TickError struct {
	Handle string
	Value  interface{}
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %s panicked: %v", e.Handle, e.Value)
}
