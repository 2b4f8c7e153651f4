package livemon

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/pipelined/livemon/metric"
)

// Mode is a retention policy of the buffer.
type Mode int

const (
	// Accumulate keeps bounded FIFO history. Oldest values are evicted
	// when capacity is exceeded.
	Accumulate Mode = iota
	// LatestOnly keeps a single payload. Every write replaces it.
	LatestOnly
)

// Unbounded capacity disables eviction.
const Unbounded = 0

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case Accumulate:
		return "accumulate"
	case LatestOnly:
		return "latest"
	}
	return "unknown"
}

// ParseMode converts config value into Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "accumulate":
		return Accumulate, nil
	case "latest", "latestonly", "latest_only":
		return LatestOnly, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// Buffer is a container of values shared between exactly one writer and
// one reader. Writes are atomic with respect to reads: reader always
// observes either complete state before or after the write.
//
// Buffer methods never block for longer than a single copy of contents.
type Buffer[T any] struct {
	id       string
	name     string
	mode     Mode
	capacity int
	meter    *metric.Buffer

	mu     sync.Mutex
	values ring[T]
	closed bool
}

// NewBuffer creates a buffer with provided mode and capacity. Capacity
// must not be negative, use Unbounded to disable eviction.
func NewBuffer[T any](mode Mode, capacity int, opts ...Option) (*Buffer[T], error) {
	if capacity < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if mode != Accumulate && mode != LatestOnly {
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, mode)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return newBuffer[T](o.name, mode, capacity), nil
}

func newBuffer[T any](name string, mode Mode, capacity int) *Buffer[T] {
	b := Buffer[T]{
		id:       xid.New().String(),
		name:     name,
		mode:     mode,
		capacity: capacity,
		values:   ring[T]{bound: capacity},
	}
	if name != "" {
		b.meter = metric.BufferMeter(name)
	}
	return &b
}

// ID returns unique buffer id.
func (b *Buffer[T]) ID() string {
	return b.id
}

// Name returns buffer name. It's empty if buffer was created without
// WithName option.
func (b *Buffer[T]) Name() string {
	return b.name
}

// Mode returns retention policy of the buffer.
func (b *Buffer[T]) Mode() Mode {
	return b.mode
}

// Capacity returns max number of retained values. Zero means unbounded.
func (b *Buffer[T]) Capacity() int {
	return b.capacity
}

// Push appends values to the buffer. If capacity is exceeded, oldest
// values are discarded. Push without values is a no-op.
func (b *Buffer[T]) Push(values ...T) error {
	if b.mode != Accumulate {
		return fmt.Errorf("push to %v buffer: %w", b.mode, ErrModeMismatch)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrChannelClosed
	}
	if len(values) == 0 {
		return nil
	}
	evicted := b.values.push(values...)
	b.meter.Pushed(len(values), evicted)
	return nil
}

// Replace discards current contents and stores the payload. If capacity
// is set, only the most recent capacity values of the payload are kept.
func (b *Buffer[T]) Replace(payload ...T) error {
	if b.mode != LatestOnly {
		return fmt.Errorf("replace in %v buffer: %w", b.mode, ErrModeMismatch)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrChannelClosed
	}
	b.values.reset()
	b.values.push(payload...)
	b.meter.Replaced()
	return nil
}

// Get returns a snapshot of current contents. Snapshot is not affected by
// subsequent writes.
func (b *Buffer[T]) Get() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrChannelClosed
	}
	return b.values.snapshot(), nil
}

// PopFront removes and returns the oldest value. ErrEmptyBuffer is
// returned if there is nothing to pop.
func (b *Buffer[T]) PopFront() (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var zero T
	if b.closed {
		return zero, ErrChannelClosed
	}
	v, ok := b.values.pop()
	if !ok {
		return zero, ErrEmptyBuffer
	}
	b.meter.Popped()
	return v, nil
}

// Clear empties the buffer.
func (b *Buffer[T]) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrChannelClosed
	}
	b.values.reset()
	b.meter.Cleared()
	return nil
}

// Drain returns a snapshot and empties the buffer in one step. Values
// pushed concurrently are either in the snapshot or stay in the buffer.
func (b *Buffer[T]) Drain() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrChannelClosed
	}
	s := b.values.snapshot()
	b.values.reset()
	b.meter.Cleared()
	return s, nil
}

// IsEmpty reports whether the buffer holds no values.
func (b *Buffer[T]) IsEmpty() (bool, error) {
	n, err := b.Len()
	return n == 0, err
}

// Len returns number of values in the buffer.
func (b *Buffer[T]) Len() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrChannelClosed
	}
	return b.values.count, nil
}

// Close releases contents. Every subsequent call returns ErrChannelClosed.
// Close is idempotent.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.values = ring[T]{}
}

func (b *Buffer[T]) String() string {
	if b.name == "" {
		return b.id
	}
	return fmt.Sprintf("%v %v", b.name, b.id)
}

// ring stores values in insertion order. Bounded ring overwrites the
// oldest values, unbounded one grows.
type ring[T any] struct {
	data  []T
	head  int
	count int
	bound int
}

// push appends values and returns number of evicted ones.
func (r *ring[T]) push(values ...T) int {
	if r.bound == Unbounded {
		if r.head > 0 && r.head >= len(r.data)/2 {
			r.compact()
		}
		r.data = append(r.data, values...)
		r.count += len(values)
		return 0
	}
	if r.data == nil {
		r.data = make([]T, r.bound)
	}
	evicted := 0
	// only the tail that fits is retained
	if len(values) >= r.bound {
		evicted = r.count + len(values) - r.bound
		copy(r.data, values[len(values)-r.bound:])
		r.head, r.count = 0, r.bound
		return evicted
	}
	for _, v := range values {
		if r.count == r.bound {
			r.data[r.head] = v
			r.head = (r.head + 1) % r.bound
			evicted++
			continue
		}
		r.data[(r.head+r.count)%r.bound] = v
		r.count++
	}
	return evicted
}

func (r *ring[T]) pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.data[r.head]
	r.data[r.head] = zero
	r.count--
	if r.bound == Unbounded {
		r.head++
		if r.count == 0 {
			r.data, r.head = r.data[:0], 0
		}
		return v, true
	}
	r.head = (r.head + 1) % r.bound
	return v, true
}

func (r *ring[T]) snapshot() []T {
	s := make([]T, r.count)
	if r.count == 0 {
		return s
	}
	if r.bound == Unbounded {
		copy(s, r.data[r.head:r.head+r.count])
		return s
	}
	n := copy(s, r.data[r.head:min(r.head+r.count, r.bound)])
	copy(s[n:], r.data[:r.count-n])
	return s
}

func (r *ring[T]) reset() {
	clear(r.data)
	if r.bound == Unbounded {
		r.data = r.data[:0]
	}
	r.head, r.count = 0, 0
}

// compact moves live values of unbounded ring to the start of storage.
func (r *ring[T]) compact() {
	n := copy(r.data, r.data[r.head:r.head+r.count])
	clear(r.data[n:])
	r.data = r.data[:n]
	r.head = 0
}
