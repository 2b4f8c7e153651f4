package livemon

import (
	"fmt"
	"iter"
	"strconv"
)

// Group is an ordered collection of buffers with uniform mode and capacity
// which are allocated and closed together. Members are never added or
// removed after construction.
type Group[T any] struct {
	name    string
	mode    Mode
	buffers []*Buffer[T]
}

// NewGroup allocates n buffers. If group is named, members are named
// "<name>.<index>".
func NewGroup[T any](n int, mode Mode, capacity int, opts ...Option) (*Group[T], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidConfig, n)
	}
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
	g := Group[T]{
		name:    o.name,
		mode:    mode,
		buffers: make([]*Buffer[T], n),
	}
	for i := range g.buffers {
		var name string
		if o.name != "" {
			name = o.name + "." + strconv.Itoa(i)
		}
		g.buffers[i] = newBuffer[T](name, mode, capacity)
	}
	return &g, nil
}

// Name returns the group name.
func (g *Group[T]) Name() string {
	return g.name
}

// Mode returns mode of all members.
func (g *Group[T]) Mode() Mode {
	return g.mode
}

// Len returns number of members.
func (g *Group[T]) Len() int {
	return len(g.buffers)
}

// At returns the member at index.
func (g *Group[T]) At(index int) (*Buffer[T], error) {
	if index < 0 || index >= len(g.buffers) {
		return nil, fmt.Errorf("group %q member %d of %d: %w", g.name, index, len(g.buffers), ErrIndexOutOfRange)
	}
	return g.buffers[index], nil
}

// All iterates over members in creation order. Every call returns a new
// sequence, so it can be ranged over multiple times.
func (g *Group[T]) All() iter.Seq2[int, *Buffer[T]] {
	return func(yield func(int, *Buffer[T]) bool) {
		for i, b := range g.buffers {
			if !yield(i, b) {
				return
			}
		}
	}
}

// Snapshots returns contents of every member in creation order. Each
// member is consistent on its own, there is no consistency across members.
func (g *Group[T]) Snapshots() ([][]T, error) {
	s := make([][]T, len(g.buffers))
	for i, b := range g.All() {
		v, err := b.Get()
		if err != nil {
			return nil, fmt.Errorf("group %q member %d: %w", g.name, i, err)
		}
		s[i] = v
	}
	return s, nil
}

// Close closes every member.
func (g *Group[T]) Close() {
	for _, b := range g.buffers {
		b.Close()
	}
}
