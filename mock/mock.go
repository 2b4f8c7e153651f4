// Package mock provides mocks for producers and renderers and allows to
// execute integration tests.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/panel"
)

// Writer is a write side of a buffer.
type Writer[T any] interface {
	Push(values ...T) error
}

// Producer mocks a telemetry source. It pushes sequential integers
// starting from zero.
type Producer struct {
	counter
	Interval time.Duration
	// Limit of push calls, zero means no limit.
	Limit int
	// Batch is number of values per push call, default is one.
	Batch int
	// Closed is set when writer reported closed channel.
	Closed bool
}

// Run pushes values until limit is reached, context is done or writer
// is closed. Closed channel is not an error for producer, it just stops.
func (m *Producer) Run(ctx context.Context, w Writer[int]) error {
	batch := m.Batch
	if batch == 0 {
		batch = 1
	}
	values := make([]int, batch)
	for m.Limit == 0 || m.messages < m.Limit {
		for i := range values {
			values[i] = m.values + i
		}
		if err := w.Push(values...); err != nil {
			if errors.Is(err, livemon.ErrChannelClosed) {
				m.Closed = true
				return nil
			}
			return err
		}
		m.advance(batch)
		if m.Interval == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.Interval):
		}
	}
	return nil
}

// Frame is a rendered frame with metadata.
type Frame[T any] struct {
	Frame T
	Meta  []T
}

// Renderer records everything it was asked to render. It's safe to
// inspect while scheduler is running.
type Renderer[T any] struct {
	mu sync.Mutex
	counter
	ErrorOnCall error
	series      map[string][][]T
	points      map[string][]panel.Points[T]
	lines       map[string][]T
	frames      map[string]Frame[T]
}

// Series records the latest series snapshot of the panel.
func (m *Renderer[T]) Series(name string, _ livemon.DisplayOptions, series [][]T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.series == nil {
		m.series = make(map[string][][]T)
	}
	m.series[name] = series
	m.advance(len(series))
	return nil
}

// Scatter records the latest points of the panel.
func (m *Renderer[T]) Scatter(name string, _ livemon.DisplayOptions, points []panel.Points[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.points == nil {
		m.points = make(map[string][]panel.Points[T])
	}
	m.points[name] = points
	m.advance(len(points))
	return nil
}

// Console appends lines of the panel.
func (m *Renderer[T]) Console(name string, lines []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.lines == nil {
		m.lines = make(map[string][]T)
	}
	m.lines[name] = append(m.lines[name], lines...)
	m.advance(len(lines))
	return nil
}

// Frame records the latest frame of the panel.
func (m *Renderer[T]) Frame(name string, frame T, meta []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.frames == nil {
		m.frames = make(map[string]Frame[T])
	}
	m.frames[name] = Frame[T]{Frame: frame, Meta: meta}
	m.advance(1)
	return nil
}

// LastSeries returns the latest rendered series of the panel.
func (m *Renderer[T]) LastSeries(name string) [][]T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.series[name]
}

// LastPoints returns the latest rendered points of the panel.
func (m *Renderer[T]) LastPoints(name string) []panel.Points[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.points[name]
}

// Lines returns all rendered lines of the panel.
func (m *Renderer[T]) Lines(name string) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.lines[name]...)
}

// LastFrame returns the latest rendered frame of the panel.
func (m *Renderer[T]) LastFrame(name string) (Frame[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.frames[name]
	return f, ok
}

// Count returns number of render calls and rendered values.
func (m *Renderer[T]) Count() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter.Count()
}

// counter counts calls and values.
type counter struct {
	messages int
	values   int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.messages++
	c.values = c.values + size
}

// Count returns calls and values metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.values
}
