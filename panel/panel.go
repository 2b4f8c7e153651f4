// Package panel connects buffer groups to renderers. Every panel owns one
// group, the producer writes into its members and the panel tick reads
// them once per period and forwards snapshots to the renderer.
package panel

import (
	"context"
	"fmt"
	"time"

	"github.com/pipelined/livemon"
)

// SeriesRenderer draws one line per snapshot.
type SeriesRenderer[T any] interface {
	Series(panel string, opts livemon.DisplayOptions, series [][]T) error
}

// ScatterRenderer draws x/y points.
type ScatterRenderer[T any] interface {
	Scatter(panel string, opts livemon.DisplayOptions, points []Points[T]) error
}

// ConsoleRenderer prints lines.
type ConsoleRenderer[T any] interface {
	Console(panel string, lines []T) error
}

// FrameRenderer shows a frame with its metadata.
type FrameRenderer[T any] interface {
	Frame(panel string, frame T, meta []T) error
}

// Renderer can draw every panel kind.
type Renderer[T any] interface {
	SeriesRenderer[T]
	ScatterRenderer[T]
	ConsoleRenderer[T]
	FrameRenderer[T]
}

// Points are coordinates of a single scatter series.
type Points[T any] struct {
	X []T
	Y []T
}

// Panel polls its group and forwards snapshots to renderer.
type Panel[T any] struct {
	name   string
	kind   livemon.PanelKind
	period time.Duration
	group  *livemon.Group[T]
	tick   livemon.TickFunc
	handle *livemon.Handle
}

// New creates a panel of configured kind.
func New[T any](cfg livemon.PanelConfig, r Renderer[T]) (*Panel[T], error) {
	switch cfg.Kind {
	case livemon.SeriesPanel:
		return NewSeries[T](cfg, r)
	case livemon.ScatterPanel:
		return NewScatter[T](cfg, r)
	case livemon.ConsolePanel:
		return NewConsole[T](cfg, r)
	case livemon.FramePanel:
		return NewFrame[T](cfg, r)
	}
	return nil, fmt.Errorf("%w: panel %q has unknown kind %q", livemon.ErrInvalidConfig, cfg.Name, cfg.Kind)
}

// NewSeries creates a panel which renders every member as a line.
func NewSeries[T any](cfg livemon.PanelConfig, r SeriesRenderer[T]) (*Panel[T], error) {
	cfg.Kind = livemon.SeriesPanel
	p, err := newPanel[T](cfg)
	if err != nil {
		return nil, err
	}
	display := cfg.Display
	p.tick = func(context.Context) error {
		series, err := p.group.Snapshots()
		if err != nil {
			return err
		}
		return r.Series(p.name, display, series)
	}
	return p, nil
}

// NewScatter creates a panel which renders pairs of members as x/y
// points. Member 2i holds x and member 2i+1 holds y values of series i.
func NewScatter[T any](cfg livemon.PanelConfig, r ScatterRenderer[T]) (*Panel[T], error) {
	cfg.Kind = livemon.ScatterPanel
	p, err := newPanel[T](cfg)
	if err != nil {
		return nil, err
	}
	display := cfg.Display
	p.tick = func(context.Context) error {
		s, err := p.group.Snapshots()
		if err != nil {
			return err
		}
		points := make([]Points[T], len(s)/2)
		for i := range points {
			x, y := s[2*i], s[2*i+1]
			// x and y are pushed separately, one of them can be ahead
			n := min(len(x), len(y))
			points[i] = Points[T]{X: x[:n], Y: y[:n]}
		}
		return r.Scatter(p.name, display, points)
	}
	return p, nil
}

// NewConsole creates a panel which drains its buffer every tick. Nothing
// is rendered if there are no new lines.
func NewConsole[T any](cfg livemon.PanelConfig, r ConsoleRenderer[T]) (*Panel[T], error) {
	cfg.Kind = livemon.ConsolePanel
	p, err := newPanel[T](cfg)
	if err != nil {
		return nil, err
	}
	b, _ := p.group.At(0)
	p.tick = func(context.Context) error {
		lines, err := b.Drain()
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		return r.Console(p.name, lines)
	}
	return p, nil
}

// NewFrame creates a panel with latest frame in member 0 and frame
// metadata in member 1. Nothing is rendered until the first frame.
func NewFrame[T any](cfg livemon.PanelConfig, r FrameRenderer[T]) (*Panel[T], error) {
	cfg.Kind = livemon.FramePanel
	p, err := newPanel[T](cfg)
	if err != nil {
		return nil, err
	}
	frames, _ := p.group.At(0)
	meta, _ := p.group.At(1)
	p.tick = func(context.Context) error {
		f, err := frames.Get()
		if err != nil {
			return err
		}
		if len(f) == 0 {
			return nil
		}
		m, err := meta.Get()
		if err != nil {
			return err
		}
		return r.Frame(p.name, f[len(f)-1], m)
	}
	return p, nil
}

func newPanel[T any](cfg livemon.PanelConfig) (*Panel[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := cfg.Mode()
	if err != nil {
		return nil, err
	}
	g, err := livemon.NewGroup[T](cfg.Buffers(), mode, cfg.Capacity(), livemon.WithName(cfg.Name))
	if err != nil {
		return nil, err
	}
	return &Panel[T]{
		name:   cfg.Name,
		kind:   cfg.Kind,
		period: cfg.Period(),
		group:  g,
	}, nil
}

// Name returns panel name.
func (p *Panel[T]) Name() string {
	return p.name
}

// Kind returns panel kind.
func (p *Panel[T]) Kind() livemon.PanelKind {
	return p.kind
}

// Group returns buffers of the panel. Producers write into its members.
func (p *Panel[T]) Group() *livemon.Group[T] {
	return p.group
}

// Tick reads buffers once and renders snapshots.
func (p *Panel[T]) Tick(ctx context.Context) error {
	if err := p.tick(ctx); err != nil {
		return fmt.Errorf("panel %q: %w", p.name, err)
	}
	return nil
}

// Attach registers panel tick in the scheduler with configured period.
func (p *Panel[T]) Attach(s *livemon.Scheduler) (*livemon.Handle, error) {
	h, err := s.Register(p.Tick, p.period)
	if err != nil {
		return nil, err
	}
	p.handle = h
	return h, nil
}

// Close stops polling and closes the group. Producers writing into the
// group get ErrChannelClosed.
func (p *Panel[T]) Close() {
	if p.handle != nil {
		p.handle.Cancel()
	}
	p.group.Close()
}
