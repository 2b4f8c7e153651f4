package livemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon/metric"
)

// TickFunc is a polling callback. It's expected to read buffers and
// forward snapshots to the renderer. Returned errors are logged, except
// ErrChannelClosed which cancels the registration.
type TickFunc func(ctx context.Context) error

// State of the registration.
type State int32

const (
	// Active registration fires every period.
	Active State = iota
	// Cancelled registration never fires again.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// PeriodMS converts configured milliseconds into period.
func PeriodMS(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Scheduler invokes registered callbacks at fixed periods. All callbacks
// are executed one at a time on the goroutine that called Run.
type Scheduler struct {
	name  string
	clock clock.Clock
	log   logrus.FieldLogger
	meter *metric.Scheduler

	mu      sync.Mutex
	handles map[string]*Handle
	running bool
	// wakec interrupts the wait when registrations change.
	// created in constructor, never closed.
	wakec chan struct{}
}

// Handle is a registration of a callback.
type Handle struct {
	id     string
	fn     TickFunc
	period time.Duration
	s      *Scheduler
	// next is guarded by scheduler mutex.
	next  time.Time
	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

// NewScheduler returns a scheduler without registrations.
func NewScheduler(opts ...Option) *Scheduler {
	o := newOptions(opts)
	s := Scheduler{
		name:    o.name,
		clock:   o.clock,
		handles: make(map[string]*Handle),
		wakec:   make(chan struct{}, 1),
	}
	if s.name == "" {
		s.name = xid.New().String()
	} else {
		s.meter = metric.SchedulerMeter(s.name)
	}
	s.log = o.logger.WithField("scheduler", s.name)
	return &s
}

// Register schedules fn to be called every period. First call happens
// after one period elapsed. Register can be called at any time, including
// from running callback.
func (s *Scheduler) Register(fn TickFunc, period time.Duration) (*Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, period)
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: nil tick func", ErrInvalidConfig)
	}
	h := Handle{
		id:     xid.New().String(),
		fn:     fn,
		period: period,
		s:      s,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	h.next = s.clock.Now().Add(period)
	s.handles[h.id] = &h
	s.mu.Unlock()
	s.wake()
	s.log.WithField("handle", h.id).Debugf("registered with period %v", period)
	return &h, nil
}

// Len returns number of active registrations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Run executes callbacks until context is done. All registrations are
// cancelled when Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerRunning
	}
	s.running = true
	s.mu.Unlock()
	defer s.teardown()

	s.log.Debug("started")
	for {
		if ctx.Err() != nil {
			s.log.Debug("stopped")
			return nil
		}
		h, wait := s.due()
		if h != nil && wait <= 0 {
			s.fire(ctx, h)
			continue
		}
		var (
			t      *clock.Timer
			timerc <-chan time.Time
		)
		if h != nil {
			t = s.clock.Timer(wait)
			timerc = t.C
		}
		select {
		case <-ctx.Done():
		case <-s.wakec:
		case <-timerc:
		}
		if t != nil {
			t.Stop()
		}
	}
}

// due returns the registration with earliest due time and how long
// until it's due.
func (s *Scheduler) due() (*Handle, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *Handle
	for _, h := range s.handles {
		if next == nil || h.next.Before(next.next) {
			next = h
		}
	}
	if next == nil {
		return nil, 0
	}
	return next, next.next.Sub(s.clock.Now())
}

// fire executes the callback and schedules the next call. If callback
// took longer than a period, next call is due immediately, missed calls
// are not replayed.
func (s *Scheduler) fire(ctx context.Context, h *Handle) {
	if h.State() != Active {
		return
	}
	start := s.clock.Now()
	err := h.call(ctx)
	s.meter.Tick(s.clock.Since(start), err != nil)

	s.mu.Lock()
	now := s.clock.Now()
	h.next = h.next.Add(h.period)
	if h.next.Before(now) {
		h.next = now
	}
	s.mu.Unlock()

	if err == nil {
		return
	}
	l := s.log.WithField("handle", h.id)
	switch {
	case errors.Is(err, ErrChannelClosed):
		l.Infof("channel closed, polling stopped: %v", err)
		h.Cancel()
	case errors.Is(err, ErrEmptyBuffer):
		l.Debug(err)
	default:
		l.Errorf("tick failed: %v", err)
	}
}

func (s *Scheduler) wake() {
	select {
	case s.wakec <- struct{}{}:
	default:
	}
}

func (s *Scheduler) remove(h *Handle) {
	s.mu.Lock()
	delete(s.handles, h.id)
	s.mu.Unlock()
	s.wake()
}

func (s *Scheduler) teardown() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.running = false
	s.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// ID returns unique registration id.
func (h *Handle) ID() string {
	return h.id
}

// Period returns the registration period.
func (h *Handle) Period() time.Duration {
	return h.period
}

// State returns current state of the registration.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done returns a channel which is closed when registration is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops future calls. Callback that is running at the moment
// completes. Cancel is idempotent.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.state.Store(int32(Cancelled))
		close(h.done)
		h.s.remove(h)
		h.s.log.WithField("handle", h.id).Debug("cancelled")
	})
}

// call executes callback and converts panic into error.
func (h *Handle) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TickError{Handle: h.id, Value: r}
		}
	}()
	return h.fn(ctx)
}
