package livemon_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/log"
	"github.com/pipelined/livemon/metric"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// run starts the scheduler and returns function to stop it.
func run(t *testing.T, s *livemon.Scheduler) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()
	return func() {
		cancel()
		assert.NoError(t, <-done)
	}
}

func newScheduler(opts ...livemon.Option) *livemon.Scheduler {
	return livemon.NewScheduler(append([]livemon.Option{livemon.WithLogger(log.Discard())}, opts...)...)
}

func TestSchedulerCadence(t *testing.T) {
	s := newScheduler()
	var fired int32
	_, err := s.Register(func(context.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, 100*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	time.Sleep(1050 * time.Millisecond)
	stop()

	n := atomic.LoadInt32(&fired)
	assert.GreaterOrEqual(t, n, int32(7))
	assert.LessOrEqual(t, n, int32(11))
}

func TestSchedulerNoOverlap(t *testing.T) {
	s := newScheduler()
	var (
		fired    int32
		inflight int32
		overlaps int32
	)
	_, err := s.Register(func(context.Context) error {
		if atomic.AddInt32(&inflight, 1) > 1 {
			atomic.AddInt32(&overlaps, 1)
		}
		defer atomic.AddInt32(&inflight, -1)
		atomic.AddInt32(&fired, 1)
		time.Sleep(150 * time.Millisecond)
		return nil
	}, 100*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	time.Sleep(1 * time.Second)
	stop()

	assert.Equal(t, int32(0), atomic.LoadInt32(&overlaps))
	n := atomic.LoadInt32(&fired)
	// delayed ticks: one call per ~150ms instead of 100ms
	assert.GreaterOrEqual(t, n, int32(3))
	assert.LessOrEqual(t, n, int32(7))
}

func TestSchedulerFirstTickAfterPeriod(t *testing.T) {
	mock := clock.NewMock()
	s := newScheduler(livemon.WithClock(mock))
	var fired int32
	_, err := s.Register(func(context.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, 100*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	defer stop()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	mock.Add(99 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	assert.Eventually(t, func() bool {
		mock.Add(time.Millisecond)
		return atomic.LoadInt32(&fired) >= 1
	}, waitFor, tick)
}

func TestSchedulerCancel(t *testing.T) {
	mock := clock.NewMock()
	s := newScheduler(livemon.WithClock(mock))
	var fired int32
	h, err := s.Register(func(context.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, livemon.Active, h.State())

	stop := run(t, s)
	defer stop()

	assert.Eventually(t, func() bool {
		mock.Add(time.Millisecond)
		return atomic.LoadInt32(&fired) >= 1
	}, waitFor, tick)

	h.Cancel()
	h.Cancel()
	assert.Equal(t, livemon.Cancelled, h.State())
	<-h.Done()
	assert.Equal(t, 0, s.Len())

	n := atomic.LoadInt32(&fired)
	mock.Add(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, atomic.LoadInt32(&fired))
}

func TestSchedulerSwallowsFailures(t *testing.T) {
	s := newScheduler()
	var fired int32
	h, err := s.Register(func(context.Context) error {
		switch atomic.AddInt32(&fired, 1) {
		case 1:
			return errors.New("device read failed")
		case 2:
			panic("capture closed")
		case 3:
			return livemon.ErrEmptyBuffer
		}
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	defer stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) >= 5
	}, waitFor, tick)
	assert.Equal(t, livemon.Active, h.State())
}

func TestSchedulerChannelClosed(t *testing.T) {
	s := newScheduler()
	closed, err := s.Register(func(context.Context) error {
		return fmt.Errorf("panel video: %w", livemon.ErrChannelClosed)
	}, 10*time.Millisecond)
	require.NoError(t, err)
	var fired int32
	healthy, err := s.Register(func(context.Context) error {
		atomic.AddInt32(&fired, 1)
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	defer stop()

	select {
	case <-closed.Done():
	case <-time.After(waitFor):
		t.Fatal("registration with closed channel is still active")
	}
	n := atomic.LoadInt32(&fired)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) >= n+3
	}, waitFor, tick)
	assert.Equal(t, livemon.Cancelled, closed.State())
	assert.Equal(t, livemon.Active, healthy.State())
}

func TestSchedulerRegisterFromCallback(t *testing.T) {
	s := newScheduler()
	var (
		inner int32
		outer int32
	)
	_, err := s.Register(func(context.Context) error {
		if atomic.AddInt32(&outer, 1) == 1 {
			_, err := s.Register(func(context.Context) error {
				atomic.AddInt32(&inner, 1)
				return nil
			}, 10*time.Millisecond)
			return err
		}
		return nil
	}, 10*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	defer stop()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&inner) >= 2
	}, waitFor, tick)
}

func TestSchedulerRunTeardown(t *testing.T) {
	s := newScheduler()
	handles := []*livemon.Handle{}
	for i := 0; i < 3; i++ {
		h, err := s.Register(func(context.Context) error { return nil }, time.Hour)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, 3, s.Len())

	stop := run(t, s)
	stop()

	assert.Equal(t, 0, s.Len())
	for _, h := range handles {
		assert.Equal(t, livemon.Cancelled, h.State())
	}
}

func TestSchedulerRunTwice(t *testing.T) {
	s := newScheduler()
	stop := run(t, s)
	defer stop()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Eventually(t, func() bool {
		return errors.Is(s.Run(cancelled), livemon.ErrSchedulerRunning)
	}, waitFor, tick)
}

func TestSchedulerRegisterInvalid(t *testing.T) {
	s := newScheduler()
	_, err := s.Register(func(context.Context) error { return nil }, 0)
	assert.ErrorIs(t, err, livemon.ErrInvalidPeriod)
	_, err = s.Register(nil, time.Second)
	assert.ErrorIs(t, err, livemon.ErrInvalidConfig)
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerMetric(t *testing.T) {
	name := "test.scheduler.metric"
	s := newScheduler(livemon.WithName(name))
	var fired int32
	_, err := s.Register(func(context.Context) error {
		if atomic.AddInt32(&fired, 1) == 1 {
			return errors.New("failed")
		}
		return nil
	}, 5*time.Millisecond)
	require.NoError(t, err)

	stop := run(t, s)
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&fired) >= 3
	}, waitFor, tick)
	stop()

	values := metric.Get(name)
	assert.Equal(t, fmt.Sprint(atomic.LoadInt32(&fired)), values[metric.TickCounter])
	assert.Equal(t, "1", values[metric.ErrorCounter])
	assert.Contains(t, values, metric.LatencyCounter)
}

func TestPeriodMS(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, livemon.PeriodMS(100))
}
