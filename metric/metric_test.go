package metric_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/livemon/metric"
)

func TestBufferMeter(t *testing.T) {
	var tests = []struct {
		name            string
		routines        int
		pushes          int
		evicted         int
		expectedPushed  string
		expectedEvicted string
	}{
		{
			name:            "metric.buffer.0",
			routines:        2,
			pushes:          10,
			expectedPushed:  "200",
			expectedEvicted: "",
		},
		{
			name:            "metric.buffer.1",
			routines:        4,
			pushes:          10,
			evicted:         1,
			expectedPushed:  "400",
			expectedEvicted: "40",
		},
	}
	// function to test meter.
	testFn := func(m *metric.Buffer, wg *sync.WaitGroup, pushes, evicted int) {
		for i := 0; i < pushes; i++ {
			m.Pushed(10, evicted)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			// meters with the same name share counters
			go testFn(metric.BufferMeter(c.name), wg, c.pushes, c.evicted)
		}
		// check if no data race.
		wg.Wait()
		values := metric.Get(c.name)
		assert.Equal(t, c.expectedPushed, values[metric.PushCounter])
		assert.Equal(t, c.expectedEvicted, values[metric.EvictCounter])
		// scheduler counters are not published for buffers
		assert.NotContains(t, values, metric.TickCounter)
	}
}

func TestSchedulerMeter(t *testing.T) {
	m := metric.SchedulerMeter("metric.scheduler")
	m.Tick(time.Millisecond, false)
	m.Tick(2*time.Millisecond, true)

	values := metric.Get("metric.scheduler")
	assert.Equal(t, "2", values[metric.TickCounter])
	assert.Equal(t, "1", values[metric.ErrorCounter])
	assert.Equal(t, `"2ms"`, values[metric.LatencyCounter])
	assert.Contains(t, metric.GetAll(), "metric.scheduler")
}

func TestNilMeter(t *testing.T) {
	var b *metric.Buffer
	var s *metric.Scheduler
	assert.NotPanics(t, func() {
		b.Pushed(1, 1)
		b.Replaced()
		b.Cleared()
		b.Popped()
		s.Tick(time.Second, true)
	})
}
