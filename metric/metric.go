package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "livemon"

const (
	// PushCounter counts values appended to buffer.
	PushCounter = "Pushed"
	// EvictCounter counts values discarded because capacity was exceeded.
	EvictCounter = "Evicted"
	// ReplaceCounter counts replace calls.
	ReplaceCounter = "Replaced"
	// ClearCounter counts clear and drain calls.
	ClearCounter = "Cleared"
	// PopCounter counts values popped from the front.
	PopCounter = "Popped"
	// TickCounter counts callback invocations.
	TickCounter = "Ticks"
	// ErrorCounter counts failed callback invocations.
	ErrorCounter = "Errors"
	// LatencyCounter is the duration of the latest callback invocation.
	LatencyCounter = "Latency"
)

var (
	components = metrics{
		m: make(map[string]*metric),
	}

	counters = []string{
		PushCounter,
		EvictCounter,
		ReplaceCounter,
		ClearCounter,
		PopCounter,
		TickCounter,
		ErrorCounter,
		LatencyCounter,
	}
)

// Get metrics values for provided component name.
func Get(name string) map[string]string {
	return getCounters(name)
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for name := range components.m {
		m[name] = getCounters(name)
	}
	return m
}

func getCounters(name string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(name, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Buffer captures counters of a named buffer. Nil value is valid and
// doesn't measure anything.
type Buffer struct {
	m *metric
}

// BufferMeter returns meter for the buffer with provided name. Buffers
// sharing the name share the counters.
func BufferMeter(name string) *Buffer {
	return &Buffer{m: components.get(name)}
}

// Pushed adds n pushed and e evicted values.
func (b *Buffer) Pushed(n, e int) {
	if b == nil {
		return
	}
	b.m.counter(PushCounter).Add(int64(n))
	if e > 0 {
		b.m.counter(EvictCounter).Add(int64(e))
	}
}

// Replaced increments replace counter.
func (b *Buffer) Replaced() {
	if b == nil {
		return
	}
	b.m.counter(ReplaceCounter).Add(1)
}

// Cleared increments clear counter.
func (b *Buffer) Cleared() {
	if b == nil {
		return
	}
	b.m.counter(ClearCounter).Add(1)
}

// Popped increments pop counter.
func (b *Buffer) Popped() {
	if b == nil {
		return
	}
	b.m.counter(PopCounter).Add(1)
}

// Scheduler captures counters of a named scheduler. Nil value is valid.
type Scheduler struct {
	m *metric
}

// SchedulerMeter returns meter for the scheduler with provided name.
func SchedulerMeter(name string) *Scheduler {
	return &Scheduler{m: components.get(name)}
}

// Tick records callback invocation that took d.
func (s *Scheduler) Tick(d time.Duration, failed bool) {
	if s == nil {
		return
	}
	s.m.counter(TickCounter).Add(1)
	if failed {
		s.m.counter(ErrorCounter).Add(1)
	}
	s.m.latencyVar().set(d)
}

type metrics struct {
	sync.Mutex
	m map[string]*metric
}

func (m *metrics) get(name string) *metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[name]; ok {
		// return existing metric if available
		return metric
	}
	metric := newMetric(name)
	m.m[name] = metric
	return metric
}

type metric struct {
	key      string
	mu       sync.Mutex
	counters map[string]*expvar.Int
	latency  *duration
}

func newMetric(name string) *metric {
	return &metric{
		key:      name,
		counters: make(map[string]*expvar.Int),
	}
}

func (m *metric) latencyVar() *duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latency == nil {
		m.latency = &duration{}
		expvar.Publish(key(m.key, LatencyCounter), m.latency)
	}
	return m.latency
}

// counter publishes expvar lazily so buffers don't expose scheduler
// counters and vice versa.
func (m *metric) counter(c string) *expvar.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.counters[c]; ok {
		return v
	}
	v := expvar.NewInt(key(m.key, c))
	m.counters[c] = v
	return v
}

func key(name, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, name, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
