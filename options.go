package livemon

import (
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon/log"
)

// Option configures buffers, groups and schedulers. Fields that are not
// relevant for the constructed component are ignored.
type Option func(*options)

type options struct {
	name   string
	clock  clock.Clock
	logger logrus.FieldLogger
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = log.GetLogger()
	}
	return o
}

// WithName sets the name. Named components publish metrics under it.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithClock replaces the wall clock used by scheduler.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}
