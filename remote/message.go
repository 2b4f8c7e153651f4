// Package remote carries the write side of buffers across processes. The
// consumer process exposes its groups with Server, producer processes
// connect with Dial and write into exposed buffers. Every operation is a
// single websocket text frame with JSON object:
//
//	{"op":"push","group":"sensors","index":0,"values":[0.5,0.7]}
//
// Server replies only on failures. Losing the connection makes every
// producer call fail with livemon.ErrChannelClosed.
package remote

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon"
	"github.com/pipelined/livemon/log"
)

// Op is a write operation.
type Op string

// Supported operations.
const (
	OpPush    Op = "push"
	OpReplace Op = "replace"
	OpClear   Op = "clear"
)

// Value is a value transferred between processes.
type Value = json.RawMessage

// ErrUnknownGroup is returned if group is not exposed by server.
var ErrUnknownGroup = errors.New("unknown group")

// ErrGroupExists is returned if group with the same name is already exposed.
var ErrGroupExists = errors.New("group already exposed")

// ErrBadRequest is returned for malformed operations.
var ErrBadRequest = errors.New("bad request")

type message struct {
	Op     Op      `json:"op"`
	Group  string  `json:"group"`
	Index  int     `json:"index"`
	Values []Value `json:"values,omitempty"`
}

// reply reports failed operation back to producer.
type reply struct {
	Group string `json:"group"`
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// codes map errors into wire values and back.
var codes = []struct {
	code string
	err  error
}{
	{"channel_closed", livemon.ErrChannelClosed},
	{"index_out_of_range", livemon.ErrIndexOutOfRange},
	{"mode_mismatch", livemon.ErrModeMismatch},
	{"unknown_group", ErrUnknownGroup},
	{"bad_request", ErrBadRequest},
}

func codeOf(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func errorOf(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

const (
	defaultWriteTimeout = time.Second
	defaultReadLimit    = 32 << 20
)

// Option configures server and producer.
type Option func(*config)

type config struct {
	log          logrus.FieldLogger
	writeTimeout time.Duration
	readLimit    int64
}

func newConfig(opts []Option) config {
	c := config{
		writeTimeout: defaultWriteTimeout,
		readLimit:    defaultReadLimit,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.log == nil {
		c.log = log.GetLogger()
	}
	return c
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.log = l
	}
}

// WithWriteTimeout limits how long a single write can take.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		c.writeTimeout = d
	}
}

// WithReadLimit sets max size of incoming message in bytes. Frames
// are large, default is 32MB.
func WithReadLimit(n int64) Option {
	return func(c *config) {
		c.readLimit = n
	}
}

// closeErrors wraps errors that might occur when multiple connections
// are closed.
type closeErrors []error

func (e closeErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// ret returns untyped nil if errors list is empty.
func (e closeErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
