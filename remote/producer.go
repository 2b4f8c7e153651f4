package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon"
)

// Producer writes into buffers exposed by remote Server. It's safe for
// concurrent use.
type Producer struct {
	config
	log  logrus.FieldLogger
	conn *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	gone   map[target]error

	done chan struct{}
}

type target struct {
	group string
	index int
}

// Dial connects to the server. The url must point to the server's
// handler, eg ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Producer, error) {
	c := newConfig(opts)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(c.readLimit)
	p := Producer{
		config: c,
		log:    c.log.WithField("remote", url),
		conn:   conn,
		gone:   make(map[target]error),
		done:   make(chan struct{}),
	}
	go p.receive()
	return &p, nil
}

// receive handles server replies until connection is closed.
func (p *Producer) receive() {
	defer close(p.done)
	for {
		var r reply
		if err := p.conn.ReadJSON(&r); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Warnf("connection lost: %v", err)
			} else {
				p.log.Debug("disconnected")
			}
			p.markClosed()
			return
		}
		err := errorOf(r.Code)
		if err == nil {
			err = errors.New(r.Error)
		}
		p.log.WithFields(logrus.Fields{
			"group": r.Group,
			"index": r.Index,
		}).Debugf("remote write failed: %s", r.Error)
		// only closed buffers are remembered, other failures are
		// reported in log.
		if errors.Is(err, livemon.ErrChannelClosed) {
			p.mu.Lock()
			p.gone[target{group: r.Group, index: r.Index}] = err
			p.mu.Unlock()
		}
	}
}

func (p *Producer) markClosed() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Push appends values to the remote buffer.
func (p *Producer) Push(group string, index int, values ...interface{}) error {
	return p.send(OpPush, group, index, values)
}

// Replace sets values of the remote buffer.
func (p *Producer) Replace(group string, index int, values ...interface{}) error {
	return p.send(OpReplace, group, index, values)
}

// Clear empties the remote buffer.
func (p *Producer) Clear(group string, index int) error {
	return p.send(OpClear, group, index, nil)
}

func (p *Producer) send(op Op, group string, index int, values []interface{}) error {
	p.mu.Lock()
	closed := p.closed
	gone := p.gone[target{group: group, index: index}]
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: connection closed", livemon.ErrChannelClosed)
	}
	if gone != nil {
		return fmt.Errorf("%s[%d]: %w", group, index, gone)
	}

	m := message{
		Op:     op,
		Group:  group,
		Index:  index,
		Values: make([]Value, 0, len(values)),
	}
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		m.Values = append(m.Values, raw)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := p.conn.WriteJSON(m); err != nil {
		p.markClosed()
		return fmt.Errorf("%w: %v", livemon.ErrChannelClosed, err)
	}
	return nil
}

// Close disconnects from server and waits for the reply handler to
// finish. Further writes return ErrChannelClosed.
func (p *Producer) Close() error {
	p.markClosed()
	p.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(p.writeTimeout))
	p.writeMu.Unlock()
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	// give server a chance to echo the close frame
	select {
	case <-p.done:
	case <-time.After(p.writeTimeout):
	}
	if cerr := p.conn.Close(); err == nil {
		err = cerr
	}
	<-p.done
	return err
}

// Writer is a typed write side of a single remote buffer.
type Writer[T any] struct {
	p     *Producer
	group string
	index int
}

// NewWriter binds writer to the buffer of remote group.
func NewWriter[T any](p *Producer, group string, index int) *Writer[T] {
	return &Writer[T]{
		p:     p,
		group: group,
		index: index,
	}
}

// Push appends values to the remote buffer.
func (w *Writer[T]) Push(values ...T) error {
	return w.p.Push(w.group, w.index, toInterfaces(values)...)
}

// Replace sets values of the remote buffer.
func (w *Writer[T]) Replace(values ...T) error {
	return w.p.Replace(w.group, w.index, toInterfaces(values)...)
}

// Clear empties the remote buffer.
func (w *Writer[T]) Clear() error {
	return w.p.Clear(w.group, w.index)
}

func toInterfaces[T any](values []T) []interface{} {
	result := make([]interface{}, len(values))
	for i := range values {
		result[i] = values[i]
	}
	return result
}
