package remote

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/livemon"
)

// Server exposes groups of the consumer process to producers. It
// implements http.Handler.
type Server struct {
	config
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	groups map[string]*livemon.Group[Value]
	conns  map[*websocket.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer returns server without exposed groups.
func NewServer(opts ...Option) *Server {
	c := newConfig(opts)
	return &Server{
		config: c,
		log:    c.log.WithField("remote", "server"),
		groups: make(map[string]*livemon.Group[Value]),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Expose makes group writable by producers under provided name.
func (s *Server) Expose(name string, g *livemon.Group[Value]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[name]; ok {
		return fmt.Errorf("%w: %q", ErrGroupExists, name)
	}
	s.groups[name] = g
	return nil
}

// ServeHTTP upgrades connection and applies producer operations until
// connection is closed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrade failed: %v", err)
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	l := s.log.WithField("producer", conn.RemoteAddr().String())
	l.Debug("connected")
	conn.SetReadLimit(s.readLimit)
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Warnf("connection lost: %v", err)
			} else {
				l.Debug("disconnected")
			}
			return
		}
		if err := s.apply(m); err != nil {
			l.WithField("group", m.Group).Debugf("%s failed: %v", m.Op, err)
			rep := reply{
				Group: m.Group,
				Index: m.Index,
				Code:  codeOf(err),
				Error: err.Error(),
			}
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteJSON(rep); err != nil {
				l.Warnf("reply failed: %v", err)
				return
			}
		}
	}
}

func (s *Server) apply(m message) error {
	s.mu.Lock()
	g, ok := s.groups[m.Group]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGroup, m.Group)
	}
	b, err := g.At(m.Index)
	if err != nil {
		return err
	}
	switch m.Op {
	case OpPush:
		return b.Push(m.Values...)
	case OpReplace:
		return b.Replace(m.Values...)
	case OpClear:
		return b.Clear()
	}
	return fmt.Errorf("%w: unknown operation %q", ErrBadRequest, m.Op)
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Close disconnects all producers and waits until their handlers are
// done. Exposed groups are not closed. Producers get ErrChannelClosed.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	var errs closeErrors
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closed")
	for _, conn := range conns {
		err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			errs = append(errs, err)
		}
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	return errs.ret()
}
