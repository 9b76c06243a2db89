package chat

import (
	"encoding/json"
	"sync"

	"eventsphere/internal/models"
	"eventsphere/internal/realtime"
	"eventsphere/internal/scope"
)

type fakeConn struct {
	mu       sync.Mutex
	sent     []models.Frame
	handlers map[int]realtime.Handler
	nextID   int
	dead     bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{handlers: make(map[int]realtime.Handler)}
}

func (c *fakeConn) Emit(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return realtime.ErrNotConnected
	}
	c.sent = append(c.sent, models.Frame{Event: event, Data: data})
	return nil
}

func (c *fakeConn) On(event string, h realtime.Handler) *scope.Handle {
	if event != realtime.EventNewMessage {
		panic("unexpected subscription to " + event)
	}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = h
	c.mu.Unlock()
	return scope.NewHandle(func() {
		c.mu.Lock()
		delete(c.handlers, id)
		c.mu.Unlock()
	})
}

func (c *fakeConn) deliver(payload interface{}) {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	default:
		raw, _ = json.Marshal(p)
	}
	c.mu.Lock()
	hs := make([]realtime.Handler, 0, len(c.handlers))
	for _, h := range c.handlers {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

func (c *fakeConn) listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.sent {
		if f.Event == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) frames() []models.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Frame(nil), c.sent...)
}

func (c *fakeConn) kill() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

type fakeSource struct {
	mu       sync.Mutex
	status   realtime.Status
	watchers map[int]func(realtime.Status)
	nextID   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{watchers: make(map[int]func(realtime.Status))}
}

func (s *fakeSource) Status() realtime.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSource) Watch(fn func(realtime.Status)) *scope.Handle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	return scope.NewHandle(func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	})
}

func (s *fakeSource) watching() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func (s *fakeSource) connect(c *fakeConn) {
	s.set(realtime.Status{State: realtime.Connected, Conn: c, Connected: true})
}

func (s *fakeSource) disconnect() {
	s.set(realtime.Status{State: realtime.Disconnected})
}

func (s *fakeSource) set(status realtime.Status) {
	s.mu.Lock()
	s.status = status
	ws := make([]func(realtime.Status), 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	s.mu.Unlock()
	for _, w := range ws {
		w(status)
	}
}

type recordingView struct {
	mu      sync.Mutex
	renders [][]models.Message
	selfID  string
}

func (v *recordingView) Render(messages []models.Message, selfID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.renders = append(v.renders, messages)
	v.selfID = selfID
}

func (v *recordingView) last() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.renders) == 0 {
		return nil
	}
	return v.renders[len(v.renders)-1]
}
