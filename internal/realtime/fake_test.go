package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"eventsphere/internal/models"
)

type fakeSocket struct {
	in        chan InboundFrame
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []models.Frame
	closes  int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan InboundFrame, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadFrame() (InboundFrame, error) {
	select {
	case f, ok := <-s.in:
		if !ok {
			return InboundFrame{}, io.ErrUnexpectedEOF
		}
		return f, nil
	case <-s.closed:
		return InboundFrame{}, io.EOF
	}
}

func (s *fakeSocket) WriteFrame(frame models.Frame) error {
	select {
	case <-s.closed:
		return errors.New("write on closed socket")
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, frame)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// push delivers an inbound frame as the server would.
func (s *fakeSocket) push(event string, data interface{}) {
	raw, _ := json.Marshal(data)
	s.in <- InboundFrame{Event: event, Data: raw}
}

// drop simulates the server going away.
func (s *fakeSocket) drop() {
	close(s.in)
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSocket) frames() []models.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Frame, len(s.written))
	copy(out, s.written)
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	tokens  []string
	sockets []*fakeSocket
	errs    []error
	gate    chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Socket, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

func (d *fakeDialer) dialedTokens() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tokens...)
}
