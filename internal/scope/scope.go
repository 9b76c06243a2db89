// Package scope ties listener registrations to an owner's lifetime. A Handle is
// released at most once; a Group releases everything it holds in reverse order
// of acquisition.
package scope

import (
	"errors"
	"sync"
)

type Handle struct {
	once    sync.Once
	release func()
}

// NewHandle wraps release so that it runs at most once.
func NewHandle(release func()) *Handle {
	return &Handle{release: release}
}

// Close runs the release function the first time it is called.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if h.release != nil {
			h.release()
		}
	})
	return nil
}

type Closer interface {
	Close() error
}

type Group struct {
	mu      sync.Mutex
	closers []Closer
	closed  bool
}

// Add registers c for release. Adding to a closed group releases c immediately.
func (g *Group) Add(c Closer) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = c.Close()
		return
	}
	g.closers = append(g.closers, c)
	g.mu.Unlock()
}

func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	closers := g.closers
	g.closers = nil
	g.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
