package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"eventsphere/internal/models"
	"eventsphere/internal/scope"
)

// Application events exchanged over the connection.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
)

type Handler func(data json.RawMessage)

// Conn is the read-only view of the live connection handed to components.
// Only the Manager opens and closes it.
type Conn interface {
	Emit(event string, data interface{}) error
	On(event string, h Handler) *scope.Handle
}

type Connection struct {
	socket       Socket
	logger       *log.Logger
	onDisconnect func(*Connection, error)

	mu       sync.Mutex
	handlers map[string]map[int]Handler
	nextID   int
	closed   bool
	done     chan struct{}
}

func newConnection(socket Socket, logger *log.Logger, onDisconnect func(*Connection, error)) *Connection {
	return &Connection{
		socket:       socket,
		logger:       logger,
		onDisconnect: onDisconnect,
		handlers:     make(map[string]map[int]Handler),
		done:         make(chan struct{}),
	}
}

func (c *Connection) Emit(event string, data interface{}) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotConnected
	}
	return c.socket.WriteFrame(models.Frame{Event: event, Data: data})
}

// On registers h for inbound frames named event. Handlers run on the read
// goroutine in arrival order.
func (c *Connection) On(event string, h Handler) *scope.Handle {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()

	return scope.NewHandle(func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
		c.mu.Unlock()
	})
}

// Listeners returns how many handlers are registered for event.
func (c *Connection) Listeners(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Done is closed once the read loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.socket.Close()
}

func (c *Connection) run() {
	var readErr error
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		if c.onDisconnect != nil {
			c.onDisconnect(c, readErr)
		}
	}()

	for {
		frame, err := c.socket.ReadFrame()
		if err != nil {
			var frameErr *FrameError
			if errors.As(err, &frameErr) {
				c.logger.Printf("Dropping frame: %v", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Printf("Read error: %v", err)
			}
			readErr = err
			return
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame InboundFrame) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.handlers[frame.Event]))
	for id := range c.handlers[frame.Event] {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, c.handlers[frame.Event][id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(frame.Data)
	}
}
