package chat

import (
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"

	"eventsphere/internal/models"
	"eventsphere/internal/realtime"
	"eventsphere/internal/scope"
)

// Room is one mounted chat view for an event. Everything it acquires is
// released by Close.
type Room struct {
	eventID string
	selfID  string
	source  realtime.StatusSource
	view    View
	logger  *log.Logger

	log        Log
	membership *Membership
	watch      *scope.Handle

	mu         sync.Mutex
	registered bool
	listenConn realtime.Conn
	listener   *scope.Handle
	closed     bool
}

type RoomOption func(*Room)

func WithRoomLogger(logger *log.Logger) RoomOption {
	return func(r *Room) { r.logger = logger }
}

// Open mounts the room. registered seeds the membership gate; later changes
// go through SetRegistered.
func Open(eventID, selfID string, source realtime.StatusSource, registered bool, view View, opts ...RoomOption) *Room {
	r := &Room{
		eventID:    eventID,
		selfID:     selfID,
		source:     source,
		view:       view,
		registered: registered,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard, "", 0)
	}
	r.membership = NewMembership(eventID, r.logger)

	r.watch = source.Watch(r.onStatus)
	r.onStatus(source.Status())
	return r
}

func (r *Room) EventID() string { return r.eventID }

// SetRegistered updates the registration gate, e.g. after a free
// registration completes.
func (r *Room) SetRegistered(registered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.registered = registered
	r.membership.Update(r.source.Status(), registered)
}

func (r *Room) Joined() bool {
	return r.membership.Joined()
}

func (r *Room) Messages() []models.Message {
	return r.log.Messages()
}

// Send emits text to the room. Blank input and a missing connection are
// silently ignored; the message shows up once the server echoes it.
func (r *Room) Send(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return false
	}
	status := r.source.Status()
	if !status.Connected || status.Conn == nil {
		return false
	}
	err := status.Conn.Emit(realtime.EventSendMessage, models.SendMessagePayload{
		EventID: r.eventID,
		Message: text,
	})
	if err != nil {
		r.logger.Printf("Failed to send message: %v", err)
		return false
	}
	return true
}

func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	listener := r.listener
	r.listener = nil
	r.listenConn = nil
	r.mu.Unlock()

	var group scope.Group
	group.Add(r.membership)
	group.Add(listener)
	group.Add(r.watch)
	err := group.Close()
	r.log.Reset()
	return err
}

func (r *Room) onStatus(status realtime.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if status.Conn != r.listenConn {
		if r.listener != nil {
			_ = r.listener.Close()
			r.listener = nil
		}
		if status.Conn != nil {
			r.listener = status.Conn.On(realtime.EventNewMessage, r.onMessage)
		}
		r.listenConn = status.Conn
	}
	r.membership.Update(status, r.registered)
}

func (r *Room) onMessage(data json.RawMessage) {
	msg, err := DecodeMessage(data)
	if err != nil {
		r.logger.Printf("Discarding message: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.log.Append(msg)
	if r.view != nil {
		r.view.Render(r.log.Messages(), r.selfID)
	}
}
