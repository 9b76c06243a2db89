package chat

import (
	"log"
	"sync"

	"eventsphere/internal/realtime"
)

// Membership keeps one view joined to its event room while the connection is
// live and the user is registered. Join and leave are fire-and-forget.
type Membership struct {
	eventID string
	logger  *log.Logger

	mu       sync.Mutex
	joinedOn realtime.Conn
	closed   bool
}

func NewMembership(eventID string, logger *log.Logger) *Membership {
	return &Membership{eventID: eventID, logger: logger}
}

// Update re-evaluates the gates. A leave for the previous join is always sent
// before a new join is considered.
func (m *Membership) Update(status realtime.Status, registered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	want := registered && status.Connected && status.Conn != nil
	if m.joinedOn != nil && (!want || status.Conn != m.joinedOn) {
		m.leaveLocked()
	}
	if want && m.joinedOn == nil {
		if err := status.Conn.Emit(realtime.EventJoinRoom, m.eventID); err != nil {
			m.logger.Printf("Failed to join room %s: %v", m.eventID, err)
			return
		}
		m.joinedOn = status.Conn
		m.logger.Printf("Joined room %s", m.eventID)
	}
}

func (m *Membership) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joinedOn != nil
}

// Close leaves the room if joined. Later updates are ignored.
func (m *Membership) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.joinedOn != nil {
		m.leaveLocked()
	}
	return nil
}

func (m *Membership) leaveLocked() {
	conn := m.joinedOn
	m.joinedOn = nil
	// Best effort: after a disconnect there is nobody to tell.
	if err := conn.Emit(realtime.EventLeaveRoom, m.eventID); err != nil {
		m.logger.Printf("Leave for room %s not delivered: %v", m.eventID, err)
		return
	}
	m.logger.Printf("Left room %s", m.eventID)
}
