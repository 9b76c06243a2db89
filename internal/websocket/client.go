package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"eventsphere/internal/models"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10

	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventSendMessage = "sendMessage"
	EventNewMessage  = "newMessage"
	EventError       = "error"
)

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	userName string
	// rooms and gone are guarded by hub.mu.
	rooms map[string]bool
	gone  bool
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func NewClient(hub *Hub, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   user.ID,
		userName: user.DisplayName(),
		rooms:    make(map[string]bool),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Printf("error: %v", err)
			}
			break
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.hub.logger.Printf("error unmarshaling frame: %v", err)
			continue
		}
		c.handle(frame)
	}
}

func (c *Client) handle(frame inboundFrame) {
	switch frame.Event {
	case EventJoinRoom:
		var eventID string
		if err := json.Unmarshal(frame.Data, &eventID); err != nil || eventID == "" {
			c.reject("joinRoom expects an event id")
			return
		}
		if err := c.hub.Join(c, eventID); err != nil {
			if errors.Is(err, ErrNotRegistered) {
				c.reject("You are not registered for this event")
				return
			}
			c.hub.logger.Printf("Join for %s failed: %v", c.userID, err)
			c.reject("Could not join room")
		}

	case EventLeaveRoom:
		var eventID string
		if err := json.Unmarshal(frame.Data, &eventID); err != nil {
			return
		}
		c.hub.Leave(c, eventID)

	case EventSendMessage:
		var payload models.SendMessagePayload
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.reject("sendMessage expects {eventId, message}")
			return
		}
		if strings.TrimSpace(payload.Message) == "" {
			return
		}
		if !c.hub.InRoom(c, payload.EventID) {
			c.reject("Join the room before sending messages")
			return
		}
		msg := models.Message{
			UserID:    c.userID,
			UserName:  c.userName,
			Message:   payload.Message,
			Timestamp: time.Now().UTC(),
		}
		if err := c.hub.SendToRoom(payload.EventID, models.Frame{Event: EventNewMessage, Data: msg}); err != nil {
			c.hub.logger.Printf("Failed to broadcast message: %v", err)
		}

	default:
		c.hub.logger.Printf("Ignoring unknown event %q from %s", frame.Event, c.userID)
	}
}

func (c *Client) reject(msg string) {
	c.hub.SendToClient(c, models.Frame{Event: EventError, Data: map[string]string{"message": msg}})
}

func (c *Client) WritePump() {
	defer func() {
		c.conn.Close()
	}()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
