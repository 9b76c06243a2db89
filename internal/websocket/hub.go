package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"

	"eventsphere/internal/models"
)

var ErrNotRegistered = errors.New("not registered for this event")

// Registry answers whether a user may join an event's room.
type Registry interface {
	IsRegistered(eventID, userID string) (bool, error)
}

type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
	logger     *log.Logger
	registry   Registry
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub(registry Registry) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		logger:     log.New(os.Stdout, "[WEBSOCKET] ", log.LstdFlags|log.Lshortfile),
		registry:   registry,
		quit:       make(chan struct{}),
	}
}

func (h *Hub) SetLogger(logger *log.Logger) {
	h.logger = logger
}

func (h *Hub) Run() {
	h.logger.Println("WebSocket hub started")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Printf("Client connected: %s (ID: %s), total clients: %d",
				client.userName, client.userID, total)

		case client := <-h.Unregister:
			h.remove(client)

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.gone = true
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.rooms = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			h.logger.Println("WebSocket hub stopped")
			return
		}
	}
}

// Add registers client with a running hub. It reports false once the hub
// has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Stop ends Run and closes every client's send queue.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	for eventID := range client.rooms {
		h.leaveLocked(client, eventID)
	}
	delete(h.clients, client)
	client.gone = true
	close(client.send)
	h.logger.Printf("Client disconnected: %s (ID: %s), remaining clients: %d",
		client.userName, client.userID, len(h.clients))
}

// Join puts client in the room for eventID if its user is registered.
func (h *Hub) Join(client *Client, eventID string) error {
	ok, err := h.registry.IsRegistered(eventID, client.userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotRegistered
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if client.gone {
		return nil
	}
	if h.rooms[eventID] == nil {
		h.rooms[eventID] = make(map[*Client]bool)
	}
	h.rooms[eventID][client] = true
	client.rooms[eventID] = true
	h.logger.Printf("User %s joined room %s (%d members)", client.userID, eventID, len(h.rooms[eventID]))
	return nil
}

func (h *Hub) Leave(client *Client, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, eventID)
}

func (h *Hub) leaveLocked(client *Client, eventID string) {
	members, ok := h.rooms[eventID]
	if !ok || !members[client] {
		return
	}
	delete(members, client)
	delete(client.rooms, eventID)
	if len(members) == 0 {
		delete(h.rooms, eventID)
	}
	h.logger.Printf("User %s left room %s", client.userID, eventID)
}

// InRoom reports whether client has joined eventID.
func (h *Hub) InRoom(client *Client, eventID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[eventID][client]
}

func (h *Hub) RoomSize(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// SendToRoom delivers frame to every member of the room. Members whose queue
// is full are dropped.
func (h *Hub) SendToRoom(eventID string, frame models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Printf("Failed to marshal room frame: %v", err)
		return err
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.rooms[eventID] {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Printf("Failed to send to %s in room %s, removing client", client.userID, eventID)
		h.remove(client)
	}
	return nil
}

// SendToClient queues frame for a single connection.
func (h *Hub) SendToClient(client *Client, frame models.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Printf("Failed to marshal frame: %v", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.gone {
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Printf("Dropping frame for %s: queue full", client.userID)
	}
}
