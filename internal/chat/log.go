package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventsphere/internal/models"
)

var ErrInvalidMessage = errors.New("chat: invalid message payload")

// Log is the append-only sequence of messages for one mounted room. It is
// unbounded for the life of the mount and never reorders or deduplicates.
type Log struct {
	mu       sync.RWMutex
	messages []models.Message
}

func (l *Log) Append(msg models.Message) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return len(l.messages)
}

// Messages returns a copy in arrival order.
func (l *Log) Messages() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *Log) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}

type wireMessage struct {
	UserID    *string `json:"userId"`
	UserName  *string `json:"userName"`
	Message   *string `json:"message"`
	Timestamp *string `json:"timestamp"`
}

// DecodeMessage validates an inbound newMessage payload: all four fields must
// be strings and the timestamp must be ISO-8601.
func DecodeMessage(data []byte) (models.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if w.UserID == nil || w.UserName == nil || w.Message == nil || w.Timestamp == nil {
		return models.Message{}, fmt.Errorf("%w: missing field", ErrInvalidMessage)
	}
	ts, err := time.Parse(time.RFC3339, *w.Timestamp)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: timestamp: %v", ErrInvalidMessage, err)
	}
	return models.Message{
		UserID:    *w.UserID,
		UserName:  *w.UserName,
		Message:   *w.Message,
		Timestamp: ts,
	}, nil
}
