package websocket

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsphere/internal/models"
)

type fakeRegistry struct {
	mu         sync.Mutex
	registered map[string]bool
}

func (r *fakeRegistry) IsRegistered(eventID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registered[eventID+"/"+userID], nil
}

func startHub(t *testing.T, registry Registry) (*Hub, string) {
	t.Helper()
	hub := NewHub(registry)
	hub.SetLogger(log.New(io.Discard, "", 0))
	go hub.Run()
	t.Cleanup(hub.Stop)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("user")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		first := strings.ToUpper(id[:1]) + id[1:]
		client := NewClient(hub, conn, &models.User{ID: id, Email: id + "@example.com", FirstName: &first})
		if !hub.Add(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.Frame{Event: event, Data: data}))
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestRoomBroadcastIncludesSender(t *testing.T) {
	registry := &fakeRegistry{registered: map[string]bool{"e1/ann": true, "e1/bob": true}}
	hub, url := startHub(t, registry)

	ann := dial(t, url, "ann")
	bob := dial(t, url, "bob")
	emit(t, ann, EventJoinRoom, "e1")
	emit(t, bob, EventJoinRoom, "e1")
	require.Eventually(t, func() bool { return hub.RoomSize("e1") == 2 }, 2*time.Second, 5*time.Millisecond)

	emit(t, ann, EventSendMessage, models.SendMessagePayload{EventID: "e1", Message: "hello"})

	for _, conn := range []*websocket.Conn{ann, bob} {
		f := read(t, conn)
		assert.Equal(t, EventNewMessage, f.Event)
		var msg models.Message
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, "ann", msg.UserID)
		assert.Equal(t, "Ann", msg.UserName)
		assert.Equal(t, "hello", msg.Message)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	}
}

func TestJoinRequiresRegistration(t *testing.T) {
	hub, url := startHub(t, &fakeRegistry{registered: map[string]bool{}})

	eve := dial(t, url, "eve")
	emit(t, eve, EventJoinRoom, "e1")

	f := read(t, eve)
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Data), "not registered")
	assert.Equal(t, 0, hub.RoomSize("e1"))

	emit(t, eve, EventSendMessage, models.SendMessagePayload{EventID: "e1", Message: "sneaky"})
	f = read(t, eve)
	assert.Equal(t, EventError, f.Event)
}

func TestLeaveAndDisconnectEmptyTheRoom(t *testing.T) {
	registry := &fakeRegistry{registered: map[string]bool{"e1/ann": true, "e1/bob": true}}
	hub, url := startHub(t, registry)

	ann := dial(t, url, "ann")
	bob := dial(t, url, "bob")
	emit(t, ann, EventJoinRoom, "e1")
	emit(t, bob, EventJoinRoom, "e1")
	require.Eventually(t, func() bool { return hub.RoomSize("e1") == 2 }, 2*time.Second, 5*time.Millisecond)

	emit(t, ann, EventLeaveRoom, "e1")
	require.Eventually(t, func() bool { return hub.RoomSize("e1") == 1 }, 2*time.Second, 5*time.Millisecond)

	// A member that left no longer receives room traffic.
	emit(t, bob, EventSendMessage, models.SendMessagePayload{EventID: "e1", Message: "still here?"})
	assert.Equal(t, EventNewMessage, read(t, bob).Event)
	require.NoError(t, ann.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := ann.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool { return hub.RoomSize("e1") == 0 }, 2*time.Second, 5*time.Millisecond)
}
