package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eventsphere/internal/models"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrUnauthorized = errors.New("realtime: credential rejected at handshake")
)

const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	maxFrameBytes    = 64 * 1024
)

// InboundFrame is a server frame with its payload left undecoded so each
// listener can validate the shape it expects.
type InboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// FrameError reports a frame that arrived intact but could not be decoded.
// The socket stays usable.
type FrameError struct {
	Err error
}

func (e *FrameError) Error() string { return "realtime: malformed frame: " + e.Err.Error() }
func (e *FrameError) Unwrap() error { return e.Err }

type Socket interface {
	ReadFrame() (InboundFrame, error)
	WriteFrame(frame models.Frame) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, token string) (Socket, error)
}

// WSDialer opens gorilla websocket connections to the API's /ws endpoint.
type WSDialer struct {
	url    string
	dialer *websocket.Dialer
}

// NewWSDialer derives the websocket URL from the REST base URL; both live on
// the same origin.
func NewWSDialer(baseURL string) (*WSDialer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	return &WSDialer{
		url: u.String(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

func (d *WSDialer) URL() string { return d.url }

func (d *WSDialer) Dial(ctx context.Context, token string) (Socket, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	conn.SetReadLimit(maxFrameBytes)
	return &wsSocket{conn: conn}, nil
}

type wsSocket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSocket) ReadFrame() (InboundFrame, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return InboundFrame{}, err
	}
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return InboundFrame{}, &FrameError{Err: err}
	}
	return frame, nil
}

func (s *wsSocket) WriteFrame(frame models.Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

func (s *wsSocket) Close() error {
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}
