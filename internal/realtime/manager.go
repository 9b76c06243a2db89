package realtime

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"eventsphere/internal/scope"
	"eventsphere/internal/session"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is what the manager publishes after every transition. Conn is nil
// unless State is Connected.
type Status struct {
	State     State
	Conn      Conn
	Connected bool
}

type StatusSource interface {
	Status() Status
	Watch(fn func(Status)) *scope.Handle
}

type Option func(*Manager)

func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithReconnect retries a transport-reported disconnect up to attempts times.
// Zero keeps a disconnect terminal until the credential changes.
func WithReconnect(attempts uint) Option {
	return func(m *Manager) { m.reconnectAttempts = attempts }
}

func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = newBackOff }
}

// Manager owns the single live connection for the current credential.
type Manager struct {
	dialer            Dialer
	logger            *log.Logger
	reconnectAttempts uint
	newBackOff        func() backoff.BackOff

	mu         sync.Mutex
	state      State
	token      string
	conn       *Connection
	cancelDial context.CancelFunc
	generation uint64
	watchers   map[int]func(Status)
	nextID     int

	notifyMu sync.Mutex
}

func NewManager(dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		dialer:   dialer,
		logger:   log.New(os.Stdout, "[REALTIME] ", log.LstdFlags|log.Lshortfile),
		watchers: make(map[int]func(Status)),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard, "", 0)
	}
	return m
}

// Attach follows the session store: the current credential is applied
// immediately and every later change is applied as it happens.
func (m *Manager) Attach(store session.Reader) *scope.Handle {
	h := store.Watch(func(_, next session.Snapshot) {
		m.SetCredential(next.Token)
	})
	m.SetCredential(store.Snapshot().Token)
	return h
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) Watch(fn func(Status)) *scope.Handle {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	return scope.NewHandle(func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	})
}

// SetCredential applies a credential transition. Re-applying the current
// token is a no-op; any other change tears down what belongs to the old token
// before a connection for the new one is started.
func (m *Manager) SetCredential(token string) {
	m.mu.Lock()
	if token == m.token {
		m.mu.Unlock()
		return
	}
	m.token = token
	m.generation++
	gen := m.generation
	stale := m.detachLocked()
	m.mu.Unlock()

	if stale != nil {
		m.logger.Println("Closing connection for previous credential")
		_ = stale.Close()
	}

	if token == "" {
		m.publish()
		return
	}
	m.startDial(gen, token, false)
}

// Reconnect dials again after a terminal disconnect. It does nothing when a
// connection is live or being established, or when nobody is signed in.
func (m *Manager) Reconnect() {
	m.mu.Lock()
	if m.token == "" || m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen, token := m.generation, m.token
	m.mu.Unlock()
	m.startDial(gen, token, false)
}

// Close tears down the connection and forgets the credential. It returns once
// the read loop has exited, so no handler runs after Close.
func (m *Manager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	m.SetCredential("")
	if conn != nil {
		<-conn.Done()
	}
	return nil
}

func (m *Manager) startDial(gen uint64, token string, retry bool) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.state = Connecting
	m.mu.Unlock()

	m.publish()
	go m.connect(ctx, gen, token, retry)
}

func (m *Manager) connect(ctx context.Context, gen uint64, token string, retry bool) {
	socket, err := m.dial(ctx, token, retry)
	if err != nil {
		m.mu.Lock()
		current := gen == m.generation
		if current {
			m.state = Disconnected
			if m.cancelDial != nil {
				m.cancelDial()
				m.cancelDial = nil
			}
		}
		m.mu.Unlock()
		if current {
			m.logger.Printf("Connection failed: %v", err)
			m.publish()
		}
		return
	}

	conn := newConnection(socket, m.logger, m.handleDisconnect)

	m.mu.Lock()
	if gen != m.generation {
		// The credential changed while dialing.
		m.mu.Unlock()
		_ = socket.Close()
		return
	}
	m.conn = conn
	m.state = Connected
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.mu.Unlock()

	go conn.run()
	m.logger.Println("Connected and authenticated with real-time server")
	m.publish()
}

func (m *Manager) dial(ctx context.Context, token string, retry bool) (Socket, error) {
	if !retry || m.reconnectAttempts == 0 {
		return m.dialer.Dial(ctx, token)
	}
	return backoff.Retry(ctx, func() (Socket, error) {
		socket, err := m.dialer.Dial(ctx, token)
		if errors.Is(err, ErrUnauthorized) {
			return nil, backoff.Permanent(err)
		}
		return socket, err
	}, backoff.WithBackOff(m.newBackOff()), backoff.WithMaxTries(m.reconnectAttempts))
}

func (m *Manager) handleDisconnect(conn *Connection, err error) {
	m.mu.Lock()
	if m.conn != conn {
		// Torn down locally; SetCredential already published.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = Disconnected
	m.generation++
	gen, token := m.generation, m.token
	retry := m.reconnectAttempts > 0 && token != ""
	m.mu.Unlock()

	m.logger.Printf("Disconnected from real-time server: %v", err)
	if retry {
		m.startDial(gen, token, true)
		return
	}
	m.publish()
}

// detachLocked cancels any pending dial and hands back the live connection
// for the caller to close outside the lock.
func (m *Manager) detachLocked() *Connection {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	stale := m.conn
	m.conn = nil
	m.state = Disconnected
	return stale
}

func (m *Manager) statusLocked() Status {
	status := Status{State: m.state}
	if m.conn != nil && m.state == Connected {
		status.Conn = m.conn
		status.Connected = true
	}
	return status
}

func (m *Manager) publish() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	status := m.statusLocked()
	ids := make([]int, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	watchers := make([]func(Status), 0, len(ids))
	for _, id := range ids {
		watchers = append(watchers, m.watchers[id])
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w(status)
	}
}
