// Package session holds the signed-in credential for the life of the process.
//
// The auth flows are the only writers (SetToken, SetUser, Logout). Every other
// component reads through the Reader interface and reacts to changes with Watch.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"

	"eventsphere/internal/models"
	"eventsphere/internal/scope"
)

var ErrNoCredential = errors.New("session: not signed in")

// Snapshot is an immutable view of the credential at one point in time.
type Snapshot struct {
	Token string
	User  *models.User
}

func (s Snapshot) Authenticated() bool {
	return s.Token != ""
}

// UserID returns the profile id, or "" when the profile is not loaded.
func (s Snapshot) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Watcher receives every change; it must not write back to the store.
type Watcher func(prev, next Snapshot)

type Reader interface {
	Snapshot() Snapshot
	Watch(fn Watcher) *scope.Handle
}

type Store struct {
	mu       sync.RWMutex
	token    string
	user     *models.User
	nextID   int
	watchers map[int]Watcher

	// notifyMu keeps watcher deliveries in the order the writes happened.
	notifyMu sync.Mutex
}

func NewStore() *Store {
	return &Store{watchers: make(map[int]Watcher)}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Token: s.token, User: s.user}
}

func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Store) SetToken(token string) {
	s.update(func() { s.token = token })
}

func (s *Store) SetUser(user *models.User) {
	s.update(func() { s.user = user })
}

// Logout clears both the token and the profile in one change.
func (s *Store) Logout() {
	s.update(func() {
		s.token = ""
		s.user = nil
	})
}

// Watch registers fn for future changes. Closing the handle stops delivery.
func (s *Store) Watch(fn Watcher) *scope.Handle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return scope.NewHandle(func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	})
}

// Expired reports whether the token carries an exp claim in the past. Opaque
// tokens without a readable exp are treated as valid; the API is the authority.
func (s *Store) Expired(now time.Time) bool {
	token := s.Token()
	if token == "" {
		return false
	}
	return TokenExpired(token, now)
}

func TokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return false
	}
	if _, ok := claims["exp"]; !ok {
		return false
	}
	return !claims.VerifyExpiresAt(now.Unix(), true)
}

func (s *Store) update(mutate func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := Snapshot{Token: s.token, User: s.user}
	mutate()
	next := Snapshot{Token: s.token, User: s.user}
	watchers := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	if prev == next {
		return
	}
	for _, w := range watchers {
		w(prev, next)
	}
}
