package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsphere/internal/models"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"exp":     exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStoreNotifiesOnChangeOnly(t *testing.T) {
	store := NewStore()
	var seen []Snapshot
	h := store.Watch(func(prev, next Snapshot) { seen = append(seen, next) })
	defer h.Close()

	store.SetToken("abc")
	store.SetToken("abc")
	user := &models.User{ID: "u1", Email: "a@example.com"}
	store.SetUser(user)
	store.Logout()
	store.Logout()

	require.Len(t, seen, 3)
	assert.Equal(t, "abc", seen[0].Token)
	assert.Nil(t, seen[0].User)
	assert.Equal(t, "u1", seen[1].UserID())
	assert.False(t, seen[2].Authenticated())
	assert.Nil(t, seen[2].User)
}

func TestStoreWatchHandleStopsDelivery(t *testing.T) {
	store := NewStore()
	calls := 0
	h := store.Watch(func(prev, next Snapshot) { calls++ })

	store.SetToken("one")
	require.NoError(t, h.Close())
	store.SetToken("two")

	assert.Equal(t, 1, calls)
	assert.Equal(t, "two", store.Token())
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	assert.True(t, TokenExpired(signedToken(t, now.Add(-time.Minute)), now))
	assert.False(t, TokenExpired(signedToken(t, now.Add(time.Hour)), now))
	assert.False(t, TokenExpired("opaque-token", now))

	store := NewStore()
	assert.False(t, store.Expired(now))
	store.SetToken(signedToken(t, now.Add(-time.Hour)))
	assert.True(t, store.Expired(now))
}
