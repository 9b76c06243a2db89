package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsphere/internal/models"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

func newTestClient(t *testing.T, token string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/", staticToken(token))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("ws://localhost:3000", nil)
	assert.Error(t, err)
}

func TestSignInAndMe(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/signin":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Empty(t, r.Header.Get("Authorization"))
			var req models.SignInRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ann@example.com", req.Email)
			writeJSON(w, http.StatusOK, models.SignInResponse{AccessToken: "tok"})
		case "/users/me":
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"id": "u1", "email": "ann@example.com", "firstName": nil})
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	token, err := c.SignIn(ctx, models.SignInRequest{Email: "ann@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	user, err := c.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Nil(t, user.FirstName)
}

func TestErrorMessages(t *testing.T) {
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/signin":
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"statusCode": 403, "message": "Credentials incorrect"})
		case "/events":
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"statusCode": 400, "message": []string{"title too short", "price must be positive"}})
		case "/users/me":
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	})
	ctx := context.Background()

	_, err := c.SignIn(ctx, models.SignInRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	msg, ok := ServerMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "Credentials incorrect", msg)
	assert.False(t, errors.Is(err, ErrUnauthorized))

	_, err = c.CreateEvent(ctx, models.CreateEventRequest{})
	msg, _ = ServerMessage(err)
	assert.Equal(t, "title too short, price must be positive", msg)

	_, err = c.Me(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEventCalls(t *testing.T) {
	date := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/events":
			writeJSON(w, http.StatusOK, []models.Event{{ID: "e1", Title: "Meetup", Date: date}})
		case r.Method == http.MethodGet && r.URL.Path == "/events/e1":
			assert.Equal(t, "Bearer tok", auth)
			writeJSON(w, http.StatusOK, models.Event{ID: "e1", Price: 12.5, IsRegistered: true})
		case r.Method == http.MethodPost && r.URL.Path == "/events":
			var req models.CreateEventRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, date, req.Date.UTC())
			writeJSON(w, http.StatusCreated, models.Event{ID: "e2", Title: req.Title})
		case r.Method == http.MethodPost && r.URL.Path == "/events/e1/register":
			assert.Equal(t, "Bearer tok", auth)
			writeJSON(w, http.StatusCreated, map[string]string{"eventId": "e1"})
		case r.Method == http.MethodPost && r.URL.Path == "/payments/create-checkout-session":
			var req models.CheckoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "e1", req.EventID)
			writeJSON(w, http.StatusCreated, models.CheckoutResponse{URL: "https://pay.example/cs_1"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	events, err := c.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Meetup", events[0].Title)

	event, err := c.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, event.IsRegistered)
	assert.True(t, event.Paid())

	created, err := c.CreateEvent(ctx, models.CreateEventRequest{Title: "New", Date: date})
	require.NoError(t, err)
	assert.Equal(t, "e2", created.ID)

	require.NoError(t, c.Register(ctx, "e1"))

	url, err := c.CreateCheckoutSession(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", url)
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListEvents(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNonJSONErrorBodyHasNoServerMessage(t *testing.T) {
	c := newTestClient(t, "tok", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events/e1/register":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html><body><h1>502 Bad Gateway</h1></body></html>"))
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"statusCode": 500, "error": "Internal Server Error"})
		}
	})
	ctx := context.Background()

	err := c.Register(ctx, "e1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Message)
	_, ok := ServerMessage(err)
	assert.False(t, ok)

	_, err = c.ListEvents(ctx)
	_, ok = ServerMessage(err)
	assert.False(t, ok)
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c, err := New("http://localhost:3000", nil, WithHTTPClient(shared), WithTimeout(time.Second))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, shared.Timeout)
	assert.Equal(t, time.Second, c.http.Timeout)
	assert.NotSame(t, shared, c.http)
}
