package registration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsphere/internal/client"
	"eventsphere/internal/models"
	"eventsphere/internal/notify"
	"eventsphere/internal/session"
)

type fakeAPI struct {
	mu          sync.Mutex
	registerErr error
	checkoutErr error
	checkoutURL string
	refetched   *models.Event
	registers   int
	checkouts   int
	block       chan struct{}
}

func (a *fakeAPI) Register(ctx context.Context, eventID string) error {
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registers++
	return a.registerErr
}

func (a *fakeAPI) CreateCheckoutSession(ctx context.Context, eventID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkouts++
	return a.checkoutURL, a.checkoutErr
}

func (a *fakeAPI) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	if a.refetched == nil {
		return nil, errors.New("not found")
	}
	return a.refetched, nil
}

type fakeNav struct {
	urls []string
}

func (n *fakeNav) Navigate(url string) error {
	n.urls = append(n.urls, url)
	return nil
}

func signedIn(id string) *session.Store {
	s := session.NewStore()
	s.SetToken("tok")
	s.SetUser(&models.User{ID: id, Email: id + "@example.com"})
	return s
}

func freeEvent() *models.Event {
	return &models.Event{ID: "e1", Title: "Meetup", Host: models.Host{ID: "host"}}
}

func TestResolve(t *testing.T) {
	user := &models.User{ID: "u1"}
	event := freeEvent()

	assert.Equal(t, NotLoggedIn, Resolve(nil, false, event))
	assert.Equal(t, NotLoggedIn, Resolve(nil, true, event))
	assert.Equal(t, NotLoggedIn, Resolve(nil, true, &models.Event{Host: models.Host{ID: "u1"}}))
	assert.Equal(t, Eligible, Resolve(user, true, event))
	assert.Equal(t, Host, Resolve(&models.User{ID: "host"}, true, event))
	event.IsRegistered = true
	assert.Equal(t, Registered, Resolve(user, true, event))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Log in to Register", NotLoggedIn.Label(0))
	assert.Equal(t, "You are the host of this event.", Host.Label(0))
	assert.Equal(t, "You are already registered", Registered.Label(0))
	assert.Equal(t, "Register for Event", Eligible.Label(0))
	assert.Equal(t, "Registering...", Pending.Label(0))
	assert.Equal(t, "Pay $12.50 & Register", Eligible.Label(12.5))
	assert.Equal(t, "Redirecting to payment...", Pending.Label(12.5))
}

func TestFreeRegistrationSucceeds(t *testing.T) {
	refetched := freeEvent()
	refetched.IsRegistered = true
	api := &fakeAPI{refetched: refetched}
	var notes notify.Recorder
	var got *models.Event

	f := New(api, &fakeNav{}, &notes, signedIn("u1"), freeEvent(), OnRegistered(func(e *models.Event) { got = e }))
	require.Equal(t, Eligible, f.State())

	require.NoError(t, f.Submit(context.Background()))
	assert.Equal(t, Registered, f.State())
	assert.Equal(t, "You are already registered", f.Label())
	assert.Equal(t, notify.Notice{Kind: notify.KindSuccess, Message: "Successfully registered for the event!"}, notes.Last())
	assert.Same(t, refetched, got)

	assert.ErrorIs(t, f.Submit(context.Background()), ErrNotEligible)
	assert.Equal(t, 1, api.registers)
}

func TestPaidRegistrationRedirects(t *testing.T) {
	api := &fakeAPI{checkoutURL: "https://pay.example/cs_1"}
	nav := &fakeNav{}
	var notes notify.Recorder
	event := freeEvent()
	event.Price = 20

	f := New(api, nav, &notes, signedIn("u1"), event)
	require.NoError(t, f.Submit(context.Background()))

	assert.Equal(t, Redirected, f.State())
	assert.Equal(t, []string{"https://pay.example/cs_1"}, nav.urls)
	assert.Equal(t, 0, api.registers)
	assert.Empty(t, notes.Notices())
	assert.False(t, f.Event().IsRegistered)
}

func TestFailureReturnsToEligible(t *testing.T) {
	api := &fakeAPI{registerErr: &client.APIError{StatusCode: 409, Message: "Already registered for this event"}}
	var notes notify.Recorder
	f := New(api, &fakeNav{}, &notes, signedIn("u1"), freeEvent())

	require.Error(t, f.Submit(context.Background()))
	assert.Equal(t, Eligible, f.State())
	assert.Equal(t, notify.Notice{Kind: notify.KindError, Message: "Already registered for this event"}, notes.Last())

	api.registerErr = errors.New("connection refused")
	require.Error(t, f.Submit(context.Background()))
	assert.Equal(t, "Registration failed. Please try again.", notes.Last().Message)

	paid := freeEvent()
	paid.Price = 5
	api.checkoutErr = &client.APIError{StatusCode: 500}
	f = New(api, &fakeNav{}, &notes, signedIn("u1"), paid)
	require.Error(t, f.Submit(context.Background()))
	assert.Equal(t, Eligible, f.State())
	assert.Equal(t, "Registration failed. Please try again.", notes.Last().Message)
}

func TestSubmitWhilePendingIsRejected(t *testing.T) {
	refetched := freeEvent()
	refetched.IsRegistered = true
	api := &fakeAPI{refetched: refetched, block: make(chan struct{})}
	var notes notify.Recorder
	f := New(api, &fakeNav{}, &notes, signedIn("u1"), freeEvent())

	done := make(chan error, 1)
	go func() { done <- f.Submit(context.Background()) }()
	require.Eventually(t, func() bool { return f.State() == Pending }, time.Second, time.Millisecond)
	assert.Equal(t, "Registering...", f.Label())

	assert.ErrorIs(t, f.Submit(context.Background()), ErrNotEligible)
	close(api.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.registers)
}

func TestNotLoggedInAndHostAreNotActionable(t *testing.T) {
	api := &fakeAPI{}
	var notes notify.Recorder

	f := New(api, &fakeNav{}, &notes, session.NewStore(), freeEvent())
	assert.Equal(t, NotLoggedIn, f.State())
	assert.ErrorIs(t, f.Submit(context.Background()), ErrNotEligible)

	f = New(api, &fakeNav{}, &notes, signedIn("host"), freeEvent())
	assert.Equal(t, Host, f.State())
	assert.ErrorIs(t, f.Submit(context.Background()), ErrNotEligible)
	assert.Equal(t, 0, api.registers)
}

func TestGatewayErrorPageShowsGenericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html><body><h1>502 Bad Gateway</h1></body></html>"))
	}))
	defer srv.Close()

	store := signedIn("u1")
	api, err := client.New(srv.URL, store)
	require.NoError(t, err)
	var notes notify.Recorder
	f := New(api, &fakeNav{}, &notes, store, freeEvent())

	require.Error(t, f.Submit(context.Background()))
	assert.Equal(t, notify.Notice{Kind: notify.KindError, Message: "Registration failed. Please try again."}, notes.Last())
	assert.Equal(t, Eligible, f.State())
}

func TestTokenWithoutProfileIsNotActionable(t *testing.T) {
	store := session.NewStore()
	store.SetToken("tok")
	api := &fakeAPI{}
	f := New(api, &fakeNav{}, &notify.Recorder{}, store, &models.Event{ID: "e1", Host: models.Host{ID: "u1"}})

	assert.Equal(t, NotLoggedIn, f.State())
	assert.ErrorIs(t, f.Submit(context.Background()), ErrNotEligible)
	assert.Equal(t, 0, api.registers)
}
