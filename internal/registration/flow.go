// Package registration drives the register button on an event view: a direct
// registration for free events, a hosted checkout for paid ones.
package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"eventsphere/internal/client"
	"eventsphere/internal/models"
	"eventsphere/internal/notify"
	"eventsphere/internal/session"
)

var ErrNotEligible = errors.New("registration: button is not actionable")

const (
	msgRegistered = "Successfully registered for the event!"
	msgFailed     = "Registration failed. Please try again."
)

type State int

const (
	NotLoggedIn State = iota
	Host
	Registered
	Eligible
	Pending
	Redirected
)

func (s State) String() string {
	switch s {
	case NotLoggedIn:
		return "not-logged-in"
	case Host:
		return "host"
	case Registered:
		return "registered"
	case Eligible:
		return "eligible"
	case Pending:
		return "pending"
	case Redirected:
		return "redirected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Actionable reports whether Submit is accepted in this state.
func (s State) Actionable() bool {
	return s == Eligible
}

// Label is the button text for s on an event with the given price.
func (s State) Label(price float64) string {
	paid := price > 0
	switch s {
	case NotLoggedIn:
		return "Log in to Register"
	case Host:
		return "You are the host of this event."
	case Registered:
		return "You are already registered"
	case Pending:
		if paid {
			return "Redirecting to payment..."
		}
		return "Registering..."
	case Redirected:
		return "Continue to payment in your browser"
	}
	if paid {
		return fmt.Sprintf("Pay $%.2f & Register", price)
	}
	return "Register for Event"
}

// Resolve derives the resting state for user and event. A token without a
// loaded profile counts as signed out.
func Resolve(user *models.User, authenticated bool, event *models.Event) State {
	switch {
	case !authenticated, user == nil:
		return NotLoggedIn
	case event.Host.ID == user.ID:
		return Host
	case event.IsRegistered:
		return Registered
	}
	return Eligible
}

type API interface {
	Register(ctx context.Context, eventID string) error
	CreateCheckoutSession(ctx context.Context, eventID string) (string, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// Navigator performs the full navigation to the hosted checkout page.
type Navigator interface {
	Navigate(url string) error
}

type Option func(*Flow)

func WithLogger(logger *log.Logger) Option {
	return func(f *Flow) { f.logger = logger }
}

// OnRegistered is called with the re-fetched event after a free
// registration completes.
func OnRegistered(fn func(*models.Event)) Option {
	return func(f *Flow) { f.onRegistered = fn }
}

type Flow struct {
	api          API
	nav          Navigator
	notifier     notify.Notifier
	session      session.Reader
	logger       *log.Logger
	onRegistered func(*models.Event)

	mu         sync.Mutex
	event      *models.Event
	pending    bool
	redirected bool
}

func New(api API, nav Navigator, notifier notify.Notifier, sess session.Reader, event *models.Event, opts ...Option) *Flow {
	f := &Flow{
		api:      api,
		nav:      nav,
		notifier: notifier,
		session:  sess,
		event:    event,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.New(io.Discard, "", 0)
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Flow) Label() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked().Label(f.event.Price)
}

// Event returns the latest known event record.
func (f *Flow) Event() *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.event
}

func (f *Flow) stateLocked() State {
	if f.redirected {
		return Redirected
	}
	snap := f.session.Snapshot()
	base := Resolve(snap.User, snap.Authenticated(), f.event)
	if base == Eligible && f.pending {
		return Pending
	}
	return base
}

// Submit runs the registration for the current event. It is rejected unless
// the button is actionable, so a second submit while pending does nothing.
// Failures are reported through the notifier and returned.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.stateLocked() != Eligible {
		f.mu.Unlock()
		return ErrNotEligible
	}
	f.pending = true
	event := f.event
	f.mu.Unlock()

	var err error
	if event.Paid() {
		err = f.checkout(ctx, event)
	} else {
		err = f.register(ctx, event)
	}
	if err != nil {
		f.mu.Lock()
		f.pending = false
		f.mu.Unlock()

		msg, ok := client.ServerMessage(err)
		if !ok {
			msg = msgFailed
		}
		f.logger.Printf("Registration for event %s failed: %v", event.ID, err)
		f.notifier.Error(msg)
		return err
	}
	return nil
}

func (f *Flow) checkout(ctx context.Context, event *models.Event) error {
	url, err := f.api.CreateCheckoutSession(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("create checkout session: %w", err)
	}
	if err := f.nav.Navigate(url); err != nil {
		return fmt.Errorf("navigate to checkout: %w", err)
	}
	f.mu.Lock()
	f.pending = false
	f.redirected = true
	f.mu.Unlock()
	f.logger.Printf("Redirected to checkout for event %s", event.ID)
	return nil
}

func (f *Flow) register(ctx context.Context, event *models.Event) error {
	if err := f.api.Register(ctx, event.ID); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fresh, err := f.api.GetEvent(ctx, event.ID)
	if err != nil {
		f.logger.Printf("Refetch after registration failed: %v", err)
		copied := *event
		copied.IsRegistered = true
		fresh = &copied
	}

	f.mu.Lock()
	f.event = fresh
	f.pending = false
	f.mu.Unlock()

	f.notifier.Success(msgRegistered)
	if f.onRegistered != nil {
		f.onRegistered(fresh)
	}
	return nil
}
