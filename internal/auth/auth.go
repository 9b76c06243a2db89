// Package auth implements sign-in, sign-up, the OAuth callback and logout on
// top of the session store. Each operation returns the route to show next;
// an empty route means stay on the current screen.
package auth

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"eventsphere/internal/client"
	"eventsphere/internal/forms"
	"eventsphere/internal/models"
	"eventsphere/internal/notify"
	"eventsphere/internal/session"
)

const (
	RouteHome   = "/"
	RouteSignIn = "/signin"
)

const (
	MsgSignedIn       = "Signed in successfully!"
	MsgInvalidLogin   = "Invalid email or password."
	MsgUnexpected     = "An unexpected error occurred. Please try again."
	MsgAccountCreated = "Account created successfully! Please sign in."
	MsgEmailInUse     = "Email already in use"
	MsgNoToken        = "Authentication failed. No token provided."
	MsgCallbackFailed = "Failed to complete login. Please try again."
	MsgLoggedOut      = "You have been logged out."
	MsgSessionExpired = "Your session has expired. Please sign in again."
)

type API interface {
	SignIn(ctx context.Context, req models.SignInRequest) (string, error)
	SignUp(ctx context.Context, req models.SignUpRequest) error
	Me(ctx context.Context, token string) (*models.User, error)
}

type Flow struct {
	api      API
	store    *session.Store
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time
}

func New(api API, store *session.Store, notifier notify.Notifier, logger *log.Logger) *Flow {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Flow{api: api, store: store, notifier: notifier, logger: logger, now: time.Now}
}

func (f *Flow) SignIn(ctx context.Context, form forms.SignIn) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	token, err := f.api.SignIn(ctx, form.Request())
	if err != nil {
		if status(err) == http.StatusForbidden {
			f.notifier.Error(MsgInvalidLogin)
		} else {
			f.logger.Printf("Sign in failed: %v", err)
			f.notifier.Error(MsgUnexpected)
		}
		return "", err
	}

	user, err := f.api.Me(ctx, token)
	if err != nil {
		f.logger.Printf("Profile fetch after sign in failed: %v", err)
		f.notifier.Error(MsgUnexpected)
		return "", err
	}

	f.store.SetToken(token)
	f.store.SetUser(user)
	f.notifier.Success(MsgSignedIn)
	return RouteHome, nil
}

// SignUp creates the account; the user signs in separately afterwards. A
// taken email is reported as a field error.
func (f *Flow) SignUp(ctx context.Context, form forms.SignUp) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	if err := f.api.SignUp(ctx, form.Request()); err != nil {
		if status(err) == http.StatusForbidden {
			return "", forms.FieldErrors{"email": MsgEmailInUse}
		}
		f.logger.Printf("Sign up failed: %v", err)
		f.notifier.Error(MsgUnexpected)
		return "", err
	}
	f.notifier.Success(MsgAccountCreated)
	return RouteSignIn, nil
}

// Callback completes an OAuth login from the token query value.
func (f *Flow) Callback(ctx context.Context, token string) (string, error) {
	if token == "" {
		f.notifier.Error(MsgNoToken)
		return RouteSignIn, session.ErrNoCredential
	}

	f.store.SetToken(token)
	user, err := f.api.Me(ctx, token)
	if err != nil {
		f.logger.Printf("Profile fetch in callback failed: %v", err)
		f.store.Logout()
		f.notifier.Error(MsgCallbackFailed)
		return RouteSignIn, err
	}
	f.store.SetUser(user)
	f.notifier.Success(MsgSignedIn)
	return RouteHome, nil
}

func (f *Flow) Logout() string {
	f.store.Logout()
	f.notifier.Success(MsgLoggedOut)
	return RouteHome
}

// CheckExpiry clears an expired credential before an authenticated action.
// It returns the sign-in route when the credential was dropped.
func (f *Flow) CheckExpiry() (string, bool) {
	if !f.store.Expired(f.now()) {
		return "", true
	}
	f.store.Logout()
	f.notifier.Error(MsgSessionExpired)
	return RouteSignIn, false
}

// HandleUnauthorized treats a 401 from any authenticated call as an auth
// failure: the credential is cleared and the user is sent to sign in.
func (f *Flow) HandleUnauthorized(err error) (string, bool) {
	if !errors.Is(err, client.ErrUnauthorized) {
		return "", false
	}
	f.store.Logout()
	f.notifier.Error(MsgSessionExpired)
	return RouteSignIn, true
}

func status(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
