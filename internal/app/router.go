package app

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	RouteHome           = "/"
	RouteSignIn         = "/signin"
	RouteSignUp         = "/signup"
	RouteCreateEvent    = "/events/create"
	RouteCallback       = "/auth/callback"
	RoutePaymentSuccess = "/payment/success"
	RoutePaymentCancel  = "/payments/cancel"
)

type screen int

const (
	screenHome screen = iota
	screenEvent
	screenCreateEvent
	screenSignIn
	screenSignUp
	screenCallback
	screenPaymentSuccess
	screenPaymentCancel
)

// route is a parsed screen location.
type route struct {
	screen  screen
	eventID string
	query   url.Values
}

// EventRoute is the detail screen path for an event.
func EventRoute(id string) string {
	return "/events/" + url.PathEscape(id)
}

// parseRoute accepts a bare path or a full front-end URL, so payment
// redirects can be pasted as-is.
func parseRoute(raw string) (route, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return route{}, fmt.Errorf("parse route %q: %w", raw, err)
	}
	path := strings.TrimSuffix(u.EscapedPath(), "/")
	if path == "" {
		path = RouteHome
	}
	r := route{query: u.Query()}

	switch path {
	case RouteHome:
		r.screen = screenHome
	case RouteSignIn:
		r.screen = screenSignIn
	case RouteSignUp:
		r.screen = screenSignUp
	case RouteCreateEvent:
		r.screen = screenCreateEvent
	case RouteCallback:
		r.screen = screenCallback
	case RoutePaymentSuccess:
		r.screen = screenPaymentSuccess
	case RoutePaymentCancel:
		r.screen = screenPaymentCancel
	default:
		id, ok := strings.CutPrefix(path, "/events/")
		if !ok || id == "" || strings.Contains(id, "/") {
			return route{}, fmt.Errorf("unknown route %q", raw)
		}
		if id, err = url.PathUnescape(id); err != nil {
			return route{}, fmt.Errorf("parse route %q: %w", raw, err)
		}
		r.screen = screenEvent
		r.eventID = id
	}
	return r, nil
}
