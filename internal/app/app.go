// Package app is the terminal front end: a line-oriented shell that routes
// between screens the way the web client routes between pages.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"eventsphere/internal/auth"
	"eventsphere/internal/models"
	"eventsphere/internal/notify"
	"eventsphere/internal/realtime"
	"eventsphere/internal/registration"
	"eventsphere/internal/session"
)

// API is every backend call the screens make.
type API interface {
	auth.API
	registration.API
	ListEvents(ctx context.Context) ([]models.Event, error)
	CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error)
}

type Option func(*App)

func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = &syncWriter{w: out}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(a *App) { a.logger = logger }
}

func WithColor(color bool) Option {
	return func(a *App) { a.color = color }
}

// WithReturnDelay sets how long the payment success screen waits before
// returning home.
func WithReturnDelay(d time.Duration) Option {
	return func(a *App) { a.returnDelay = d }
}

// WithFrontendURL names the web front end whose success and cancel pages the
// checkout redirects to. Pasted addresses must belong to it.
func WithFrontendURL(frontend string) Option {
	return func(a *App) { a.frontendURL = strings.TrimRight(frontend, "/") }
}

func WithNavigator(nav registration.Navigator) Option {
	return func(a *App) { a.nav = nav }
}

type App struct {
	api         API
	store       *session.Store
	realtime    realtime.StatusSource
	notifier    notify.Notifier
	auth        *auth.Flow
	nav         registration.Navigator
	logger      *log.Logger
	in          io.Reader
	out         io.Writer
	color       bool
	width       int
	returnDelay time.Duration
	frontendURL string

	lines chan string
	once  sync.Once
}

func New(api API, store *session.Store, rt realtime.StatusSource, notifier notify.Notifier, opts ...Option) *App {
	a := &App{
		api:         api,
		store:       store,
		realtime:    rt,
		notifier:    notifier,
		in:          os.Stdin,
		out:         &syncWriter{w: os.Stdout},
		width:       80,
		returnDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.New(io.Discard, "", 0)
	}
	if a.nav == nil {
		a.nav = &PrintNavigator{Out: a.out, FrontendURL: a.frontendURL}
	}
	a.auth = auth.New(api, store, notifier, a.logger)
	return a
}

// Run shows screens starting at start until the user quits, the input ends
// or ctx is cancelled.
func (a *App) Run(ctx context.Context, start string) error {
	a.once.Do(a.readInput)

	path := start
	for path != "" {
		r, err := a.route(path)
		if err != nil {
			a.printf("%v\n", err)
			path = RouteHome
			continue
		}
		a.logger.Printf("Showing %s", path)
		path = a.show(ctx, r)
	}
	return ctx.Err()
}

// route parses path, rejecting absolute addresses outside the front end.
func (a *App) route(path string) (route, error) {
	if a.frontendURL != "" {
		if u, err := url.Parse(strings.TrimSpace(path)); err == nil && u.IsAbs() {
			if !strings.EqualFold(u.Scheme+"://"+u.Host, a.frontendURL) {
				return route{}, fmt.Errorf("%s is not an address of %s", path, a.frontendURL)
			}
		}
	}
	return parseRoute(path)
}

func (a *App) show(ctx context.Context, r route) string {
	switch r.screen {
	case screenEvent:
		return a.eventScreen(ctx, r.eventID)
	case screenCreateEvent:
		return a.createEventScreen(ctx)
	case screenSignIn:
		return a.signInScreen(ctx)
	case screenSignUp:
		return a.signUpScreen(ctx)
	case screenCallback:
		return a.callbackScreen(ctx, r.query.Get("token"))
	case screenPaymentSuccess:
		return a.paymentSuccessScreen(ctx)
	case screenPaymentCancel:
		return a.paymentCancelScreen(ctx)
	}
	return a.homeScreen(ctx)
}

func (a *App) readInput() {
	a.lines = make(chan string)
	go func() {
		defer close(a.lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			a.lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			a.logger.Printf("Error reading input: %v", err)
		}
	}()
}

// readLine blocks for the next input line. ok is false once the input is
// exhausted or ctx is done.
func (a *App) readLine(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case line, ok := <-a.lines:
		return line, ok
	}
}

func (a *App) prompt(ctx context.Context, label string) (string, bool) {
	a.printf("%s", label)
	return a.readLine(ctx)
}

// command resolves the navigation words every screen understands. An empty
// route with ok set means quit.
func (a *App) command(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	switch strings.ToLower(strings.TrimPrefix(fields[0], "/")) {
	case "home", "back":
		return RouteHome, true
	case "signin":
		return RouteSignIn, true
	case "signup":
		return RouteSignUp, true
	case "create":
		return RouteCreateEvent, true
	case "logout":
		return a.auth.Logout(), true
	case "go":
		if len(fields) < 2 {
			return "", false
		}
		return fields[1], true
	case "quit", "exit":
		return "", true
	}
	return "", false
}

func (a *App) navbar() {
	snap := a.store.Snapshot()
	if snap.Authenticated() {
		email := ""
		if snap.User != nil {
			email = snap.User.Email
		}
		a.printf("Eventsphere | %s | create · logout · quit\n", email)
		return
	}
	a.printf("Eventsphere | signin · signup · quit\n")
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.out, format, args...)
}

// syncWriter serialises screen output with chat lines rendered from the
// connection's read pump.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// PrintNavigator hands the checkout URL to the user; the terminal cannot
// follow a hosted payment page itself.
type PrintNavigator struct {
	Out         io.Writer
	FrontendURL string
}

func (n *PrintNavigator) Navigate(checkoutURL string) error {
	if _, err := fmt.Fprintf(n.Out, "Continue to payment in your browser:\n  %s\n", checkoutURL); err != nil {
		return err
	}
	if n.FrontendURL == "" {
		return nil
	}
	_, err := fmt.Fprintf(n.Out, "When you land on %s%s, enter: /go <that address>\n", n.FrontendURL, RoutePaymentSuccess)
	return err
}
