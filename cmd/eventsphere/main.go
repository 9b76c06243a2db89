// Command eventsphere is the terminal client: browse events, register, and
// chat with other attendees in real time.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eventsphere/internal/app"
	"eventsphere/internal/client"
	"eventsphere/internal/config"
	"eventsphere/internal/notify"
	"eventsphere/internal/realtime"
	"eventsphere/internal/session"
)

// setupLogger writes to stderr so logs do not interleave with the shell on
// stdout.
func setupLogger(verbose bool, prefix string) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, prefix, log.LstdFlags|log.Lshortfile)
}

func main() {
	verbose := flag.Bool("v", false, "Log client activity to stderr")
	start := flag.String("route", app.RouteHome, "Screen to open first, e.g. /events/<id> or /auth/callback?token=...")
	token := flag.String("token", os.Getenv("EVENTSPHERE_TOKEN"), "Bearer token to start signed in with")
	flag.Parse()

	logger := setupLogger(*verbose, "[CLIENT] ")

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Printf("Using API at %s", cfg.APIBaseURL)

	store := session.NewStore()

	api, err := client.New(cfg.APIBaseURL, store,
		client.WithTimeout(cfg.RequestTimeout),
		client.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Invalid API base URL: %v", err)
	}

	dialer, err := realtime.NewWSDialer(cfg.APIBaseURL)
	if err != nil {
		log.Fatalf("Invalid real-time URL: %v", err)
	}
	manager := realtime.NewManager(dialer,
		realtime.WithLogger(setupLogger(*verbose, "[REALTIME] ")),
		realtime.WithReconnect(cfg.ReconnectAttempts),
	)
	defer manager.Close()
	attached := manager.Attach(store)
	defer attached.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *token != "" {
		user, err := api.Me(ctx, *token)
		if err != nil {
			logger.Printf("Ignoring supplied token: %v", err)
		} else {
			store.SetToken(*token)
			store.SetUser(user)
		}
	}

	shell := app.New(api, store, manager, notify.NewTerminal(),
		app.WithIO(os.Stdin, notify.Stdout()),
		app.WithLogger(setupLogger(*verbose, "[APP] ")),
		app.WithColor(notify.ColorEnabled()),
		app.WithFrontendURL(cfg.FrontendURL),
	)
	if err := shell.Run(ctx, *start); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("Shell stopped: %v", err)
	}
}
