package app

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"eventsphere/internal/chat"
	"eventsphere/internal/forms"
	"eventsphere/internal/models"
	"eventsphere/internal/registration"
)

const (
	msgNoEvents          = "No events found. Be the first to create one!"
	msgLoadEventsFailed  = "Failed to load events."
	msgLoadEventFailed   = "Failed to load event."
	msgLoginToCreate     = "You must be logged in to create an event."
	msgEventCreated      = "Event created successfully!"
	msgCreateEventFailed = "Failed to create event. Please try again."
)

const dateFormat = "Mon Jan 2 2006 15:04"

func (a *App) homeScreen(ctx context.Context) string {
	a.navbar()
	a.printf("\nUpcoming Events\n\n")

	events, err := a.api.ListEvents(ctx)
	if err != nil {
		a.logger.Printf("List events failed: %v", err)
		a.printf("%s\n", msgLoadEventsFailed)
	}
	for i, event := range events {
		a.printf("[%d] %s\n    %s\n    Location: %s\n    Date: %s\n",
			i+1, event.Title, event.Description, event.Location, event.Date.Local().Format("Jan 2 2006"))
	}
	if err == nil && len(events) == 0 {
		a.printf("%s\n", msgNoEvents)
	}

	for {
		line, ok := a.prompt(ctx, "\n> ")
		if !ok {
			return ""
		}
		if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			if n < 1 || n > len(events) {
				a.printf("No event numbered %d.\n", n)
				continue
			}
			return EventRoute(events[n-1].ID)
		}
		if strings.TrimSpace(line) == "refresh" {
			return RouteHome
		}
		if next, ok := a.command(line); ok {
			return next
		}
		a.printf("Enter an event number, refresh, or one of the commands above.\n")
	}
}

// eventScreen shows an event with its registration control and, for
// registered attendees, the live chat. Lines starting with "/" are commands;
// anything else is a chat message.
func (a *App) eventScreen(ctx context.Context, id string) string {
	if next, ok := a.auth.CheckExpiry(); !ok {
		return next
	}
	event, err := a.api.GetEvent(ctx, id)
	if err != nil {
		if next, handled := a.auth.HandleUnauthorized(err); handled {
			return next
		}
		a.logger.Printf("Get event %s failed: %v", id, err)
		a.printf("%s\n", msgLoadEventFailed)
		return a.waitForCommand(ctx)
	}

	a.navbar()
	a.printEvent(event)

	var room *chat.Room
	openChat := func() {
		if room != nil {
			room.SetRegistered(true)
			return
		}
		a.printf("\nChat (type a message and press Enter)\n")
		view := chat.NewTerminalView(a.out, a.width, a.color)
		room = chat.Open(event.ID, a.store.Snapshot().UserID(), a.realtime, true, view, chat.WithRoomLogger(a.logger))
	}
	defer func() {
		if room != nil {
			room.Close()
		}
	}()

	flow := registration.New(a.api, a.nav, a.notifier, a.store, event,
		registration.WithLogger(a.logger),
		registration.OnRegistered(func(*models.Event) { openChat() }),
	)
	a.printButton(flow)
	if event.IsRegistered {
		openChat()
	}

	for {
		line, ok := a.readLine(ctx)
		if !ok {
			return ""
		}
		if !strings.HasPrefix(line, "/") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			switch {
			case room == nil:
				a.printf("Register for this event to join the chat.\n")
			case !room.Send(line):
				a.printf("Message not sent: chat is offline.\n")
			}
			continue
		}

		if strings.TrimSpace(line) == "/register" {
			if next, ok := a.auth.CheckExpiry(); !ok {
				return next
			}
			if flow.State() == registration.NotLoggedIn {
				return RouteSignIn
			}
			if err := flow.Submit(ctx); err != nil {
				if next, handled := a.auth.HandleUnauthorized(err); handled {
					return next
				}
			}
			a.printButton(flow)
			continue
		}
		if next, ok := a.command(line); ok {
			return next
		}
		a.printf("Commands: /register /back /logout /quit\n")
	}
}

func (a *App) printEvent(event *models.Event) {
	a.printf("\n%s\n%s\n\n", event.Title, event.Description)
	a.printf("Location: %s\n", event.Location)
	a.printf("Date: %s\n", event.Date.Local().Format(dateFormat))
	a.printf("Price: $%.2f\n", event.Price)
	a.printf("Capacity: %d attendees\n", event.Capacity)
}

func (a *App) printButton(flow *registration.Flow) {
	state := flow.State()
	switch {
	case state.Actionable():
		a.printf("\n[ %s ]  (/register)\n", flow.Label())
	case state == registration.NotLoggedIn:
		a.printf("\n[ %s ]  (/register to sign in)\n", flow.Label())
	default:
		a.printf("\n[ %s ]\n", flow.Label())
	}
}

func (a *App) createEventScreen(ctx context.Context) string {
	if !a.store.Snapshot().Authenticated() {
		a.notifier.Error(msgLoginToCreate)
		return RouteSignIn
	}
	if next, ok := a.auth.CheckExpiry(); !ok {
		return next
	}

	a.printf("\nCreate a New Event (/cancel to go back)\n")
	for {
		var form forms.CreateEvent
		fields := []struct {
			label string
			dst   *string
		}{
			{"Title: ", &form.Title},
			{"Description: ", &form.Description},
			{"Location: ", &form.Location},
			{"Date and Time (YYYY-MM-DD HH:MM): ", &form.Date},
			{"Price ($): ", &form.Price},
			{"Capacity: ", &form.Capacity},
		}
		for _, f := range fields {
			line, ok := a.prompt(ctx, f.label)
			if !ok {
				return ""
			}
			if strings.TrimSpace(line) == "/cancel" {
				return RouteHome
			}
			*f.dst = line
		}

		req, err := form.Request()
		if err != nil {
			a.printFieldErrors(err)
			continue
		}
		if _, err := a.api.CreateEvent(ctx, req); err != nil {
			if next, handled := a.auth.HandleUnauthorized(err); handled {
				return next
			}
			a.logger.Printf("Create event failed: %v", err)
			a.notifier.Error(msgCreateEventFailed)
			continue
		}
		a.notifier.Success(msgEventCreated)
		return RouteHome
	}
}

func (a *App) signInScreen(ctx context.Context) string {
	a.printf("\nSign In (/cancel to go back)\n")
	for {
		var form forms.SignIn
		var ok bool
		if form.Email, ok = a.prompt(ctx, "Email: "); !ok {
			return ""
		}
		if strings.TrimSpace(form.Email) == "/cancel" {
			return RouteHome
		}
		if form.Password, ok = a.prompt(ctx, "Password: "); !ok {
			return ""
		}

		next, err := a.auth.SignIn(ctx, form)
		if err != nil {
			a.printFieldErrors(err)
			continue
		}
		return next
	}
}

func (a *App) signUpScreen(ctx context.Context) string {
	a.printf("\nSign Up (/cancel to go back)\n")
	for {
		var form forms.SignUp
		var ok bool
		if form.Email, ok = a.prompt(ctx, "Email: "); !ok {
			return ""
		}
		if strings.TrimSpace(form.Email) == "/cancel" {
			return RouteHome
		}
		if form.Password, ok = a.prompt(ctx, "Password: "); !ok {
			return ""
		}

		next, err := a.auth.SignUp(ctx, form)
		if err != nil {
			a.printFieldErrors(err)
			continue
		}
		return next
	}
}

func (a *App) callbackScreen(ctx context.Context, token string) string {
	a.printf("Completing login...\n")
	next, _ := a.auth.Callback(ctx, token)
	return next
}

// paymentSuccessScreen returns home after the delay unless the user enters
// a line first, which cancels the timer.
func (a *App) paymentSuccessScreen(ctx context.Context) string {
	a.printf("\nPayment Successful!\n")
	a.printf("Thank you for your registration. You are all set! Your registration has been confirmed.\n")
	a.printf("You will be redirected to the homepage in %d seconds. Press Enter to stay.\n", int(a.returnDelay/time.Second))

	timer := time.NewTimer(a.returnDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ""
	case <-timer.C:
		return RouteHome
	case line, ok := <-a.lines:
		if !ok {
			return ""
		}
		if next, ok := a.command(line); ok {
			return next
		}
	}
	a.printf("Staying here. Type home to go to the homepage.\n")
	return a.waitForCommand(ctx)
}

func (a *App) paymentCancelScreen(ctx context.Context) string {
	a.printf("\nPayment Canceled\n")
	a.printf("Your payment process was canceled. You have not been charged. You can return to the event page and try again if you'd like.\n")
	a.printf("Type home to go back to the homepage.\n")
	return a.waitForCommand(ctx)
}

func (a *App) waitForCommand(ctx context.Context) string {
	for {
		line, ok := a.prompt(ctx, "> ")
		if !ok {
			return ""
		}
		if next, ok := a.command(line); ok {
			return next
		}
		a.printf("Commands: home, signin, signup, create, logout, go <route>, quit\n")
	}
}

func (a *App) printFieldErrors(err error) {
	var fe forms.FieldErrors
	if !errors.As(err, &fe) {
		return
	}
	for _, line := range strings.Split(fe.Error(), "; ") {
		a.printf("  %s\n", line)
	}
}
