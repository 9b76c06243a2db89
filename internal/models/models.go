package models

import "time"

// User is the signed-in profile returned by /users/me. The password never
// leaves the backend.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Password  string    `json:"-" db:"password"`
	FirstName *string   `json:"firstName" db:"first_name"`
	LastName  *string   `json:"lastName" db:"last_name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// DisplayName is what other attendees see next to a chat message.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := ""
	if u.FirstName != nil {
		name = *u.FirstName
	}
	if u.LastName != nil && *u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}

type Host struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Event struct {
	ID           string    `json:"id" db:"id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	Location     string    `json:"location" db:"location"`
	Date         time.Time `json:"date" db:"date"`
	Price        float64   `json:"price" db:"price"`
	Capacity     int       `json:"capacity" db:"capacity"`
	Host         Host      `json:"host"`
	IsRegistered bool      `json:"isRegistered,omitempty"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Paid reports whether registering goes through a checkout session.
func (e *Event) Paid() bool {
	return e.Price > 0
}

type Registration struct {
	EventID   string    `json:"eventId" db:"event_id"`
	UserID    string    `json:"userId" db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type CheckoutSession struct {
	ID        string    `json:"id" db:"id"`
	EventID   string    `json:"eventId" db:"event_id"`
	UserID    string    `json:"userId" db:"user_id"`
	Completed bool      `json:"completed" db:"completed"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Message is one chat line as broadcast by the real-time server.
type Message struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Request/Response structures
type SignUpRequest struct {
	Email    string `json:"email" validate:"email"`
	Password string `json:"password" validate:"min=8"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	AccessToken string `json:"access_token"`
}

type CreateEventRequest struct {
	Title       string    `json:"title" validate:"min=3"`
	Description string    `json:"description" validate:"min=10"`
	Location    string    `json:"location" validate:"min=3"`
	Date        time.Time `json:"date" validate:"required"`
	Price       float64   `json:"price" validate:"gte=0"`
	Capacity    int       `json:"capacity" validate:"gte=1"`
}

type CheckoutRequest struct {
	EventID string `json:"eventId"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

// ErrorResponse mirrors the API's error body. Message is either a string or a
// list of validation messages.
type ErrorResponse struct {
	StatusCode int         `json:"statusCode"`
	Message    interface{} `json:"message"`
	Error      string      `json:"error,omitempty"`
}

// Real-time frames

type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type SendMessagePayload struct {
	EventID string `json:"eventId"`
	Message string `json:"message"`
}
