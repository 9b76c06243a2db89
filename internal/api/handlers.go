package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"eventsphere/internal/config"
	"eventsphere/internal/db"
	"eventsphere/internal/models"
	"eventsphere/internal/websocket"
)

type contextKey string

const (
	userContextKey contextKey = "user"
)

type Handlers struct {
	db       *db.DB
	hub      *websocket.Hub
	cfg      *config.Config
	logger   *log.Logger
	upgrader gorilla.Upgrader
}

func NewHandlers(database *db.DB, hub *websocket.Hub, cfg *config.Config) *Handlers {
	h := &Handlers{
		db:     database,
		hub:    hub,
		cfg:    cfg,
		logger: log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile),
	}
	h.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Terminal clients send no Origin.
			origin := r.Header.Get("Origin")
			return origin == "" || origin == cfg.FrontendURL
		},
	}
	return h
}

func (h *Handlers) SetLogger(logger *log.Logger) {
	h.logger = logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message interface{}) {
	writeJSON(w, status, models.ErrorResponse{
		StatusCode: status,
		Message:    message,
		Error:      http.StatusText(status),
	})
}

func userFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// Token helpers

func (h *Handlers) issueToken(user *models.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(h.cfg.TokenTTL).Unix(),
	})
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *Handlers) userFromToken(raw string) (*models.User, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return nil, errors.New("invalid subject in token")
	}
	return h.db.GetUserByID(userID)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// Middleware

// RequireAuth rejects requests without a valid bearer token.
func (h *Handlers) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		user, err := h.userFromToken(raw)
		if err != nil {
			h.logger.Printf("Rejected token: %v", err)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// serves the request anonymously.
func (h *Handlers) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := bearerToken(r); raw != "" {
			if user, err := h.userFromToken(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
			}
		}
		next.ServeHTTP(w, r)
	}
}

func (h *Handlers) WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip CORS for WebSocket connections
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", h.cfg.FrontendURL)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Auth handlers
func (h *Handlers) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req models.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if problems := validationProblems(req); len(problems) > 0 {
		writeError(w, http.StatusBadRequest, problems)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user, err := h.db.CreateUser(strings.ToLower(req.Email), string(hashedPassword))
	if errors.Is(err, db.ErrEmailTaken) {
		writeError(w, http.StatusForbidden, "Credentials taken")
		return
	}
	if err != nil {
		h.logger.Printf("Failed to create user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *Handlers) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req models.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.db.GetUserByEmail(strings.ToLower(req.Email))
	if err != nil {
		writeError(w, http.StatusForbidden, "Credentials incorrect")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusForbidden, "Credentials incorrect")
		return
	}

	tokenString, err := h.issueToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, models.SignInResponse{AccessToken: tokenString})
}

func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}

// Event handlers
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.db.ListEvents()
	if err != nil {
		h.logger.Printf("Failed to fetch events: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.db.GetEvent(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		h.logger.Printf("Failed to fetch event: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch event")
		return
	}

	if user := userFrom(r.Context()); user != nil {
		registered, err := h.db.IsRegistered(event.ID, user.ID)
		if err != nil {
			h.logger.Printf("Failed to check registration: %v", err)
		}
		event.IsRegistered = registered
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *Handlers) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if problems := validationProblems(req); len(problems) > 0 {
		writeError(w, http.StatusBadRequest, problems)
		return
	}

	event, err := h.db.CreateEvent(userFrom(r.Context()), req)
	if err != nil {
		h.logger.Printf("Failed to create event: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	event, err := h.db.GetEvent(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch event")
		return
	}
	if event.Host.ID == user.ID {
		writeError(w, http.StatusForbidden, "You cannot register for your own event")
		return
	}
	if event.Paid() {
		writeError(w, http.StatusBadRequest, "This event requires payment")
		return
	}

	reg, err := h.db.Register(event.ID, user.ID)
	switch {
	case errors.Is(err, db.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "You are already registered for this event")
	case errors.Is(err, db.ErrEventFull):
		writeError(w, http.StatusConflict, "This event is full")
	case err != nil:
		h.logger.Printf("Failed to register: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
	default:
		writeJSON(w, http.StatusCreated, reg)
	}
}

// Payment handlers
func (h *Handlers) HandleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == "" {
		writeError(w, http.StatusBadRequest, "eventId is required")
		return
	}

	event, err := h.db.GetEvent(req.EventID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch event")
		return
	}
	if !event.Paid() {
		writeError(w, http.StatusBadRequest, "This event is free")
		return
	}
	if registered, _ := h.db.IsRegistered(event.ID, user.ID); registered {
		writeError(w, http.StatusConflict, "You are already registered for this event")
		return
	}

	cs, err := h.db.CreateCheckoutSession(event.ID, user.ID)
	if err != nil {
		h.logger.Printf("Failed to create checkout session: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}
	checkoutURL := strings.TrimRight(h.cfg.PublicURL, "/") + "/payments/checkout/" + url.PathEscape(cs.ID)
	writeJSON(w, http.StatusCreated, models.CheckoutResponse{URL: checkoutURL})
}

// HandleCheckout stands in for the hosted payment page: visiting it pays,
// registers and redirects to the front end. ?cancel=1 abandons the session.
func (h *Handlers) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	frontend := strings.TrimRight(h.cfg.FrontendURL, "/")
	if r.URL.Query().Get("cancel") != "" {
		http.Redirect(w, r, frontend+"/payments/cancel", http.StatusSeeOther)
		return
	}

	cs, err := h.db.CompleteCheckoutSession(r.PathValue("id"))
	if err != nil {
		h.logger.Printf("Checkout %s failed: %v", r.PathValue("id"), err)
		http.Redirect(w, r, frontend+"/payments/cancel", http.StatusSeeOther)
		return
	}
	h.logger.Printf("Checkout %s completed for user %s", cs.ID, cs.UserID)
	http.Redirect(w, r, frontend+"/payment/success?session_id="+url.QueryEscape(cs.ID), http.StatusSeeOther)
}

// WebSocket handler
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Printf("WebSocket connection attempt from %s", r.RemoteAddr)

	raw := bearerToken(r)
	if raw == "" {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.userFromToken(raw)
	if err != nil {
		h.logger.Printf("Invalid token: %v", err)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	h.logger.Printf("WebSocket authenticated for user: %s (ID: %s)", user.Email, user.ID)

	client := websocket.NewClient(h.hub, conn, user)
	if !h.hub.Add(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// Routes mounts every endpoint on a fresh mux behind CORS and request
// logging. The WebSocket endpoint is not logged per request.
func (h *Handlers) Routes(logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", h.HandleWebSocket)

	mux.HandleFunc("POST /auth/signup", logRequest(logger, h.HandleSignUp))
	mux.HandleFunc("POST /auth/signin", logRequest(logger, h.HandleSignIn))
	mux.HandleFunc("GET /users/me", logRequest(logger, h.RequireAuth(h.HandleMe)))

	mux.HandleFunc("GET /events", logRequest(logger, h.HandleListEvents))
	mux.HandleFunc("POST /events", logRequest(logger, h.RequireAuth(h.HandleCreateEvent)))
	mux.HandleFunc("GET /events/{id}", logRequest(logger, h.OptionalAuth(h.HandleGetEvent)))
	mux.HandleFunc("POST /events/{id}/register", logRequest(logger, h.RequireAuth(h.HandleRegister)))

	mux.HandleFunc("POST /payments/create-checkout-session", logRequest(logger, h.RequireAuth(h.HandleCreateCheckoutSession)))
	mux.HandleFunc("GET /payments/checkout/{id}", logRequest(logger, h.HandleCheckout))

	return h.WithCORS(mux)
}

func logRequest(logger *log.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger.Printf("Started %s %s", r.Method, r.URL.Path)

		lrw := newLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)

		logger.Printf("Completed %s %s %d %s in %v",
			r.Method, r.URL.Path, lrw.statusCode,
			http.StatusText(lrw.statusCode),
			time.Since(start))
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newLoggingResponseWriter(w http.ResponseWriter) *loggingResponseWriter {
	return &loggingResponseWriter{w, http.StatusOK}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
