package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"eventsphere/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrEmailTaken        = errors.New("email already in use")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrEventFull         = errors.New("event is full")
)

type DB struct {
	*sql.DB
	logger *log.Logger
}

func NewDB(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"
	if !memory {
		// Create the database directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &DB{
		DB:     db,
		logger: log.New(os.Stdout, "[DB] ", log.LstdFlags|log.Lshortfile),
	}, nil
}

func (db *DB) SetLogger(logger *log.Logger) {
	db.logger = logger
}

func initSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			first_name TEXT,
			last_name TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			location TEXT NOT NULL,
			date DATETIME NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			capacity INTEGER NOT NULL,
			host_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (host_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS registrations (
			event_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (event_id, user_id),
			FOREIGN KEY (event_id) REFERENCES events(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS checkout_sessions (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (event_id) REFERENCES events(id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// User methods
func (db *DB) CreateUser(email, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		Password:  passwordHash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.Exec(
		"INSERT INTO users (id, email, password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Password, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	db.logger.Printf("Created user %s (%s)", user.ID, user.Email)
	return user, nil
}

const userColumns = "id, email, password, first_name, last_name, created_at, updated_at"

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.FirstName, &user.LastName, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	return scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

func (db *DB) GetUserByID(id string) (*models.User, error) {
	return scanUser(db.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// Event methods
func (db *DB) CreateEvent(host *models.User, req models.CreateEventRequest) (*models.Event, error) {
	event := &models.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date.UTC(),
		Price:       req.Price,
		Capacity:    req.Capacity,
		Host:        models.Host{ID: host.ID, Email: host.Email},
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO events (id, title, description, location, date, price, capacity, host_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Title, event.Description, event.Location, event.Date,
		event.Price, event.Capacity, event.Host.ID, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	db.logger.Printf("Created event %s hosted by %s", event.ID, host.ID)
	return event, nil
}

const eventSelect = `
	SELECT e.id, e.title, e.description, e.location, e.date, e.price, e.capacity, e.created_at, u.id, u.email
	FROM events e
	JOIN users u ON u.id = e.host_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*models.Event, error) {
	var e models.Event
	err := s.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Date, &e.Price, &e.Capacity, &e.CreatedAt, &e.Host.ID, &e.Host.Email)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEvents returns upcoming and past events, soonest first.
func (db *DB) ListEvents() ([]models.Event, error) {
	rows, err := db.Query(eventSelect + " ORDER BY e.date ASC")
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (db *DB) GetEvent(id string) (*models.Event, error) {
	e, err := scanEvent(db.QueryRow(eventSelect+" WHERE e.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

// Registration methods
func (db *DB) IsRegistered(eventID, userID string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM registrations WHERE event_id = ? AND user_id = ?", eventID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query registration: %w", err)
	}
	return n > 0, nil
}

// Register adds userID to the event, enforcing capacity.
func (db *DB) Register(eventID, userID string) (*models.Registration, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var capacity, taken int
	err = tx.QueryRow(`
		SELECT e.capacity, (SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		FROM events e WHERE e.id = ?`, eventID).Scan(&capacity, &taken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query capacity: %w", err)
	}
	if taken >= capacity {
		return nil, ErrEventFull
	}

	reg := &models.Registration{EventID: eventID, UserID: userID, CreatedAt: time.Now().UTC()}
	if _, err := tx.Exec("INSERT INTO registrations (event_id, user_id, created_at) VALUES (?, ?, ?)",
		reg.EventID, reg.UserID, reg.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	db.logger.Printf("User %s registered for event %s", userID, eventID)
	return reg, nil
}

// Checkout methods
func (db *DB) CreateCheckoutSession(eventID, userID string) (*models.CheckoutSession, error) {
	cs := &models.CheckoutSession{
		ID:        "cs_" + uuid.NewString(),
		EventID:   eventID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.Exec("INSERT INTO checkout_sessions (id, event_id, user_id, completed, created_at) VALUES (?, ?, ?, 0, ?)",
		cs.ID, cs.EventID, cs.UserID, cs.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert checkout session: %w", err)
	}
	return cs, nil
}

func (db *DB) GetCheckoutSession(id string) (*models.CheckoutSession, error) {
	var cs models.CheckoutSession
	err := db.QueryRow("SELECT id, event_id, user_id, completed, created_at FROM checkout_sessions WHERE id = ?", id).
		Scan(&cs.ID, &cs.EventID, &cs.UserID, &cs.Completed, &cs.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkout session: %w", err)
	}
	return &cs, nil
}

// CompleteCheckoutSession marks the session paid and registers its user.
// Completing a session twice is harmless.
func (db *DB) CompleteCheckoutSession(id string) (*models.CheckoutSession, error) {
	cs, err := db.GetCheckoutSession(id)
	if err != nil {
		return nil, err
	}
	if cs.Completed {
		return cs, nil
	}
	if _, err := db.Register(cs.EventID, cs.UserID); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
		return nil, err
	}
	if _, err := db.Exec("UPDATE checkout_sessions SET completed = 1 WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("complete checkout session: %w", err)
	}
	cs.Completed = true
	return cs, nil
}
