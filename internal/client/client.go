// Package client wraps the Eventsphere REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eventsphere/internal/models"
)

var ErrUnauthorized = errors.New("client: unauthorized")

// APIError is a non-2xx response. Message is the server's message, joined
// when the server sent a list.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// ServerMessage extracts the server-supplied message from err, if any.
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	logger  *log.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the request timeout on a copy of the current HTTP client,
// so a shared client such as http.DefaultClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		hc := *cl.http
		hc.Timeout = d
		cl.http = &hc
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	return c, nil
}

func (c *Client) SignUp(ctx context.Context, req models.SignUpRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/signup", "", req, nil)
}

func (c *Client) SignIn(ctx context.Context, req models.SignInRequest) (string, error) {
	var resp models.SignInResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", "", req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("sign in response carried no access token")
	}
	return resp.AccessToken, nil
}

// Me fetches the profile for token. An empty token falls back to the
// session's.
func (c *Client) Me(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		token = c.token()
	}
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/users/me", token, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	if err := c.do(ctx, http.MethodGet, "/events", "", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent sends the session token when there is one so that isRegistered
// is filled in.
func (c *Client) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	if err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), c.token(), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error) {
	var event models.Event
	if err := c.do(ctx, http.MethodPost, "/events", c.token(), req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Client) Register(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/register", c.token(), struct{}{}, nil)
}

// CreateCheckoutSession returns the hosted checkout URL for a paid event.
func (c *Client) CreateCheckoutSession(ctx context.Context, eventID string) (string, error) {
	var resp models.CheckoutResponse
	err := c.do(ctx, http.MethodPost, "/payments/create-checkout-session", c.token(),
		models.CheckoutRequest{EventID: eventID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", errors.New("checkout response carried no url")
	}
	return resp.URL, nil
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Printf("%s %s %d %v", method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError keeps only a JSON message field as the server message. Anything
// else, such as a proxy's HTML error page, is logged and left out.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var body models.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		c.logger.Printf("Non-JSON error body (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return apiErr
	}
	switch msg := body.Message.(type) {
	case string:
		apiErr.Message = msg
	case []interface{}:
		parts := make([]string, 0, len(msg))
		for _, m := range msg {
			if s, ok := m.(string); ok {
				parts = append(parts, s)
			}
		}
		apiErr.Message = strings.Join(parts, ", ")
	default:
		c.logger.Printf("Error body without message (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return apiErr
}
