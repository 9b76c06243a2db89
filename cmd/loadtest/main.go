// Command loadtest drives many simulated attendees against a running
// devserver: each signs up, registers for a shared event, joins its chat room
// and sends messages while REST reads run alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"eventsphere/internal/chat"
	"eventsphere/internal/client"
	"eventsphere/internal/models"
	"eventsphere/internal/realtime"
	"eventsphere/internal/session"
)

type OperationType int

const (
	WriteOperation OperationType = iota
	ReadOperation
	EchoOperation
)

type Stats struct {
	sync.Mutex
	totalRequests     int64
	successRequests   int64
	failedRequests    int64
	totalLatency      time.Duration
	maxLatency        time.Duration
	minLatency        time.Duration
	requestsPerSecond float64
	writeLatencies    []time.Duration
	readLatencies     []time.Duration
	echoLatencies     []time.Duration
}

func (s *Stats) recordSuccess(latency time.Duration, opType OperationType) {
	s.Lock()
	defer s.Unlock()
	if opType == EchoOperation {
		s.echoLatencies = append(s.echoLatencies, latency)
		return
	}
	s.totalRequests++
	s.successRequests++
	s.totalLatency += latency
	if latency > s.maxLatency {
		s.maxLatency = latency
	}
	if s.minLatency == 0 || latency < s.minLatency {
		s.minLatency = latency
	}

	switch opType {
	case WriteOperation:
		s.writeLatencies = append(s.writeLatencies, latency)
	case ReadOperation:
		s.readLatencies = append(s.readLatencies, latency)
	}
}

func (s *Stats) recordError() {
	s.Lock()
	defer s.Unlock()
	s.totalRequests++
	s.failedRequests++
}

func (s *Stats) calculateStats(duration time.Duration) {
	s.Lock()
	defer s.Unlock()
	s.requestsPerSecond = float64(s.totalRequests) / duration.Seconds()
}

func p99(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *Stats) p99Of(op OperationType) time.Duration {
	s.Lock()
	defer s.Unlock()
	switch op {
	case WriteOperation:
		return p99(s.writeLatencies)
	case ReadOperation:
		return p99(s.readLatencies)
	}
	return p99(s.echoLatencies)
}

// echoView measures the time from send to the server's echo of our own
// messages. Message text carries the send time.
type echoView struct {
	stats *Stats
	seen  int
}

func (v *echoView) Render(messages []models.Message, selfID string) {
	for _, msg := range messages[v.seen:] {
		if msg.UserID != selfID {
			continue
		}
		fields := strings.Fields(msg.Message)
		if len(fields) == 0 {
			continue
		}
		sent, err := strconv.ParseInt(fields[len(fields)-1], 10, 64)
		if err != nil {
			continue
		}
		v.stats.recordSuccess(time.Since(time.Unix(0, sent)), EchoOperation)
	}
	v.seen = len(messages)
}

type attendee struct {
	id      int
	store   *session.Store
	api     *client.Client
	manager *realtime.Manager
	room    *chat.Room
}

type options struct {
	baseURL  string
	users    int
	batch    int
	rate     int
	duration time.Duration
}

var quiet = log.New(io.Discard, "", 0)

func signUp(ctx context.Context, opts options, id int, runID string) (*attendee, error) {
	store := session.NewStore()
	api, err := client.New(opts.baseURL, store, client.WithTimeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	req := models.SignUpRequest{
		Email:    fmt.Sprintf("loadtest_%s_%d@example.com", runID, id),
		Password: "testpass123",
	}
	if err := api.SignUp(ctx, req); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	token, err := api.SignIn(ctx, models.SignInRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	user, err := api.Me(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	store.SetToken(token)
	store.SetUser(user)
	return &attendee{id: id, store: store, api: api}, nil
}

func (a *attendee) join(ctx context.Context, dialer realtime.Dialer, eventID string, stats *Stats) error {
	if err := a.api.Register(ctx, eventID); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	a.manager = realtime.NewManager(dialer, realtime.WithLogger(quiet))
	a.manager.Attach(a.store)
	a.room = chat.Open(eventID, a.store.Snapshot().UserID(), a.manager, true, &echoView{stats: stats})
	return nil
}

func (a *attendee) close() {
	if a.room != nil {
		a.room.Close()
	}
	if a.manager != nil {
		a.manager.Close()
	}
}

func simulate(ctx context.Context, a *attendee, eventID string, opts options, wg *sync.WaitGroup, stats *Stats) {
	defer wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(opts.rate))
	defer ticker.Stop()

	endTime := time.Now().Add(opts.duration)
	for time.Now().Before(endTime) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Randomly choose between read and write operations
		if rand.Float32() < 0.5 {
			start := time.Now()
			text := fmt.Sprintf("Test message from user %d %d", a.id, start.UnixNano())
			if a.room.Send(text) {
				stats.recordSuccess(time.Since(start), WriteOperation)
			} else {
				stats.recordError()
			}
			continue
		}

		start := time.Now()
		if _, err := a.api.GetEvent(ctx, eventID); err != nil {
			stats.recordError()
			log.Printf("Error reading event: %v", err)
			continue
		}
		stats.recordSuccess(time.Since(start), ReadOperation)
	}
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:3000", "devserver base URL")
	flag.IntVar(&opts.users, "users", 200, "number of simulated attendees")
	flag.IntVar(&opts.batch, "batch", 20, "attendees signed up in parallel")
	flag.IntVar(&opts.rate, "rate", 1, "operations per second per attendee")
	flag.DurationVar(&opts.duration, "duration", 60*time.Second, "simulation time")
	flag.Parse()

	log.Printf("Starting load test with %d users, %d operations per second per user, for %v",
		opts.users, opts.rate, opts.duration)
	log.Printf("IMPORTANT: start the server with the -loadtest flag:")
	log.Printf("  go run ./cmd/devserver -loadtest")

	ctx := context.Background()
	runID := strconv.FormatInt(time.Now().Unix(), 36)

	host, err := signUp(ctx, opts, -1, runID)
	if err != nil {
		log.Fatalf("Failed to register host: %v", err)
	}
	event, err := host.api.CreateEvent(ctx, models.CreateEventRequest{
		Title:       "Load test " + runID,
		Description: "Synthetic event for the load test",
		Location:    "Nowhere",
		Date:        time.Now().Add(24 * time.Hour).UTC(),
		Capacity:    opts.users + 1,
	})
	if err != nil {
		log.Fatalf("Failed to create event: %v", err)
	}
	log.Printf("Host created event %s", event.ID)

	dialer, err := realtime.NewWSDialer(opts.baseURL)
	if err != nil {
		log.Fatalf("Invalid base URL: %v", err)
	}

	stats := &Stats{}
	attendees := make([]*attendee, opts.users)
	errChan := make(chan error, opts.users)
	startTime := time.Now()

	log.Printf("Creating %d users in parallel batches of %d...", opts.users, opts.batch)
	for i := 0; i < opts.users; i += opts.batch {
		end := i + opts.batch
		if end > opts.users {
			end = opts.users
		}
		var wg sync.WaitGroup
		for j := i; j < end; j++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				a, err := signUp(ctx, opts, id, runID)
				if err == nil {
					err = a.join(ctx, dialer, event.ID, stats)
				}
				if err != nil {
					errChan <- fmt.Errorf("user %d: %w", id, err)
					return
				}
				attendees[id] = a
			}(j)
		}
		wg.Wait()
	}
	close(errChan)

	errorCount := 0
	for err := range errChan {
		errorCount++
		if errorCount <= 10 {
			log.Printf("Error: %v", err)
		}
	}

	setupDuration := time.Since(startTime)
	log.Printf("User setup completed in %v (%.2f users/sec)",
		setupDuration, float64(opts.users)/setupDuration.Seconds())

	successful := 0
	for _, a := range attendees {
		if a != nil {
			successful++
			defer a.close()
		}
	}
	log.Printf("Successfully set up %d/%d users", successful, opts.users)
	if successful < opts.users/2 {
		log.Fatalf("Too many setup failures, aborting load test")
	}

	var loadTestWg sync.WaitGroup
	start := time.Now()
	for _, a := range attendees {
		if a != nil {
			loadTestWg.Add(1)
			go simulate(ctx, a, event.ID, opts, &loadTestWg, stats)
		}
	}
	loadTestWg.Wait()
	duration := time.Since(start)

	// Let the last echoes arrive.
	time.Sleep(time.Second)
	stats.calculateStats(duration)

	stats.Lock()
	avg := time.Duration(0)
	if stats.successRequests > 0 {
		avg = stats.totalLatency / time.Duration(stats.successRequests)
	}
	log.Printf("Load Test Results:")
	log.Printf("Total Requests: %d", stats.totalRequests)
	log.Printf("Successful Requests: %d", stats.successRequests)
	log.Printf("Failed Requests: %d", stats.failedRequests)
	log.Printf("Average Latency: %v", avg)
	log.Printf("Min Latency: %v", stats.minLatency)
	log.Printf("Max Latency: %v", stats.maxLatency)
	log.Printf("Echoes received: %d", len(stats.echoLatencies))
	stats.Unlock()

	log.Printf("P99 Send Latency: %v", stats.p99Of(WriteOperation))
	log.Printf("P99 Read Latency: %v", stats.p99Of(ReadOperation))
	log.Printf("P99 Echo Latency: %v", stats.p99Of(EchoOperation))
	log.Printf("Requests per Second: %.2f", stats.requestsPerSecond)
	log.Printf("Total Duration: %v", duration)
}
