// Command devserver runs the reference REST and real-time backend used for
// local development, load tests and end-to-end tests.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eventsphere/internal/api"
	"eventsphere/internal/config"
	"eventsphere/internal/db"
	"eventsphere/internal/websocket"
)

func setupLogger() *log.Logger {
	return log.New(os.Stdout, "[SERVER] ", log.LstdFlags|log.Lshortfile)
}

func main() {
	isLoadTest := flag.Bool("loadtest", false, "Run server with load testing configuration")
	flag.Parse()

	logger := setupLogger()
	logger.Println("Starting server...")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Modify database path for load testing
	if *isLoadTest {
		cwd, err := os.Getwd()
		if err != nil {
			logger.Fatalf("Failed to resolve working directory: %v", err)
		}
		loadTestPath := filepath.Join(cwd, "loadtest", "loadtest.db")
		cfg.UpdateDatabasePath(loadTestPath)
		logger.Printf("Using load testing database: %s", loadTestPath)
	}

	logger.Printf("Listening on %s, public URL %s, front end %s", cfg.ServerAddress, cfg.PublicURL, cfg.FrontendURL)

	dbPath, err := cfg.CleanDatabasePath()
	if err != nil {
		logger.Fatalf("Invalid database path: %v", err)
	}
	database, err := db.NewDB(dbPath)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Println("Database connection established")

	hub := websocket.NewHub(database)
	go hub.Run()
	defer hub.Stop()
	logger.Println("WebSocket hub initialized")

	handlers := api.NewHandlers(database, hub, cfg)
	logger.Println("API handlers initialized")

	server := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           handlers.Routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("Server starting on %s", cfg.ServerAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received signal: %v", sig)

	logger.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("Shutdown error: %v", err)
	}
}
