package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the reference backend configuration.
type Config struct {
	ServerAddress string        `env:"SERVER_ADDRESS" envDefault:":3000"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	// PublicURL is where the backend is reachable; checkout URLs point here.
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:3000"`
	// FrontendURL receives the payment success/cancel redirects.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3001"`
}

// ClientConfig configures the terminal front end.
type ClientConfig struct {
	APIBaseURL        string        `env:"EVENTSPHERE_API_BASE_URL" envDefault:"http://localhost:3000"`
	RequestTimeout    time.Duration `env:"EVENTSPHERE_REQUEST_TIMEOUT" envDefault:"10s"`
	ReconnectAttempts uint          `env:"EVENTSPHERE_RECONNECT_ATTEMPTS" envDefault:"0"`
	FrontendURL       string        `env:"EVENTSPHERE_FRONTEND_URL" envDefault:"http://localhost:3001"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		// Default SQLite database path
		cfg.DatabaseURL = "sqlite://" + filepath.Join(cwd, "data", "eventsphere.db")
	}

	return cfg, nil
}

func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("EVENTSPHERE_API_BASE_URL must not be empty")
	}
	return cfg, nil
}

// CleanDatabasePath returns a clean filesystem path from a database URL
func (c *Config) CleanDatabasePath() (string, error) {
	dbPath := strings.TrimPrefix(c.DatabaseURL, "sqlite://")
	if dbPath == ":memory:" || filepath.IsAbs(dbPath) {
		return dbPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return filepath.Join(cwd, dbPath), nil
}

// UpdateDatabasePath updates the database path, maintaining the sqlite:// prefix if it was present
func (c *Config) UpdateDatabasePath(newPath string) {
	if strings.HasPrefix(c.DatabaseURL, "sqlite://") {
		c.DatabaseURL = "sqlite://" + newPath
	} else {
		c.DatabaseURL = newPath
	}
}
