package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for our application
type Config struct {
	Port        string `env:"PORT" envDefault:"3001"`
	Origin      string `env:"ORIGIN" envDefault:"http://localhost:4200"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogFilePath string `env:"LOG_FILE_PATH" envDefault:"psyconsult-chat.log"`

	// Remote REST backend, e.g. http://localhost:3000/api
	APIBaseURL  string        `env:"API_BASE_URL" envDefault:"http://localhost:3000/api"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"0s"`

	// Verifies backend-issued tokens when set; otherwise claims are read
	// without verification and the backend stays the authority.
	JWTSecret string `env:"JWT_SECRET"`

	SessionStore string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	Database     DatabaseConfig

	ContactsCacheTTL time.Duration `env:"CONTACTS_CACHE_TTL" envDefault:"2m"`
	WorkspaceTTL     time.Duration `env:"WORKSPACE_TTL" envDefault:"30m"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	Username string `env:"DB_USERNAME" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"psyconsult_chat"`
	DSN      string `env:"DB_DSN"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Build DSN (Data Source Name) for MySQL connection
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	}

	switch cfg.SessionStore {
	case "memory", "mysql":
	default:
		return nil, fmt.Errorf("invalid SESSION_STORE %q: want memory or mysql", cfg.SessionStore)
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL must not be empty")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// OriginPatterns is the host of ORIGIN, for websocket origin checks.
func (c *Config) OriginPatterns() []string {
	u, err := url.Parse(c.Origin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// AssetOrigin is the API base URL without its trailing /api segment. Relative
// attachment paths returned by the backend are served from here.
func (c *Config) AssetOrigin() string {
	return AssetOrigin(c.APIBaseURL)
}

// AssetOrigin strips a trailing /api segment from a base URL.
func AssetOrigin(apiBaseURL string) string {
	base := strings.TrimRight(apiBaseURL, "/")
	return strings.TrimSuffix(base, "/api")
}
