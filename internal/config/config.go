package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendFirebase = "firebase"
	BackendPostgres = "postgres"
)

// Config holds the API settings. Values are read from the environment,
// optionally seeded from a .env file.
type Config struct {
	Port string `envconfig:"PORT" default:"3333"`

	// Data service backend: memory, firebase or postgres
	DataBackend string `envconfig:"DATA_BACKEND" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Firebase
	FirebaseDatabaseURL        string        `envconfig:"FIREBASE_DATABASE_URL"`
	FirebaseStorageBucket      string        `envconfig:"FIREBASE_STORAGE_BUCKET"`
	FirebaseCredentialsFile    string        `envconfig:"FIREBASE_CREDENTIALS_FILE" default:"./serviceAccountKey.json"`
	FirebaseServiceAccountJSON string        `envconfig:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	FirebasePollInterval       time.Duration `envconfig:"FIREBASE_POLL_INTERVAL" default:"2s"`

	ClerkSecretKey string `envconfig:"CLERK_SECRET_KEY"`

	MetricsUser string `envconfig:"METRICS_USER"`
	MetricsPass string `envconfig:"METRICS_PASS"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"30"`

	PopularRefreshCron string `envconfig:"POPULAR_REFRESH_CRON" default:"@every 5m"`
	Timezone           string `envconfig:"TIMEZONE" default:"Local"`

	location *time.Location
}

// ResolveDefaults validates the backend choice and the settings it needs,
// and loads the timezone.
func (c *Config) ResolveDefaults() error {
	switch c.DataBackend {
	case "":
		c.DataBackend = BackendMemory
	case BackendMemory, BackendFirebase, BackendPostgres:
	default:
		return fmt.Errorf("unsupported DATA_BACKEND: %s", c.DataBackend)
	}

	if c.DataBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.DataBackend == BackendFirebase && c.FirebaseDatabaseURL == "" {
		return fmt.Errorf("FIREBASE_DATABASE_URL is required for the firebase backend")
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive, got %d", c.RateLimitBurst)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location is the timezone "today" is computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// UsesFirebase reports whether any Firebase product is configured.
func (c *Config) UsesFirebase() bool {
	return c.DataBackend == BackendFirebase || c.FirebaseStorageBucket != ""
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return New()
}

// New parses the environment without touching .env.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Printf("Config loaded: backend=%s port=%s timezone=%s storage_bucket_set=%t",
		cfg.DataBackend, cfg.Port, cfg.Location(), cfg.FirebaseStorageBucket != "")
	return &cfg, nil
}
