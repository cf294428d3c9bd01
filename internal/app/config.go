package app

import (
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration, loadable from
// environment variables (BFF_ prefix), flags, a .env file, or YAML files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL URL of the shipment ledger; empty disables the ledger (BFF_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Upstream    UpstreamConfig
	Bundle      BundleConfig
	Events      EventsConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// UpstreamConfig points at the marketplace API.
type UpstreamConfig struct {
	BaseURL    string        `env:"BASE_URL" flag:"upstream-url" usage:"Marketplace API base URL (required)"`
	Timeout    time.Duration `default:"10s" usage:"Timeout of a single upstream call"`
	HealthPath string        `default:"/health" usage:"Upstream path probed by the readiness check"`
}

// BundleConfig bounds bundle requests.
type BundleConfig struct {
	MaxOrders        int  `default:"50" usage:"Maximum orders per bundle"`
	Concurrency      int  `default:"8" usage:"Parallel upstream calls per fetch or update fan-out"`
	RejectDuplicates bool `default:"true" usage:"Refuse a second label for an already labelled bundle (needs the ledger)"`
	GuardCapacity    uint `default:"100000" usage:"Expected number of bundle ids in the duplicate filter"`
}

// EventsConfig enables outcome events on Kafka.
type EventsConfig struct {
	Brokers []string `usage:"Kafka brokers; empty disables events"`
	Topic   string   `default:"bundle.labels" usage:"Kafka topic of outcome events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads .env, then environment variables, flags and YAML files,
// and applies platform defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "BFF",
		Files:     []string{"config.yaml", "/etc/bff/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the standard DATABASE_URL and PORT variables
// set by hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	brokers := c.Events.Brokers[:0]
	for _, b := range c.Events.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Events.Brokers = brokers
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream URL is required: set BFF_UPSTREAM_BASE_URL")
	}
	if c.Bundle.MaxOrders < 1 {
		return errors.Errorf("bundle max orders must be positive, got %d", c.Bundle.MaxOrders)
	}
	if c.Bundle.Concurrency < 1 {
		return errors.Errorf("bundle concurrency must be positive, got %d", c.Bundle.Concurrency)
	}
	return nil
}
