package esq

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds the environment driven settings of a backend and a query provider.
type Config struct {
	// Elasticsearch connection
	Addresses  []string `env:"ESQ_ADDRESSES" envSeparator:"," envDefault:"http://localhost:9200"`
	Username   string   `env:"ESQ_USERNAME"`
	Password   string   `env:"ESQ_PASSWORD"`
	CACertPath string   `env:"ESQ_CA_CERT"`
	Sniff      bool     `env:"ESQ_SNIFF" envDefault:"false"`

	// Scan paging
	ScrollSize      int           `env:"ESQ_SCROLL_SIZE" envDefault:"1000"`
	ScrollKeepAlive time.Duration `env:"ESQ_SCROLL_KEEPALIVE" envDefault:"30s"`

	// Compilation
	TermsSize    int    `env:"ESQ_TERMS_SIZE" envDefault:"65536"`
	KeySeparator string `env:"ESQ_KEY_SEPARATOR" envDefault:"-"`
	EpochMillis  bool   `env:"ESQ_EPOCH_MILLIS" envDefault:"false"`

	LogLevel string `env:"ESQ_LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env.Parse cannot.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return fmt.Errorf("ESQ_ADDRESSES must name at least one node")
	}
	if c.ScrollSize <= 0 {
		return fmt.Errorf("ESQ_SCROLL_SIZE must be positive, got %d", c.ScrollSize)
	}
	if c.TermsSize <= 0 {
		return fmt.Errorf("ESQ_TERMS_SIZE must be positive, got %d", c.TermsSize)
	}
	if c.KeySeparator == "" {
		return fmt.Errorf("ESQ_KEY_SEPARATOR must not be empty")
	}
	return nil
}

// BackendOptions converts the connection settings into ElasticBackend options.
func (c *Config) BackendOptions() ([]ElasticBackendOption, error) {
	var opts []ElasticBackendOption
	if c.Username != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	if c.CACertPath != "" {
		cert, err := os.ReadFile(c.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		opts = append(opts, WithCACert(cert))
	}
	if c.Sniff {
		opts = append(opts, WithSniff(true))
	}
	return opts, nil
}
