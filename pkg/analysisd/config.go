package analysisd

import (
	"errors"
	"log/slog"
	"time"
)

// Config holds analysis server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// ClassifyTimeout bounds one classification.
	ClassifyTimeout time.Duration

	// ReadLimit caps the size of one inbound frame message.
	ReadLimit int64

	// CORSOrigins is passed to the CORS middleware; empty allows all.
	CORSOrigins string

	Logger *slog.Logger
}

// Option configures a Server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithClassifyTimeout bounds each classification.
func WithClassifyTimeout(d time.Duration) Option {
	return func(c *Config) { c.ClassifyTimeout = d }
}

// WithReadLimit caps inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(c *Config) { c.ReadLimit = n }
}

// WithCORSOrigins restricts cross-origin requests.
func WithCORSOrigins(origins string) Option {
	return func(c *Config) { c.CORSOrigins = origins }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8000",
		ClassifyTimeout: 5 * time.Second,
		ReadLimit:       4 << 20,
		Logger:          slog.Default(),
	}
}

// Apply applies options.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("analysisd: listen address required")
	}
	if c.ClassifyTimeout <= 0 {
		return errors.New("analysisd: classify timeout must be positive")
	}
	if c.ReadLimit <= 0 {
		return errors.New("analysisd: read limit must be positive")
	}
	return nil
}
