package session

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-jobcoach/pkg/analysis"
	"github.com/teslashibe/go-jobcoach/pkg/capture"
	"github.com/teslashibe/go-jobcoach/pkg/sampling"
)

// Config holds session configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Endpoint is the analysis channel URL.
	Endpoint string

	// Interval between ticks while active.
	Interval time.Duration

	// JPEGQuality of encoded frames (1-100).
	JPEGQuality int

	// OnResult is called from the session loop for every applied result.
	OnResult func(analysis.Result)

	// OnStateChange is called from the session loop on every transition.
	OnStateChange func(from, to State)

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring a session.
type Option func(*Config)

// WithEndpoint sets the analysis channel URL.
func WithEndpoint(url string) Option {
	return func(c *Config) {
		c.Endpoint = url
	}
}

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithJPEGQuality sets the frame encoding quality.
func WithJPEGQuality(q int) Option {
	return func(c *Config) {
		c.JPEGQuality = q
	}
}

// WithOnResult registers a result observer. It must not call Start, Stop or Close.
func WithOnResult(fn func(analysis.Result)) Option {
	return func(c *Config) {
		c.OnResult = fn
	}
}

// WithOnStateChange registers a transition observer. It must not call Start, Stop or Close.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:    sampling.DefaultInterval,
		JPEGQuality: capture.DefaultJPEGQuality,
		Logger:      slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("session: endpoint required")
	}
	if c.Interval <= 0 {
		return errors.New("session: interval must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("session: jpeg quality must be between 1 and 100")
	}
	return nil
}
