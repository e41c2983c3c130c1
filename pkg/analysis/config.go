package analysis

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// PayloadFormat selects how frames are framed on the wire.
type PayloadFormat string

const (
	// PayloadBase64 sends each frame as a text message of base64 JPEG.
	PayloadBase64 PayloadFormat = "base64"
	// PayloadBinary sends each frame as a binary message of raw JPEG bytes.
	PayloadBinary PayloadFormat = "binary"
)

// Config holds channel configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Wire framing of outbound frames
	Payload PayloadFormat

	// Timeouts
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// KeepaliveInterval is the ping period. Zero disables pings.
	KeepaliveInterval time.Duration

	// Header is sent with the websocket handshake.
	Header http.Header

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the dialer.
type Option func(*Config)

// WithPayload sets the outbound framing.
func WithPayload(format PayloadFormat) Option {
	return func(c *Config) {
		c.Payload = format
	}
}

// WithHandshakeTimeout bounds how long opening may take.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithWriteTimeout bounds a single Send.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithKeepalive sets the ping interval.
func WithKeepalive(d time.Duration) Option {
	return func(c *Config) {
		c.KeepaliveInterval = d
	}
}

// WithHeader adds a handshake header.
func WithHeader(key, value string) Option {
	return func(c *Config) {
		if c.Header == nil {
			c.Header = http.Header{}
		}
		c.Header.Add(key, value)
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
		Payload:           PayloadBase64,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      5 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		Logger:            slog.Default(),
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
	switch c.Payload {
	case PayloadBase64, PayloadBinary:
	default:
		return fmt.Errorf("analysis: unknown payload format %q", c.Payload)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("analysis: handshake timeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.KeepaliveInterval < 0 {
		return fmt.Errorf("analysis: keepalive interval must not be negative, got %v", c.KeepaliveInterval)
	}
	return nil
}
