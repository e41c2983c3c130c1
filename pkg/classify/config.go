package classify

import (
	"log/slog"
	"time"
)

// Config holds classifier configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Labels, in model output order
	Classes []string

	// Vision API
	APIKey  string
	BaseURL string
	Model   string
	Prompt  string

	// Local model
	ModelPath string
	InputSize int

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring classifiers.
type Option func(*Config)

// WithClasses sets the label set.
func WithClasses(classes ...string) Option {
	return func(c *Config) {
		c.Classes = classes
	}
}

// WithAPIKey sets the vision API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL overrides the vision API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the vision model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithPrompt overrides the vision instruction.
func WithPrompt(prompt string) Option {
	return func(c *Config) {
		c.Prompt = prompt
	}
}

// WithModelPath sets the local model file.
func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
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
		Classes:    append([]string(nil), DefaultClasses...),
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		ModelPath:  "models/model_unquant.tflite",
		InputSize:  224,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		RetryDelay: 200 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
