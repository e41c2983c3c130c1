package jobs

import (
	"log/slog"
	"time"
)

// Routes are the backend paths, relative to the base URL.
type Routes struct {
	Summarize string
	Upload    string
	Recommend string
	Questions string
	// Speech is a format string taking the question index.
	Speech string
}

// DefaultRoutes matches the mounted routers of the recommendation backend.
func DefaultRoutes() Routes {
	return Routes{
		Summarize: "/resume/summarize",
		Upload:    "/resume/upload",
		Recommend: "/rag/recommend",
		Questions: "/tts/generate_questions_for_job",
		Speech:    "/tts/%d",
	}
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Routes  Routes

	// Timeout is the per-request timeout. Recommendation and summaries run an
	// LLM on the backend, so it is generous.
	Timeout time.Duration

	MaxRetries int
	RetryDelay time.Duration

	// Concurrency bounds parallel requests in SpeakAll.
	Concurrency int

	Logger *slog.Logger
}

// Option configures a Client.
type Option func(*Config)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithRoutes overrides the backend paths.
func WithRoutes(r Routes) Option {
	return func(c *Config) { c.Routes = r }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry configures retries for 429, 5xx and transport errors.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithConcurrency bounds parallel speech requests.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "http://localhost:8000",
		Routes:      DefaultRoutes(),
		Timeout:     120 * time.Second,
		MaxRetries:  2,
		RetryDelay:  500 * time.Millisecond,
		Concurrency: 3,
		Logger:      slog.Default(),
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
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
}
