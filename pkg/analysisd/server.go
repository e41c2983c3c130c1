// Package analysisd serves the frame analysis channel.
//
// Clients connect to /ws/analyze and send one JPEG frame per message, either
// base64 text or raw binary. Every frame is classified and answered with
// {"label": "..."} on the same socket, in order. Labels are also fanned out
// to dashboard watchers on /ws/labels.
//
// Routes:
//
//	GET /ws/analyze   frame in, label out
//	GET /ws/labels    label stream for watchers
//	GET /api/health   liveness and classifier status
//	GET /api/stats    counters
package analysisd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-jobcoach/pkg/classify"
	"github.com/teslashibe/go-jobcoach/pkg/hub"
)

// Server is the analysis server.
type Server struct {
	app        *fiber.App
	config     *Config
	logger     *slog.Logger
	classifier classify.Classifier
	labels     *hub.Hub
	started    time.Time

	active      atomic.Int64
	connections atomic.Uint64
	frames      atomic.Uint64
	failures    atomic.Uint64

	mu       sync.Mutex
	perLabel map[string]uint64
}

// Stats is the /api/stats payload.
type Stats struct {
	Classifier  string            `json:"classifier"`
	Active      int64             `json:"active_connections"`
	Connections uint64            `json:"total_connections"`
	Frames      uint64            `json:"frames"`
	Failures    uint64            `json:"failures"`
	Labels      map[string]uint64 `json:"labels"`
	Watchers    int               `json:"watchers"`
	UptimeSec   int64             `json:"uptime_sec"`
}

// New creates a server. A nil classifier is allowed: every analysis
// connection is then closed as soon as it opens.
func New(classifier classify.Classifier, opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:     cfg,
		logger:     cfg.Logger.With("component", "analysisd"),
		classifier: classifier,
		labels:     hub.New("labels", cfg.Logger),
		started:    time.Now(),
		perLabel:   make(map[string]uint64),
	}

	app := fiber.New(fiber.Config{
		AppName:               "jobcoach analysis",
		DisableStartupMessage: true,
		BodyLimit:             int(cfg.ReadLimit),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: corsOrigins(cfg.CORSOrigins)}))

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/stats", s.handleStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analyze", websocket.New(s.handleAnalyze))
	app.Get("/ws/labels", s.labels.Handler())

	s.app = app
	return s, nil
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the label broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.labels
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.labels.Run(ctx)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("analysis server listening", "addr", ln.Addr().String(), "classifier", s.classifierName())
		return s.app.Listener(ln)
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("analysis server shutting down")
		return s.app.ShutdownWithTimeout(5 * time.Second)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	labels := make(map[string]uint64, len(s.perLabel))
	for k, v := range s.perLabel {
		labels[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Classifier:  s.classifierName(),
		Active:      s.active.Load(),
		Connections: s.connections.Load(),
		Frames:      s.frames.Load(),
		Failures:    s.failures.Load(),
		Labels:      labels,
		Watchers:    s.labels.WatcherCount(),
		UptimeSec:   int64(time.Since(s.started).Seconds()),
	}
}

func (s *Server) classifierName() string {
	if s.classifier == nil {
		return ""
	}
	return s.classifier.Name()
}

func (s *Server) countLabel(label string) {
	s.mu.Lock()
	s.perLabel[label]++
	s.mu.Unlock()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	status := "ok"
	if s.classifier == nil {
		status = "no_model"
	}
	return c.JSON(fiber.Map{
		"status":     status,
		"classifier": s.classifierName(),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.Stats())
}

func corsOrigins(origins string) string {
	if origins == "" {
		return "*"
	}
	return origins
}
