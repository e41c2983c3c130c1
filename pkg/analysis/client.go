package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSDialer opens analysis channels over websocket.
type WSDialer struct {
	config *Config
	logger *slog.Logger
}

// NewDialer creates a websocket dialer. Invalid options fall back to defaults.
func NewDialer(opts ...Option) *WSDialer {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		def := DefaultConfig()
		def.Logger = cfg.Logger
		def.Header = cfg.Header
		cfg.Logger.Warn("invalid analysis config, using defaults", "error", err)
		cfg = def
	}

	return &WSDialer{
		config: cfg,
		logger: cfg.Logger.With("component", "analysis.ws"),
	}
}

type connState int

const (
	stateDialing connState = iota
	stateOpen
	stateClosed
)

// wsConn is one websocket analysis channel.
type wsConn struct {
	id       string
	endpoint string
	config   *Config
	logger   *slog.Logger
	ev       Events

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state connState
	conn  *websocket.Conn

	// writeMu serialises data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	// deliverMu is held while a callback runs. Close acquires it after
	// cancelling so that no result is delivered once Close returns.
	deliverMu sync.Mutex

	finishOnce sync.Once
	seq        uint64
}

// Open starts dialing endpoint in the background.
func (d *WSDialer) Open(ctx context.Context, endpoint string, ev Events) Conn {
	cctx, cancel := context.WithCancel(ctx)
	c := &wsConn{
		id:       uuid.NewString(),
		endpoint: endpoint,
		config:   d.config,
		ev:       ev,
		ctx:      cctx,
		cancel:   cancel,
	}
	c.logger = d.logger.With("conn_id", c.id)

	go c.run()
	return c
}

func (c *wsConn) run() {
	if c.endpoint == "" {
		c.fail(ErrNoEndpoint)
		return
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	ws, resp, err := dialer.DialContext(c.ctx, c.endpoint, c.config.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("status %d: %w", resp.StatusCode, err)
		}
		c.fail(err)
		return
	}

	c.mu.Lock()
	if c.state == stateClosed {
		// Close won the race with the handshake
		c.mu.Unlock()
		_ = ws.Close()
		c.fail(context.Canceled)
		return
	}
	c.state = stateOpen
	c.conn = ws
	c.mu.Unlock()

	c.logger.Info("analysis channel opened", "endpoint", c.endpoint)
	c.deliver(func() {
		if c.ev.OnOpened != nil {
			c.ev.OnOpened()
		}
	})

	if c.config.KeepaliveInterval > 0 {
		go c.keepaliveLoop(ws)
	}
	c.readLoop(ws)
}

func (c *wsConn) fail(cause error) {
	err := wrapOpenFailed(cause)
	c.logger.Warn("analysis channel open failed", "endpoint", c.endpoint, "error", cause)

	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.cancel()

	c.deliver(func() {
		if c.ev.OnFailed != nil {
			c.ev.OnFailed(err)
		}
	})
}

// readLoop delivers results until the connection ends.
func (c *wsConn) readLoop(ws *websocket.Conn) {
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			c.finish(ws, err)
			return
		}

		r, err := ParseResult(message)
		if err != nil {
			c.logger.Debug("dropping inbound message", "error", err, "bytes", len(message))
			continue
		}
		r.ReceivedAt = time.Now()

		c.deliver(func() {
			// Close may have returned while this result was being read
			if c.ctx.Err() != nil {
				return
			}
			c.seq++
			r.Seq = c.seq
			if c.ev.OnResult != nil {
				c.ev.OnResult(r)
			}
		})
	}
}

// finish delivers the terminal Closed event exactly once.
func (c *wsConn) finish(ws *websocket.Conn, readErr error) {
	c.finishOnce.Do(func() {
		closedByUs := c.ctx.Err() != nil

		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		c.cancel()
		_ = ws.Close()

		var err error
		if !closedByUs && !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			err = readErr
		}

		if err != nil {
			c.logger.Warn("analysis channel closed", "error", err)
		} else {
			c.logger.Info("analysis channel closed")
		}

		c.deliver(func() {
			if c.ev.OnClosed != nil {
				c.ev.OnClosed(err)
			}
		})
	})
}

func (c *wsConn) deliver(fn func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	fn()
}

func (c *wsConn) keepaliveLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// Send writes one frame using the configured framing.
func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	state, ws := c.state, c.conn
	c.mu.Unlock()

	if state != stateOpen || ws == nil {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	var err error
	switch c.config.Payload {
	case PayloadBinary:
		err = ws.WriteMessage(websocket.BinaryMessage, payload)
	default:
		err = ws.WriteMessage(websocket.TextMessage, []byte(base64.StdEncoding.EncodeToString(payload)))
	}
	if err != nil {
		if c.ctx.Err() != nil || errors.Is(err, websocket.ErrCloseSent) {
			return ErrNotOpen
		}
		return fmt.Errorf("analysis: send: %w", err)
	}
	return nil
}

// Close requests termination and waits for any in-flight callback to return.
func (c *wsConn) Close() {
	c.mu.Lock()
	prev := c.state
	ws := c.conn
	c.state = stateClosed
	c.mu.Unlock()

	c.cancel()

	if prev == stateOpen && ws != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = ws.Close()
	}

	// Barrier: a result callback already running finishes before we return,
	// later ones observe the cancelled context.
	c.deliverMu.Lock()
	c.deliverMu.Unlock() //nolint:staticcheck
}

var (
	_ Dialer = (*WSDialer)(nil)
	_ Conn   = (*wsConn)(nil)
)
