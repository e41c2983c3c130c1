package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Hub maintains the set of watchers and broadcasts events to them.
type Hub struct {
	name   string
	logger *slog.Logger

	// watchers is owned by Run; mu guards reads from other goroutines.
	mu       sync.RWMutex
	watchers map[*Watcher]struct{}

	broadcast  chan []byte
	register   chan *Watcher
	unregister chan *Watcher
	done       chan struct{}

	running atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a hub. Call Run to start it.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		logger:     logger.With("component", "hub", "hub", name),
		watchers:   make(map[*Watcher]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Watcher),
		unregister: make(chan *Watcher),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done. On exit
// every watcher's queue is closed, which sends a close frame.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.mu.Lock()
		for w := range h.watchers {
			delete(h.watchers, w)
			close(w.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case w := <-h.register:
			h.mu.Lock()
			h.watchers[w] = struct{}{}
			count := len(h.watchers)
			h.mu.Unlock()
			h.logger.Info("watcher connected", "watcher_id", w.id, "watchers", count)

		case w := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.watchers[w]; ok {
				delete(h.watchers, w)
				close(w.send)
			}
			count := len(h.watchers)
			h.mu.Unlock()
			h.logger.Info("watcher disconnected", "watcher_id", w.id, "watchers", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for w := range h.watchers {
				select {
				case w.send <- data:
				default:
					// Queue full: this watcher misses the event
					h.dropped.Add(1)
					h.logger.Debug("watcher queue full, dropping event", "watcher_id", w.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish queues an event for every watcher. It never blocks; when the
// broadcast queue is full the event is dropped.
func (h *Hub) Publish(ev Event) error {
	data, err := ev.Bytes()
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- data:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping event", "type", ev.Type)
	}
	return nil
}

// WatcherCount returns the number of connected watchers.
func (h *Hub) WatcherCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.watchers)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Published returns how many events were queued for broadcast.
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Dropped returns how many deliveries were dropped, either because the
// broadcast queue was full or because a watcher's own queue was.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) join(w *Watcher) bool {
	select {
	case h.register <- w:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(w *Watcher) {
	select {
	case h.unregister <- w:
	case <-h.done:
	}
}
