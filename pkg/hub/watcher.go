package hub

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Watchers only send control frames
	maxMessageSize = 4 * 1024

	sendQueue = 64
)

// Watcher is one websocket subscriber.
type Watcher struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Handler returns a fiber handler that upgrades the request and streams
// events until the watcher leaves or the hub stops.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(h.Serve)
}

// Serve runs a watcher on an upgraded connection. It blocks until the
// connection closes.
func (h *Hub) Serve(conn *websocket.Conn) {
	w := &Watcher{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueue),
	}
	if !h.join(w) {
		_ = conn.Close()
		return
	}

	go w.writePump()
	w.readPump()
}

// readPump only detects disconnects and pongs.
func (w *Watcher) readPump() {
	defer func() {
		w.hub.leave(w)
		_ = w.conn.Close()
	}()

	w.conn.SetReadLimit(maxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (w *Watcher) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case data, ok := <-w.send:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = w.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
