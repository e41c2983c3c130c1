// Package hub fans analysis labels out to websocket watchers.
//
// A Hub owns the watcher set on a single goroutine; watchers are added and
// removed through channels and every broadcast is queued per watcher, so a
// slow dashboard never blocks the analysis path.
package hub

import (
	"encoding/json"
	"time"
)

// EventType names the kind of event sent to watchers.
type EventType string

const (
	// EventLabel is sent for every label produced by the analysis server.
	EventLabel EventType = "label"

	// EventConnection is sent when an analysis connection opens or closes.
	EventConnection EventType = "connection"
)

// Event is one message delivered to watchers as a JSON text frame.
type Event struct {
	Type   EventType `json:"type"`
	ConnID string    `json:"conn_id"`
	Label  string    `json:"label,omitempty"`
	Seq    uint64    `json:"seq,omitempty"`
	Open   *bool     `json:"open,omitempty"`
	Time   time.Time `json:"time"`
}

// NewLabelEvent builds a label event stamped with the current time.
func NewLabelEvent(connID, label string, seq uint64) Event {
	return Event{Type: EventLabel, ConnID: connID, Label: label, Seq: seq, Time: time.Now()}
}

// NewConnectionEvent builds a connection open/close event.
func NewConnectionEvent(connID string, open bool) Event {
	return Event{Type: EventConnection, ConnID: connID, Open: &open, Time: time.Now()}
}

// Bytes encodes the event.
func (e Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}
