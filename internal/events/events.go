// Package events is an optional broadcast channel a Store uses to
// announce flush and compaction completions to an out-of-process
// watcher, over a nanomsg PUB socket.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// register all transports so Address accepts tcp://, ipc://, etc.
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// Type identifies the kind of event broadcast.
type Type string

const (
	TypeFlush      Type = "flush"
	TypeCompaction Type = "compaction"
)

// Event is the JSON payload published on every flush or compaction.
type Event struct {
	Type    Type      `json:"type"`
	SSTable string    `json:"sstable"`
	Level   uint16    `json:"level"`
	At      time.Time `json:"at"`
}

// Bus wraps a PUB socket. A nil *Bus is valid and Publish becomes a
// no-op, so callers can leave events disabled without branching.
type Bus struct {
	sock mangos.Socket
}

// Listen opens a PUB socket bound to addr (e.g. "tcp://127.0.0.1:5500").
func Listen(addr string) (*Bus, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("events: new pub socket: %w", err)
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("events: listen %s: %w", addr, err)
	}
	return &Bus{sock: sock}, nil
}

// Publish encodes ev as JSON and sends it. A nil bus is a no-op, and
// a send failure is returned to the caller to log — it never blocks
// or retries, since no subscriber is required to be connected.
func (b *Bus) Publish(ev Event) error {
	if b == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	if err := b.sock.Send(payload); err != nil {
		return fmt.Errorf("events: send: %w", err)
	}
	return nil
}

// Close releases the underlying socket. A nil bus is a no-op.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	return b.sock.Close()
}
