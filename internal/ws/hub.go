// Package ws fans dashboard events out to connected WebSocket clients.
//
// The hub subscribes to the event bus and re-encodes each event into the
// frame shape the dashboard expects. Clients are write-only; inbound
// frames are read and discarded so close handshakes still complete.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

const (
	writeTimeout = 10 * time.Second
	// Subscriber buffer. Progress events during a large batch arrive in
	// bursts, so this is sized well above the per-batch event count.
	busBuffer = 1024

	maxInboundBytes = 4 * 1024
)

// client serializes writes to one connection. gorilla conns allow a
// single writer at a time.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
}

type Hub struct {
	bus      eventbus.Bus
	log      logx.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*client]struct{}
}

// NewHub builds a hub that accepts connections from the given origins.
// A "*" entry disables the origin check.
func NewHub(bus eventbus.Bus, log logx.Logger, origins []string) *Hub {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = struct{}{}
	}
	h := &Hub{
		bus:   bus,
		log:   log.With(logx.String("svc", "ws")),
		conns: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// Run pumps bus events to all connected clients until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	ch, unsub := h.bus.Subscribe(busBuffer)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				h.closeAll()
				return nil
			}
			payload, ok := encodeFrame(ev)
			if !ok {
				continue
			}
			h.broadcast(payload)
		}
	}
}

// Upgrade promotes an HTTP request to a WebSocket connection and
// registers it with the hub. Blocks until the peer disconnects.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", logx.Err(err))
		return
	}
	conn.SetReadLimit(maxInboundBytes)

	c := &client{conn: conn}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Debug("websocket client connected", logx.Int("clients", n))

	// Drain inbound frames; the first read error means the peer left.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.send(payload); err != nil {
			// Only the failing connection is dropped.
			h.log.Debug("websocket write failed", logx.Err(err))
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.conns = make(map[*client]struct{})
	h.mu.Unlock()
	for _, c := range targets {
		c.close()
	}
}

type progressFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type logFrame struct {
	Type string `json:"type"`
	eventbus.LogEntry
}

// encodeFrame maps a bus event to its wire shape. Progress rides under
// a data envelope; log entries are flattened into the frame itself.
func encodeFrame(ev eventbus.Event) ([]byte, bool) {
	var frame any
	switch ev.Type {
	case eventbus.TypeProgress:
		frame = progressFrame{Type: ev.Type, Data: ev.Data}
	case eventbus.TypeLog:
		entry, ok := ev.Data.(eventbus.LogEntry)
		if !ok {
			return nil, false
		}
		frame = logFrame{Type: ev.Type, LogEntry: entry}
	default:
		return nil, false
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, false
	}
	return payload, true
}
