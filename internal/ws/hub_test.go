package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tmister923-blip/bot-login/internal/eventbus"
	"github.com/tmister923-blip/bot-login/pkg/logx"
)

func dialTestHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.Upgrade))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.Count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsProgressEnvelope(t *testing.T) {
	bus := eventbus.New()
	h := NewHub(bus, logx.Nop(), []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn, done := dialTestHub(t, h)
	defer done()
	waitClients(t, h, 1)

	bus.Publish(eventbus.Event{Type: eventbus.TypeProgress, Time: time.Now(), Data: map[string]any{
		"sent":   10,
		"failed": 1,
		"total":  100,
		"status": "sending",
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var frame struct {
		Type string `json:"type"`
		Data struct {
			Sent   int    `json:"sent"`
			Total  int    `json:"total"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	if frame.Type != "progress" || frame.Data.Sent != 10 || frame.Data.Status != "sending" {
		t.Fatalf("unexpected frame: %s", payload)
	}
}

func TestHubFlattensLogFrames(t *testing.T) {
	bus := eventbus.New()
	h := NewHub(bus, logx.Nop(), []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn, done := dialTestHub(t, h)
	defer done()
	waitClients(t, h, 1)

	eventbus.PublishLog(bus, "error", "Failed to DM 123: 50007")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var frame map[string]any
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal %q: %v", payload, err)
	}
	if frame["type"] != "log" || frame["logType"] != "error" {
		t.Fatalf("unexpected frame: %s", payload)
	}
	if _, nested := frame["data"]; nested {
		t.Fatalf("log frame should be flat, got: %s", payload)
	}
	if frame["message"] != "Failed to DM 123: 50007" {
		t.Fatalf("unexpected message: %s", payload)
	}
}

func TestHubDropsOnlyFailedConn(t *testing.T) {
	bus := eventbus.New()
	h := NewHub(bus, logx.Nop(), []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn1, done1 := dialTestHub(t, h)
	defer done1()
	conn2, done2 := dialTestHub(t, h)
	defer done2()
	waitClients(t, h, 2)

	// Kill one peer; the hub notices on its read loop.
	conn1.Close()
	waitClients(t, h, 1)

	eventbus.PublishLog(bus, "info", "still here")
	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn2.ReadMessage(); err != nil {
		t.Fatalf("surviving conn read: %v", err)
	}
}

func TestHubOriginCheck(t *testing.T) {
	bus := eventbus.New()
	h := NewHub(bus, logx.Nop(), []string{"http://dash.example.com"})
	srv := httptest.NewServer(http.HandlerFunc(h.Upgrade))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	hdr := http.Header{"Origin": []string{"http://evil.example.com"}}
	if conn, _, err := websocket.DefaultDialer.Dial(url, hdr); err == nil {
		conn.Close()
		t.Fatal("dial with disallowed origin succeeded")
	}

	hdr = http.Header{"Origin": []string{"http://dash.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	conn.Close()
}
