package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":3000"
  allowed_origins: ["http://localhost:5173"]
discord:
  token: "${TEST_BOT_TOKEN}"
  rest_rate_per_sec: 10
logging:
  level: debug
  console: true
bulk_dm:
  batch_size: 50
  page_delay: "150ms"
`)
	t.Setenv("TEST_BOT_TOKEN", "abc.def.ghi")

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":3000" || cfg.BulkDM.BatchSize != 50 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if got := cfg.BotToken(); got != "abc.def.ghi" {
		t.Fatalf("BotToken() = %q, want env-expanded token", got)
	}
	if m.Get() != cfg {
		t.Fatal("Get() does not return the committed config")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":3000"
  tls: true
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name, body string
	}{
		{"missing addr", `{"server": {"addr": " "}}`},
		{"negative rate", `{"server": {"addr": ":1"}, "discord": {"rest_rate_per_sec": -1}}`},
		{"page limit too large", `{"server": {"addr": ":1"}, "bulk_dm": {"page_limit": 2000}}`},
		{"bad page delay", `{"server": {"addr": ":1"}, "bulk_dm": {"page_delay": "fast"}}`},
		{"music without host", `{"server": {"addr": ":1"}, "music": {"enabled": true}}`},
		{"trailing data", `{"server": {"addr": ":1"}}{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tc.body)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	m := NewManager("unused.json")
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("received wrong config")
		}
	case <-time.After(time.Second):
		t.Fatal("no config delivered")
	}

	// A full buffer drops the oldest and keeps the newest.
	first, second := &Config{}, &Config{}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatal("expected newest config after overflow")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed on unsubscribe")
	}
}

func TestDurationHelpers(t *testing.T) {
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	d, err := ParseDurationOrDefault("x", "", 2*time.Second)
	if err != nil || d != 2*time.Second {
		t.Fatalf("default = %v err=%v, want 2s", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", 2*time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("parsed = %v err=%v, want 250ms", d, err)
	}
}
