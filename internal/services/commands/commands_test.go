package commands

import (
	"testing"
	"time"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

func newTestStore(now *time.Time) *Store {
	s := NewStore(logx.Nop())
	if now != nil {
		s.now = func() time.Time { return *now }
	}
	return s
}

func TestCreateRejectsDuplicateTriggerPerGuild(t *testing.T) {
	s := newTestStore(nil)

	if _, err := s.Create("g1", "hello", TypeCustom, "hi there", 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create("g1", "Hello", TypeCustom, "other", 0); err == nil {
		t.Fatal("duplicate trigger in same guild accepted")
	}
	// Same trigger in a different guild is fine.
	if _, err := s.Create("g2", "hello", TypeCustom, "hi there", 0); err != nil {
		t.Fatalf("create in other guild: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(nil)

	cases := []struct {
		name     string
		trigger  string
		typ      Type
		response string
	}{
		{"empty trigger", "", TypeCustom, "x"},
		{"unknown type", "a", Type("weird"), "x"},
		{"custom without response", "a", TypeCustom, "  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Create("g1", tc.trigger, tc.typ, tc.response, 0); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	// Stats commands need no response text.
	if _, err := s.Create("g1", "mystats", TypeStats, "", 0); err != nil {
		t.Fatalf("stats command: %v", err)
	}
}

func TestMatchPrefixAndGuildScoping(t *testing.T) {
	s := newTestStore(nil)
	if _, err := s.Create("g1", "ping", TypeCustom, "pong", 0); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok := s.Match("g1", "u1", "ping"); ok {
		t.Fatal("matched without prefix")
	}
	if _, ok := s.Match("g2", "u1", "!ping"); ok {
		t.Fatal("matched in wrong guild")
	}
	if _, ok := s.Match("g1", "u1", "!"); ok {
		t.Fatal("matched bare prefix")
	}
	cmd, ok := s.Match("g1", "u1", "  !PING extra words  ")
	if !ok || cmd.Response != "pong" {
		t.Fatalf("expected match, got ok=%v cmd=%+v", ok, cmd)
	}
}

func TestMatchCooldownWindow(t *testing.T) {
	now := time.Now()
	s := newTestStore(&now)
	if _, err := s.Create("g1", "slow", TypeCustom, "ok", 10); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok := s.Match("g1", "u1", "!slow"); !ok {
		t.Fatal("first use blocked")
	}
	now = now.Add(5 * time.Second)
	if _, ok := s.Match("g1", "u1", "!slow"); ok {
		t.Fatal("use inside cooldown window allowed")
	}
	// Another user is not affected by u1's cooldown.
	if _, ok := s.Match("g1", "u2", "!slow"); !ok {
		t.Fatal("cooldown leaked across users")
	}
	now = now.Add(6 * time.Second)
	if _, ok := s.Match("g1", "u1", "!slow"); !ok {
		t.Fatal("use after cooldown expiry blocked")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(nil)
	a, _ := s.Create("g1", "one", TypeCustom, "1", 0)
	b, _ := s.Create("g1", "two", TypeCustom, "2", 0)

	if _, err := s.Update(a.ID, "two", TypeCustom, "1", 0); err == nil {
		t.Fatal("update onto an existing trigger accepted")
	}
	upd, err := s.Update(a.ID, "uno", TypeCustom, "1!", 3)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Trigger != "uno" || upd.Cooldown != 3 {
		t.Fatalf("unexpected updated command: %+v", upd)
	}

	if !s.Delete(b.ID) {
		t.Fatal("delete existing returned false")
	}
	if s.Delete(b.ID) {
		t.Fatal("delete missing returned true")
	}
	if got := len(s.List("g1")); got != 1 {
		t.Fatalf("list after delete = %d commands, want 1", got)
	}
}
