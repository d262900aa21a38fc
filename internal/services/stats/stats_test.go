package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/tmister923-blip/bot-login/pkg/logx"
)

func TestRecordAndUser(t *testing.T) {
	tr := NewTracker(logx.Nop())
	tr.RecordMessage("g1", "u1", "alice")
	tr.RecordMessage("g1", "u1", "")
	tr.RecordReaction("g1", "u1", true)

	u, ok := tr.User("g1", "u1")
	if !ok {
		t.Fatal("user missing")
	}
	if u.Messages != 2 || u.Reactions != 1 || u.Username != "alice" {
		t.Fatalf("unexpected record: %+v", u)
	}
	if u.LastSeen.IsZero() {
		t.Fatal("lastSeen not set")
	}
	if _, ok := tr.User("g1", "nobody"); ok {
		t.Fatal("missing user reported as present")
	}
}

func TestReactionRemoveClampsAtZero(t *testing.T) {
	tr := NewTracker(logx.Nop())
	tr.RecordReaction("g1", "u1", false)
	tr.RecordReaction("g1", "u1", false)
	tr.RecordReaction("g1", "u1", true)
	tr.RecordReaction("g1", "u1", false)
	tr.RecordReaction("g1", "u1", false)

	u, _ := tr.User("g1", "u1")
	if u.Reactions != 0 {
		t.Fatalf("reactions = %d, want 0", u.Reactions)
	}
}

func TestTopByOrderingAndLimit(t *testing.T) {
	tr := NewTracker(logx.Nop())
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("u%d", i)
		for j := 0; j <= i; j++ {
			tr.RecordMessage("g1", id, "")
		}
	}
	tr.RecordReaction("g1", "u0", true)
	tr.RecordReaction("g1", "u0", true)

	top := tr.TopBy("g1", ByMessages, 3)
	if len(top) != 3 {
		t.Fatalf("top length = %d, want 3", len(top))
	}
	if top[0].UserID != "u4" || top[2].UserID != "u2" {
		t.Fatalf("unexpected message ranking: %+v", top)
	}

	byReact := tr.TopBy("g1", ByReactions, 1)
	if byReact[0].UserID != "u0" {
		t.Fatalf("unexpected reaction ranking: %+v", byReact)
	}

	if got := tr.TopBy("missing", ByMessages, 5); len(got) != 0 {
		t.Fatalf("unknown guild returned %d users", len(got))
	}
}

func TestTotals(t *testing.T) {
	tr := NewTracker(logx.Nop())
	tr.RecordMessage("g1", "u1", "")
	tr.RecordMessage("g1", "u2", "")
	tr.RecordReaction("g1", "u2", true)

	msgs, reacts, tracked := tr.Totals("g1")
	if msgs != 2 || reacts != 1 || tracked != 2 {
		t.Fatalf("totals = %d/%d/%d, want 2/1/2", msgs, reacts, tracked)
	}
}

func TestRollupWindowBounds(t *testing.T) {
	tr := NewTracker(logx.Nop())
	tr.window = 3

	base := time.Now()
	for i := 0; i < 5; i++ {
		tr.RecordMessage("g1", "u1", "")
		tr.RecordMessage("g1", "u1", "")
		tr.Rollup(base.Add(time.Duration(i) * time.Minute))
	}

	win := tr.Window("g1")
	if len(win) != 3 {
		t.Fatalf("window length = %d, want 3", len(win))
	}
	for _, s := range win {
		if s.Messages != 2 {
			t.Fatalf("bucket messages = %d, want 2", s.Messages)
		}
	}
	if !win[0].At.Before(win[2].At) {
		t.Fatal("window not oldest-first")
	}

	// Counters reset after each rollup.
	tr.Rollup(base.Add(10 * time.Minute))
	win = tr.Window("g1")
	if win[len(win)-1].Messages != 0 {
		t.Fatalf("expected empty bucket after idle minute, got %d", win[len(win)-1].Messages)
	}
}
