package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeProgress, Data: "one"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeProgress || e.Data != "one" {
				t.Fatalf("unexpected event: %+v", e)
			}
			if e.Time.IsZero() {
				t.Fatal("publish did not stamp a time")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber received nothing")
		}
	}
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeLog, Data: "kept"})
	// Buffer is full; this must not block and is dropped.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: TypeLog, Data: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if e := <-ch; e.Data != "kept" {
		t.Fatalf("got %v, want first event", e.Data)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event: %+v", e)
	default:
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	// Publishing after unsubscribe must not panic even though the
	// channel is closed.
	b.Publish(Event{Type: TypeProgress})

	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestPublishLogShapesEntry(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	PublishLog(b, "error", "boom")

	e := <-ch
	if e.Type != TypeLog {
		t.Fatalf("type = %q, want %q", e.Type, TypeLog)
	}
	entry, ok := e.Data.(LogEntry)
	if !ok {
		t.Fatalf("data is %T, want LogEntry", e.Data)
	}
	if entry.Message != "boom" || entry.Level != "error" || entry.Timestamp.IsZero() {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
