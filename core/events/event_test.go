package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestFanoutForwardsToEveryEmitter(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	fan := Fanout{first, nil, second}
	fan.Emit(&Record{Type: "staking.staked"})
	if len(first.Events()) != 1 || len(second.Events()) != 1 {
		t.Fatalf("expected both recorders to receive the event")
	}
}

func TestRecorderOfType(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(&Record{Type: "a"})
	rec.Emit(&Record{Type: "b"})
	rec.Emit(&Record{Type: "a"})
	if got := len(rec.OfType("a")); got != 2 {
		t.Fatalf("expected 2 records of type a, got %d", got)
	}
	rec.Reset()
	if len(rec.Events()) != 0 {
		t.Fatalf("expected recorder to be empty after reset")
	}
}

func TestBroadcasterDeliversBacklogAndLiveRecords(t *testing.T) {
	b := NewBroadcaster(2)
	b.Emit(&Record{Type: "one"})
	b.Emit(&Record{Type: "two"})
	b.Emit(&Record{Type: "three"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, unsubscribe, backlog := b.Subscribe(ctx)
	defer unsubscribe()

	if len(backlog) != 2 || backlog[0].Type != "two" || backlog[1].Type != "three" {
		t.Fatalf("unexpected backlog %+v", backlog)
	}

	b.Emit(&Record{Type: "four", Attributes: map[string]string{"k": "v"}})
	select {
	case rec := <-ch:
		if rec.Type != "four" || rec.Attr("k") != "v" {
			t.Fatalf("unexpected record %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for live record")
	}
}

func TestBroadcasterClosesOnContextCancel(t *testing.T) {
	b := NewBroadcaster(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, _ := b.Subscribe(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
}

func TestBroadcasterCancelReleasesWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := NewBroadcaster(0)
	ch, unsubscribe, _ := b.Subscribe(context.Background())
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
}
