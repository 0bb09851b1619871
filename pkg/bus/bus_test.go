package bus

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/event"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func TestPublishAndProcessDeliversToSubscriber(t *testing.T) {
	b := New(4, nopLogger())
	received := make(chan event.Message, 1)
	b.Subscribe(event.KindBinlogEvent, func(m event.Message) error {
		received <- m
		return nil
	})

	if ok := b.Publish(event.Message{Kind: event.KindBinlogEvent, SourceName: "src"}); !ok {
		t.Fatal("publish should be accepted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Process(ctx, 200*time.Millisecond)

	select {
	case m := <-received:
		if m.SourceName != "src" {
			t.Errorf("got %+v", m)
		}
	default:
		t.Fatal("subscriber was not invoked")
	}
}

func TestPublishAtCapacityIsRejected(t *testing.T) {
	b := New(1, nopLogger())
	if ok := b.Publish(event.Message{Kind: event.KindHeartbeat}); !ok {
		t.Fatal("first publish at capacity 1 should succeed")
	}
	if ok := b.Publish(event.Message{Kind: event.KindHeartbeat}); ok {
		t.Fatal("publish beyond capacity should be rejected")
	}
	stats := b.StatsSnapshot()
	if stats.MessagesDropped != 1 {
		t.Errorf("dropped = %d, want 1", stats.MessagesDropped)
	}
}

func TestFailingSubscriberDoesNotBlockSiblings(t *testing.T) {
	b := New(4, nopLogger())
	var secondCalled bool
	b.Subscribe(event.KindBinlogEvent, func(m event.Message) error {
		panic("boom")
	})
	b.Subscribe(event.KindBinlogEvent, func(m event.Message) error {
		secondCalled = true
		return nil
	})
	b.Publish(event.Message{Kind: event.KindBinlogEvent})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Process(ctx, 200*time.Millisecond)

	if !secondCalled {
		t.Error("second subscriber should still run after first panics")
	}
}

func TestRequestShutdownRejectsSubsequentPublish(t *testing.T) {
	b := New(4, nopLogger())
	b.RequestShutdown()
	if ok := b.Publish(event.Message{Kind: event.KindHeartbeat}); ok {
		t.Error("publish after shutdown should be rejected")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4, nopLogger())
	calls := 0
	cb := func(m event.Message) error {
		calls++
		return nil
	}
	b.Subscribe(event.KindHeartbeat, cb)
	b.Unsubscribe(event.KindHeartbeat, cb)
	b.Publish(event.Message{Kind: event.KindHeartbeat})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Process(ctx, 200*time.Millisecond)

	if calls != 0 {
		t.Errorf("expected no delivery after unsubscribe, got %d calls", calls)
	}
}

func TestUsageFraction(t *testing.T) {
	b := New(4, nopLogger())
	b.Publish(event.Message{Kind: event.KindHeartbeat})
	if got := b.UsageFraction(); got != 0.25 {
		t.Errorf("got %v, want 0.25", got)
	}
}
