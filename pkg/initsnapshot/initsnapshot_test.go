package initsnapshot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/bus"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/dbpool"
	"github.com/user/myreplicate/pkg/event"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func TestRunSkipsWhenInitQueryEmpty(t *testing.T) {
	w := New("m1", config.TableMap{}, "src", dbpool.New(nopLogger()), bus.New(4, nopLogger()), nopLogger())
	w.Run(context.Background(), "target.tbl")

	s := w.Stats()
	if !s.Completed || s.CompletionReason != event.CompletionOK {
		t.Fatalf("got completed=%v reason=%v, want ok", s.Completed, s.CompletionReason)
	}
}

func TestResumableFalseBeforeAnyRun(t *testing.T) {
	w := New("m1", config.TableMap{InitQuery: "SELECT * FROM t"}, "src", dbpool.New(nopLogger()), bus.New(4, nopLogger()), nopLogger())
	if w.Resumable() {
		t.Error("a worker that never ran should not be resumable")
	}
}

func TestResumableFalseOnceCompleted(t *testing.T) {
	w := New("m1", config.TableMap{}, "src", dbpool.New(nopLogger()), bus.New(4, nopLogger()), nopLogger())
	w.Run(context.Background(), "target.tbl")
	if w.Resumable() {
		t.Error("a completed worker should not be resumable")
	}
}

func TestPublishWithRetryStopsImmediatelyAboveOverflowThreshold(t *testing.T) {
	b := bus.New(2, nopLogger())
	// Fill the bus past the 90% usage threshold without a subscriber
	// draining it, so Publish keeps failing and UsageFraction stays high.
	b.Publish(event.Message{Kind: event.KindHeartbeat})
	b.Publish(event.Message{Kind: event.KindHeartbeat})

	w := New("m1", config.TableMap{InitQuery: "SELECT 1"}, "src", dbpool.New(nopLogger()), b, nopLogger())

	start := time.Now()
	ok := w.publishWithRetry(event.InitRowEvent{ID: "r1"})
	elapsed := time.Since(start)

	if ok {
		t.Fatal("publish should fail when bus is saturated")
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("expected immediate stop on overflow, took %v", elapsed)
	}
}
