package event

import (
	"strings"
	"testing"
)

func TestNewMessageIDFormat(t *testing.T) {
	msg := NewMessage(KindBinlogEvent, "primary", "warehouse", nil)
	if !strings.HasPrefix(msg.ID, "primary_") {
		t.Errorf("id = %q, want prefix %q", msg.ID, "primary_")
	}
	if msg.SourceName != "primary" || msg.TargetName != "warehouse" {
		t.Errorf("unexpected envelope addressing: %+v", msg)
	}
}

func TestQualifiedSourceTable(t *testing.T) {
	e := BinlogEvent{Schema: "shop", Table: "orders"}
	if got := e.QualifiedSourceTable(); got != "shop.orders" {
		t.Errorf("got %q, want shop.orders", got)
	}
}

func TestWorkerStatsSnapshotIsIndependentCopy(t *testing.T) {
	s := &WorkerStats{}
	s.RecordEvent()
	snap := s.Snapshot()
	s.RecordEvent()
	if snap.EventsProcessed != 1 {
		t.Errorf("snapshot should have frozen at 1, got %d", snap.EventsProcessed)
	}
	if s.Snapshot().EventsProcessed != 2 {
		t.Errorf("live stats should now read 2")
	}
}

func TestWorkerStatsCompletion(t *testing.T) {
	s := &WorkerStats{}
	s.SetCompleted(CompletionQueueOverflow)
	snap := s.Snapshot()
	if !snap.Completed || snap.CompletionReason != CompletionQueueOverflow {
		t.Errorf("got completed=%v reason=%v", snap.Completed, snap.CompletionReason)
	}
}
