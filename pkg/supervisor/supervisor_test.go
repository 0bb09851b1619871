package supervisor

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/bus"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/event"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func baseConfig() *config.Config {
	return &config.Config{
		Sources: map[string]config.SourceSpec{},
		Targets: map[string]config.TargetSpec{},
		Mappings: map[string]config.TableMap{
			"m1": {Source: "src", Target: "tgt", TargetTable: "t1"},
			"m2": {Source: "src", Target: "tgt", TargetTable: "t2"},
		},
	}
}

func TestCheckInitStreamGateWaitsForAllInitWorkers(t *testing.T) {
	cfg := baseConfig()
	cfg.PauseReplicationDuringInit = true
	// New builds init workers only for mappings that declare an init_query.
	// With init_if_target_empty set and no target connection opened,
	// IsTableEmpty reports "not empty", so Run finishes at once with
	// CompletionTargetNotEmpty, no network touched.
	for name, m := range cfg.Mappings {
		m.InitQuery = "SELECT 1"
		m.InitIfTargetEmpty = true
		cfg.Mappings[name] = m
	}
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Only complete one of the two init workers.
	for name, h := range sup.inits {
		if name == "m1" {
			h.worker.Run(context.Background(), h.qualifiedTT)
		}
	}

	var wg sync.WaitGroup
	sup.checkInitStreamGate(context.Background(), &wg)
	if sup.sourcesStarted {
		t.Fatal("sources should not start until every init worker has completed")
	}

	for _, h := range sup.inits {
		h.worker.Run(context.Background(), h.qualifiedTT)
	}
	sup.checkInitStreamGate(context.Background(), &wg)
	if !sup.sourcesStarted {
		t.Fatal("sources should start once every init worker has completed")
	}
}

func TestCheckInitStreamGateSkipsWhenNotGated(t *testing.T) {
	cfg := baseConfig()
	cfg.PauseReplicationDuringInit = false
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var wg sync.WaitGroup
	sup.checkInitStreamGate(context.Background(), &wg)
	if sup.sourcesStarted {
		t.Fatal("gate should be a no-op when pause_replication_during_init is unset")
	}
}

func TestCheckInitStreamGateTreatsErrorAsIncomplete(t *testing.T) {
	cfg := &config.Config{
		Sources:  map[string]config.SourceSpec{},
		Targets:  map[string]config.TargetSpec{},
		Mappings: map[string]config.TableMap{"m1": {Source: "src", Target: "tgt", TargetTable: "t1", InitQuery: "SELECT 1"}},
	}
	cfg.PauseReplicationDuringInit = true
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h := sup.inits["m1"]
	h.worker.Run(context.Background(), h.qualifiedTT) // no DB connection opened: fails and records CompletionError

	var wg sync.WaitGroup
	sup.checkInitStreamGate(context.Background(), &wg)
	if sup.sourcesStarted {
		t.Fatal("a failed init worker must not satisfy the stream gate")
	}
}

func TestCheckInitResumptionRespectsInterval(t *testing.T) {
	cfg := baseConfig()
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sup.checkInitResumption(context.Background())
	first := sup.lastInitResumeAt
	if first.IsZero() {
		t.Fatal("first call should mark an attempt")
	}

	sup.checkInitResumption(context.Background())
	if !sup.lastInitResumeAt.Equal(first) {
		t.Fatal("a second call inside the interval should not update the timestamp")
	}
}

func TestCheckInitResumptionSkipsWhenBusNearlyFull(t *testing.T) {
	cfg := baseConfig()
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sup.bus = bus.New(10, nopLogger())
	for i := 0; i < 9; i++ {
		sup.bus.Publish(event.NewMessage(event.KindHeartbeat, "src", "", nil))
	}
	// 9/10 capacity is above the 80% resume threshold; checkInitResumption
	// must return before it gets as far as checking the (here empty)
	// inits map, which the due-timestamp update confirms it still reached.
	sup.checkInitResumption(context.Background())
	if sup.lastInitResumeAt.IsZero() {
		t.Fatal("the due-timestamp should still be marked even when the resume itself is skipped")
	}
}

func TestStartSourcesIsIdempotent(t *testing.T) {
	cfg := baseConfig()
	sup, err := New(cfg, nopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	sup.startSources(context.Background(), &wg)
	if !sup.sourcesStarted {
		t.Fatal("expected sourcesStarted to be set")
	}
	// A second call must be a no-op rather than spawning a duplicate set
	// of worker goroutines for every configured source.
	sup.startSources(context.Background(), &wg)
}
