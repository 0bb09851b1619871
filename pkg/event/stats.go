package event

import (
	"sync"
	"time"
)

// CompletionReason explains why an init worker stopped paging.
type CompletionReason string

const (
	CompletionOK             CompletionReason = "ok"
	CompletionQueueOverflow  CompletionReason = "queue_overflow"
	CompletionError          CompletionReason = "error"
	CompletionTargetNotEmpty CompletionReason = "target_not_empty"
)

// WorkerStats is the mutable counter block every worker exposes to the
// supervisor through Snapshot, never by sharing the live struct: callers
// hold no reference into the worker's internals past the call.
type WorkerStats struct {
	mu sync.Mutex

	EventsProcessed int64
	Errors          int64
	LastActivity    time.Time
	Running         bool

	// init-worker only
	PagesProcessed   int64
	CurrentOffset    int64
	RowsEstimated    int64
	Completed        bool
	CompletionReason CompletionReason
}

// Snapshot returns a copy safe to read without holding the worker's lock.
func (s *WorkerStats) Snapshot() WorkerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}

func (s *WorkerStats) RecordEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EventsProcessed++
	s.LastActivity = time.Now()
}

func (s *WorkerStats) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors++
	s.LastActivity = time.Now()
}

func (s *WorkerStats) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = running
}

func (s *WorkerStats) RecordPage(offset, rowsEstimated int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PagesProcessed++
	s.CurrentOffset = offset
	s.RowsEstimated = rowsEstimated
	s.LastActivity = time.Now()
}

func (s *WorkerStats) SetCompleted(reason CompletionReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Completed = true
	s.CompletionReason = reason
}
