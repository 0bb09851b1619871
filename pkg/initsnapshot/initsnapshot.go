// Package initsnapshot runs the paginated "copy everything that exists
// today" pass for one table mapping, publishing each row as an
// event.InitRowEvent addressed to the mapping's target. It stops (rather
// than retrying indefinitely) as soon as the bus looks critically full,
// so a burst of snapshot rows never starves the live binlog stream of
// queue room.
package initsnapshot

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/bus"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/dbpool"
	"github.com/user/myreplicate/pkg/event"
	"github.com/user/myreplicate/pkg/metrics"
)

const (
	pageSize            = 1000
	queueOverflowThresh = 0.90
	maxPublishRetries   = 2
	publishBaseDelay    = 100 * time.Millisecond
)

// Worker pages through one TableMap's init_query and publishes an
// InitRowEvent per row. One Worker exists per mapping that declares an
// init_query.
type Worker struct {
	mappingName string
	mapping     config.TableMap
	sourceConn  string // pool connection name the snapshot query runs on

	pool *dbpool.Pool
	bus  *bus.Bus
	log  zerolog.Logger

	stats event.WorkerStats
}

// New constructs a Worker. sourceConn is the pool connection name the
// snapshot query runs on; the supervisor passes the mapping's source
// name, so pagination shares that source's pooled connection (the binlog
// stream reads over its own canal connection).
func New(mappingName string, mapping config.TableMap, sourceConn string, pool *dbpool.Pool, b *bus.Bus, log zerolog.Logger) *Worker {
	return &Worker{
		mappingName: mappingName,
		mapping:     mapping,
		sourceConn:  sourceConn,
		pool:        pool,
		bus:         b,
		log:         log.With().Str("mapping", mappingName).Logger(),
	}
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() event.WorkerStats {
	return w.stats.Snapshot()
}

// Resumable reports whether a previously stopped run can be resumed:
// true only if it stopped with a positive offset and has not completed.
func (w *Worker) Resumable() bool {
	s := w.stats.Snapshot()
	return !s.Completed && s.CurrentOffset > 0
}

// Run executes the snapshot pass, resuming from the worker's own
// CurrentOffset if this is not the first call (the supervisor re-invokes
// Run on the same Worker to resume after a queue_overflow stop).
func (w *Worker) Run(ctx context.Context, qualifiedTargetTable string) {
	w.stats.SetRunning(true)
	defer w.stats.SetRunning(false)

	if w.mapping.InitQuery == "" {
		w.stats.SetCompleted(event.CompletionOK)
		return
	}

	if w.mapping.InitIfTargetEmpty {
		if !w.pool.IsTableEmpty(ctx, w.mapping.Target, qualifiedTargetTable) {
			w.log.Info().Msg("target table not empty, skipping init query")
			w.stats.SetCompleted(event.CompletionTargetNotEmpty)
			return
		}
	}

	totalEstimate := w.pool.CountEstimate(ctx, w.sourceConn, w.mapping.InitQuery)

	offset := int(w.stats.Snapshot().CurrentOffset)
	hasMore := true

	for hasMore {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rows, more, err := w.pool.Paginate(ctx, w.sourceConn, w.mapping.InitQuery, pageSize, offset)
		if err != nil {
			w.log.Error().Err(err).Msg("init query page failed")
			w.stats.RecordError()
			metrics.WorkerErrors.WithLabelValues("init", w.mappingName).Inc()
			w.stats.SetCompleted(event.CompletionError)
			return
		}
		if len(rows) == 0 {
			break
		}
		hasMore = more

		pageProcessed := 0
		for _, row := range rows {
			select {
			case <-ctx.Done():
				return
			default:
			}

			ev := event.InitRowEvent{
				ID:          uuid.NewString(),
				MappingID:   w.mappingName,
				Source:      w.mapping.Source,
				Target:      w.mapping.Target,
				TargetTable: w.mapping.TargetTable,
				PrimaryKey:  w.mapping.PrimaryKey,
				Row:         row,
			}
			if !w.publishWithRetry(ev) {
				w.stats.RecordError()
				metrics.WorkerErrors.WithLabelValues("init", w.mappingName).Inc()
				newOffset := offset + pageProcessed
				w.stats.RecordPage(int64(newOffset), totalEstimate)
				w.stats.SetCompleted(event.CompletionQueueOverflow)
				w.log.Error().Int("offset", newOffset).Msg("bus saturated, stopping init snapshot to avoid data loss")
				return
			}
			pageProcessed++
			w.stats.RecordEvent()
			metrics.InitRowsProcessed.WithLabelValues(w.mappingName).Inc()
		}

		offset += len(rows)
		w.stats.RecordPage(int64(offset), totalEstimate)
	}

	w.stats.SetCompleted(event.CompletionOK)
}

// publishWithRetry mirrors the original's bounded retry: on a rejected
// publish, check bus usage first - above the overflow threshold stop
// immediately, otherwise back off exponentially for a couple of
// attempts before giving up.
func (w *Worker) publishWithRetry(ev event.InitRowEvent) bool {
	for attempt := 0; attempt <= maxPublishRetries; attempt++ {
		msg := event.NewMessage(event.KindInitRowEvent, ev.Source, ev.Target, ev)
		if w.bus.Publish(msg) {
			return true
		}

		if w.bus.UsageFraction() > queueOverflowThresh {
			return false
		}
		if attempt < maxPublishRetries {
			delay := time.Duration(float64(publishBaseDelay) * math.Pow(2, float64(attempt)))
			time.Sleep(delay)
		}
	}
	return false
}
