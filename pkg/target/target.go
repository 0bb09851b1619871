// Package target applies one target's table mappings to every message
// addressed to it: resolve the mapping, filter, transform, batch (or
// delete immediately), and write through the shared connection pool.
package target

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/myreplicate/pkg/bus"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/dbpool"
	"github.com/user/myreplicate/pkg/event"
	"github.com/user/myreplicate/pkg/filter"
	"github.com/user/myreplicate/pkg/metrics"
	"github.com/user/myreplicate/pkg/sqlbuilder"
	"github.com/user/myreplicate/pkg/tracing"
	"github.com/user/myreplicate/pkg/transform"
)

const (
	defaultQueueCapacity = 10000
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	queueWarnFraction    = 0.8
)

// Worker processes every message addressed to one TargetSpec: binlog
// events fan out through a size/interval batch accumulator, init-query
// rows go through a second, separate accumulator so a large snapshot
// burst cannot delay streaming writes, and deletes are applied
// immediately to preserve ordering against a later re-insert.
type Worker struct {
	name string
	idx  *mappingIndex

	pool *dbpool.Pool
	reg  *transform.Registry
	log  zerolog.Logger

	batchSize     int
	flushInterval time.Duration

	inbox chan event.Message

	mu          sync.Mutex
	batches     map[string]*batch
	initBatches map[string]*batch

	stats event.WorkerStats
}

// New constructs a Worker for targetName, handling every mapping in
// mappings whose Target field equals targetName.
func New(targetName string, mappings map[string]*config.TableMap, pool *dbpool.Pool, reg *transform.Registry, log zerolog.Logger) *Worker {
	owned := make(map[string]*config.TableMap)
	for name, m := range mappings {
		if m.Target == targetName {
			owned[name] = m
		}
	}
	return &Worker{
		name:          targetName,
		idx:           newMappingIndex(owned),
		pool:          pool,
		reg:           reg,
		log:           log.With().Str("target", targetName).Logger(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		inbox:         make(chan event.Message, defaultQueueCapacity),
		batches:       make(map[string]*batch),
		initBatches:   make(map[string]*batch),
	}
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() event.WorkerStats {
	return w.stats.Snapshot()
}

// QueueUsage returns the fraction of the inbound queue currently filled.
func (w *Worker) QueueUsage() float64 {
	return float64(len(w.inbox)) / float64(cap(w.inbox))
}

// Attach subscribes the worker to every message kind it handles. The
// callback enqueues into the worker's own bounded inbox rather than
// processing inline, so a slow target cannot stall the bus's dispatch
// loop for every other subscriber.
func (w *Worker) Attach(b *bus.Bus) {
	b.Subscribe(event.KindBinlogEvent, w.enqueue)
	b.Subscribe(event.KindInitRowEvent, w.enqueue)
}

func (w *Worker) enqueue(msg event.Message) error {
	if msg.TargetName != "" && msg.TargetName != w.name {
		return nil
	}
	if len(w.inbox) > int(queueWarnFraction*float64(cap(w.inbox))) {
		w.log.Warn().Int("queue_size", len(w.inbox)).Msg("target inbound queue nearly full")
	}
	select {
	case w.inbox <- msg:
	default:
		w.stats.RecordError()
		metrics.WorkerErrors.WithLabelValues("target", w.name).Inc()
		w.log.Error().Msg("target inbound queue full, dropping event")
	}
	return nil
}

// Run drains the inbox, flushing accumulated batches on size or on the
// flush-interval ticker, until ctx is cancelled. On cancellation it makes
// one best-effort attempt to flush everything still buffered.
func (w *Worker) Run(ctx context.Context) {
	w.stats.SetRunning(true)
	defer w.stats.SetRunning(false)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flushAll(context.Background())
			return
		case msg := <-w.inbox:
			w.handle(ctx, msg)
		case <-ticker.C:
			w.flushDue(ctx)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg event.Message) {
	switch msg.Kind {
	case event.KindBinlogEvent:
		ev, ok := msg.Data.(event.BinlogEvent)
		if !ok {
			return
		}
		w.handleBinlog(ctx, ev)
	case event.KindInitRowEvent:
		ev, ok := msg.Data.(event.InitRowEvent)
		if !ok {
			return
		}
		w.handleInitRow(ctx, ev)
	}
}

func (w *Worker) handleBinlog(ctx context.Context, ev event.BinlogEvent) {
	mapping := w.idx.resolve(ev.Source, ev.Schema, ev.Table)
	if mapping == nil {
		return
	}
	if !w.ensureConnection(ctx) {
		w.stats.RecordError()
		metrics.WorkerErrors.WithLabelValues("target", w.name).Inc()
		return
	}

	f := filter.Filter(mapping.Filter)
	entries := toColumnEntries(mapping.Columns)

	switch ev.Op {
	case event.OpInsert:
		pass, err := filter.Apply(ev.Values, f)
		if err != nil || !pass {
			metrics.EventsFiltered.WithLabelValues(w.name).Inc()
			return
		}
		row := transform.Apply(entries, ev.Values, ev.QualifiedSourceTable(), w.reg, w.log)
		w.appendBatch(mapping, row)
		w.stats.RecordEvent()
		metrics.EventsProcessed.WithLabelValues(w.name).Inc()

	case event.OpDelete:
		pass, err := filter.Apply(ev.Values, f)
		if err != nil || !pass {
			metrics.EventsFiltered.WithLabelValues(w.name).Inc()
			return
		}
		row := transform.Apply(entries, ev.Values, ev.QualifiedSourceTable(), w.reg, w.log)
		w.deleteImmediate(ctx, mapping, row)
		w.stats.RecordEvent()
		metrics.EventsProcessed.WithLabelValues(w.name).Inc()

	case event.OpUpdate:
		afterPasses, aErr := filter.Apply(ev.After, f)
		beforePassed, bErr := filter.Apply(ev.Before, f)
		if aErr != nil || bErr != nil {
			return
		}
		switch {
		case !afterPasses && !beforePassed:
			metrics.EventsFiltered.WithLabelValues(w.name).Inc()
			return
		case !afterPasses && beforePassed:
			// In scope before, out of scope now: remove it using the
			// before-image run through the same transform chain, so the
			// derived primary key matches what was actually written.
			row := transform.Apply(entries, ev.Before, ev.QualifiedSourceTable(), w.reg, w.log)
			w.deleteImmediate(ctx, mapping, row)
		default:
			row := transform.Apply(entries, ev.After, ev.QualifiedSourceTable(), w.reg, w.log)
			w.appendBatch(mapping, row)
		}
		w.stats.RecordEvent()
		metrics.EventsProcessed.WithLabelValues(w.name).Inc()
	}
}

func (w *Worker) handleInitRow(ctx context.Context, ev event.InitRowEvent) {
	mapping := w.idx.byName[ev.MappingID]
	if mapping == nil {
		return
	}
	if !w.ensureConnection(ctx) {
		w.stats.RecordError()
		metrics.WorkerErrors.WithLabelValues("target", w.name).Inc()
		return
	}

	f := filter.Filter(mapping.Filter)
	pass, err := filter.Apply(ev.Row, f)
	if err != nil || !pass {
		metrics.EventsFiltered.WithLabelValues(w.name).Inc()
		return
	}
	entries := toColumnEntries(mapping.Columns)
	qualifiedSource := mapping.Source + "." + mapping.SourceTable
	row := transform.Apply(entries, ev.Row, qualifiedSource, w.reg, w.log)
	w.appendInitBatch(mapping, row)
	w.stats.RecordEvent()
	metrics.EventsProcessed.WithLabelValues(w.name).Inc()
}

func (w *Worker) ensureConnection(ctx context.Context) bool {
	_, err := w.pool.ReconnectIfNeeded(ctx, w.name)
	return err == nil
}

func (w *Worker) appendBatch(mapping *config.TableMap, row sqlbuilder.Row) {
	w.appendTo(w.batches, mapping, row)
}

func (w *Worker) appendInitBatch(mapping *config.TableMap, row sqlbuilder.Row) {
	w.appendTo(w.initBatches, mapping, row)
}

func (w *Worker) appendTo(set map[string]*batch, mapping *config.TableMap, row sqlbuilder.Row) {
	w.mu.Lock()
	key := mapping.TargetTable + "|" + row.Fingerprint()
	b, ok := set[key]
	if !ok {
		b = newBatch(mapping.TargetTable, mapping.PrimaryKey)
		set[key] = b
	}
	b.add(row)
	due := b.dueBySize(w.batchSize)
	w.mu.Unlock()

	if due {
		w.flushOne(context.Background(), set, key)
	}
}

// flushDue flushes every accumulator (from both the streaming and init
// batch sets) whose flush interval has elapsed.
func (w *Worker) flushDue(ctx context.Context) {
	w.flushDueSet(ctx, w.batches)
	w.flushDueSet(ctx, w.initBatches)
}

func (w *Worker) flushDueSet(ctx context.Context, set map[string]*batch) {
	w.mu.Lock()
	var keys []string
	for k, b := range set {
		if b.dueByInterval(w.flushInterval) {
			keys = append(keys, k)
		}
	}
	w.mu.Unlock()
	for _, k := range keys {
		w.flushOne(ctx, set, k)
	}
}

func (w *Worker) flushAll(ctx context.Context) {
	w.mu.Lock()
	var batchKeys, initKeys []string
	for k := range w.batches {
		batchKeys = append(batchKeys, k)
	}
	for k := range w.initBatches {
		initKeys = append(initKeys, k)
	}
	w.mu.Unlock()
	for _, k := range batchKeys {
		w.flushOne(ctx, w.batches, k)
	}
	for _, k := range initKeys {
		w.flushOne(ctx, w.initBatches, k)
	}
}

func (w *Worker) flushOne(ctx context.Context, set map[string]*batch, key string) {
	w.mu.Lock()
	b, ok := set[key]
	if !ok || len(b.rows) == 0 {
		w.mu.Unlock()
		return
	}
	rows := b.rows
	table := b.table
	pk := b.pk
	b.rows = nil
	b.lastFlush = time.Now()
	w.mu.Unlock()

	ctx, span := tracing.Tracer.Start(ctx, "TargetFlush", trace.WithAttributes(
		attribute.String("target", w.name),
		attribute.String("table", table),
		attribute.Int("rows", len(rows)),
	))
	defer span.End()

	stmt, values, err := sqlbuilder.BatchUpsert(table, rows, pk)
	if err != nil {
		w.log.Error().Err(err).Str("table", table).Msg("failed to build batch upsert, dropping batch")
		w.stats.RecordError()
		metrics.WorkerErrors.WithLabelValues("target", w.name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	err = retryWithBackoff(ctx, func() error {
		_, execErr := w.pool.BatchExecute(ctx, w.name, stmt, values)
		return execErr
	})
	if err != nil {
		w.log.Error().Err(err).Str("table", table).Int("rows", len(rows)).Msg("batch write failed after retries, dropping batch")
		w.stats.RecordError()
		metrics.BatchWriteFailures.WithLabelValues(w.name).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	metrics.BatchWrites.WithLabelValues(w.name).Inc()
	span.SetStatus(codes.Ok, "flushed")
	w.log.Debug().Str("table", table).Int("rows", len(rows)).Msg("batch flushed")
}

// flushTableBatches flushes every pending accumulator for table, in both
// the streaming and init batch sets, keyed by "table|fingerprint" across
// however many distinct fingerprints (column shapes) that table has seen.
// Called before an immediate delete so a prior, not-yet-due Insert for
// the same row can never land after the delete it should have preceded.
func (w *Worker) flushTableBatches(ctx context.Context, table string) {
	prefix := table + "|"
	w.flushTableBatchesIn(ctx, w.batches, prefix)
	w.flushTableBatchesIn(ctx, w.initBatches, prefix)
}

func (w *Worker) flushTableBatchesIn(ctx context.Context, set map[string]*batch, prefix string) {
	w.mu.Lock()
	var keys []string
	for k := range set {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	w.mu.Unlock()
	for _, k := range keys {
		w.flushOne(ctx, set, k)
	}
}

func (w *Worker) deleteImmediate(ctx context.Context, mapping *config.TableMap, row sqlbuilder.Row) {
	w.flushTableBatches(ctx, mapping.TargetTable)

	stmt, values, err := sqlbuilder.Delete(mapping.TargetTable, row, mapping.PrimaryKey)
	if err != nil {
		w.log.Error().Err(err).Str("table", mapping.TargetTable).Msg("failed to build delete statement")
		w.stats.RecordError()
		return
	}
	err = retryWithBackoff(ctx, func() error {
		_, execErr := w.pool.Execute(ctx, w.name, stmt, values)
		return execErr
	})
	if err != nil {
		w.log.Error().Err(err).Str("table", mapping.TargetTable).Msg("delete failed after retries")
		w.stats.RecordError()
	}
}
