// Package source runs one binlog stream per configured SourceSpec,
// translating each row event into a typed event.BinlogEvent and
// publishing it on the bus addressed to every target subscribed to that
// source table. A transport error (stream closed, connection lost)
// ends the worker; the supervisor restarts it.
package source

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-mysql-org/go-mysql/canal"
	binlogpos "github.com/go-mysql-org/go-mysql/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/user/myreplicate/pkg/bus"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/dbpool"
	"github.com/user/myreplicate/pkg/etlerr"
	"github.com/user/myreplicate/pkg/event"
	"github.com/user/myreplicate/pkg/tracing"
)

// TablePair identifies one (schema, table) the mapping config names as
// belonging to a source, used to scope that source's binlog stream down
// to only the tables it actually replicates.
type TablePair struct {
	Schema string
	Table  string
}

// Worker tails one source's binlog via canal and fans each row event out
// to the bus. One Worker exists per configured SourceSpec.
type Worker struct {
	name   string
	spec   config.SourceSpec
	tables []TablePair
	pool   *dbpool.Pool
	bus    *bus.Bus
	log    zerolog.Logger

	mu    sync.Mutex
	canal *canal.Canal
	stats event.WorkerStats
}

// New constructs a Worker for spec, scoped to tables (the union of
// (schema, table) pairs this source feeds per the mapping config). pool
// is the shared connection pool, already opened against name by the
// supervisor, used only to fetch the starting master status. The canal
// client itself is created lazily by Run so construction never touches
// the network.
func New(name string, spec config.SourceSpec, tables []TablePair, pool *dbpool.Pool, b *bus.Bus, log zerolog.Logger) *Worker {
	return &Worker{name: name, spec: spec, tables: tables, pool: pool, bus: b, log: log.With().Str("source", name).Logger()}
}

// Stats returns a snapshot of the worker's counters.
func (w *Worker) Stats() event.WorkerStats {
	return w.stats.Snapshot()
}

// Run opens the canal client and streams row events until ctx is
// cancelled or a transport error ends the stream. It always returns with
// the canal client closed.
func (w *Worker) Run(ctx context.Context) error {
	w.stats.SetRunning(true)
	defer w.stats.SetRunning(false)

	if ms, err := w.pool.MasterStatus(ctx, w.name); err != nil {
		w.log.Warn().Err(err).Msg("failed to fetch master status, starting stream anyway")
	} else {
		w.log.Info().Str("file", ms.File).Uint32("pos", ms.Position).Msg("starting binlog coordinates")
	}

	c, err := w.openCanal()
	if err != nil {
		return &etlerr.TransportError{Source: w.name, Err: err}
	}
	w.mu.Lock()
	w.canal = c
	w.mu.Unlock()
	defer c.Close()

	handler := &rowHandler{worker: w}
	c.SetEventHandler(handler)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- w.startFrom(c) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-runErrCh:
		if err != nil {
			w.stats.RecordError()
			return &etlerr.TransportError{Source: w.name, Err: err}
		}
		return nil
	}
}

func (w *Worker) startFrom(c *canal.Canal) error {
	if w.spec.ResumeStream && w.spec.LogFile != "" {
		return c.RunFrom(binlogpos.Position{Name: w.spec.LogFile, Pos: w.spec.LogPos})
	}
	return c.Run()
}

func (w *Worker) openCanal() (*canal.Canal, error) {
	cfg := canal.NewDefaultConfig()
	cfg.Addr = fmt.Sprintf("%s:%d", w.spec.Host, nonZeroPort(w.spec.Port))
	cfg.User = w.spec.User
	cfg.Password = w.spec.Password
	cfg.ServerID = w.spec.ServerID
	cfg.Dump.ExecutionPath = ""
	cfg.IncludeTableRegex = tableRegexes(w.tables)
	return canal.NewCanal(cfg)
}

// tableRegexes turns the worker's mapped (schema, table) pairs into the
// anchored regexes canal matches "schema.table" against, so the stream
// decodes only the tables this source actually feeds, not every table in
// the instance.
func tableRegexes(tables []TablePair) []string {
	patterns := make([]string, 0, len(tables))
	for _, t := range tables {
		patterns = append(patterns, "^"+regexp.QuoteMeta(t.Schema)+"\\."+regexp.QuoteMeta(t.Table)+"$")
	}
	return patterns
}

func nonZeroPort(p int) int {
	if p == 0 {
		return 3306
	}
	return p
}

// publish fans ev out as a Message. Binlog events are addressed to no
// particular target (empty TargetName): the target worker resolves
// which of its mappings apply to (source, schema, table) on receipt, per
// spec.md's Data Model note that a BinlogEvent's TargetName restricts
// delivery only when explicitly set.
func (w *Worker) publish(ev event.BinlogEvent) {
	_, span := tracing.Tracer.Start(context.Background(), "SourceRead", trace.WithAttributes(
		attribute.String("source", w.name),
		attribute.String("schema", ev.Schema),
		attribute.String("table", ev.Table),
		attribute.String("op", string(ev.Op)),
	))
	defer span.End()

	ev.ID = uuid.NewString()
	ev.Source = w.name
	msg := event.NewMessage(event.KindBinlogEvent, w.name, "", ev)
	if !w.bus.Publish(msg) {
		w.stats.RecordError()
		span.SetStatus(codes.Error, "bus publish rejected")
		return
	}
	span.SetAttributes(attribute.String("message_id", ev.ID))
	span.SetStatus(codes.Ok, "published")
	w.stats.RecordEvent()
}

type rowHandler struct {
	canal.DummyEventHandler
	worker *Worker
}

func (h *rowHandler) OnRow(e *canal.RowsEvent) error {
	schema := e.Table.Schema
	table := e.Table.Name

	switch e.Action {
	case canal.InsertAction:
		for _, r := range e.Rows {
			h.worker.publish(event.BinlogEvent{
				Op: event.OpInsert, Schema: schema, Table: table,
				Values: decodeRow(e, r),
			})
		}
	case canal.DeleteAction:
		for _, r := range e.Rows {
			h.worker.publish(event.BinlogEvent{
				Op: event.OpDelete, Schema: schema, Table: table,
				Values: decodeRow(e, r),
			})
		}
	case canal.UpdateAction:
		for i := 0; i+1 < len(e.Rows); i += 2 {
			h.worker.publish(event.BinlogEvent{
				Op: event.OpUpdate, Schema: schema, Table: table,
				Before: decodeRow(e, e.Rows[i]),
				After:  decodeRow(e, e.Rows[i+1]),
			})
		}
	}
	return nil
}

func decodeRow(e *canal.RowsEvent, r []any) event.Row {
	row := make(event.Row, len(e.Table.Columns))
	for i, col := range e.Table.Columns {
		val := r[i]
		if b, ok := val.([]byte); ok {
			val = string(b)
		}
		row[col.Name] = val
	}
	return row
}
