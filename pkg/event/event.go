// Package event defines the wire types that flow across the message bus:
// binlog-derived row changes, snapshot rows, and the envelope that
// addresses them to a target.
package event

import (
	"fmt"
	"time"
)

// Operation tags a BinlogEvent's variant. There is no Go interface
// hierarchy here: a single struct carries every variant's fields and
// Operation says which ones are populated, matching the "no inheritance
// for a closed three-case sum type" design note.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Row is a column-name to scalar-or-nil mapping, the shape every binlog
// row and snapshot row arrives in before mapping/filter/transform.
type Row map[string]any

// BinlogEvent is a single row change observed on a source's binary log.
// Insert and Delete populate Values; Update populates Before and After.
// LogFile/LogPos are not filled in by the source worker: every
// BinlogEvent it publishes carries them as zero values.
type BinlogEvent struct {
	ID     string
	Op     Operation
	Source string
	Schema string
	Table  string
	Values Row // Insert, Delete
	Before Row // Update
	After  Row // Update
	LogFile string
	LogPos  uint32
}

// QualifiedSourceTable returns "schema.table", the form transforms and
// filters receive as the source-table argument.
func (e BinlogEvent) QualifiedSourceTable() string {
	return e.Schema + "." + e.Table
}

// InitRowEvent is one untransformed row produced by the init worker's
// paginated snapshot query. It carries the mapping name, not the
// mapping's column map or filter: the target worker looks the mapping up
// by MappingID, then filters and transforms the row the same way it
// handles a binlog Insert.
type InitRowEvent struct {
	ID            string
	MappingID     string
	Source        string
	Target        string
	TargetTable   string
	PrimaryKey    string
	Row           Row
}

// Kind identifies a Message's payload shape for bus dispatch.
type Kind string

const (
	KindBinlogEvent  Kind = "binlog_event"
	KindInitRowEvent Kind = "init_row_event"
	KindShutdown     Kind = "shutdown"
	KindError        Kind = "error"
	KindHeartbeat    Kind = "heartbeat"
)

// Message is the addressed envelope carried on the bus. TargetName is
// empty for a BinlogEvent that has not yet been resolved to a single
// target (broadcast to every target subscribed for that source); an
// InitRowEvent always carries a TargetName since the init worker already
// knows which target it is snapshotting into.
type Message struct {
	ID         string
	Kind       Kind
	SourceName string
	TargetName string
	Data       any
	Timestamp  time.Time
}

// NewMessage stamps the current time and derives the id as
// "<source>_<unix_millis>", matching the bus's own message id scheme.
func NewMessage(kind Kind, sourceName, targetName string, data any) Message {
	ts := time.Now()
	return Message{
		ID:         fmt.Sprintf("%s_%d", sourceName, ts.UnixMilli()),
		Kind:       kind,
		SourceName: sourceName,
		TargetName: targetName,
		Data:       data,
		Timestamp:  ts,
	}
}
