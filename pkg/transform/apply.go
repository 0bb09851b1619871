package transform

import (
	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/sqlbuilder"
)

// Apply resolves every column entry against a source row, producing the
// ordered Row the SQL builder expects. Resolution order per entry is
// static, then transform, then passthrough, matching the original
// apply_column_transforms ordering. A transform failure degrades to the
// untransformed source value rather than dropping the row or the column:
// a single bad column must never cost an entire replicated change.
func Apply(entries []ColumnEntry, sourceRow map[string]any, qualifiedSourceTable string, reg *Registry, log zerolog.Logger) sqlbuilder.Row {
	out := sqlbuilder.NewRowBuilder()
	for _, entry := range entries {
		col := entry.Map.Column
		if col == "" {
			col = entry.SourceColumn
		}

		switch {
		case entry.Map.HasStatic:
			out.Set(col, entry.Map.Static)

		case entry.Map.Transform != "":
			raw := sourceRow[entry.SourceColumn]
			fn, ok := reg.Lookup(entry.Map.Transform)
			if !ok {
				log.Warn().
					Str("transform", entry.Map.Transform).
					Str("column", entry.SourceColumn).
					Msg("transform not found in registry, using original value")
				out.Set(col, raw)
				continue
			}
			out.Set(col, safeInvoke(fn, raw, sourceRow, qualifiedSourceTable, entry.Map.Transform, entry.SourceColumn, log))

		default:
			out.Set(col, sourceRow[entry.SourceColumn])
		}
	}
	return out.Build()
}

// safeInvoke recovers from a panicking transform function the same way the
// original wraps every transform call in try/except: log and fall back to
// the raw value, never propagate the failure to the caller.
func safeInvoke(fn Func, raw any, row map[string]any, table, name, column string, log zerolog.Logger) (result any) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("transform", name).
				Str("column", column).
				Interface("panic", r).
				Msg("transform panicked, using original value")
			result = raw
		}
	}()
	return fn(raw, row, table)
}
