package target

import (
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/transform"
)

// toColumnEntries adapts the configuration-file shape of a column mapping
// into the transform engine's resolved shape. The two packages keep
// separate types deliberately: config.ColumnMap is what YAML decodes
// into (HasValue distinguishing "no static value" from "static value
// nil"), transform.ColumnMap is the post-resolution three-way sum type
// the engine dispatches on.
func toColumnEntries(columns []config.ColumnMapEntry) []transform.ColumnEntry {
	out := make([]transform.ColumnEntry, len(columns))
	for i, c := range columns {
		out[i] = transform.ColumnEntry{
			SourceColumn: c.SourceColumn,
			Map: transform.ColumnMap{
				Column:     c.Map.Column,
				Transform:  c.Map.Transform,
				Static:     c.Map.Value,
				HasStatic:  c.Map.HasValue,
				PrimaryKey: c.Map.PrimaryKey,
			},
		}
	}
	return out
}
