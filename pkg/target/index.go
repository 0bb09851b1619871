package target

import (
	"strings"

	"github.com/user/myreplicate/pkg/config"
)

// mappingIndex resolves an incoming (source, schema, table) triple to the
// TableMap that should handle it, following the three-stage lookup order
// spec.md lays out: exact source+schema+table, then source+short table
// name, then bare schema.table with no source qualifier.
type mappingIndex struct {
	exact  map[string]*config.TableMap // source|schema|table
	short  map[string]*config.TableMap // source|table
	legacy map[string]*config.TableMap // schema.table
	byName map[string]*config.TableMap // mapping name, for InitRowEvent
}

func newMappingIndex(mappings map[string]*config.TableMap) *mappingIndex {
	idx := &mappingIndex{
		exact:  make(map[string]*config.TableMap),
		short:  make(map[string]*config.TableMap),
		legacy: make(map[string]*config.TableMap),
		byName: make(map[string]*config.TableMap),
	}
	for name, m := range mappings {
		idx.byName[name] = m
		parts := splitNonEmpty(m.SourceTable)
		switch len(parts) {
		case 3:
			idx.exact[key(parts[0], parts[1], parts[2])] = m
		case 2:
			idx.exact[key(m.Source, parts[0], parts[1])] = m
			idx.legacy[parts[0]+"."+parts[1]] = m
		case 1:
			idx.short[m.Source+"|"+parts[0]] = m
		}
	}
	return idx
}

func (idx *mappingIndex) resolve(source, schema, table string) *config.TableMap {
	if m, ok := idx.exact[key(source, schema, table)]; ok {
		return m
	}
	if m, ok := idx.short[source+"|"+table]; ok {
		return m
	}
	if m, ok := idx.legacy[schema+"."+table]; ok {
		return m
	}
	return nil
}

func key(source, schema, table string) string {
	return source + "|" + schema + "|" + table
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}
