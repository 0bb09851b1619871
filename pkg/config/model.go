// Package config is the typed view of the engine's sources, targets,
// replication position, and table mappings, loaded once at startup from
// YAML and handed to the supervisor as an immutable tree.
package config

import (
	"github.com/user/myreplicate/pkg/etlerr"
	"gopkg.in/yaml.v3"
)

// DatabaseSpec is the connection shape shared by sources and targets.
type DatabaseSpec struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	Charset    string `yaml:"charset"`
	Autocommit bool   `yaml:"autocommit"`
}

func (d DatabaseSpec) validate(role string) error {
	if d.Host == "" {
		return &etlerr.ConfigurationError{Reason: role + ": host is required"}
	}
	if d.User == "" {
		return &etlerr.ConfigurationError{Reason: role + ": user is required"}
	}
	if d.Database == "" {
		return &etlerr.ConfigurationError{Reason: role + ": database is required"}
	}
	if d.Port != 0 && (d.Port < 1 || d.Port > 65535) {
		return &etlerr.ConfigurationError{Reason: role + ": port must be between 1 and 65535"}
	}
	return nil
}

// SourceSpec is a DatabaseSpec plus the binlog-replica identity. It is
// immutable once the supervisor constructs the source worker from it.
type SourceSpec struct {
	Name string `yaml:"-"`
	DatabaseSpec `yaml:",inline"`

	ServerID     uint32 `yaml:"server_id"`
	ResumeStream bool   `yaml:"resume_stream"`
	LogFile      string `yaml:"log_file"`
	LogPos       uint32 `yaml:"log_pos"`
}

func (s SourceSpec) validate() error {
	if err := s.DatabaseSpec.validate("source " + s.Name); err != nil {
		return err
	}
	if s.ServerID == 0 {
		return &etlerr.ConfigurationError{Reason: "source " + s.Name + ": server_id must be positive"}
	}
	return nil
}

// TargetSpec is a DatabaseSpec with no additional fields beyond the
// default database already carried by DatabaseSpec.Database.
type TargetSpec struct {
	Name string `yaml:"-"`
	DatabaseSpec `yaml:",inline"`
}

func (t TargetSpec) validate() error {
	return t.DatabaseSpec.validate("target " + t.Name)
}

// ColumnMap is the configuration-file shape of one column mapping entry,
// accepted either as a bare string (shorthand for {column: <string>}) or
// as a full object. UnmarshalYAML resolves the shorthand so that callers
// downstream (pkg/transform) only ever see the full object form.
type ColumnMap struct {
	Column     string `yaml:"column"`
	PrimaryKey bool   `yaml:"primary_key"`
	Transform  string `yaml:"transform"`
	Value      any    `yaml:"value"`
	HasValue   bool   `yaml:"-"`
}

// UnmarshalYAML implements the "string OR object" shorthand: a bare
// scalar node means {column: <scalar>}; a mapping node decodes normally.
func (c *ColumnMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		c.Column = value.Value
		return nil
	}

	type plain ColumnMap
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = ColumnMap(p)
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "value" {
			c.HasValue = true
		}
	}
	return nil
}

func (c ColumnMap) validate(sourceCol string) error {
	if c.Column == "" {
		return &etlerr.ConfigurationError{Reason: "column mapping for " + sourceCol + ": target column name is required"}
	}
	if c.Transform != "" && c.HasValue {
		return &etlerr.ConfigurationError{Reason: "column mapping for " + sourceCol + ": cannot specify both transform and value"}
	}
	return nil
}

// ColumnMapEntry pairs a source column name with its mapping, kept in a
// slice (not a map) because the mapping is declared in insertion order
// and the same source column may legally repeat for column fan-out -
// neither is representable by a Go map keyed on the source column.
type ColumnMapEntry struct {
	SourceColumn string
	Map          ColumnMap
}

// TableMap identifies one source stream and one target sink, the
// per-table unit the filter and transform engines operate on.
type TableMap struct {
	Name string `yaml:"-"`

	Source      string `yaml:"source"`
	SourceTable string `yaml:"source_table"`
	Target      string `yaml:"target"`
	TargetTable string `yaml:"target_table"`
	PrimaryKey  string `yaml:"primary_key"`
	Columns     []ColumnMapEntry

	Filter map[string]any `yaml:"filter"`

	InitQuery         string `yaml:"init_query"`
	InitIfTargetEmpty bool   `yaml:"init_if_target_empty"`
}

// UnmarshalYAML decodes TableMap by hand so that column_mapping's
// declared key order (and any repeated source column used for fan-out)
// survives into Columns, which a plain map[string]ColumnMap could not
// represent.
func (tm *TableMap) UnmarshalYAML(value *yaml.Node) error {
	type plain struct {
		Source            string         `yaml:"source"`
		SourceTable       string         `yaml:"source_table"`
		Target            string         `yaml:"target"`
		TargetTable       string         `yaml:"target_table"`
		PrimaryKey        string         `yaml:"primary_key"`
		Filter            map[string]any `yaml:"filter"`
		InitQuery         string         `yaml:"init_query"`
		InitIfTargetEmpty bool           `yaml:"init_if_target_empty"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	tm.Source = p.Source
	tm.SourceTable = p.SourceTable
	tm.Target = p.Target
	tm.TargetTable = p.TargetTable
	tm.PrimaryKey = p.PrimaryKey
	tm.Filter = p.Filter
	tm.InitQuery = p.InitQuery
	tm.InitIfTargetEmpty = p.InitIfTargetEmpty

	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		if keyNode.Value != "column_mapping" {
			continue
		}
		mappingNode := value.Content[i+1]
		for j := 0; j < len(mappingNode.Content); j += 2 {
			colKeyNode := mappingNode.Content[j]
			colValNode := mappingNode.Content[j+1]
			var cm ColumnMap
			if err := colValNode.Decode(&cm); err != nil {
				return err
			}
			if cm.Column == "" {
				cm.Column = colKeyNode.Value
			}
			tm.Columns = append(tm.Columns, ColumnMapEntry{SourceColumn: colKeyNode.Value, Map: cm})
		}
	}
	return nil
}

func (tm TableMap) validate() error {
	if tm.TargetTable == "" {
		return &etlerr.ConfigurationError{Reason: "mapping " + tm.Name + ": target_table is required"}
	}
	if tm.PrimaryKey == "" {
		return &etlerr.ConfigurationError{Reason: "mapping " + tm.Name + ": primary_key is required"}
	}
	if len(tm.Columns) == 0 {
		return &etlerr.ConfigurationError{Reason: "mapping " + tm.Name + ": column_mapping is required"}
	}

	pkPresent := false
	targetNames := make(map[string]bool, len(tm.Columns))
	for _, entry := range tm.Columns {
		if err := entry.Map.validate(entry.SourceColumn); err != nil {
			return err
		}
		if entry.Map.PrimaryKey || entry.Map.Column == tm.PrimaryKey {
			pkPresent = true
		}
		if targetNames[entry.Map.Column] {
			return &etlerr.ConfigurationError{Reason: "mapping " + tm.Name + ": target column " + entry.Map.Column + " is mapped more than once"}
		}
		targetNames[entry.Map.Column] = true
	}
	if !pkPresent {
		return &etlerr.ConfigurationError{Reason: "mapping " + tm.Name + ": primary_key " + tm.PrimaryKey + " must appear among column_mapping targets"}
	}
	return nil
}

// MonitoringSpec configures the out-of-core metrics/health endpoint.
type MonitoringSpec struct {
	Port int `yaml:"port"`
}

// Config is the full, validated configuration tree: every source,
// target, and table mapping the supervisor needs to build workers.
type Config struct {
	Sources  map[string]SourceSpec `yaml:"sources"`
	Targets  map[string]TargetSpec `yaml:"targets"`
	Mappings map[string]TableMap   `yaml:"mapping"`

	// PauseReplicationDuringInit gates source worker startup on every
	// init worker reaching completion, so a table's init snapshot is
	// fully written before the live binlog stream for it begins.
	PauseReplicationDuringInit bool           `yaml:"pause_replication_during_init"`
	Monitoring                 MonitoringSpec `yaml:"monitoring"`

	// TransformPlugin, if set, is loaded into the shared transform
	// registry at supervisor startup.
	TransformPlugin string `yaml:"transform_plugin"`
}

// Validate checks every source, target and mapping and cross-references
// that every mapping's source/target names resolve. It also fixes up the
// Name fields the YAML decoder cannot set from map keys. Each mapping's
// declared column order is already fixed by TableMap.UnmarshalYAML.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return &etlerr.ConfigurationError{Reason: "at least one source is required"}
	}
	if len(c.Targets) == 0 {
		return &etlerr.ConfigurationError{Reason: "at least one target is required"}
	}
	if len(c.Mappings) == 0 {
		return &etlerr.ConfigurationError{Reason: "at least one table mapping is required"}
	}

	for name, s := range c.Sources {
		s.Name = name
		if err := s.validate(); err != nil {
			return err
		}
		c.Sources[name] = s
	}
	for name, t := range c.Targets {
		t.Name = name
		if err := t.validate(); err != nil {
			return err
		}
		c.Targets[name] = t
	}
	for name, m := range c.Mappings {
		m.Name = name
		if _, ok := c.Sources[m.Source]; !ok {
			return &etlerr.ConfigurationError{Reason: "mapping " + name + ": source " + m.Source + " not found"}
		}
		if _, ok := c.Targets[m.Target]; !ok {
			return &etlerr.ConfigurationError{Reason: "mapping " + name + ": target " + m.Target + " not found"}
		}
		if err := m.validate(); err != nil {
			return err
		}
		c.Mappings[name] = m
	}
	return nil
}
