package transform

// ColumnMap is the full object form of a column mapping entry: it is
// always one of passthrough (Transform == "" && !HasStatic), transform
// (Transform != ""), or static (HasStatic). Transform and HasStatic are
// mutually exclusive. The "string OR object" shorthand accepted by
// configuration files is resolved into this shape before it ever reaches
// the transform engine (see pkg/config), matching the design note that
// inside the core every ColumnMap is the full object form.
type ColumnMap struct {
	Column     string
	Transform  string
	Static     any
	HasStatic  bool
	PrimaryKey bool
}

// ColumnEntry pairs a source column name with its mapping. Entries are
// kept in a slice, not a map, because resolution order matters (duplicate
// source column fan-out) and output column order must be deterministic
// for the SQL builder.
type ColumnEntry struct {
	SourceColumn string
	Map          ColumnMap
}
