package sqlbuilder

import "errors"

// ErrEmptyRow is returned by Upsert/Insert when the row has no columns.
var ErrEmptyRow = errors.New("sqlbuilder: row is empty")

// ErrMissingPK is returned by Delete/Update when the primary key column is
// absent from the row.
var ErrMissingPK = errors.New("sqlbuilder: primary key not present in row")

// ErrNothingToUpdate is returned by Update when the row carries only the
// primary key and no other column to set.
var ErrNothingToUpdate = errors.New("sqlbuilder: no columns to update besides primary key")

// ErrEmptyBatch is returned by BatchUpsert when the row list is empty.
var ErrEmptyBatch = errors.New("sqlbuilder: batch is empty")
