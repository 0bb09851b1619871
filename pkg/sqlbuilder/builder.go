package sqlbuilder

import "strings"

// Upsert builds INSERT INTO table (cols) VALUES (...) ON DUPLICATE KEY
// UPDATE col=VALUES(col), ... over every column except pk. If pk is the
// only column present, the update clause falls back to pk=VALUES(pk) so
// the statement stays syntactically valid.
func Upsert(table string, row Row, pk string) (string, []any, error) {
	if len(row.Columns) == 0 {
		return "", nil, ErrEmptyRow
	}
	qTable, err := QuoteIdent(table)
	if err != nil {
		return "", nil, err
	}

	cols := make([]string, len(row.Columns))
	placeholders := make([]string, len(row.Columns))
	values := make([]any, len(row.Columns))
	for i, c := range row.Columns {
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		cols[i] = qc
		placeholders[i] = "?"
		values[i] = row.valueAt(i)
	}

	var updateParts []string
	for _, c := range row.Columns {
		if c == pk {
			continue
		}
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		updateParts = append(updateParts, qc+" = VALUES("+qc+")")
	}
	if len(updateParts) == 0 {
		qpk, err := QuoteIdent(pk)
		if err != nil {
			return "", nil, err
		}
		updateParts = []string{qpk + " = VALUES(" + qpk + ")"}
	}

	stmt := "INSERT INTO " + qTable + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON DUPLICATE KEY UPDATE " +
		strings.Join(updateParts, ", ")
	return stmt, values, nil
}

// Delete builds DELETE FROM table WHERE pk = ?.
func Delete(table string, row Row, pk string) (string, []any, error) {
	val, ok := row.get(pk)
	if !ok {
		return "", nil, ErrMissingPK
	}
	qTable, err := QuoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	qpk, err := QuoteIdent(pk)
	if err != nil {
		return "", nil, err
	}
	stmt := "DELETE FROM " + qTable + " WHERE " + qpk + " = ?"
	return stmt, []any{val}, nil
}

// Insert builds a plain INSERT INTO table (cols) VALUES (...).
func Insert(table string, row Row) (string, []any, error) {
	if len(row.Columns) == 0 {
		return "", nil, ErrEmptyRow
	}
	qTable, err := QuoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, len(row.Columns))
	placeholders := make([]string, len(row.Columns))
	values := make([]any, len(row.Columns))
	for i, c := range row.Columns {
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		cols[i] = qc
		placeholders[i] = "?"
		values[i] = row.valueAt(i)
	}
	stmt := "INSERT INTO " + qTable + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ")"
	return stmt, values, nil
}

// Update builds UPDATE table SET col=?, ... WHERE pk = ?.
func Update(table string, row Row, pk string) (string, []any, error) {
	if len(row.Columns) == 0 {
		return "", nil, ErrEmptyRow
	}
	pkVal, ok := row.get(pk)
	if !ok {
		return "", nil, ErrMissingPK
	}
	qTable, err := QuoteIdent(table)
	if err != nil {
		return "", nil, err
	}

	var setParts []string
	var values []any
	for _, c := range row.Columns {
		if c == pk {
			continue
		}
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		setParts = append(setParts, qc+" = ?")
		values = append(values, row.Values[c])
	}
	if len(setParts) == 0 {
		return "", nil, ErrNothingToUpdate
	}

	qpk, err := QuoteIdent(pk)
	if err != nil {
		return "", nil, err
	}
	values = append(values, pkVal)
	stmt := "UPDATE " + qTable + " SET " + strings.Join(setParts, ", ") + " WHERE " + qpk + " = ?"
	return stmt, values, nil
}

// BatchUpsert builds a single ON DUPLICATE KEY UPDATE statement fixed to
// the column set of rows[0], and the parallel per-row value slices for
// executing it with database/sql's ExecContext in a loop (Go's
// database/sql has no native executemany; the batch fingerprint guarantee
// upstream in the target worker ensures every row here shares rows[0]'s
// columns, so the statement is safe to reuse for all of them).
func BatchUpsert(table string, rows []Row, pk string) (string, [][]any, error) {
	if len(rows) == 0 {
		return "", nil, ErrEmptyBatch
	}
	first := rows[0]
	if len(first.Columns) == 0 {
		return "", nil, ErrEmptyRow
	}
	qTable, err := QuoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	cols := make([]string, len(first.Columns))
	placeholders := make([]string, len(first.Columns))
	for i, c := range first.Columns {
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		cols[i] = qc
		placeholders[i] = "?"
	}
	var updateParts []string
	for _, c := range first.Columns {
		if c == pk {
			continue
		}
		qc, err := QuoteIdent(c)
		if err != nil {
			return "", nil, err
		}
		updateParts = append(updateParts, qc+" = VALUES("+qc+")")
	}
	if len(updateParts) == 0 {
		qpk, err := QuoteIdent(pk)
		if err != nil {
			return "", nil, err
		}
		updateParts = []string{qpk + " = VALUES(" + qpk + ")"}
	}

	stmt := "INSERT INTO " + qTable + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON DUPLICATE KEY UPDATE " +
		strings.Join(updateParts, ", ")

	valuesList := make([][]any, len(rows))
	for i, r := range rows {
		rowValues := make([]any, len(first.Columns))
		for j, c := range first.Columns {
			rowValues[j] = r.Values[c]
		}
		valuesList[i] = rowValues
	}
	return stmt, valuesList, nil
}
