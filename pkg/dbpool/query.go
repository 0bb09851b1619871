package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/user/myreplicate/pkg/etlerr"
)

// Execute runs stmt with args against name and returns the affected row
// count. A Command Out of Sync error evicts the connection so the next
// call against name reconnects.
func (p *Pool) Execute(ctx context.Context, name, stmt string, args []any) (int64, error) {
	db, err := p.conn(name)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, p.withOutOfSyncEviction(name, err)
	}
	return res.RowsAffected()
}

// BatchExecute runs stmt once per row in rows inside a single
// transaction, returning the total affected row count. The transaction
// gives "all rows in this batch or none" semantics, matching the target
// worker's all-or-nothing-then-retry batch contract.
func (p *Pool) BatchExecute(ctx context.Context, name, stmt string, rows [][]any) (int64, error) {
	db, err := p.conn(name)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, p.withOutOfSyncEviction(name, err)
	}
	defer tx.Rollback()

	var total int64
	for _, args := range rows {
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return 0, p.withOutOfSyncEviction(name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, p.withOutOfSyncEviction(name, err)
	}
	return total, nil
}

// MasterStatus holds the binlog coordinates reported by SHOW MASTER STATUS.
type MasterStatus struct {
	File     string
	Position uint32
	DoDB     string
	IgnoreDB string
	GTIDSet  string
}

// MasterStatus opens a short-lived side connection from name's retained
// spec and returns the binlog coordinates from SHOW MASTER STATUS.
func (p *Pool) MasterStatus(ctx context.Context, name string) (MasterStatus, error) {
	p.mu.Lock()
	e, ok := p.entries[name]
	p.mu.Unlock()
	if !ok {
		return MasterStatus{}, fmt.Errorf("%w: %s: not opened", etlerr.ErrConnectFailed, name)
	}
	db, err := openConn(e.spec)
	if err != nil {
		return MasterStatus{}, fmt.Errorf("%w: %s: %v", etlerr.ErrConnectFailed, name, err)
	}
	defer db.Close()
	row := db.QueryRowContext(ctx, "SHOW MASTER STATUS")
	var ms MasterStatus
	var doDB, ignoreDB, gtidSet sql.NullString
	if err := row.Scan(&ms.File, &ms.Position, &doDB, &ignoreDB, &gtidSet); err != nil {
		return MasterStatus{}, fmt.Errorf("show master status on %s: %w", name, err)
	}
	ms.DoDB = doDB.String
	ms.IgnoreDB = ignoreDB.String
	ms.GTIDSet = gtidSet.String
	return ms, nil
}

// IsTableEmpty probes qualifiedName with a cheap SELECT 1 ... LIMIT 1
// rather than a full COUNT(*), since only presence/absence matters. Any
// error is treated as "not empty", the safe direction for a caller
// deciding whether to skip an init snapshot.
func (p *Pool) IsTableEmpty(ctx context.Context, name, qualifiedName string) bool {
	db, err := p.conn(name)
	if err != nil {
		return false
	}
	row := db.QueryRowContext(ctx, "SELECT 1 FROM "+qualifiedName+" LIMIT 1")
	var discard int
	if err := row.Scan(&discard); err != nil {
		return err == sql.ErrNoRows
	}
	return false
}

// Paginate runs query with LIMIT pageSize OFFSET offset, eagerly
// draining the cursor (required to avoid leaving an in-flight result set
// that would trigger a 2014 on the connection's next use), and reports
// hasMore = len(rows) == pageSize.
func (p *Pool) Paginate(ctx context.Context, name, query string, pageSize, offset int) (rows []map[string]any, hasMore bool, err error) {
	db, dbErr := p.conn(name)
	if dbErr != nil {
		return nil, false, dbErr
	}
	paged := fmt.Sprintf("%s LIMIT %d OFFSET %d", query, pageSize, offset)
	res, qErr := db.QueryContext(ctx, paged)
	if qErr != nil {
		return nil, false, p.withOutOfSyncEviction(name, qErr)
	}
	defer res.Close()

	cols, err := res.Columns()
	if err != nil {
		return nil, false, err
	}
	for res.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := res.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = dest[i]
		}
		rows = append(rows, row)
	}
	if err := res.Err(); err != nil {
		return nil, false, p.withOutOfSyncEviction(name, err)
	}
	return rows, len(rows) == pageSize, nil
}

var trailingOrderBy = regexp.MustCompile(`(?is)\s+order\s+by\s+.*$`)

// CountEstimate rewrites query's outer SELECT ... FROM ... into
// SELECT COUNT(*) FROM (query) AS count_query, stripping a trailing
// ORDER BY first (ORDER BY inside a COUNT(*) subquery is pure overhead).
// Returns -1 on any failure so the caller can proceed without an ETA.
func (p *Pool) CountEstimate(ctx context.Context, name, query string) int64 {
	db, err := p.conn(name)
	if err != nil {
		return -1
	}
	stripped := strings.TrimSpace(trailingOrderBy.ReplaceAllString(query, ""))
	wrapped := "SELECT COUNT(*) FROM (" + stripped + ") AS count_query"
	var count int64
	if err := db.QueryRowContext(ctx, wrapped).Scan(&count); err != nil {
		return -1
	}
	return count
}
