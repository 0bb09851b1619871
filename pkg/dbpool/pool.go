// Package dbpool is the named connection pool every worker shares: one
// entry per source/target name, opened lazily and health-checked. An
// unresponsive connection, or one that hits a Command Out of Sync (driver
// code 2014), is evicted: closed, with its spec retained, so the next
// ReconnectIfNeeded against that name reopens it.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/etlerr"
)

const (
	connectTimeout = 10 * time.Second
	ioTimeout      = 30 * time.Second
	waitTimeout    = 28800 // seconds, matches MySQL's own default session wait_timeout
)

// outOfSyncErrorCode is the MySQL driver's error number for "Commands
// out of sync; you can't run this command now".
const outOfSyncErrorCode = 2014

type entry struct {
	db   *sql.DB
	spec config.DatabaseSpec
}

// Pool is a single mutex-guarded map of named connections. The mutex is a
// plain (non-re-entrant) sync.Mutex held only around map access; opening,
// pinging and querying a connection run outside it. Connections themselves are not safe to share across goroutines beyond
// what database/sql already guarantees; callers serialize via the
// owning worker, not via the pool.
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     zerolog.Logger
}

// New returns an empty pool. Connections are opened on demand by Open.
func New(log zerolog.Logger) *Pool {
	return &Pool{entries: make(map[string]*entry), log: log}
}

// Open establishes a MySQL connection for name and retains spec so a
// later eviction can reconnect without the caller supplying it again.
func (p *Pool) Open(ctx context.Context, name string, spec config.DatabaseSpec) error {
	db, err := openConn(spec)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", etlerr.ErrConnectFailed, name, err)
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: %s: %v", etlerr.ErrConnectFailed, name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[name] = &entry{db: db, spec: spec}
	return nil
}

func openConn(spec config.DatabaseSpec) (*sql.DB, error) {
	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", spec.Host, nonZeroPort(spec.Port))
	cfg.User = spec.User
	cfg.Passwd = spec.Password
	cfg.DBName = spec.Database
	cfg.Timeout = connectTimeout
	cfg.ReadTimeout = ioTimeout
	cfg.WriteTimeout = ioTimeout
	charset := spec.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	cfg.Params = map[string]string{
		"charset":      charset,
		"wait_timeout": fmt.Sprint(waitTimeout),
	}
	cfg.AllowNativePasswords = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	// database/sql has no session-level autocommit toggle; Execute runs a
	// single statement directly (autocommit) and BatchExecute wraps its
	// rows in one explicit transaction, which is the Go idiom for grouping
	// writes rather than a per-connection autocommit flag.
	return db, nil
}

func nonZeroPort(p int) int {
	if p == 0 {
		return 3306
	}
	return p
}

// conn returns the live *sql.DB for name, or ErrConnectFailed if it was
// never opened.
func (p *Pool) conn(name string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: not opened", etlerr.ErrConnectFailed, name)
	}
	return e.db, nil
}

// Healthy reports whether name's connection is open and responsive. An
// unresponsive connection is evicted and false is returned.
func (p *Pool) Healthy(ctx context.Context, name string) bool {
	db, err := p.conn(name)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		p.evict(name)
		return false
	}
	return true
}

// ReconnectIfNeeded re-opens name from its retained spec if Healthy
// reports false.
func (p *Pool) ReconnectIfNeeded(ctx context.Context, name string) (bool, error) {
	if p.Healthy(ctx, name) {
		return false, nil
	}
	p.mu.Lock()
	e, ok := p.entries[name]
	p.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %s: no retained spec to reconnect from", etlerr.ErrConnectFailed, name)
	}
	if err := p.Open(ctx, name, e.spec); err != nil {
		return false, err
	}
	return true, nil
}

// evict closes name's connection but keeps its entry, so the retained
// spec is still there for ReconnectIfNeeded to reopen from.
func (p *Pool) evict(name string) {
	p.mu.Lock()
	e, ok := p.entries[name]
	p.mu.Unlock()
	if ok && e.db != nil {
		e.db.Close()
	}
}

// Close releases every retained connection. Called once at supervisor
// shutdown.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[string]*entry)
	p.mu.Unlock()
	for name, e := range entries {
		if err := e.db.Close(); err != nil {
			p.log.Warn().Str("name", name).Err(err).Msg("error closing connection")
		}
	}
}

// isOutOfSync reports whether err is MySQL driver error 2014.
func isOutOfSync(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == outOfSyncErrorCode
	}
	return false
}

// withOutOfSyncEviction inspects err from an operation on name's
// connection; on a 2014 error it evicts the connection (so the next
// ReconnectIfNeeded reopens it from the retained spec) and returns
// etlerr.ErrOutOfSync wrapping the original error.
func (p *Pool) withOutOfSyncEviction(name string, err error) error {
	if err != nil && isOutOfSync(err) {
		p.evict(name)
		return fmt.Errorf("%w: %v", etlerr.ErrOutOfSync, err)
	}
	return err
}
