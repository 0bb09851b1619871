package target

import (
	"context"
	"math/rand"
	"time"

	"github.com/user/myreplicate/pkg/sqlbuilder"
)

// batch accumulates rows destined for one (target table, column set)
// combination until it is flushed by size or by interval.
type batch struct {
	table     string
	pk        string
	rows      []sqlbuilder.Row
	lastFlush time.Time
}

func newBatch(table, pk string) *batch {
	return &batch{table: table, pk: pk, lastFlush: time.Now()}
}

func (b *batch) add(row sqlbuilder.Row) {
	b.rows = append(b.rows, row)
}

func (b *batch) dueBySize(limit int) bool { return len(b.rows) >= limit }

func (b *batch) dueByInterval(interval time.Duration) bool {
	return len(b.rows) > 0 && time.Since(b.lastFlush) >= interval
}

const (
	retryMaxAttempts = 3
	retryBaseDelay   = time.Second
	retryCapDelay    = 60 * time.Second
)

// retryWithBackoff runs op up to retryMaxAttempts+1 times total, applying
// exponential backoff (base 1s, doubling, capped at 60s) with +-50%
// jitter between attempts, per spec.md's flush retry policy. It returns
// op's last error if every attempt fails.
func retryWithBackoff(ctx context.Context, op func() error) error {
	return retryWithBackoffConfig(ctx, retryBaseDelay, retryCapDelay, op)
}

func retryWithBackoffConfig(ctx context.Context, base, cap time.Duration, op func() error) error {
	var err error
	for attempt := 0; attempt <= retryMaxAttempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == retryMaxAttempts {
			break
		}
		delay := base * time.Duration(uint64(1)<<uint(attempt))
		if delay > cap {
			delay = cap
		}
		jitter := 0.5 + rand.Float64()
		wait := time.Duration(float64(delay) * jitter)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
