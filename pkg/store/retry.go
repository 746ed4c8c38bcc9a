// retry.go provides automatic retry logic for transient database errors.
//
// WAL-mode SQLite can report SQLITE_BUSY, SQLITE_LOCKED and
// IOERR_SHORT_READ (522) when several listeners share one log file; the
// busy_timeout pragma only covers the first at the connection level.
// PostgreSQL reports serialization failures (40001) and deadlocks (40P01)
// that succeed when the statement is simply run again.
package store

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/lib/pq"
)

// retryConfig controls retry behavior for transient errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// defaultRetryConfig is used for all store write operations.
var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// transientPQCodes are PostgreSQL SQLSTATEs worth retrying.
var transientPQCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
}

// isTransientErr reports whether err can be resolved by retrying.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientPQCodes[pqErr.Code]
	}
	return isTransientSQLiteErr(err)
}

// isTransientSQLiteErr matches the error text produced by modernc.org/sqlite.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",   // SQLITE_BUSY
		"(6)",   // SQLITE_LOCKED
		"(522)", // SQLITE_IOERR_SHORT_READ
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOp runs fn, retrying transient errors with exponential backoff and
// jitter. Success or a permanent error returns immediately.
func retryOp(cfg retryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientErr(lastErr) {
			return lastErr
		}
		if attempt < cfg.maxRetries {
			time.Sleep(backoffDelay(cfg, attempt))
		}
	}
	return lastErr
}

// backoffDelay is baseDelay * 2^attempt capped at maxDelay, plus a random
// jitter in [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := cfg.baseDelay << uint(attempt)
	if delay > cfg.maxDelay {
		delay = cfg.maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(cfg.baseDelay)))
	return delay + jitter
}
