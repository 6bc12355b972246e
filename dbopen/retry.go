package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// A collection pass and a synthesis can overlap on the same file.
// WAL keeps readers out of the way, but two writers still race, so
// write paths retry on BUSY with a short linear backoff.
const (
	busyAttempts = 3
	busyBackoff  = 100 * time.Millisecond
)

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction, retrying the whole transaction
// on BUSY. fn must be safe to call more than once.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		if err = runTxOnce(ctx, db, fn); err == nil || !IsBusy(err) {
			return err
		}
		if attempt < busyAttempts {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return fmt.Errorf("dbopen: retry interrupted: %w", werr)
			}
		}
	}
	return fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, err)
}

func runTxOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec runs one statement with the same BUSY retry as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var err error
	for attempt := 1; attempt <= busyAttempts; attempt++ {
		var res sql.Result
		if res, err = db.ExecContext(ctx, query, args...); err == nil || !IsBusy(err) {
			return res, err
		}
		if attempt < busyAttempts {
			if werr := waitBackoff(ctx, attempt); werr != nil {
				return nil, fmt.Errorf("dbopen: retry interrupted: %w", werr)
			}
		}
	}
	return nil, fmt.Errorf("dbopen: still busy after %d attempts: %w", busyAttempts, err)
}

func waitBackoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * busyBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
