// Package repository implements MySQL persistence for users, games, game
// instances and reviews, plus the redis side cache for game lookups.
// Missing rows are reported as sql.ErrNoRows; unique key violations as
// ErrDuplicate.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicate is returned when an insert or update violates a unique key.
// Callers that race on the same key treat it as "someone else created it".
var ErrDuplicate = errors.New("duplicate key")

// DuplicateError names the unique key that was violated.
type DuplicateError struct{ Key string }

func (e *DuplicateError) Error() string { return "duplicate key " + e.Key }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// classify converts MySQL error 1062 into a *DuplicateError and returns any
// other error unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return &DuplicateError{Key: duplicateKeyName(me.Message)}
	}
	return err
}

// duplicateKeyName extracts the key from "Duplicate entry 'x' for key 'users.uq_users_email'".
func duplicateKeyName(msg string) string {
	i := strings.LastIndex(msg, "for key '")
	if i < 0 {
		return ""
	}
	k := strings.TrimSuffix(msg[i+len("for key '"):], "'")
	if j := strings.LastIndex(k, "."); j >= 0 {
		k = k[j+1:]
	}
	return k
}

// withTx runs fn inside a transaction, committing when fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	return fn(tx)
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
