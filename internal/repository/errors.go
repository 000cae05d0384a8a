// Package repository implements store.Store on MySQL through sqlx.  The
// sentinel errors below are the store package's, so callers can test with
// errors.Is against either name.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/travel-booking/internal/store"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = store.ErrNotFound

// ErrDuplicate is returned when an insert hits a unique key.
var ErrDuplicate = store.ErrDuplicate

const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// translate maps driver errors onto the sentinels.  Anything else is
// returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
	}
	return err
}

// retryable reports whether InnoDB aborted the transaction to break a
// deadlock or a lock wait, in which case the whole unit may be re-run.
func retryable(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlDeadlockDetected || me.Number == mysqlLockWaitTimeout)
}
