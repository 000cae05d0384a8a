package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/travel-booking/internal/store"
)

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*tx)(nil)
)

// txAttempts bounds how often InTx re-runs a unit aborted by InnoDB.
const txAttempts = 3

// Store is the MySQL store.  Reads outside a transaction run directly on
// the pool.
type Store struct {
	queries
	db *sqlx.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// queries holds the statements shared by the pool and transactions.
type queries struct {
	q sqlx.ExtContext
}

// tx is a store.Tx over one SERIALIZABLE transaction.
type tx struct {
	queries
}

// InTx runs fn in a SERIALIZABLE transaction.  The transaction commits
// when fn returns nil and rolls back otherwise.  Only InnoDB aborts
// (deadlock 1213, lock wait timeout 1205) re-run fn, from scratch and at
// most txAttempts times, so fn must re-read everything it checks and must
// not keep state across calls.  Other errors return at once.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = s.inTx(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
		}
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(ctx, &tx{queries{q: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

// now is the timestamp written to created_at/updated_at columns.  DATETIME
// keeps whole seconds.
func now() time.Time { return time.Now().UTC().Truncate(time.Second) }
