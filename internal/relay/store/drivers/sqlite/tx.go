package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/saathi/internal/relay/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer Store owns the database.
func (t *txStore) Close() error { return nil }

func (t *txStore) Ping(context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error { return sql.ErrTxDone }

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Users() store.Users         { return &usersRepo{db: t.tx} }
func (t *txStore) Referrals() store.Referrals { return &referralsRepo{db: t.tx} }
func (t *txStore) Services() store.Services   { return &servicesRepo{db: t.tx} }
func (t *txStore) Messages() store.Messages   { return &messagesRepo{db: t.tx} }
