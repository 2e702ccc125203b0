// Package postgres keeps the catalog and the access chains in PostgreSQL
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/supremind/svcaccess/types"
)

//go:embed schema.sql
var schema string

// indexes keeping one active grant and one active request per access
const (
	oneHeadGrant     = "grants_one_head"
	oneActiveRequest = "requests_one_active"
)

var strictIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + oneHeadGrant + ` ON grants (access_id) WHERE is_head`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + oneActiveRequest + ` ON requests (access_id) WHERE is_head AND resulting_grant_id IS NULL`,
}

var looseIndexes = []string{
	`DROP INDEX IF EXISTS ` + oneHeadGrant,
	`DROP INDEX IF EXISTS ` + oneActiveRequest,
}

var _ types.Store = (*Store)(nil)

// Store runs every unit of work in a read committed transaction
type Store struct {
	db  *sqlx.DB
	log logr.Logger
}

// StoreOption changes a Store
type StoreOption func(*Store)

// WithLogger sets the logger of the store
func WithLogger(l logr.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// Connect opens and pings a database
func Connect(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	db, e := sqlx.ConnectContext(ctx, "postgres", dsn)
	if e != nil {
		return nil, fmt.Errorf("connect postgres: %w", e)
	}
	return New(db, opts...), nil
}

// New creates a Store over an open database
func New(db *sqlx.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, log: logr.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables.
// In strict mode unique indexes back the one active grant and one active request rules.
func (s *Store) Migrate(ctx context.Context, strict bool) error {
	if _, e := s.db.ExecContext(ctx, schema); e != nil {
		return fmt.Errorf("create schema: %w", e)
	}

	stmts := looseIndexes
	if strict {
		stmts = strictIndexes
	}
	for _, stmt := range stmts {
		if _, e := s.db.ExecContext(ctx, stmt); e != nil {
			return fmt.Errorf("migrate indexes: %w", e)
		}
	}

	s.log.Info("schema migrated", "strict", strict)
	return nil
}

// Atomic runs fn in a transaction, committed only if fn returns nil
func (s *Store) Atomic(ctx context.Context, fn func(types.Tx) error) (err error) {
	sqlTx, e := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if e != nil {
		return fmt.Errorf("begin transaction: %w", e)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
		if err != nil {
			if e := sqlTx.Rollback(); e != nil && !errors.Is(e, sql.ErrTxDone) {
				s.log.Error(e, "rollback transaction")
			}
		}
	}()

	if e := fn(&tx{Tx: sqlTx, ctx: ctx}); e != nil {
		return e
	}

	if e := sqlTx.Commit(); e != nil {
		return mapError(e, "commit")
	}
	return nil
}

// mapError turns driver errors into the errors of the types package
func mapError(e error, what string) error {
	if e == nil {
		return nil
	}
	if errors.Is(e, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", types.ErrNotFound, what)
	}

	var pe *pq.Error
	if !errors.As(e, &pe) {
		return fmt.Errorf("%s: %w", what, e)
	}

	switch pe.Code.Name() {
	case "unique_violation":
		switch pe.Constraint {
		case oneHeadGrant, oneActiveRequest, "grants_previous_grant_id_key", "requests_previous_request_id_key":
			return fmt.Errorf("%w: %s: %s", types.ErrConflict, what, pe.Message)
		}
		return fmt.Errorf("%w: %s: %s", types.ErrAlreadyExists, what, pe.Message)
	case "foreign_key_violation":
		return fmt.Errorf("%w: %s: %s", types.ErrNotFound, what, pe.Detail)
	}
	return fmt.Errorf("%s: %w", what, e)
}

type tx struct {
	*sqlx.Tx
	ctx context.Context
}

// insert runs a named insert returning the new id
func (t *tx) insert(what, query string, arg interface{}) (int64, error) {
	q, args, e := sqlx.Named(query, arg)
	if e != nil {
		return 0, fmt.Errorf("%s: %w", what, e)
	}

	var id int64
	if e := t.QueryRowxContext(t.ctx, t.Rebind(q), args...).Scan(&id); e != nil {
		return 0, mapError(e, what)
	}
	return id, nil
}

func (t *tx) get(what string, dest interface{}, query string, args ...interface{}) error {
	return mapError(t.GetContext(t.ctx, dest, query, args...), what)
}

func (t *tx) exec(what, query string, args ...interface{}) (int64, error) {
	res, e := t.ExecContext(t.ctx, query, args...)
	if e != nil {
		return 0, mapError(e, what)
	}
	n, e := res.RowsAffected()
	if e != nil {
		return 0, fmt.Errorf("%s: %w", what, e)
	}
	return n, nil
}
