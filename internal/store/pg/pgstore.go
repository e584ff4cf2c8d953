// Package pg persists the role graph and its audit trail in Postgres.
// Every operation goes through the connection pool so the circuit breaker
// sees the outcome, and every mutation writes its audit row inside the
// same transaction.
package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"claviger.org/internal/pool"
	"claviger.org/internal/rbac"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements rbac.RoleGraphStore on Postgres.
type Store struct {
	pool *pool.Pool
}

var _ rbac.RoleGraphStore = (*Store)(nil)

// New wraps a pool. The pool stays owned by the caller; Close it there.
func New(p *pool.Pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pg: pool is required")
	}
	return &Store{pool: p}, nil
}

// Ping validates connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn in a transaction on a pooled connection, committing when
// fn returns nil and rolling back otherwise.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.pool.Do(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// recordAudit appends the entry to the audit trail within the caller's
// transaction. Entries are written only when the mutation changed state.
func recordAudit(ctx context.Context, tx *sql.Tx, e rbac.AuditEntry) error {
	details := e.Details
	if details == "" {
		details = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		insert into audit_log (id, tenant, action, entity_type, entity_id, details)
		values ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.Tenant, e.Action, e.EntityType, e.EntityID, details)
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
