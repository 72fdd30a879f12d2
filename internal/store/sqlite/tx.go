package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/chronicle/internal/store"
)

// querier abstracts *sql.DB and *sql.Tx so every operation runs against the
// active transaction when one is in flight and the plain connection otherwise.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txScope carries the open transaction through the context so nested
// WithTransaction calls collapse into it.
type txScope struct {
	store *Store
	tx    *sql.Tx
}

func (s *Store) scopeFrom(ctx context.Context) *txScope {
	raw, ok := store.ScopeFrom(ctx)
	if !ok {
		return nil
	}
	sc, ok := raw.(*txScope)
	if !ok || sc.store != s {
		return nil
	}
	return sc
}

// q returns the querier for the current context: the in-flight transaction if
// one is active, otherwise the database handle.
func (s *Store) q(ctx context.Context) querier {
	if sc := s.scopeFrom(ctx); sc != nil {
		return sc.tx
	}
	return s.db
}

// WithTransaction implements the repository transaction boundary.
//
// A nested call from inside an active transaction reuses the enclosing
// commit/rollback log; only the outermost scope commits. Root transactions
// are serialized by the store mutex, so a concurrently issued root
// transaction observes either none or all of this one's writes.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if sc := s.scopeFrom(ctx); sc != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(store.WithScope(ctx, &txScope{store: s, tx: tx})); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
