// Package postgres implements the core storage ports on PostgreSQL via pgx.
//
// Natural keys are protected by unique indexes (cities.name, sources.url,
// users.email). Inserts use ON CONFLICT DO NOTHING RETURNING id; when no row
// comes back the key was taken and core.ErrDuplicateKey is returned, which
// leaves the transaction usable for the resolver's re-read.
//
// Expected tables:
//
//	cities(id uuid pk, name text unique, created_at timestamptz)
//	sources(id uuid pk, name text, url text unique, created_at timestamptz)
//	users(id uuid pk, email text unique, first_name, last_name, middle_name text, is_admin bool, created_at timestamptz)
//	listings(id uuid pk, title text, description text, price numeric(12,2), district text, rooms int,
//	         url text, created_at timestamptz, publication_date timestamptz,
//	         city_id uuid fk, source_id uuid fk, owner_id uuid fk)
//	listing_images(id uuid pk, listing_id uuid fk on delete cascade, data bytea, created_at timestamptz)
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/listings/internal/core"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is a core.Store over a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Repos returns repositories bound to the pool.
func (s *Store) Repos() core.Repositories {
	return reposFor(s.pool)
}

// InTx runs fn in a READ COMMITTED transaction. Commit happens only when fn
// returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos core.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &core.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &core.PersistenceError{Op: "commit transaction", Err: err}
	}
	return nil
}

func reposFor(db DBTX) core.Repositories {
	return core.Repositories{
		Cities:   &CityRepo{db: db},
		Sources:  &SourceRepo{db: db},
		Users:    &UserRepo{db: db},
		Listings: &ListingRepo{db: db},
	}
}

// wrap classifies a pgx error for the core.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &core.PersistenceError{Op: op, Err: err}
}
