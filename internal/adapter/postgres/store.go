package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencouncil/councild/internal/port/database"
)

// Store is the PostgreSQL implementation of database.Store. Entity
// queries live in the store_*.go files, one per aggregate.
type Store struct {
	pool *pgxpool.Pool
}

var _ database.Store = (*Store)(nil)

// NewStore wraps an established connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}
