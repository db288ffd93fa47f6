// Package postgres stores users, products and price history in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

// Pool wraps pgxpool.Pool and implements database.Opener.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a connection pool and verifies it with a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing postgres dsn")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to postgres")
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "error pinging postgres")
	}

	return &Pool{Pool: pool}, nil
}

// Migrate creates the tables and indexes if they don't exist yet.
func (p *Pool) Migrate(ctx context.Context) error {
	_, err := p.Exec(ctx, schema)
	return errors.Wrap(err, "error applying postgres schema")
}

const (
	pgErrForeignKeyViolation = "23503"
)

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrForeignKeyViolation
	}
	return false
}
