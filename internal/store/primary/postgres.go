package primary

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bottle/internal/store"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgConn struct {
	q pgQuerier
}

func (c pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

func (c pgConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err)
	}
	return pgRows{rs}, nil
}

func (c pgConn) queryRow(ctx context.Context, query string, args ...any) row {
	return pgRow{c.q.QueryRow(ctx, query, args...)}
}

type pgRows struct {
	rs pgx.Rows
}

func (r pgRows) Next() bool             { return r.rs.Next() }
func (r pgRows) Scan(dest ...any) error { return mapPgError(r.rs.Scan(dest...)) }
func (r pgRows) Err() error             { return mapPgError(r.rs.Err()) }
func (r pgRows) Close()                 { r.rs.Close() }

type pgRow struct {
	r pgx.Row
}

func (r pgRow) Scan(dest ...any) error { return mapPgError(r.r.Scan(dest...)) }

type pgDatabase struct {
	pgConn
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (*pgDatabase, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &pgDatabase{pgConn: pgConn{q: dbpool}, pool: dbpool}, nil
}

func (d *pgDatabase) inTx(ctx context.Context, fn func(q querier) error) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		return fn(pgConn{q: tx})
	})
}

func (d *pgDatabase) ping(ctx context.Context) error { return d.pool.Ping(ctx) }
func (d *pgDatabase) close()                         { d.pool.Close() }
func (d *pgDatabase) backend() string                { return backendPostgres }

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrForeignKeyViolation, pgErr.Message)
		}
	}
	return err
}
