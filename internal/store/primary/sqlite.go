package primary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"bottle/internal/store"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlConn struct {
	q sqlQuerier
}

func (c sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	rs, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	return sqlRows{rs}, nil
}

func (c sqlConn) queryRow(ctx context.Context, query string, args ...any) row {
	return sqlRow{c.q.QueryRowContext(ctx, query, args...)}
}

type sqlRows struct {
	rs *sql.Rows
}

func (r sqlRows) Next() bool             { return r.rs.Next() }
func (r sqlRows) Scan(dest ...any) error { return mapSQLiteError(r.rs.Scan(dest...)) }
func (r sqlRows) Err() error             { return mapSQLiteError(r.rs.Err()) }
func (r sqlRows) Close()                 { _ = r.rs.Close() }

type sqlRow struct {
	r *sql.Row
}

func (r sqlRow) Scan(dest ...any) error { return mapSQLiteError(r.r.Scan(dest...)) }

type sqliteDatabase struct {
	sqlConn
	db *sql.DB
}

// sqliteDSN adds the connection options the store relies on unless the
// caller already set them.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "bottle.db"
	}
	opts := []string{"_foreign_keys=on", "_busy_timeout=5000"}
	if !strings.Contains(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		opts = append(opts, "_journal_mode=WAL")
	}
	var missing []string
	for _, opt := range opts {
		key, _, _ := strings.Cut(opt, "=")
		if !strings.Contains(dsn, key+"=") {
			missing = append(missing, opt)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

func openSQLite(ctx context.Context, dsn string) (*sqliteDatabase, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// Writers serialize on the file lock anyway, and an in-memory database
	// only exists on its own connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return &sqliteDatabase{sqlConn: sqlConn{q: db}, db: db}, nil
}

func (d *sqliteDatabase) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(sqlConn{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (d *sqliteDatabase) ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *sqliteDatabase) close()                         { _ = d.db.Close() }
func (d *sqliteDatabase) backend() string                { return backendSQLite }

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", store.ErrDuplicate, sqliteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", store.ErrForeignKeyViolation, sqliteErr.Error())
		}
	}
	return err
}
