package primary

import (
	"context"
	"fmt"
	"strings"
)

// querier is the subset of a connection or transaction the queries need.
// Both backends bind $n placeholders.
type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

// database is a pooled handle for one backend.
type database interface {
	querier
	inTx(ctx context.Context, fn func(q querier) error) error
	ping(ctx context.Context) error
	close()
	backend() string
}

const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openDatabase(ctx context.Context, dsn string) (database, error) {
	if isPostgresDSN(dsn) {
		return openPostgres(ctx, dsn)
	}
	return openSQLite(ctx, dsn)
}

// placeholders renders "$start, $start+1, ..." for n values.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
