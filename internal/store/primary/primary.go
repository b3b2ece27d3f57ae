package primary

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"bottle/internal/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// StoreImpl implements store.PrimaryStore on PostgreSQL or SQLite.
type StoreImpl struct {
	db database
}

var _ store.PrimaryStore = (*StoreImpl)(nil)

// NewPrimaryStore opens the store. DSNs starting with postgres:// or
// postgresql:// use pgx; anything else is treated as a SQLite path.
func NewPrimaryStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	db, err := openDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &StoreImpl{db: db}, nil
}

// Ping checks the database connection.
func (s *StoreImpl) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

// Close closes the database connection pool.
func (s *StoreImpl) Close() {
	s.db.close()
}

// Backend names the driver in use, for diagnostics.
func (s *StoreImpl) Backend() string {
	return s.db.backend()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *StoreImpl) Migrate(ctx context.Context) error {
	raw, err := schemaFS.ReadFile("schema/" + s.db.backend() + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	log.Debugf("Schema applied (%s)", s.db.backend())
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
