package primary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLiteStore(t *testing.T) *StoreImpl {
	t.Helper()
	st, err := NewPrimaryStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, openSQLiteStore)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	st := openSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	assert.Equal(t, backendSQLite, st.Backend())
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bottle.db")

	st, err := NewPrimaryStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	feed := newFeed(t, st, "yandere", `{"kind":"tags"}`)
	st.Close()

	reopened, err := NewPrimaryStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetFeed(ctx, feed.Key())
	require.NoError(t, err)
	assert.Equal(t, feed.Name, got.Name)
}

func TestNewPrimaryStore_EmptyDSN(t *testing.T) {
	_, err := NewPrimaryStore(context.Background(), "")
	require.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"file", "bottle.db", "bottle.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"memory", ":memory:", ":memory:?_foreign_keys=on&_busy_timeout=5000"},
		{"existing query", "file:x.db?cache=shared", "file:x.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
		{"all set", "x.db?_foreign_keys=off&_busy_timeout=1&_journal_mode=DELETE", "x.db?_foreign_keys=off&_busy_timeout=1&_journal_mode=DELETE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sqliteDSN(tt.dsn))
		})
	}
}
