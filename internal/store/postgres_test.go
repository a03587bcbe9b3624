package store

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestPostgresStore runs against TEST_DATABASE_URL. Every case uses fresh ids, so a
// shared database is fine.
func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))

	runStoreContract(t, func(t *testing.T) Store {
		return &unclosable{PostgresStore: s}
	})
}

// unclosable keeps subtests from closing the shared pool.
type unclosable struct {
	*PostgresStore
}

func (u *unclosable) Close() {}
