package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalkeeper/internal/db"
	"goalkeeper/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	all, err := migrate.Load()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	latest := all[len(all)-1].Version

	v, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	v, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n))
	assert.Zero(t, n)
}

func TestSeparateDatabasesAreIsolated(t *testing.T) {
	ctx := context.Background()
	a, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer a.Close()
	b, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer b.Close()

	_, err = migrate.Migrate(ctx, a)
	require.NoError(t, err)
	_, err = b.ExecContext(ctx, `SELECT 1 FROM events`)
	assert.Error(t, err)
}
