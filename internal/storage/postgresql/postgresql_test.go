package postgresql

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	storage, err := New(ctx, dsn)
	require.NoError(t, err)
	defer storage.Stop()

	require.NoError(t, storage.HealthCheck(ctx))

	// applying twice must be a no-op
	require.NoError(t, storage.Migrate(ctx))
	require.NoError(t, storage.Migrate(ctx))

	var exists bool
	err = storage.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'posts')`,
	).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists)
}
