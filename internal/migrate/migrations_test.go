package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storypoints/internal/db"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	latest := migrations[len(migrations)-1].Version

	require.NoError(t, Migrate(conn))
	v, err := Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, latest, v)

	require.NoError(t, MigrateContext(ctx, conn))
	v, err = Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, latest, v)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&n))
	require.Equal(t, 1, n)
}
