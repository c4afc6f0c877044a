package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
	"github.com/pgvet-io/pgvet-engine/pkg/testhelpers"
)

func newManager(t *testing.T, migrations map[string]string) *sandbox.Manager {
	t.Helper()

	dir := t.TempDir()
	for name, contents := range migrations {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}

	sb := testhelpers.ConnectSandbox(t)
	return sandbox.NewManager(sb, dir, nil)
}

func TestEnsureSchemaRepaysMigrationsAndResets(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, map[string]string{
		"V1__create_users.sql": `
			CREATE TABLE users (
				id int NOT NULL,
				email text NOT NULL,
				nickname text
			)`,
	})
	manifest := &models.Manifest{}

	result, err := mgr.EnsureSchema(ctx, manifest)
	require.NoError(t, err)
	assert.True(t, result.Reset)
	require.Nil(t, result.Migration)

	cols, ok, err := mgr.TableColumns(ctx, "users")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cols, 3)
	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].NotNull)
	assert.False(t, cols[2].NotNull)

	// Unchanged migrations: the second run keeps the schema.
	result, err = mgr.EnsureSchema(ctx, manifest)
	require.NoError(t, err)
	assert.False(t, result.Reset)

	_, ok, err = mgr.TableColumns(ctx, "ghosts")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnsureSchemaReportsMigrationError(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, map[string]string{
		"V1__broken.sql": "CREATE TABLE broken (id nonexistent_type)",
	})

	result, err := mgr.EnsureSchema(ctx, &models.Manifest{})
	require.NoError(t, err)
	require.NotNil(t, result.Migration)

	assert.Equal(t, "V1__broken.sql", result.Migration.FileName)
	assert.NotNil(t, result.Migration.PG)
	assert.GreaterOrEqual(t, result.Migration.Offset, 0)
	assert.Less(t, result.Migration.Offset, len(result.Migration.Contents))
}

func TestEnsureSchemaInstallsViews(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, map[string]string{
		"V1__create_users.sql": "CREATE TABLE users (id int NOT NULL, active bool NOT NULL)",
	})

	library := []models.ViewFragment{
		{
			Name: models.ViewName{Module: "app", Name: "active_users"},
			Segments: []models.FragmentSegment{
				{Kind: models.SegmentLiteral, Text: "SELECT id FROM users WHERE active"},
			},
		},
		{
			Name: models.ViewName{Module: "app", Name: "wild"},
			Segments: []models.FragmentSegment{
				{Kind: models.SegmentLiteral, Text: "SELECT * FROM users"},
			},
		},
		{
			Name: models.ViewName{Module: "app", Name: "bad_sql"},
			Segments: []models.FragmentSegment{
				{Kind: models.SegmentLiteral, Text: "SELECT nope FROM users"},
			},
		},
	}

	result, err := mgr.EnsureSchema(ctx, &models.Manifest{ViewLibrary: library})
	require.NoError(t, err)
	require.Nil(t, result.Migration)
	assert.Empty(t, result.Resolution)

	// The healthy view installs; the wildcard and broken views each get one
	// error without aborting the run.
	require.Len(t, result.ViewErrors, 2)
	kinds := map[sandbox.ViewErrorKind]int{}
	for _, ve := range result.ViewErrors {
		kinds[ve.Kind]++
	}
	assert.Equal(t, 1, kinds[sandbox.ViewInvalidWildcard])
	assert.Equal(t, 1, kinds[sandbox.ViewCreateError])

	assert.Len(t, mgr.State().InstalledViews, 1)

	// Re-ensuring with the same library is a no-op.
	result, err = mgr.EnsureSchema(ctx, &models.Manifest{ViewLibrary: library})
	require.NoError(t, err)
	assert.Len(t, mgr.State().InstalledViews, 1)

	// Removing the view from the library drops it.
	result, err = mgr.EnsureSchema(ctx, &models.Manifest{})
	require.NoError(t, err)
	assert.Empty(t, mgr.State().InstalledViews)
}

func TestEnsureSchemaAppliesBrandedTypes(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t, map[string]string{
		"V1__create.sql": `
			CREATE TABLE users (
				id int NOT NULL PRIMARY KEY,
				name text NOT NULL
			);
			CREATE TABLE orders (
				id int NOT NULL PRIMARY KEY,
				user_id int NOT NULL REFERENCES users (id)
			);`,
	})

	manifest := &models.Manifest{
		BrandedTypes: []models.BrandedTypeBinding{
			{TypeName: "UserId", TableName: "users", ColumnName: "id"},
		},
	}

	result, err := mgr.EnsureSchema(ctx, manifest)
	require.NoError(t, err)
	require.Nil(t, result.Migration)

	assert.Equal(t, map[string]string{"userid": "UserId"}, mgr.State().BrandedSQLTypes)

	// The bound column and the FK-linked column both carry the brand.
	for _, table := range []string{"users", "orders"} {
		cols, ok, err := mgr.TableColumns(ctx, table)
		require.NoError(t, err)
		require.True(t, ok)

		name, ok := mgr.State().Types.SQLTypeName(cols[idColumn(cols, table)].TypeOID)
		require.True(t, ok)
		assert.Equal(t, "userid", name, "table %s", table)
	}
}

func idColumn(cols []sandbox.TableColumn, table string) int {
	target := "id"
	if table == "orders" {
		target = "user_id"
	}
	for i, c := range cols {
		if c.Name == target {
			return i
		}
	}
	return 0
}
