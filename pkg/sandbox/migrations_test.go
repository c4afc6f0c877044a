package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgvet-io/pgvet-engine/pkg/apperrors"
)

func writeMigration(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "V2__add_emails.sql", "ALTER TABLE users ADD COLUMN email text")
	writeMigration(t, dir, "V1__create_users.sql", "CREATE TABLE users (id int)")
	writeMigration(t, dir, "notes.txt", "not a migration")

	files, err := DiscoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	// Lexical order is application order; non-.sql files are ignored.
	assert.Equal(t, "V1__create_users.sql", files[0].Name)
	assert.Equal(t, "V2__add_emails.sql", files[1].Name)
}

func TestDiscoverMigrationsRejectsBadName(t *testing.T) {
	tests := []string{
		"1__no_prefix.sql",
		"V__no_number.sql",
		"V1_single_underscore.sql",
		"V1__.sql",
	}

	for _, badName := range tests {
		t.Run(badName, func(t *testing.T) {
			dir := t.TempDir()
			writeMigration(t, dir, badName, "SELECT 1")

			_, err := DiscoverMigrations(dir)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrMigrationFailed)
		})
	}
}

func TestFingerprint(t *testing.T) {
	base := []MigrationFile{
		{Name: "V1__a.sql", Contents: "CREATE TABLE a (id int)"},
		{Name: "V2__b.sql", Contents: "CREATE TABLE b (id int)"},
	}

	same := Fingerprint([]MigrationFile{base[0], base[1]})
	assert.Equal(t, Fingerprint(base), same)

	changedContents := []MigrationFile{
		base[0],
		{Name: "V2__b.sql", Contents: "CREATE TABLE b (id bigint)"},
	}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(changedContents))

	renamed := []MigrationFile{
		base[0],
		{Name: "V2__renamed.sql", Contents: base[1].Contents},
	}
	assert.NotEqual(t, Fingerprint(base), Fingerprint(renamed))

	removed := base[:1]
	assert.NotEqual(t, Fingerprint(base), Fingerprint(removed))

	// Boundary shifting between name and contents must not collide.
	a := []MigrationFile{{Name: "V1__ab.sql", Contents: "c"}}
	b := []MigrationFile{{Name: "V1__a.sql", Contents: "bc"}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}
