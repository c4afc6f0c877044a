package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/apperrors"
	"github.com/pgvet-io/pgvet-engine/pkg/database"
)

// migrationNamePattern is the strict naming contract for migration files.
var migrationNamePattern = regexp.MustCompile(`^V\d+__.+\.sql$`)

// MigrationFile is one migration, loaded into memory for fingerprinting and
// replay.
type MigrationFile struct {
	Name     string
	Contents string
}

// DiscoverMigrations loads every .sql file in dir, sorted by filename
// (lexical order is application order). A .sql file that does not match the
// V<digits>__<description>.sql pattern is an error.
func DiscoverMigrations(dir string) ([]MigrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var files []MigrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if !migrationNamePattern.MatchString(entry.Name()) {
			return nil, fmt.Errorf("%w: migration file %q does not match V<digits>__<description>.sql",
				apperrors.ErrMigrationFailed, entry.Name())
		}

		contents, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		files = append(files, MigrationFile{Name: entry.Name(), Contents: string(contents)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Fingerprint computes the migrations fingerprint: a cryptographic hash over
// the sorted list of migration filenames and their contents. Any change to
// any file, or adding/removing/renaming a file, changes the fingerprint.
func Fingerprint(files []MigrationFile) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00", f.Name, len(f.Contents))
		h.Write([]byte(f.Contents))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// fullReset drops every view, table, sequence, user type, and function in
// the sandbox schema by dropping and recreating the schema itself. The
// local-only connection guard makes this safe: the schema belongs to the
// disposable sandbox.
func (m *Manager) fullReset(ctx context.Context) error {
	conn := m.sandbox.Conn()
	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", SchemaName)); err != nil {
		return fmt.Errorf("failed to drop sandbox schema: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", SchemaName)); err != nil {
		return fmt.Errorf("failed to recreate sandbox schema: %w", err)
	}
	m.logger.Debug("Sandbox schema reset")
	return nil
}

// replayMigrations applies every migration file in order on the sandbox
// connection. A SQL error is fatal for the run: replay stops immediately and
// the offending file and byte offset are reported. Non-SQL errors
// (connection loss) are returned as a plain error.
func (m *Manager) replayMigrations(ctx context.Context, files []MigrationFile) (*MigrationError, error) {
	conn := m.sandbox.Conn()

	for _, f := range files {
		// Exec without arguments uses the simple protocol, so multi-statement
		// migration files apply as a unit.
		if _, err := conn.Exec(ctx, f.Contents); err != nil {
			pgErr, ok := database.ExtractPGError(err)
			if !ok {
				return nil, fmt.Errorf("failed to apply migration %s: %w", f.Name, err)
			}

			offset := 0
			if pgErr.Position > 0 {
				offset = pgErr.Position - 1
			}
			m.logger.Error("Migration replay failed",
				zap.String("file", f.Name),
				zap.Int("offset", offset),
				zap.String("code", pgErr.Code),
				zap.String("message", pgErr.Message))

			return &MigrationError{
				FileName: f.Name,
				Contents: f.Contents,
				Offset:   offset,
				PG:       pgErr,
			}, nil
		}
		m.logger.Debug("Applied migration", zap.String("file", f.Name))
	}

	return nil, nil
}
