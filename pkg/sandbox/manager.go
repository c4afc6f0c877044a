// Package sandbox owns the sandbox connection's schema lifecycle: migration
// replay, branded column types, the nullability and type-name indexes, view
// reconciliation, and the strict temporal catalog patch.
package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/views"
)

// SchemaName is the single schema the sandbox operates in.
const SchemaName = "public"

// State is the sandbox's view of the installed schema. It is invalidated
// and rebuilt wholesale, never partially patched, whenever the migration
// fingerprint or the branded-type bindings change.
type State struct {
	Fingerprint    string
	Bindings       []models.BrandedTypeBinding
	InstalledViews map[string]struct{} // generated view names created in the schema
	Nullability    *NullabilityIndex
	Types          *TypeIndex

	// BrandedSQLTypes maps a branded range type's SQL name to its host
	// type name, e.g. "userid" -> "UserId".
	BrandedSQLTypes map[string]string
}

// MigrationError is the fatal outcome of a failed migration replay. Offset
// is a byte offset into the migration file contents.
type MigrationError struct {
	FileName string
	Contents string
	Offset   int
	PG       *database.PGError
}

// ViewErrorKind classifies non-fatal view installation failures.
type ViewErrorKind int

const (
	// ViewCreateError is a database error raised while creating the view.
	ViewCreateError ViewErrorKind = iota
	// ViewInvalidWildcard marks a definition using an unqualified wildcard
	// projection, which would make the view's column set ambiguous across
	// schema history.
	ViewInvalidWildcard
)

// ViewError is a non-fatal, per-view installation failure.
type ViewError struct {
	Kind ViewErrorKind
	View views.ResolvedView
	PG   *database.PGError // set for ViewCreateError
	// Offset is a byte offset into the view body (wildcard position, or the
	// server-reported error position rebased to 0-based).
	Offset int
}

// EnsureResult reports what EnsureSchema did. Migration is the fatal subset:
// when set, the run must abort with that single diagnostic.
type EnsureResult struct {
	Reset      bool // full reset happened; every cached outcome is obsolete
	Migration  *MigrationError
	Resolution []views.ResolutionError
	ViewErrors []ViewError
}

// Manager owns the sandbox schema lifecycle. All methods must be called
// serially; schema mutation is exclusive with any probe in flight.
type Manager struct {
	sandbox       *database.Sandbox
	migrationsDir string
	resolver      *views.Resolver
	logger        *zap.Logger

	state *State
}

// NewManager creates a schema sandbox manager. If logger is nil, a no-op
// logger is used.
func NewManager(sandbox *database.Sandbox, migrationsDir string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sandbox:       sandbox,
		migrationsDir: migrationsDir,
		resolver:      views.NewResolver(logger),
		logger:        logger,
		state: &State{
			InstalledViews:  make(map[string]struct{}),
			BrandedSQLTypes: make(map[string]string),
		},
	}
}

// State returns the current sandbox state.
func (m *Manager) State() *State {
	return m.state
}

// EnsureSchema provisions or refreshes the sandbox schema for the manifest:
//  1. fingerprint the migration files; on change (or changed branded-type
//     bindings) fully reset the schema and replay every migration,
//  2. apply branded column types,
//  3. rebuild the nullability and type-name indexes,
//  4. reconcile installed views against the manifest's view library.
//
// A migration failure is fatal and reported through EnsureResult.Migration;
// lower-level failures (connection loss) are returned as an error.
func (m *Manager) EnsureSchema(ctx context.Context, manifest *models.Manifest) (*EnsureResult, error) {
	result := &EnsureResult{}

	files, err := DiscoverMigrations(m.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover migrations: %w", err)
	}
	fingerprint := Fingerprint(files)

	if fingerprint != m.state.Fingerprint || !bindingsEqual(m.state.Bindings, manifest.BrandedTypes) {
		m.logger.Info("Schema out of date, performing full reset",
			zap.String("fingerprint", fingerprint),
			zap.Int("migrations", len(files)),
			zap.Int("branded_types", len(manifest.BrandedTypes)))

		result.Reset = true

		if err := m.fullReset(ctx); err != nil {
			return nil, err
		}

		migErr, err := m.replayMigrations(ctx, files)
		if err != nil {
			return nil, err
		}
		if migErr != nil {
			result.Migration = migErr
			return result, nil
		}

		if err := m.applyBrandedTypes(ctx, manifest.BrandedTypes); err != nil {
			return nil, err
		}

		if err := m.rebuildIndexes(ctx); err != nil {
			return nil, err
		}

		m.state.Fingerprint = fingerprint
		m.state.Bindings = append([]models.BrandedTypeBinding(nil), manifest.BrandedTypes...)
		m.state.InstalledViews = make(map[string]struct{})
	}

	resolution := m.resolver.Resolve(manifest.ViewLibrary)
	result.Resolution = resolution.Errors

	viewErrs, err := m.reconcileViews(ctx, resolution.Views, manifest.Config.StrictTemporalTyping)
	if err != nil {
		return nil, err
	}
	result.ViewErrors = viewErrs

	return result, nil
}

func bindingsEqual(a, b []models.BrandedTypeBinding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rebuildIndexes re-derives the nullability and type-name indexes from the
// catalogs. Called after every schema change so branded range types are
// present in the type index.
func (m *Manager) rebuildIndexes(ctx context.Context) error {
	nullability, err := BuildNullabilityIndex(ctx, m.sandbox.Conn())
	if err != nil {
		return fmt.Errorf("failed to build nullability index: %w", err)
	}
	typeIndex, err := BuildTypeIndex(ctx, m.sandbox.Conn())
	if err != nil {
		return fmt.Errorf("failed to build type index: %w", err)
	}
	m.state.Nullability = nullability
	m.state.Types = typeIndex
	return nil
}
