// Package session owns one validation session: the sandbox schema state and
// the outcome cache live here for as long as the sandbox connection does, and
// every run flows through Check serially.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pgvet-io/pgvet-engine/pkg/apperrors"
	"github.com/pgvet-io/pgvet-engine/pkg/database"
	"github.com/pgvet-io/pgvet-engine/pkg/diagnostics"
	"github.com/pgvet-io/pgvet-engine/pkg/models"
	"github.com/pgvet-io/pgvet-engine/pkg/sandbox"
	"github.com/pgvet-io/pgvet-engine/pkg/validate"
)

// Session validates manifests against one sandbox connection. All methods
// must be called serially; the sandbox is a single connection and probing is
// inherently sequential on it.
type Session struct {
	sandbox *database.Sandbox
	manager *sandbox.Manager
	engine  *validate.Engine
	cache   *validate.Cache
	logger  *zap.Logger

	// running rejects overlapping Check calls; the sandbox is one connection
	// and a second in-flight run would corrupt its probe transaction.
	running atomic.Bool

	// lastConfig is the run config of the previous run. Cached outcomes
	// depend on the strict-temporal flag and the type mappings, so a change
	// to either invalidates the whole cache.
	lastConfig *models.RunConfig

	lastStats RunStats
}

// RunStats counts what the most recent completed run did. A cache hit is a
// statement answered from the previous run's outcome without touching the
// database.
type RunStats struct {
	Statements int
	CacheHits  int
}

// NewSession creates a session over an established sandbox connection. If
// logger is nil, a no-op logger is used.
func NewSession(sb *database.Sandbox, migrationsDir string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := sandbox.NewManager(sb, migrationsDir, logger)
	return &Session{
		sandbox: sb,
		manager: mgr,
		engine:  validate.NewEngine(mgr, logger),
		cache:   validate.NewCache(),
		logger:  logger,
	}
}

// Close releases the sandbox connection.
func (s *Session) Close(ctx context.Context) error {
	return s.sandbox.Close(ctx)
}

// Check runs one validation pass over the manifest: schema provisioning,
// then every statement in manifest order, serially, accumulating
// diagnostics. One statement's error never prevents evaluation of the next.
// The returned error is fatal (connection-level); a failed migration is not
// an error but a single diagnostic.
func (s *Session) Check(ctx context.Context, manifest *models.Manifest) ([]models.Diagnostic, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrRunInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID))
	logger.Info("Validation run starting",
		zap.Int("statements", len(manifest.Statements)),
		zap.Int("views", len(manifest.ViewLibrary)))

	mapper := diagnostics.NewMapper(manifest.Config.ColTypesFormat)

	ensured, err := s.manager.EnsureSchema(ctx, manifest)
	if err != nil {
		return nil, s.classifyFatal(err)
	}
	if ensured.Reset || !outcomeConfigEqual(s.lastConfig, &manifest.Config) {
		// Outcomes are only valid for the schema generation and run config
		// that produced them.
		s.cache.Clear()
	}
	cfg := manifest.Config
	s.lastConfig = &cfg
	if ensured.Migration != nil {
		logger.Warn("Migration replay failed, aborting run",
			zap.String("file", ensured.Migration.FileName))
		return []models.Diagnostic{mapper.FromMigrationError(ensured.Migration)}, nil
	}

	var diags []models.Diagnostic
	for _, re := range ensured.Resolution {
		diags = append(diags, mapper.FromResolutionError(re))
	}
	for _, ve := range ensured.ViewErrors {
		diags = append(diags, mapper.FromViewError(ve))
	}

	state := s.manager.State()
	tm := validate.NewTypeMapper(state.Types, manifest.Config.CustomTypeMappings, state.BrandedSQLTypes)

	tx, err := s.manager.BeginProbe(ctx, manifest.Config.StrictTemporalTyping)
	if err != nil {
		return nil, s.classifyFatal(err)
	}
	// The probe transaction must never commit: it may carry the strict
	// temporal catalog patch.
	defer func() { _ = tx.Rollback(ctx) }()

	fresh := validate.NewCache()
	hits := 0

	for _, stmt := range manifest.Statements {
		var sig string
		if stmt.Insert != nil {
			sig = validate.InsertSignature(stmt.Insert)
		} else {
			sig = validate.QuerySignature(stmt.Query)
		}

		outcome, cached := s.cache.Get(sig)
		if !cached {
			if stmt.Insert != nil {
				outcome, err = s.engine.ValidateInsert(ctx, tx, stmt.Insert, tm)
			} else {
				outcome, err = s.engine.ValidateQuery(ctx, tx, stmt.Query, tm)
			}
			if err != nil {
				return nil, s.classifyFatal(err)
			}
		} else {
			hits++
		}

		fresh.Set(sig, outcome)
		diags = append(diags, mapper.FromOutcome(stmt, outcome)...)
	}

	// Swap in the fresh cache only now that the run completed: entries for
	// statements no longer in the manifest age out with the old cache.
	s.cache = fresh
	s.lastStats = RunStats{Statements: len(manifest.Statements), CacheHits: hits}

	logger.Info("Validation run finished",
		zap.Int("diagnostics", len(diags)),
		zap.Int("cache_hits", hits),
		zap.Duration("duration", time.Since(start)))

	return diags, nil
}

// LastStats returns the counters of the most recent run that made it through
// all statements. Aborted runs (failed migration, lost connection) leave the
// previous counters in place.
func (s *Session) LastStats() RunStats {
	return s.lastStats
}

// outcomeConfigEqual compares the parts of the run config that cached
// outcomes depend on. The rendering format is excluded: diagnostics are
// re-rendered from outcomes on every run.
func outcomeConfigEqual(prev, next *models.RunConfig) bool {
	if prev == nil {
		return false
	}
	if prev.StrictTemporalTyping != next.StrictTemporalTyping {
		return false
	}
	if len(prev.CustomTypeMappings) != len(next.CustomTypeMappings) {
		return false
	}
	for i := range prev.CustomTypeMappings {
		if prev.CustomTypeMappings[i] != next.CustomTypeMappings[i] {
			return false
		}
	}
	return true
}

// classifyFatal tags a fatal run error as connection loss when the sandbox
// connection is gone, so callers can distinguish "reconnect and retry" from
// genuine bugs.
func (s *Session) classifyFatal(err error) error {
	if !s.sandbox.IsAlive() {
		return fmt.Errorf("%w: %v", apperrors.ErrConnectionLost, err)
	}
	return err
}
